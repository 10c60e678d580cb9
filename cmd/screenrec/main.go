package main

import (
	"context"
	"fmt"
	"os"

	"go2tv.app/screenrec/internal/cli"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root, err := cli.NewRootCommand()
	if err != nil {
		return fmt.Errorf("initializing cli: %w", err)
	}
	return root.ExecuteContext(context.Background())
}
