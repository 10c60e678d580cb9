package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"go2tv.app/screenrec/internal/buildinfo"
	"go2tv.app/screenrec/internal/config"
	"go2tv.app/screenrec/internal/logging"
)

// app carries state resolved before any subcommand runs.
type app struct {
	configPath string
	verbose    bool

	cfg       *config.Config
	logCloser io.Closer
}

func NewRootCommand() (*cobra.Command, error) {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "screenrec",
		Short: "Record the screen, microphone and input activity into a video and an interaction log",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			_, a.logCloser = logging.Setup(cmd.ErrOrStderr(), a.verbose)
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
	}

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (.toml or .yaml); default "+config.DefaultPath())
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(
		newRecordCmd(a),
		newDoctorCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)

	return rootCmd, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print screenrec build version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "screenrec %s\n", buildinfo.String())
		},
	}
}
