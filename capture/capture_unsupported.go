//go:build !linux && !darwin && !windows

package capture

import (
	"fmt"
	"image"
)

func open(options *Options) (Provider, error) {
	_ = options
	return nil, fmt.Errorf("%w: no backend for this operating system", ErrNotImplemented)
}

func Displays() []image.Rectangle { return nil }
