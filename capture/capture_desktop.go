//go:build darwin || windows

package capture

import "fmt"

func open(options *Options) (Provider, error) {
	switch options.Backend {
	case BackendPortal, BackendScreenshot:
		return nil, fmt.Errorf("%w: %s backend requires linux", ErrNotImplemented, options.Backend)
	}
	return newDisplayProvider(options.Display)
}
