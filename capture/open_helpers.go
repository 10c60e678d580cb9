package capture

import (
	"fmt"
	"strings"
)

func validateOpenOptions(options *Options) (*Options, error) {
	opts := Options{}
	if options != nil {
		opts = *options
	}
	opts.Backend = strings.ToLower(strings.TrimSpace(opts.Backend))
	if opts.Backend == "" {
		opts.Backend = BackendAuto
	}
	switch opts.Backend {
	case BackendAuto, BackendDisplay, BackendPortal, BackendScreenshot:
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidOptions, opts.Backend)
	}
	if opts.Display < 0 {
		return nil, fmt.Errorf("%w: Display must be >= 0", ErrInvalidOptions)
	}
	return &opts, nil
}
