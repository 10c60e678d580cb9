//go:build !linux && !windows && !darwin

package gohook

import "errors"

func openPointer() (pointerQuery, error) {
	return nil, errors.New("gohook: pointer query not supported on this platform")
}
