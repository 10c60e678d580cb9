//go:build windows

package gohook

import (
	"errors"

	"github.com/lxn/win"
)

type winPointer struct{}

func openPointer() (pointerQuery, error) { return winPointer{}, nil }

func (winPointer) position() (int, int, error) {
	var pt win.POINT
	if !win.GetCursorPos(&pt) {
		return 0, 0, errors.New("gohook: GetCursorPos failed")
	}
	return int(pt.X), int(pt.Y), nil
}

func (winPointer) close() {}
