//go:build !linux || !cgo

package pipewire

import "errors"

var ErrLibraryNotLoaded = errors.New("pipewire capture needs linux with cgo")

type Stream struct{}

func IsAvailable() bool { return false }

func NewStream(fd int, nodeID, width, height, fps uint32, onFrame func(Frame)) (*Stream, error) {
	return nil, ErrLibraryNotLoaded
}

func (s *Stream) Start() {}

func (s *Stream) Close() error { return nil }
