package audio

import (
	"errors"
)

var ErrUnavailable = errors.New("audio capture unavailable")

const (
	DefaultSampleRate = 44100
	DefaultChannels   = 2
)

// Format describes the PCM stream requested from a Device. Samples are
// signed 16-bit, interleaved.
type Format struct {
	SampleRate     int
	Channels       int
	FramesPerBlock int
}

// DefaultFormat is 44.1 kHz stereo delivered in 100 ms blocks.
func DefaultFormat() Format {
	return NewFormat(DefaultSampleRate, DefaultChannels)
}

func NewFormat(sampleRate, channels int) Format {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}
	return Format{SampleRate: sampleRate, Channels: channels, FramesPerBlock: sampleRate / 10}
}

// Block is one callback's worth of interleaved samples.
type Block struct {
	Samples    []int16
	Channels   int
	SampleRate int
}

// Stream is an opened input stream. Close is the stop action.
type Stream interface {
	Start() error
	Close() error
}

// Device opens push-style input streams. onBlock may be called from a
// realtime audio thread and must not block; the slice is only valid for the
// duration of the call.
type Device interface {
	Open(format Format, onBlock func(samples []int16)) (Stream, error)
}

// Enabled applies the platform audio policy: "on" and "off" force the
// setting, anything else enables audio except on darwin, where input capture
// has proven unreliable.
func Enabled(mode, goos string) bool {
	switch mode {
	case "on":
		return true
	case "off":
		return false
	default:
		return goos != "darwin"
	}
}
