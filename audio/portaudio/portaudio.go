// Package portaudio provides the default microphone Device.
package portaudio

import (
	"errors"
	"fmt"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"go2tv.app/screenrec/audio"
)

// Device opens the system default input device.
type Device struct{}

func New() *Device { return &Device{} }

func (d *Device) Open(format audio.Format, onBlock func([]int16)) (audio.Stream, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	s, err := pa.OpenDefaultStream(format.Channels, 0, float64(format.SampleRate), format.FramesPerBlock, func(in []int16) {
		onBlock(in)
	})
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio open default input: %w", err)
	}
	return &stream{s: s}, nil
}

type stream struct {
	s *pa.Stream

	mu      sync.Mutex
	started bool
	once    sync.Once
	err     error
}

func (st *stream) Start() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.s.Start(); err != nil {
		return fmt.Errorf("portaudio start: %w", err)
	}
	st.started = true
	return nil
}

func (st *stream) Close() error {
	st.once.Do(func() {
		st.mu.Lock()
		started := st.started
		st.mu.Unlock()

		var err error
		if started {
			err = errors.Join(err, st.s.Stop())
		}
		err = errors.Join(err, st.s.Close(), pa.Terminate())
		st.err = err
	})
	return st.err
}

// DeviceInfo summarizes the default input device for diagnostics.
type DeviceInfo struct {
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
}

func DefaultInput() (*DeviceInfo, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %w", audio.ErrUnavailable, err)
	}
	defer pa.Terminate()

	dev, err := pa.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", audio.ErrUnavailable, err)
	}
	return &DeviceInfo{
		Name:              dev.Name,
		MaxInputChannels:  dev.MaxInputChannels,
		DefaultSampleRate: dev.DefaultSampleRate,
	}, nil
}
