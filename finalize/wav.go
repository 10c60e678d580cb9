package finalize

import (
	"errors"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"go2tv.app/screenrec/audio"
)

const (
	wavBitDepth  = 16
	wavFormatPCM = 1
)

// writeWAV concatenates blocks in order into a 16-bit PCM WAV file.
func writeWAV(path string, blocks []audio.Block, sampleRate, channels int) (err error) {
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("invalid wav format %d Hz x %d", sampleRate, channels)
	}

	n := 0
	for _, b := range blocks {
		n += len(b.Samples)
	}
	data := make([]int, 0, n)
	for _, b := range blocks {
		for _, s := range b.Samples {
			data = append(data, int(s))
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	enc := wav.NewEncoder(f, sampleRate, wavBitDepth, channels, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finish wav: %w", err)
	}
	return nil
}

// blockFormat falls back to the first block's format when the caller did not
// supply one.
func blockFormat(blocks []audio.Block, sampleRate, channels int) (int, int) {
	if len(blocks) > 0 {
		if sampleRate <= 0 {
			sampleRate = blocks[0].SampleRate
		}
		if channels <= 0 {
			channels = blocks[0].Channels
		}
	}
	return sampleRate, channels
}
