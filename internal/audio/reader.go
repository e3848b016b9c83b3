package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
)

// ReadWAV decodes a PCM WAV file into a mono Signal.
func ReadWAV(path string) (Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		return Signal{}, fmt.Errorf("opening wav file: %w", err)
	}
	defer f.Close()
	return DecodeWAV(f)
}

// DecodeWAV decodes PCM WAV data into a mono Signal. Multi-channel audio is
// downmixed by averaging; samples are normalized to [-1, 1] based on the
// source bit depth.
func DecodeWAV(r io.ReadSeeker) (Signal, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Signal{}, errors.New("not a valid WAV file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Signal{}, fmt.Errorf("decoding wav data: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return Signal{}, errors.New("wav file contains no samples")
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))

	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}
		samples[i] = sum / float64(channels) / scale
	}

	return Signal{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}
