// Package audio holds the decoded-signal representation consumed by the
// fingerprint extractor, plus the WAV ingestion and resampling helpers used
// by the command-line callers.
package audio

// Signal is a decoded mono audio clip. It is ephemeral: the extractor reads
// it during processing and nothing in the core retains it afterwards.
type Signal struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the clip length in seconds.
func (s Signal) Duration() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.SampleRate)
}

// Empty reports whether the signal carries no samples.
func (s Signal) Empty() bool {
	return len(s.Samples) == 0
}

// Scale returns a copy of the signal with every sample multiplied by gain.
func (s Signal) Scale(gain float64) Signal {
	out := make([]float64, len(s.Samples))
	for i, v := range s.Samples {
		out[i] = v * gain
	}
	return Signal{Samples: out, SampleRate: s.SampleRate}
}
