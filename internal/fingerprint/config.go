package fingerprint

// Config controls the tunable parameters of the extraction pipeline:
// spectrogram resolution, peak selection, and token pairing.
type Config struct {
	SampleRate int // expected input rate, Hz
	WindowSize int // FFT window length in samples (power of 2)
	HopSize    int // samples between successive frames

	// Peak selection.
	PeakSpanDB   float64 // keep per-band maxima within this many dB of the frame's strongest peak
	MinMagnitude float64 // absolute magnitude floor; frames below it yield no peaks

	// Token pairing.
	FanOut         int // target peaks paired with each anchor
	MinDeltaFrames int // minimum anchor-target frame distance
	MaxDeltaFrames int // maximum anchor-target frame distance
}

// DefaultConfig returns the parameters used by the registry: 11.025 kHz
// input, ~93 ms windows with 75% overlap, and a pairing zone of about 1.5 s.
func DefaultConfig() Config {
	return Config{
		SampleRate:     11025,
		WindowSize:     1024,
		HopSize:        256,
		PeakSpanDB:     30.0,
		MinMagnitude:   0.01,
		FanOut:         6,
		MinDeltaFrames: 1,
		MaxDeltaFrames: 63,
	}
}
