package audio

import "math"

// Tone generates a sine tone at the given frequency and amplitude.
func Tone(freqHz, durSec float64, rate int, amp float64) Signal {
	n := int(durSec * float64(rate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amp * math.Sin(2*math.Pi*freqHz*float64(i)/float64(rate))
	}
	return Signal{Samples: samples, SampleRate: rate}
}

// ToneSequence concatenates equal-length tone segments, one per frequency.
// It produces a signal with a distinctive, reproducible spectral landmark
// pattern, which the test suites use in place of recorded audio fixtures.
func ToneSequence(freqs []float64, segSec float64, rate int, amp float64) Signal {
	out := Signal{SampleRate: rate}
	for _, f := range freqs {
		seg := Tone(f, segSec, rate, amp)
		out.Samples = append(out.Samples, seg.Samples...)
	}
	return out
}

// Silence generates a zero-valued signal of the given duration.
func Silence(durSec float64, rate int) Signal {
	return Signal{Samples: make([]float64, int(durSec*float64(rate))), SampleRate: rate}
}

// Concat joins signals sharing one sample rate into a single clip.
func Concat(parts ...Signal) Signal {
	out := Signal{}
	for _, p := range parts {
		if out.SampleRate == 0 {
			out.SampleRate = p.SampleRate
		}
		out.Samples = append(out.Samples, p.Samples...)
	}
	return out
}
