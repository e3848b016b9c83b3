package audio

import (
	"errors"
	"math"
)

// LowPass applies a first-order low-pass filter with the given cutoff
// frequency, attenuating content above it before decimation.
func LowPass(sig Signal, cutoffHz float64) Signal {
	rc := 1.0 / (2 * math.Pi * cutoffHz)
	dt := 1.0 / float64(sig.SampleRate)
	alpha := dt / (rc + dt)

	out := make([]float64, len(sig.Samples))
	var prev float64
	for i, x := range sig.Samples {
		if i == 0 {
			out[i] = x * alpha
		} else {
			out[i] = alpha*x + (1-alpha)*prev
		}
		prev = out[i]
	}
	return Signal{Samples: out, SampleRate: sig.SampleRate}
}

// Resample converts the signal down to targetRate. Integer rate ratios
// decimate by averaging sample groups; fractional ratios (such as
// 48000 -> 11025) interpolate linearly, so the output rate is exact rather
// than a truncated approximation. Content above targetRate/2 should be
// filtered out first.
func Resample(sig Signal, targetRate int) (Signal, error) {
	if targetRate <= 0 || sig.SampleRate <= 0 {
		return Signal{}, errors.New("sample rates must be positive")
	}
	if targetRate > sig.SampleRate {
		return Signal{}, errors.New("target rate exceeds source rate")
	}
	if targetRate == sig.SampleRate {
		return sig, nil
	}

	if sig.SampleRate%targetRate == 0 {
		ratio := sig.SampleRate / targetRate
		out := make([]float64, 0, len(sig.Samples)/ratio+1)
		for i := 0; i < len(sig.Samples); i += ratio {
			end := i + ratio
			if end > len(sig.Samples) {
				end = len(sig.Samples)
			}
			var sum float64
			for j := i; j < end; j++ {
				sum += sig.Samples[j]
			}
			out = append(out, sum/float64(end-i))
		}
		return Signal{Samples: out, SampleRate: targetRate}, nil
	}

	ratio := float64(sig.SampleRate) / float64(targetRate)
	out := make([]float64, int(float64(len(sig.Samples))/ratio))
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j+1 >= len(sig.Samples) {
			out[i] = sig.Samples[len(sig.Samples)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = sig.Samples[j]*(1-frac) + sig.Samples[j+1]*frac
	}
	return Signal{Samples: out, SampleRate: targetRate}, nil
}

// Prepare downmixes an arbitrary-rate signal to the rate the extractor
// expects, low-pass filtering first to limit aliasing. Signals already at
// the target rate pass through untouched.
func Prepare(sig Signal, targetRate int) (Signal, error) {
	if sig.SampleRate == targetRate {
		return sig, nil
	}
	if sig.SampleRate < targetRate {
		return Signal{}, errors.New("signal sample rate below extractor rate")
	}
	filtered := LowPass(sig, float64(targetRate)/2)
	return Resample(filtered, targetRate)
}
