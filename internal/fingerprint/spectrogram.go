package fingerprint

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// Hamming returns a Hamming window of length n.
func Hamming(n int) []float64 {
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// magnitudeSpectrum converts a complex spectrum into the magnitudes of its
// positive-frequency half.
func magnitudeSpectrum(spectrum []complex128) []float64 {
	half := len(spectrum) / 2
	mag := make([]float64, half)
	for i := 0; i < half; i++ {
		mag[i] = cmplx.Abs(spectrum[i])
	}
	return mag
}

// STFT computes a time-major magnitude spectrogram: result[frame][freqBin].
// The final partial window is discarded, so callers must ensure the input is
// at least one window long.
func STFT(samples []float64, windowSize, hopSize int, window []float64) [][]float64 {
	nFrames := 0
	if len(samples) >= windowSize {
		nFrames = (len(samples)-windowSize)/hopSize + 1
	}

	spectrogram := make([][]float64, 0, nFrames)
	frame := make([]float64, windowSize)
	for start := 0; start+windowSize <= len(samples); start += hopSize {
		copy(frame, samples[start:start+windowSize])
		for i := 0; i < windowSize; i++ {
			frame[i] *= window[i]
		}
		spectrogram = append(spectrogram, magnitudeSpectrum(fft.FFTReal(frame)))
	}
	return spectrogram
}
