package fingerprint

import (
	"math"
	"sort"
)

// Peak is a spectral landmark: a local magnitude maximum in the spectrogram.
// It carries both index and physical units.
type Peak struct {
	TimeIdx int     // frame index in the spectrogram
	FreqIdx int     // frequency bin index
	Time    float64 // time in seconds
	Freq    float64 // frequency in Hz
	MagDB   float64 // magnitude in dB
}

const (
	// local neighborhood for the 2D local-max check
	freqNeighbour = 3 // +/- bins
	timeNeighbour = 1 // +/- frames

	// floor to avoid log(0)
	eps = 1e-10
)

// logBands builds roughly logarithmic frequency bands over nBins bins, so
// low frequencies get finer peak resolution than high ones.
func logBands(nBins int) [][2]int {
	bands := [][2]int{{0, min(10, nBins)}}
	for start := 10; start < nBins; start *= 2 {
		end := min(start*2, nBins)
		bands = append(bands, [2]int{start, end})
		if end == nBins {
			break
		}
	}
	return bands
}

// ExtractPeaks finds robust spectral peaks (constellation points) in a
// time-major magnitude spectrogram. Per frame it keeps the strongest bin of
// each log band, drops maxima more than cfg.PeakSpanDB below the frame's
// loudest peak or below the absolute cfg.MinMagnitude floor, and requires
// each survivor to be a local maximum in its 2D neighborhood. The floor is
// what makes silent and near-silent input yield zero peaks.
//
// The result is sorted by (time, frequency), which makes extraction
// deterministic for identical input.
func ExtractPeaks(spectrogram [][]float64, sampleRate int, cfg Config) []Peak {
	if len(spectrogram) == 0 || len(spectrogram[0]) == 0 {
		return nil
	}

	nFrames := len(spectrogram)
	nBins := len(spectrogram[0])

	freqRes := float64(sampleRate) / float64(cfg.WindowSize)
	frameTime := float64(cfg.HopSize) / float64(sampleRate)

	bands := logBands(nBins)
	peaks := make([]Peak, 0, nFrames*2)

	for t := 0; t < nFrames; t++ {
		frame := spectrogram[t]

		// strongest bin per band
		bandIdx := make([]int, 0, len(bands))
		for _, b := range bands {
			maxIdx := -1
			maxMag := 0.0
			for i := b[0]; i < b[1]; i++ {
				if frame[i] > maxMag {
					maxMag = frame[i]
					maxIdx = i
				}
			}
			if maxIdx >= 0 {
				bandIdx = append(bandIdx, maxIdx)
			}
		}
		if len(bandIdx) == 0 {
			continue
		}

		frameMax := 0.0
		for _, bin := range bandIdx {
			if frame[bin] > frameMax {
				frameMax = frame[bin]
			}
		}
		frameMaxDb := 20.0 * math.Log10(frameMax+eps)

		for _, bin := range bandIdx {
			mag := frame[bin]
			if mag < cfg.MinMagnitude {
				continue
			}
			magDb := 20.0 * math.Log10(mag+eps)
			if magDb < frameMaxDb-cfg.PeakSpanDB {
				continue
			}
			if !isLocalMax(spectrogram, t, bin, mag) {
				continue
			}

			peaks = append(peaks, Peak{
				TimeIdx: t,
				FreqIdx: bin,
				Time:    float64(t) * frameTime,
				Freq:    float64(bin) * freqRes,
				MagDB:   magDb,
			})
		}
	}

	sort.Slice(peaks, func(i, j int) bool {
		if peaks[i].TimeIdx == peaks[j].TimeIdx {
			return peaks[i].FreqIdx < peaks[j].FreqIdx
		}
		return peaks[i].TimeIdx < peaks[j].TimeIdx
	})

	return peaks
}

func isLocalMax(spectrogram [][]float64, t, bin int, mag float64) bool {
	nFrames := len(spectrogram)
	nBins := len(spectrogram[0])
	for dt := -timeNeighbour; dt <= timeNeighbour; dt++ {
		tIdx := t + dt
		if tIdx < 0 || tIdx >= nFrames {
			continue
		}
		for df := -freqNeighbour; df <= freqNeighbour; df++ {
			fIdx := bin + df
			if fIdx < 0 || fIdx >= nBins {
				continue
			}
			if dt == 0 && df == 0 {
				continue
			}
			if spectrogram[tIdx][fIdx] > mag {
				return false
			}
		}
	}
	return true
}
