// Package fingerprint converts decoded audio into compact perceptual tokens.
//
// The pipeline is a Hamming-windowed STFT, spectral peak picking per
// logarithmic frequency band, and Shazam-style pairing of nearby peaks into
// 32-bit tokens. Tokens encode relative landmark geometry (two frequency
// bins plus their frame distance), so a re-encoded or slightly degraded copy
// of a recording reproduces a large overlapping subset of them.
package fingerprint

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/waveprint/waveprint/internal/audio"
)

var (
	// ErrInsufficientAudio reports input shorter than one analysis window.
	ErrInsufficientAudio = errors.New("audio shorter than minimum analysis window")

	// ErrNoExtractableFeatures reports input with no usable spectral
	// landmarks, such as silence or near-silence.
	ErrNoExtractableFeatures = errors.New("no extractable spectral features")
)

// Bit allocation inside a token hash:
// [ anchorFreq (freqBits) | targetFreq (freqBits) | deltaFrames (deltaBits) ]
const (
	freqBits  = 9
	deltaBits = 14
)

// Token is one fingerprint unit: a packed peak-pair hash plus the anchor
// peak's time offset in the source clip. Immutable once produced.
type Token struct {
	Hash     uint32
	OffsetMs uint32
}

// Set is the ordered token sequence extracted from one clip, sorted by
// (OffsetMs, Hash).
type Set []Token

// Hashes returns the distinct hash values present in the set.
func (s Set) Hashes() []uint32 {
	seen := make(map[uint32]struct{}, len(s))
	out := make([]uint32, 0, len(s))
	for _, t := range s {
		if _, ok := seen[t.Hash]; !ok {
			seen[t.Hash] = struct{}{}
			out = append(out, t.Hash)
		}
	}
	return out
}

// packHash packs an anchor/target peak pair into a 32-bit token hash.
// Returns ok=false when the pair's frame distance falls outside the
// configured pairing zone or an index does not fit its bit allocation.
func packHash(anchor, target Peak, cfg Config) (uint32, bool) {
	delta := target.TimeIdx - anchor.TimeIdx
	if delta < cfg.MinDeltaFrames || delta > cfg.MaxDeltaFrames {
		return 0, false
	}

	const (
		freqMask  = uint32(1<<freqBits) - 1
		deltaMask = uint32(1<<deltaBits) - 1
	)
	anchorFreq := uint32(anchor.FreqIdx)
	targetFreq := uint32(target.FreqIdx)
	deltaVal := uint32(delta)

	if anchorFreq > freqMask || targetFreq > freqMask || deltaVal > deltaMask {
		return 0, false
	}

	return anchorFreq<<(deltaBits+freqBits) | targetFreq<<deltaBits | deltaVal, true
}

// Extractor turns audio signals into fingerprint sets. It is stateless and
// safe for concurrent use.
type Extractor struct {
	cfg    Config
	window []float64
}

func NewExtractor(cfg Config) *Extractor {
	return &Extractor{cfg: cfg, window: Hamming(cfg.WindowSize)}
}

// Config returns the extractor's parameters.
func (e *Extractor) Config() Config { return e.cfg }

// Extract produces the fingerprint set of a signal. Identical input always
// yields an identical token sequence.
func (e *Extractor) Extract(sig audio.Signal) (Set, error) {
	cfg := e.cfg
	if len(sig.Samples) < cfg.WindowSize {
		return nil, fmt.Errorf("%w: %d samples, need at least %d",
			ErrInsufficientAudio, len(sig.Samples), cfg.WindowSize)
	}

	rate := sig.SampleRate
	if rate <= 0 {
		rate = cfg.SampleRate
	}

	spectrogram := STFT(sig.Samples, cfg.WindowSize, cfg.HopSize, e.window)
	peaks := ExtractPeaks(spectrogram, rate, cfg)
	if len(peaks) == 0 {
		return nil, fmt.Errorf("%w: no spectral peaks above magnitude floor", ErrNoExtractableFeatures)
	}

	set := pairTokens(peaks, cfg)
	if len(set) == 0 {
		return nil, fmt.Errorf("%w: %d peaks produced no token pairs", ErrNoExtractableFeatures, len(peaks))
	}
	return set, nil
}

// pairTokens applies the fan-out pairing rule: each anchor peak pairs with
// up to cfg.FanOut subsequent peaks inside the delta window.
func pairTokens(peaks []Peak, cfg Config) Set {
	set := make(Set, 0, len(peaks)*cfg.FanOut)
	for i := range peaks {
		anchor := peaks[i]
		paired := 0
		for j := i + 1; j < len(peaks) && paired < cfg.FanOut; j++ {
			if peaks[j].TimeIdx-anchor.TimeIdx > cfg.MaxDeltaFrames {
				break
			}
			hash, ok := packHash(anchor, peaks[j], cfg)
			if !ok {
				continue
			}
			set = append(set, Token{
				Hash:     hash,
				OffsetMs: uint32(math.Round(anchor.Time * 1000.0)),
			})
			paired++
		}
	}

	sort.SliceStable(set, func(i, j int) bool {
		if set[i].OffsetMs == set[j].OffsetMs {
			return set[i].Hash < set[j].Hash
		}
		return set[i].OffsetMs < set[j].OffsetMs
	})
	return set
}
