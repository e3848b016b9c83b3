// Package match aggregates index lookup results into ranked candidates.
//
// The aggregator recovers temporal alignment by voting: each matched token
// implies a time-offset delta between the query and the registered entry,
// and a true match concentrates its votes in one delta bucket. Coincidental
// collisions of common token values scatter across inconsistent deltas and
// score low, which a plain unordered-overlap count would not achieve.
package match

import (
	"math"
	"sort"

	"github.com/waveprint/waveprint/internal/fingerprint"
	"github.com/waveprint/waveprint/internal/index"
)

// DefaultOffsetBinMs is the delta-bucket width. Binning (rather than exact
// millisecond deltas) absorbs the drift introduced by small time-stretch
// and frame-alignment differences between query and registered clip.
const DefaultOffsetBinMs = 250

// Lookup is the read-side index capability the aggregator needs. LookupAll
// must resolve the whole batch against a single consistent snapshot of the
// index, so a query racing an admission sees either none or all of the
// entry being inserted.
type Lookup interface {
	LookupAll(hashes []uint32) map[uint32][]index.Posting
}

// Candidate is the transient per-query aggregation record for one registry
// entry.
type Candidate struct {
	EntryID  uint32
	Votes    int     // size of the largest offset-delta bucket
	OffsetMs int32   // recovered alignment: entry time minus query time
	Score    float64 // Votes / query token count, capped at 1
}

// Rank looks up every query token and returns candidates sorted by
// descending similarity score (ties broken by ascending entry-id, for
// deterministic output). A zero-token query yields an empty result.
func Rank(query fingerprint.Set, idx Lookup, offsetBinMs int) []Candidate {
	if len(query) == 0 {
		return nil
	}
	if offsetBinMs <= 0 {
		offsetBinMs = DefaultOffsetBinMs
	}

	buckets := idx.LookupAll(query.Hashes())

	// votes[entryID][offsetBin] = count
	votes := make(map[uint32]map[int32]int)
	for _, tok := range query {
		for _, p := range buckets[tok.Hash] {
			delta := int64(p.OffsetMs) - int64(tok.OffsetMs)
			bin := int32(math.Round(float64(delta) / float64(offsetBinMs)))
			buckets, ok := votes[p.EntryID]
			if !ok {
				buckets = make(map[int32]int)
				votes[p.EntryID] = buckets
			}
			buckets[bin]++
		}
	}

	candidates := make([]Candidate, 0, len(votes))
	for entryID, buckets := range votes {
		bestBin := int32(0)
		bestCount := 0
		for bin, cnt := range buckets {
			if cnt > bestCount || (cnt == bestCount && bin < bestBin) {
				bestCount = cnt
				bestBin = bin
			}
		}
		score := float64(bestCount) / float64(len(query))
		if score > 1 {
			score = 1
		}
		candidates = append(candidates, Candidate{
			EntryID:  entryID,
			Votes:    bestCount,
			OffsetMs: bestBin * int32(offsetBinMs),
			Score:    score,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score == candidates[j].Score {
			return candidates[i].EntryID < candidates[j].EntryID
		}
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

// Top truncates a ranked candidate list to its k best results.
func Top(candidates []Candidate, k int) []Candidate {
	if k <= 0 || k >= len(candidates) {
		return candidates
	}
	return candidates[:k]
}
