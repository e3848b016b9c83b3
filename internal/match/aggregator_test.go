package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waveprint/waveprint/internal/fingerprint"
	"github.com/waveprint/waveprint/internal/index"
)

// mapLookup is a fixed in-memory Lookup for aggregator tests.
type mapLookup map[uint32][]index.Posting

func (m mapLookup) LookupAll(hashes []uint32) map[uint32][]index.Posting {
	out := make(map[uint32][]index.Posting, len(hashes))
	for _, h := range hashes {
		if postings, ok := m[h]; ok {
			out[h] = postings
		}
	}
	return out
}

func TestRankConsistentOffsets(t *testing.T) {
	// every matched token implies the same 1000ms shift: a true match
	query := fingerprint.Set{
		{Hash: 1, OffsetMs: 0},
		{Hash: 2, OffsetMs: 500},
		{Hash: 3, OffsetMs: 900},
		{Hash: 4, OffsetMs: 1400},
	}
	idx := mapLookup{
		1: {{EntryID: 7, OffsetMs: 1000}},
		2: {{EntryID: 7, OffsetMs: 1500}},
		3: {{EntryID: 7, OffsetMs: 1900}},
		4: {{EntryID: 7, OffsetMs: 2400}},
	}

	candidates := Rank(query, idx, DefaultOffsetBinMs)
	require.Len(t, candidates, 1)

	top := candidates[0]
	assert.Equal(t, uint32(7), top.EntryID)
	assert.Equal(t, 4, top.Votes)
	assert.InDelta(t, 1.0, top.Score, 1e-9)
	assert.Equal(t, int32(1000), top.OffsetMs)
}

func TestRankPenalizesScatteredOffsets(t *testing.T) {
	// same overlap count, but deltas are all over the place:
	// coincidental collisions, not a temporally consistent match
	query := fingerprint.Set{
		{Hash: 1, OffsetMs: 0},
		{Hash: 2, OffsetMs: 500},
		{Hash: 3, OffsetMs: 900},
		{Hash: 4, OffsetMs: 1400},
	}
	idx := mapLookup{
		1: {{EntryID: 7, OffsetMs: 0}},
		2: {{EntryID: 7, OffsetMs: 4000}},
		3: {{EntryID: 7, OffsetMs: 8000}},
		4: {{EntryID: 7, OffsetMs: 12000}},
	}

	candidates := Rank(query, idx, DefaultOffsetBinMs)
	require.Len(t, candidates, 1)
	assert.Equal(t, 1, candidates[0].Votes)
	assert.InDelta(t, 0.25, candidates[0].Score, 1e-9)
}

func TestRankOrdering(t *testing.T) {
	query := fingerprint.Set{
		{Hash: 1, OffsetMs: 0},
		{Hash: 2, OffsetMs: 100},
	}
	idx := mapLookup{
		// entry 3 matches both tokens at one delta, entry 9 only one
		1: {{EntryID: 3, OffsetMs: 500}, {EntryID: 9, OffsetMs: 0}},
		2: {{EntryID: 3, OffsetMs: 600}},
	}

	candidates := Rank(query, idx, DefaultOffsetBinMs)
	require.Len(t, candidates, 2)
	assert.Equal(t, uint32(3), candidates[0].EntryID)
	assert.Equal(t, uint32(9), candidates[1].EntryID)
	assert.Greater(t, candidates[0].Score, candidates[1].Score)
}

func TestRankTieBreaksByEntryID(t *testing.T) {
	query := fingerprint.Set{{Hash: 1, OffsetMs: 0}}
	idx := mapLookup{
		1: {{EntryID: 12, OffsetMs: 0}, {EntryID: 4, OffsetMs: 700}},
	}

	candidates := Rank(query, idx, DefaultOffsetBinMs)
	require.Len(t, candidates, 2)
	assert.Equal(t, uint32(4), candidates[0].EntryID)
	assert.Equal(t, uint32(12), candidates[1].EntryID)
}

func TestRankBinsAbsorbSmallDrift(t *testing.T) {
	// deltas spread across 60ms still land in one 250ms bucket
	query := fingerprint.Set{
		{Hash: 1, OffsetMs: 0},
		{Hash: 2, OffsetMs: 500},
		{Hash: 3, OffsetMs: 1000},
	}
	idx := mapLookup{
		1: {{EntryID: 5, OffsetMs: 2000}},
		2: {{EntryID: 5, OffsetMs: 2530}},
		3: {{EntryID: 5, OffsetMs: 3060}},
	}

	candidates := Rank(query, idx, DefaultOffsetBinMs)
	require.Len(t, candidates, 1)
	assert.Equal(t, 3, candidates[0].Votes)
	assert.InDelta(t, 1.0, candidates[0].Score, 1e-9)
}

func TestRankEmptyQuery(t *testing.T) {
	assert.Empty(t, Rank(nil, mapLookup{}, DefaultOffsetBinMs))
	assert.Empty(t, Rank(fingerprint.Set{}, mapLookup{}, DefaultOffsetBinMs))
}

func TestRankScoreCapped(t *testing.T) {
	// duplicate hash occurrences can push the best bucket above the
	// query token count; the score stays capped at 1
	query := fingerprint.Set{{Hash: 1, OffsetMs: 0}}
	idx := mapLookup{
		1: {{EntryID: 2, OffsetMs: 0}, {EntryID: 2, OffsetMs: 10}},
	}

	candidates := Rank(query, idx, DefaultOffsetBinMs)
	require.Len(t, candidates, 1)
	assert.Equal(t, 2, candidates[0].Votes)
	assert.InDelta(t, 1.0, candidates[0].Score, 1e-9)
}

func TestRankSnapshotDuringInsert(t *testing.T) {
	// a query racing an admission must observe the entry's posting set
	// either not at all or completely: a partial observation would
	// produce a score that is neither 0 nor the full self-match
	ix := index.NewMemory()

	const n = 5000
	set := make(fingerprint.Set, n)
	for i := range set {
		set[i] = fingerprint.Token{Hash: uint32(i + 1), OffsetMs: uint32(i * 10)}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := ix.Insert(index.Entry{ID: 1}, set); err != nil {
			t.Errorf("insert: %v", err)
		}
	}()

	for {
		candidates := Rank(set, ix, DefaultOffsetBinMs)
		if len(candidates) > 0 && candidates[0].Votes != n {
			t.Fatalf("observed %d of %d postings mid-insert", candidates[0].Votes, n)
		}
		select {
		case <-done:
			candidates = Rank(set, ix, DefaultOffsetBinMs)
			require.Len(t, candidates, 1)
			assert.Equal(t, n, candidates[0].Votes)
			assert.InDelta(t, 1.0, candidates[0].Score, 1e-9)
			return
		default:
		}
	}
}

func TestTop(t *testing.T) {
	candidates := []Candidate{{EntryID: 1}, {EntryID: 2}, {EntryID: 3}}
	assert.Len(t, Top(candidates, 2), 2)
	assert.Len(t, Top(candidates, 0), 3)
	assert.Len(t, Top(candidates, 10), 3)
}
