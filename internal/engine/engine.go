// Package engine applies registration policy on top of the extractor,
// index, and aggregator: it decides whether a submitted clip is a
// duplicate, borderline, or novel, and admits novel clips into the
// registry.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/waveprint/waveprint/internal/audio"
	"github.com/waveprint/waveprint/internal/fingerprint"
	"github.com/waveprint/waveprint/internal/index"
	"github.com/waveprint/waveprint/internal/match"
	"github.com/waveprint/waveprint/pkg/logger"
)

// State is the terminal outcome of one submission. Flagged is terminal from
// the core's point of view: adjudication happens in an external workflow and
// a corrected clip comes back as a brand-new submission.
type State string

const (
	StateRejected State = "rejected"
	StateFlagged  State = "flagged"
	StateAdmitted State = "admitted"
)

// Config holds the decision thresholds.
type Config struct {
	// DuplicateThreshold is the similarity score at or above which a
	// submission is rejected as a duplicate.
	DuplicateThreshold float64

	// FlagThreshold bounds the grey zone: scores in
	// [FlagThreshold, DuplicateThreshold) are flagged for manual review.
	FlagThreshold float64

	// OffsetBinMs is the aggregator's delta-bucket width.
	OffsetBinMs int

	// TopK limits how many candidates decisions and queries report.
	TopK int
}

func DefaultConfig() Config {
	return Config{
		DuplicateThreshold: 0.70,
		FlagThreshold:      0.25,
		OffsetBinMs:        match.DefaultOffsetBinMs,
		TopK:               5,
	}
}

// Decision is the outcome of a submission. EntryID is the matched entry for
// Rejected and the newly assigned entry for Admitted; Candidates carries the
// match evidence for every state, so flagged and rejected outcomes reach the
// caller with enough detail for manual review.
type Decision struct {
	State      State
	EntryID    uint32
	Candidates []match.Candidate
	TokenCount int
}

// Engine is the registration decision engine. Queries run concurrently;
// admissions are serialized by an internal mutex so that deciding and
// inserting happen atomically with respect to other submissions.
type Engine struct {
	cfg       Config
	extractor *fingerprint.Extractor
	idx       *index.Index
	log       *logger.Logger

	admitMu sync.Mutex
	nextID  uint32 // guarded by admitMu
}

func New(cfg Config, extractor *fingerprint.Extractor, idx *index.Index) *Engine {
	return &Engine{
		cfg:       cfg,
		extractor: extractor,
		idx:       idx,
		log:       logger.GetLogger(),
		nextID:    idx.MaxID() + 1,
	}
}

// Query is a dry-run lookup: it extracts, matches, and ranks without any
// mutation. Safe to run fully in parallel with other queries; a caller that
// times out may simply discard the result.
func (e *Engine) Query(ctx context.Context, sig audio.Signal) ([]match.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	set, err := e.extractor.Extract(sig)
	if err != nil {
		return nil, err
	}
	e.log.Debugf("query extracted %d tokens", len(set))
	return match.Top(match.Rank(set, e.idx, e.cfg.OffsetBinMs), e.cfg.TopK), nil
}

// Submit runs the full decision pipeline for one clip. Matching and
// admission happen under the admission lock, so two concurrent submissions
// of identical content cannot both be admitted: the second one is rejected
// against the first.
func (e *Engine) Submit(ctx context.Context, sig audio.Signal) (Decision, error) {
	set, err := e.extractor.Extract(sig)
	if err != nil {
		return Decision{}, err
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	e.admitMu.Lock()
	defer e.admitMu.Unlock()

	candidates := match.Top(match.Rank(set, e.idx, e.cfg.OffsetBinMs), e.cfg.TopK)

	if len(candidates) > 0 {
		top := candidates[0]
		switch {
		case top.Score >= e.cfg.DuplicateThreshold:
			e.log.Infof("submission rejected: duplicate of entry %d (score %.3f)", top.EntryID, top.Score)
			return Decision{
				State:      StateRejected,
				EntryID:    top.EntryID,
				Candidates: candidates,
				TokenCount: len(set),
			}, nil
		case top.Score >= e.cfg.FlagThreshold:
			e.log.Infof("submission flagged: ambiguous match with entry %d (score %.3f)", top.EntryID, top.Score)
			return Decision{
				State:      StateFlagged,
				Candidates: candidates,
				TokenCount: len(set),
			}, nil
		}
	}

	id := e.nextID
	if err := e.idx.Insert(index.Entry{ID: id}, set); err != nil {
		return Decision{}, fmt.Errorf("admitting entry: %w", err)
	}
	e.nextID++

	e.log.Infof("admitted entry %d (%d tokens)", id, len(set))
	return Decision{
		State:      StateAdmitted,
		EntryID:    id,
		Candidates: candidates,
		TokenCount: len(set),
	}, nil
}

// BindContent records the external content hash for an admitted entry. The
// caller invokes it after persisting the clip with the content-store
// collaborator.
func (e *Engine) BindContent(entryID uint32, contentHash string) error {
	return e.idx.BindContent(entryID, contentHash)
}

// Entry returns a registry entry by id.
func (e *Engine) Entry(id uint32) (index.Entry, error) {
	return e.idx.Entry(id)
}

// Entries lists all registry entries ordered by id.
func (e *Engine) Entries() []index.Entry {
	return e.idx.Entries()
}
