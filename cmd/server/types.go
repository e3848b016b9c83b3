package main

import (
	"time"

	"github.com/waveprint/waveprint/internal/match"
)

// MaxUploadBytes caps the accepted multipart upload size (~30 MB, enough
// for several minutes of 16-bit mono WAV).
const MaxUploadBytes = 30 << 20

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// CandidateDTO is one ranked match candidate.
type CandidateDTO struct {
	EntryID  uint32  `json:"entry_id"`
	Score    float64 `json:"score"`
	Votes    int     `json:"votes"`
	OffsetMs int32   `json:"offset_ms"`
}

func toCandidateDTOs(candidates []match.Candidate) []CandidateDTO {
	out := make([]CandidateDTO, len(candidates))
	for i, c := range candidates {
		out[i] = CandidateDTO{
			EntryID:  c.EntryID,
			Score:    c.Score,
			Votes:    c.Votes,
			OffsetMs: c.OffsetMs,
		}
	}
	return out
}

// SubmitResponse reports the outcome of POST /api/submit.
type SubmitResponse struct {
	State       string         `json:"state"`
	EntryID     uint32         `json:"entry_id,omitempty"`
	ContentHash string         `json:"content_hash,omitempty"`
	LedgerRef   string         `json:"ledger_ref,omitempty"`
	TokenCount  int            `json:"token_count"`
	Candidates  []CandidateDTO `json:"candidates"`
}

// QueryResponse reports the outcome of POST /api/query.
type QueryResponse struct {
	Candidates []CandidateDTO `json:"candidates"`
	Count      int            `json:"count"`
}

// EntryDTO is one registry entry.
type EntryDTO struct {
	ID          uint32    `json:"id"`
	TokenCount  int       `json:"token_count"`
	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListEntriesResponse lists the registry.
type ListEntriesResponse struct {
	Entries []EntryDTO `json:"entries"`
	Count   int        `json:"count"`
}
