package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LedgerRecord is one appended ownership record: entry-id, content hash,
// and owner, stamped with an opaque ledger reference.
type LedgerRecord struct {
	Ref         string    `json:"ref"`
	EntryID     uint32    `json:"entry_id"`
	ContentHash string    `json:"content_hash"`
	Owner       string    `json:"owner"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Ledger is the append-only ownership ledger capability. Records are never
// updated or removed; a dispute produces a new record in the external
// adjudication workflow, not a mutation here.
type Ledger interface {
	Record(ctx context.Context, entryID uint32, contentHash, owner string) (LedgerRecord, error)
	Records() ([]LedgerRecord, error)
}

// FileLedger appends JSON-lines records to a local file. It stands in for
// an externally consistent ledger service behind the same interface.
type FileLedger struct {
	mu   sync.Mutex
	path string
}

func NewFileLedger(path string) *FileLedger {
	return &FileLedger{path: path}
}

// Record appends one ownership record and returns it with a fresh ref.
func (l *FileLedger) Record(ctx context.Context, entryID uint32, contentHash, owner string) (LedgerRecord, error) {
	if err := ctx.Err(); err != nil {
		return LedgerRecord{}, err
	}

	rec := LedgerRecord{
		Ref:         uuid.NewString(),
		EntryID:     entryID,
		ContentHash: contentHash,
		Owner:       owner,
		RecordedAt:  time.Now().UTC(),
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return LedgerRecord{}, fmt.Errorf("encoding ledger record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return LedgerRecord{}, fmt.Errorf("opening ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return LedgerRecord{}, fmt.Errorf("appending ledger record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return LedgerRecord{}, fmt.Errorf("syncing ledger: %w", err)
	}
	return rec, nil
}

// Records reads back every appended record in order.
func (l *FileLedger) Records() ([]LedgerRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	defer f.Close()

	var out []LedgerRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec LedgerRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("decoding ledger record: %w", err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	return out, nil
}
