// Package index implements the registry's inverted fingerprint index: a
// hash-bucketed map from token values to the (entry, offset) occurrences
// that produced them. Insertion is the sole mutation; postings are never
// deleted. The index is the permanent registry, not a cache.
package index

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/waveprint/waveprint/internal/fingerprint"
)

var (
	// ErrIndexUnavailable reports an index whose backing store is closed or
	// failed. Callers may retry after reopening.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrUnknownEntry reports a reference to an entry-id the index has no
	// record of. It signals a caller or ledger inconsistency and is
	// surfaced, never silently recovered.
	ErrUnknownEntry = errors.New("unknown registry entry")

	// ErrCorruptIndex reports a malformed persisted index. A corrupt load
	// is fatal: the registry is never partially initialized.
	ErrCorruptIndex = errors.New("corrupt index store")
)

// Posting records one occurrence of a token: the entry that produced it and
// the token's anchor offset within that entry's clip.
type Posting struct {
	EntryID  uint32
	OffsetMs uint32
}

// Entry is an admitted registry entry. Entries are append-only: ids are
// assigned monotonically and never reused, and an entry is immutable after
// admission apart from the one-time content-hash binding.
type Entry struct {
	ID          uint32
	TokenCount  int
	ContentHash string
	CreatedAt   time.Time
}

// Index is the in-memory serving structure, optionally backed by a sqlite
// store for persistence across restarts. Reads take the shared lock and may
// run fully in parallel; Insert publishes an entry's complete posting set
// under the exclusive lock, so no reader ever observes a half-inserted
// fingerprint set.
type Index struct {
	mu      sync.RWMutex
	buckets map[uint32][]Posting
	entries map[uint32]Entry
	maxID   uint32

	store  *Store // nil for a memory-only index
	closed bool
}

// NewMemory returns an index with no persistence, for dry runs and tests.
func NewMemory() *Index {
	return &Index{
		buckets: make(map[uint32][]Posting),
		entries: make(map[uint32]Entry),
	}
}

// Open loads the persisted index at path, creating it when absent. A
// malformed store fails the whole load.
func Open(path string) (*Index, error) {
	store, err := OpenStore(path)
	if err != nil {
		return nil, err
	}

	entries, buckets, err := store.Load()
	if err != nil {
		store.Close()
		return nil, err
	}

	ix := &Index{
		buckets: buckets,
		entries: make(map[uint32]Entry, len(entries)),
		store:   store,
	}
	for _, e := range entries {
		ix.entries[e.ID] = e
		if e.ID > ix.maxID {
			ix.maxID = e.ID
		}
	}
	return ix, nil
}

// Insert admits an entry's fingerprint set. The caller (the decision
// engine) serializes admissions; Insert's own locking only guarantees that
// concurrent readers see either none or all of the entry's postings.
func (ix *Index) Insert(entry Entry, set fingerprint.Set) error {
	if entry.ID == 0 {
		return fmt.Errorf("entry id must be positive")
	}

	ix.mu.RLock()
	closed := ix.closed
	_, exists := ix.entries[entry.ID]
	ix.mu.RUnlock()
	if closed {
		return fmt.Errorf("%w: store closed", ErrIndexUnavailable)
	}
	if exists {
		return fmt.Errorf("entry %d already registered", entry.ID)
	}

	entry.TokenCount = len(set)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	// Durability first: the sqlite write happens outside the exclusive
	// lock so in-flight queries keep running, then the complete posting
	// set is published in one critical section.
	if ix.store != nil {
		if err := ix.store.AppendEntry(entry, set); err != nil {
			return fmt.Errorf("persisting entry %d: %w", entry.ID, err)
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries[entry.ID] = entry
	for _, tok := range set {
		ix.buckets[tok.Hash] = append(ix.buckets[tok.Hash], Posting{
			EntryID:  entry.ID,
			OffsetMs: tok.OffsetMs,
		})
	}
	if entry.ID > ix.maxID {
		ix.maxID = entry.ID
	}
	return nil
}

// Lookup returns every posting recorded for a token hash. The returned
// slice is a copy and safe to retain.
func (ix *Index) Lookup(hash uint32) []Posting {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	bucket := ix.buckets[hash]
	if len(bucket) == 0 {
		return nil
	}
	out := make([]Posting, len(bucket))
	copy(out, bucket)
	return out
}

// LookupAll resolves a batch of token hashes against one consistent view of
// the index: the shared lock is held across the whole batch, so the result
// reflects either none or all of any concurrently inserted entry. Buckets
// with no postings are omitted. The returned slices are copies.
func (ix *Index) LookupAll(hashes []uint32) map[uint32][]Posting {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(map[uint32][]Posting, len(hashes))
	for _, h := range hashes {
		bucket := ix.buckets[h]
		if len(bucket) == 0 {
			continue
		}
		cp := make([]Posting, len(bucket))
		copy(cp, bucket)
		out[h] = cp
	}
	return out
}

// Entry returns the registry entry for id.
func (ix *Index) Entry(id uint32) (Entry, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: id %d", ErrUnknownEntry, id)
	}
	return e, nil
}

// HasEntry reports whether an entry-id has been admitted.
func (ix *Index) HasEntry(id uint32) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.entries[id]
	return ok
}

// Entries returns all registry entries ordered by id.
func (ix *Index) Entries() []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Entry, 0, len(ix.entries))
	for _, e := range ix.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MaxID returns the highest assigned entry-id, 0 when the registry is empty.
func (ix *Index) MaxID() uint32 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.maxID
}

// BindContent records the external content hash of an admitted entry. The
// binding is one-time: rebinding a different hash is rejected.
func (ix *Index) BindContent(id uint32, contentHash string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return fmt.Errorf("%w: store closed", ErrIndexUnavailable)
	}
	e, ok := ix.entries[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownEntry, id)
	}
	if e.ContentHash != "" && e.ContentHash != contentHash {
		return fmt.Errorf("entry %d already bound to content %s", id, e.ContentHash)
	}
	if ix.store != nil {
		if err := ix.store.SetContentHash(id, contentHash); err != nil {
			return fmt.Errorf("persisting content hash for entry %d: %w", id, err)
		}
	}
	e.ContentHash = contentHash
	ix.entries[id] = e
	return nil
}

// Close releases the backing store. Subsequent mutations fail with
// ErrIndexUnavailable; in-memory lookups keep serving the loaded snapshot.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil
	}
	ix.closed = true
	if ix.store != nil {
		return ix.store.Close()
	}
	return nil
}
