// Package store provides the external collaborators consumed after an
// admitted decision: a content-addressed blob store and an append-only
// ownership ledger. The decision engine never calls these itself; the API
// and CLI callers do, after admission.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrContentNotFound reports a content hash with no stored blob.
var ErrContentNotFound = errors.New("content not found")

// ContentStore stores and retrieves blobs by content hash.
type ContentStore interface {
	Put(data []byte) (contentHash string, err error)
	Get(contentHash string) ([]byte, error)
}

// DiskStore is a filesystem content-addressed store keyed by hex SHA-256,
// sharded by the first two hash characters.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating content store root: %w", err)
	}
	return &DiskStore{root: root}, nil
}

// HashContent returns the hex SHA-256 of a blob.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *DiskStore) path(contentHash string) string {
	return filepath.Join(s.root, contentHash[:2], contentHash)
}

// Put stores a blob and returns its content hash. Storing the same bytes
// twice is idempotent.
func (s *DiskStore) Put(data []byte) (string, error) {
	contentHash := HashContent(data)
	p := s.path(contentHash)
	if _, err := os.Stat(p); err == nil {
		return contentHash, nil
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("creating content shard dir: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("writing content blob: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("publishing content blob: %w", err)
	}
	return contentHash, nil
}

// Get retrieves a blob by content hash and verifies it on the way out.
func (s *DiskStore) Get(contentHash string) ([]byte, error) {
	if len(contentHash) != 64 {
		return nil, fmt.Errorf("malformed content hash %q", contentHash)
	}
	data, err := os.ReadFile(s.path(contentHash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrContentNotFound, contentHash)
		}
		return nil, fmt.Errorf("reading content blob: %w", err)
	}
	if HashContent(data) != contentHash {
		return nil, fmt.Errorf("content %s failed hash verification", contentHash)
	}
	return data, nil
}
