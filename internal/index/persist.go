package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/waveprint/waveprint/internal/fingerprint"
)

// schemaVersion guards the persisted (token -> posting list) form. A store
// written by a different version fails to load rather than being guessed at.
const schemaVersion = 1

type entryRow struct {
	ID          uint32 `gorm:"primaryKey"`
	TokenCount  int
	ContentHash string `gorm:"index:idx_entries_content"`
	CreatedAt   time.Time
}

func (entryRow) TableName() string { return "entries" }

type postingRow struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	Hash     uint32 `gorm:"index:idx_postings_hash"`
	EntryID  uint32 `gorm:"index:idx_postings_entry"`
	OffsetMs uint32
}

func (postingRow) TableName() string { return "postings" }

type metaRow struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (metaRow) TableName() string { return "index_meta" }

// Store is the sqlite persistence layer behind an Index. It only appends:
// entries and postings are written once on admission and never updated,
// apart from the one-time content-hash binding.
type Store struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

func OpenStore(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: opening sqlite store: %v", ErrIndexUnavailable, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: getting sql.DB: %v", ErrIndexUnavailable, err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&entryRow{}, &postingRow{}, &metaRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("%w: migrating schema: %v", ErrIndexUnavailable, err)
	}

	s := &Store{db: db, sqlDB: sqlDB}
	if err := s.checkVersion(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) checkVersion() error {
	var meta metaRow
	err := s.db.Where("key = ?", "schema_version").First(&meta).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		meta = metaRow{Key: "schema_version", Value: strconv.Itoa(schemaVersion)}
		if err := s.db.Create(&meta).Error; err != nil {
			return fmt.Errorf("%w: writing schema version: %v", ErrIndexUnavailable, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("%w: reading schema version: %v", ErrIndexUnavailable, err)
	}

	v, err := strconv.Atoi(meta.Value)
	if err != nil || v != schemaVersion {
		return fmt.Errorf("%w: schema version %q, want %d", ErrCorruptIndex, meta.Value, schemaVersion)
	}
	return nil
}

// Load reads the complete persisted registry and validates its invariants:
// every posting must belong to a known entry and every entry's posting
// count must match its recorded token count. Any violation fails the whole
// load with ErrCorruptIndex.
func (s *Store) Load() ([]Entry, map[uint32][]Posting, error) {
	var entryRows []entryRow
	if err := s.db.Order("id").Find(&entryRows).Error; err != nil {
		return nil, nil, fmt.Errorf("%w: loading entries: %v", ErrIndexUnavailable, err)
	}

	entries := make([]Entry, 0, len(entryRows))
	counts := make(map[uint32]int, len(entryRows))
	for _, r := range entryRows {
		entries = append(entries, Entry{
			ID:          r.ID,
			TokenCount:  r.TokenCount,
			ContentHash: r.ContentHash,
			CreatedAt:   r.CreatedAt,
		})
		counts[r.ID] = 0
	}

	buckets := make(map[uint32][]Posting)
	var postingRows []postingRow
	if err := s.db.FindInBatches(&postingRows, 10000, func(tx *gorm.DB, _ int) error {
		for _, p := range postingRows {
			if _, ok := counts[p.EntryID]; !ok {
				return fmt.Errorf("%w: posting for unknown entry %d", ErrCorruptIndex, p.EntryID)
			}
			counts[p.EntryID]++
			buckets[p.Hash] = append(buckets[p.Hash], Posting{EntryID: p.EntryID, OffsetMs: p.OffsetMs})
		}
		return nil
	}).Error; err != nil {
		if errors.Is(err, ErrCorruptIndex) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: loading postings: %v", ErrIndexUnavailable, err)
	}

	for _, e := range entries {
		if counts[e.ID] != e.TokenCount {
			return nil, nil, fmt.Errorf("%w: entry %d has %d postings, recorded %d",
				ErrCorruptIndex, e.ID, counts[e.ID], e.TokenCount)
		}
	}

	return entries, buckets, nil
}

// AppendEntry writes an entry and its postings in one transaction.
func (s *Store) AppendEntry(e Entry, set fingerprint.Set) error {
	rows := make([]postingRow, len(set))
	for i, tok := range set {
		rows[i] = postingRow{Hash: tok.Hash, EntryID: e.ID, OffsetMs: tok.OffsetMs}
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entryRow{
			ID:          e.ID,
			TokenCount:  e.TokenCount,
			ContentHash: e.ContentHash,
			CreatedAt:   e.CreatedAt,
		}).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(rows, 1000).Error
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return nil
}

// SetContentHash records the external content hash for an entry.
func (s *Store) SetContentHash(id uint32, contentHash string) error {
	res := s.db.Model(&entryRow{}).Where("id = ?", id).Update("content_hash", contentHash)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d", ErrUnknownEntry, id)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
