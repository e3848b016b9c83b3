package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempIndexPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "waveprint.sqlite3")
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := tempIndexPath(t)

	ix, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, ix.Insert(Entry{ID: 1}, testSet(10, 20, 30)))
	require.NoError(t, ix.Insert(Entry{ID: 2}, testSet(20, 40)))
	require.NoError(t, ix.BindContent(1, "deadbeef"))
	require.NoError(t, ix.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, uint32(2), reopened.MaxID())

	postings := reopened.Lookup(20)
	require.Len(t, postings, 2)

	e, err := reopened.Entry(1)
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", e.ContentHash)
	assert.Equal(t, 3, e.TokenCount)
}

func TestOpenFreshStore(t *testing.T) {
	ix, err := Open(tempIndexPath(t))
	require.NoError(t, err)
	defer ix.Close()

	assert.Equal(t, uint32(0), ix.MaxID())
	assert.Empty(t, ix.Entries())
}

func TestLoadRejectsVersionMismatch(t *testing.T) {
	path := tempIndexPath(t)

	ix, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, ix.Insert(Entry{ID: 1}, testSet(10)))
	require.NoError(t, ix.Close())

	store, err := OpenStore(path)
	require.NoError(t, err)
	require.NoError(t, store.db.Model(&metaRow{}).
		Where("key = ?", "schema_version").Update("value", "99").Error)
	require.NoError(t, store.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrCorruptIndex)
}

func TestLoadRejectsDanglingPostings(t *testing.T) {
	path := tempIndexPath(t)

	ix, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, ix.Insert(Entry{ID: 1}, testSet(10, 20)))
	require.NoError(t, ix.Close())

	store, err := OpenStore(path)
	require.NoError(t, err)
	require.NoError(t, store.db.Where("id = ?", 1).Delete(&entryRow{}).Error)
	require.NoError(t, store.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrCorruptIndex)
}

func TestLoadRejectsTokenCountMismatch(t *testing.T) {
	path := tempIndexPath(t)

	ix, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, ix.Insert(Entry{ID: 1}, testSet(10, 20, 30)))
	require.NoError(t, ix.Close())

	store, err := OpenStore(path)
	require.NoError(t, err)
	require.NoError(t, store.db.Where("hash = ?", 20).Delete(&postingRow{}).Error)
	require.NoError(t, store.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrCorruptIndex)
}
