package statedb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notelog/internal/notes"
)

func openTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, path
}

func TestOpen_PragmasAndVersion(t *testing.T) {
	db, _ := openTestDB(t)

	var mode string
	require.NoError(t, db.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var version int
	require.NoError(t, db.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	for i := 0; i < 3; i++ {
		db, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, db.Close())
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db, path := openTestDB(t)

	_, ok, err := db.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	snap := Snapshot{
		LastChangeID: 42,
		Notes: []notes.Note{
			{ID: "n1", Name: "Foo", VersionIDs: []string{"n1:v1"}, IsStarred: true, CreatedAt: 1, UpdatedAt: 2},
			{ID: "n2", Name: "Bar", AltShortcut: "2", CreatedAt: 3, UpdatedAt: 3},
		},
	}
	require.NoError(t, db.SaveSnapshot(ctx, snap))

	got, ok, err := db.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap, got)

	snap.LastChangeID = 43
	snap.Notes = snap.Notes[:1]
	require.NoError(t, db.SaveSnapshot(ctx, snap))
	require.NoError(t, db.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, ok, err = reopened.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap, got)
}

func TestSnapshot_EmptyNotes(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)

	require.NoError(t, db.SaveSnapshot(ctx, Snapshot{LastChangeID: 3}))
	got, ok, err := db.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), got.LastChangeID)
	assert.Empty(t, got.Notes)
}

func TestUploads(t *testing.T) {
	ctx := context.Background()
	db, _ := openTestDB(t)
	base := time.UnixMilli(1704067200000)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.RecordUpload(ctx, Upload{
			ID:         id,
			Records:    i + 1,
			Bytes:      10 * (i + 1),
			UploadedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	err := db.RecordUpload(ctx, Upload{ID: "a", Records: 9})
	assert.ErrorIs(t, err, ErrDuplicateUpload)

	all, err := db.ListUploads(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, 3, all[0].Records)
	assert.Equal(t, 30, all[0].Bytes)
	assert.True(t, all[0].UploadedAt.Equal(base.Add(2*time.Second)))

	latest, err := db.ListUploads(ctx, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, []string{"c", "b"}, []string{latest[0].ID, latest[1].ID})
}
