// Package statedb persists the sync cursor, the last known note list and the
// history of offline uploads in SQLite.
package statedb

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/notelog/internal/notes"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - initial schema
// 1 - index on uploads.uploaded_at
const currentSchemaVersion = 1

const (
	keyLastChangeID = "last_change_id"
	keyNotes        = "notes"
)

// DB is the sync state database of one device.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the database at path with WAL mode, a busy timeout
// and pending migrations applied.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect state db: %w", err)
	}

	// one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db, now: time.Now}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < 1 {
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_uploads_uploaded_at ON uploads(uploaded_at)`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Snapshot is the note list as last received from the remote, with the
// change id it corresponds to.
type Snapshot struct {
	LastChangeID int64
	Notes        []notes.Note
}

// LoadSnapshot returns the persisted snapshot. ok is false when none has
// been saved yet.
func (d *DB) LoadSnapshot(ctx context.Context) (snap Snapshot, ok bool, err error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT key, value FROM sync_state WHERE key IN (?, ?)`, keyLastChangeID, keyNotes)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	defer rows.Close()

	var haveNotes bool
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
		}
		switch key {
		case keyLastChangeID:
			if snap.LastChangeID, err = strconv.ParseInt(value, 10, 64); err != nil {
				return Snapshot{}, false, fmt.Errorf("load snapshot: bad %s %q", key, value)
			}
		case keyNotes:
			if err := json.Unmarshal([]byte(value), &snap.Notes); err != nil {
				return Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
			}
			haveNotes = true
		}
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	return snap, haveNotes, nil
}

// SaveSnapshot replaces the persisted snapshot in one transaction.
func (d *DB) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	notesJSON, err := json.Marshal(snap.Notes)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if snap.Notes == nil {
		notesJSON = []byte("[]")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	defer tx.Rollback()

	now := d.now().UnixMilli()
	for _, kv := range [][2]string{
		{keyLastChangeID, strconv.FormatInt(snap.LastChangeID, 10)},
		{keyNotes, string(notesJSON)},
	} {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_state (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, kv[0], kv[1], now)
		if err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Upload describes one delivered offline queue.
type Upload struct {
	ID         string
	Records    int
	Bytes      int
	UploadedAt time.Time
}

// ErrDuplicateUpload is returned when an upload id is recorded twice.
var ErrDuplicateUpload = errors.New("upload already recorded")

// RecordUpload stores u. A zero UploadedAt is set to the current time.
func (d *DB) RecordUpload(ctx context.Context, u Upload) error {
	if u.UploadedAt.IsZero() {
		u.UploadedAt = d.now()
	}
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO uploads (id, records, bytes, uploaded_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, u.ID, u.Records, u.Bytes, u.UploadedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateUpload, u.ID)
	}
	return nil
}

// ListUploads returns up to limit uploads, newest first. limit <= 0 means all.
func (d *DB) ListUploads(ctx context.Context, limit int) ([]Upload, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, records, bytes, uploaded_at FROM uploads
		ORDER BY uploaded_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	var uploads []Upload
	for rows.Next() {
		var u Upload
		var ms int64
		if err := rows.Scan(&u.ID, &u.Records, &u.Bytes, &ms); err != nil {
			return nil, fmt.Errorf("list uploads: %w", err)
		}
		u.UploadedAt = time.UnixMilli(ms)
		uploads = append(uploads, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	return uploads, nil
}
