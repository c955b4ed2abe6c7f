// Package syncstore is the client side of note storage.
//
// A Store answers reads from a local content cache and falls back to the
// remote service on a miss. Writes always update the cache and then go to
// the remote; when the remote cannot take them they are appended to an
// offline queue instead. The queue is uploaded as one bundle before the next
// write, so queued mutations always reach the remote ahead of newer ones.
package syncstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/roach88/notelog/internal/cache"
	"github.com/roach88/notelog/internal/notes"
	"github.com/roach88/notelog/internal/recordlog"
	"github.com/roach88/notelog/internal/remote"
	"github.com/roach88/notelog/internal/statedb"
)

// Log prefixes and the state database name inside a data directory.
const (
	CachePrefix   = "cache"
	OfflinePrefix = "offline"
	StateDBName   = "state.db"
)

var (
	// ErrUnavailable is returned by reads that missed the cache while the
	// remote could not answer.
	ErrUnavailable = errors.New("not available offline")
	// ErrOffline is returned by FlushOfflineChanges when the connectivity
	// probe fails.
	ErrOffline = errors.New("remote unreachable")
)

// Remote is the subset of the notes service a Store talks to.
// *remote.Client implements it.
type Remote interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, key string) (remote.Content, error)
	Put(ctx context.Context, key string, data []byte, encrypted bool) error
	WriteFile(ctx context.Context, name string, data []byte) error
	ReadFile(ctx context.Context, name string) ([]byte, error)
	CreateNote(ctx context.Context, noteID, name string) error
	DeleteNote(ctx context.Context, noteID string) error
	WriteNoteMeta(ctx context.Context, m notes.Metadata) error
	GetNotes(ctx context.Context, lastChangeID int64) (remote.NotesList, error)
	GetNotesMultiContent(ctx context.Context, verIDs []string) ([]remote.Blob, error)
	UploadOfflineChanges(ctx context.Context, b []byte) error
}

var _ Remote = (*remote.Client)(nil)

// Store is the sync layer of one device.
//
// Every exported method holds one mutex for its whole duration, remote
// calls included. Remote calls are bounded by ctx and the client timeout.
type Store struct {
	mu      sync.Mutex
	cache   *cache.Cache
	remote  Remote
	offline *notes.Store
	state   *statedb.DB
	logger  *slog.Logger
	now     func() time.Time

	// note list as last fetched, with local writes mirrored in
	snap   statedb.Snapshot
	loaded bool
}

type options struct {
	logger *slog.Logger
	now    func() time.Time
	fsync  bool
}

// Option configures a Store.
type Option func(*options)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock sets the clock used for local note timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithFsync syncs the cache and queue logs after every append. Only used
// by Open.
func WithFsync(enabled bool) Option {
	return func(o *options) { o.fsync = enabled }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New assembles a Store from its parts. The offline store must have
// validation disabled, since the queue only holds part of the history.
// The persisted note snapshot, if any, is loaded from state.
func New(ctx context.Context, c *cache.Cache, r Remote, offline *notes.Store, state *statedb.DB, opts ...Option) (*Store, error) {
	o := buildOptions(opts)
	s := &Store{
		cache:   c,
		remote:  r,
		offline: offline,
		state:   state,
		logger:  o.logger,
		now:     o.now,
	}

	snap, ok, err := state.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		s.snap, s.loaded = snap, true
	}
	return s, nil
}

// Open opens the cache log, the offline queue and the state database under
// dir and returns a Store over them.
func Open(ctx context.Context, dir string, r Remote, opts ...Option) (*Store, error) {
	o := buildOptions(opts)
	logOpts := []recordlog.Option{
		recordlog.WithLogger(o.logger),
		recordlog.WithClock(o.now),
		recordlog.WithFsync(o.fsync),
	}

	cacheLog, err := recordlog.Open(dir, CachePrefix, logOpts...)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	queueLog, err := recordlog.Open(dir, OfflinePrefix, logOpts...)
	if err != nil {
		cacheLog.Close()
		return nil, fmt.Errorf("open offline queue: %w", err)
	}
	state, err := statedb.Open(filepath.Join(dir, StateDBName))
	if err != nil {
		cacheLog.Close()
		queueLog.Close()
		return nil, err
	}

	offline, err := notes.Open(queueLog, notes.WithValidation(false), notes.WithLogger(o.logger))
	if err != nil {
		cacheLog.Close()
		queueLog.Close()
		state.Close()
		return nil, err
	}

	s, err := New(ctx, cache.Open(cacheLog), r, offline, state, opts...)
	if err != nil {
		cacheLog.Close()
		queueLog.Close()
		state.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the logs and the state database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(
		s.cache.Close(),
		s.offline.Log().Close(),
		s.state.Close(),
	)
}

// QueueLen returns the number of mutations waiting in the offline queue.
func (s *Store) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offline.Len()
}

// Uploads returns up to limit delivered offline queues, newest first.
func (s *Store) Uploads(ctx context.Context, limit int) ([]statedb.Upload, error) {
	return s.state.ListUploads(ctx, limit)
}

// Get returns the content stored under key. A cache miss is fetched from
// the remote and cached; if that fails the error wraps ErrUnavailable.
func (s *Store) Get(ctx context.Context, key string) (cache.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok, err := s.cache.Get(key)
	if err != nil {
		return cache.Entry{}, err
	}
	if ok {
		return e, nil
	}

	content, err := s.remote.Get(ctx, key)
	if err != nil {
		return cache.Entry{}, fmt.Errorf("%w: %s: %w", ErrUnavailable, key, err)
	}
	if err := s.cache.Put(key, content.Data, content.Encrypted); err != nil {
		return cache.Entry{}, err
	}
	return cache.Entry{Data: content.Data, Encrypted: content.Encrypted}, nil
}

// ReadFile returns the named file, from the cache or else the remote.
func (s *Store) ReadFile(ctx context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok, err := s.cache.ReadFile(name)
	if err != nil {
		return nil, err
	}
	if ok {
		return b, nil
	}

	b, err = s.remote.ReadFile(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: file %s: %w", ErrUnavailable, name, err)
	}
	if err := s.cache.WriteFile(name, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Put stores a content version of a note.
func (s *Store) Put(ctx context.Context, versionID string, data []byte, encrypted bool) error {
	if err := validate(notes.PutContent{VersionID: versionID, Encrypted: encrypted}); err != nil {
		return err
	}
	noteID, _ := notes.NoteIDFromVersionID(versionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cache.Put(versionID, data, encrypted); err != nil {
		return err
	}
	err := s.send(ctx, "put",
		func(ctx context.Context) error { return s.remote.Put(ctx, versionID, data, encrypted) },
		func() error { return s.offline.Put(versionID, data, encrypted) },
	)
	if err != nil {
		return err
	}
	s.mirror(ctx, func(list []notes.Note) []notes.Note {
		return addVersion(list, noteID, versionID, s.now().UnixMilli())
	})
	return nil
}

// WriteFile stores a named file.
func (s *Store) WriteFile(ctx context.Context, name string, data []byte) error {
	if err := validate(notes.WriteFile{Name: name}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cache.WriteFile(name, data); err != nil {
		return err
	}
	return s.send(ctx, "writeFile",
		func(ctx context.Context) error { return s.remote.WriteFile(ctx, name, data) },
		func() error { return s.offline.WriteFile(name, data) },
	)
}

// CreateNote creates a note with a fresh id and returns it.
func (s *Store) CreateNote(ctx context.Context, name string) (notes.Note, error) {
	id := notes.NewNoteID()
	if err := validate(notes.CreateNote{NoteID: id, Name: name}); err != nil {
		return notes.Note{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.send(ctx, "createNote",
		func(ctx context.Context) error { return s.remote.CreateNote(ctx, id, name) },
		func() error {
			_, err := s.offline.CreateNote(id, name)
			return err
		},
	)
	if err != nil {
		return notes.Note{}, err
	}

	ms := s.now().UnixMilli()
	n := notes.Note{ID: id, Name: name, CreatedAt: ms, UpdatedAt: ms}
	s.mirror(ctx, func(list []notes.Note) []notes.Note {
		return addNote(list, n)
	})
	return n, nil
}

// DeleteNote deletes a note.
func (s *Store) DeleteNote(ctx context.Context, noteID string) error {
	if err := validate(notes.DeleteNote{NoteID: noteID}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.send(ctx, "deleteNote",
		func(ctx context.Context) error { return s.remote.DeleteNote(ctx, noteID) },
		func() error { return s.offline.DeleteNote(noteID) },
	)
	if err != nil {
		return err
	}
	s.mirror(ctx, func(list []notes.Note) []notes.Note {
		return removeNote(list, noteID)
	})
	return nil
}

// WriteNoteMeta replaces the metadata of a note.
func (s *Store) WriteNoteMeta(ctx context.Context, m notes.Metadata) error {
	if err := validate(notes.SetNoteMeta{Meta: m}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.send(ctx, "writeNoteMeta",
		func(ctx context.Context) error { return s.remote.WriteNoteMeta(ctx, m) },
		func() error { return s.offline.WriteNoteMeta(m) },
	)
	if err != nil {
		return err
	}
	s.mirror(ctx, func(list []notes.Note) []notes.Note {
		return setMeta(list, m, s.now().UnixMilli())
	})
	return nil
}

// validate rejects a mutation the record log would refuse, before any I/O.
func validate(ev notes.Event) error {
	kind, meta, err := notes.EncodeEvent(ev)
	if err != nil {
		return err
	}
	return recordlog.ValidateKindMeta(kind, meta)
}

// send delivers one mutation. The offline queue is flushed first; if it is
// still not empty, or the remote call fails, the mutation is queued. Only a
// failure to queue is returned.
func (s *Store) send(ctx context.Context, op string, online func(context.Context) error, queue func() error) error {
	if _, err := s.flush(ctx); err != nil {
		s.logger.Debug("offline queue not flushed", "op", op, "error", err)
	}

	if s.offline.IsEmpty() {
		err := online(ctx)
		if err == nil {
			return nil
		}
		s.logger.Warn("remote write failed, queueing", "op", op, "error", err)
	}

	if err := queue(); err != nil {
		return fmt.Errorf("queue %s: %w", op, err)
	}
	return nil
}
