package notes

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/notelog/internal/recordlog"
)

// ErrNotFound is returned when no record holds the requested content or file.
var ErrNotFound = errors.New("not found")

// Store is an event-sourced notes store over a record log. Every mutation is
// one appended record; notes are derived by replay.
type Store struct {
	log      *recordlog.Log
	validate bool
	logger   *slog.Logger
}

type storeOptions struct {
	validate bool
	logger   *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*storeOptions)

// WithValidation runs ValidateIndex after every mutation. Meant for
// development builds; a log that only holds part of the history (such as an
// offline queue) must leave it off.
func WithValidation(enabled bool) StoreOption {
	return func(o *storeOptions) { o.validate = enabled }
}

// WithLogger sets the logger for replay warnings.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(o *storeOptions) { o.logger = logger }
}

// Open wraps log in a Store. With validation enabled the existing records are
// checked first.
func Open(log *recordlog.Log, opts ...StoreOption) (*Store, error) {
	o := storeOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Store{log: log, validate: o.validate, logger: o.logger}
	if s.validate {
		if err := ValidateIndex(log.Records()); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Log returns the underlying record log.
func (s *Store) Log() *recordlog.Log {
	return s.log
}

func (s *Store) append(payload []byte, ev Event) (recordlog.Record, error) {
	kind, meta, err := EncodeEvent(ev)
	if err != nil {
		return recordlog.Record{}, err
	}
	rec, err := s.log.Append(payload, kind, meta)
	if err != nil {
		return recordlog.Record{}, fmt.Errorf("%s: %w", kind, err)
	}
	if s.validate {
		if err := ValidateIndex(s.log.Records()); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// CreateNote appends a note-create record and returns the new note.
func (s *Store) CreateNote(noteID, name string) (Note, error) {
	ev := CreateNote{NoteID: noteID, Name: name}
	rec, err := s.append(nil, ev)
	if err != nil {
		return Note{}, err
	}
	return Note{
		ID:        noteID,
		Name:      normalize(name),
		CreatedAt: rec.TimestampMs,
		UpdatedAt: rec.TimestampMs,
	}, nil
}

// DeleteNote appends a tombstone for noteID.
func (s *Store) DeleteNote(noteID string) error {
	_, err := s.append(nil, DeleteNote{NoteID: noteID})
	return err
}

// WriteNoteMeta appends a note-meta record.
func (s *Store) WriteNoteMeta(m Metadata) error {
	_, err := s.append(nil, SetNoteMeta{Meta: m})
	return err
}

// Put appends a content version.
func (s *Store) Put(versionID string, content []byte, encrypted bool) error {
	_, err := s.append(content, PutContent{VersionID: versionID, Encrypted: encrypted})
	return err
}

// Get returns the latest content stored under versionID.
func (s *Store) Get(versionID string) (content []byte, encrypted bool, err error) {
	records := s.log.Records()
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if (rec.Kind != KindPut && rec.Kind != KindPutEncrypted) || rec.Meta != versionID {
			continue
		}
		b, err := s.log.ReadPayload(rec)
		if err != nil {
			return nil, false, err
		}
		return b, rec.Kind == KindPutEncrypted, nil
	}
	return nil, false, fmt.Errorf("%w: %s", ErrNotFound, versionID)
}

// WriteFile appends a named blob.
func (s *Store) WriteFile(name string, content []byte) error {
	_, err := s.append(content, WriteFile{Name: name})
	return err
}

// ReadFile returns the latest blob written under name.
func (s *Store) ReadFile(name string) ([]byte, error) {
	records := s.log.Records()
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if rec.Kind != KindWriteFile {
			continue
		}
		var m fileMeta
		if err := json.Unmarshal([]byte(rec.Meta), &m); err != nil || m.Name != name {
			continue
		}
		return s.log.ReadPayload(rec)
	}
	return nil, fmt.Errorf("%w: file %s", ErrNotFound, name)
}

// Notes replays the log and returns the live notes.
func (s *Store) Notes() []Note {
	return Derive(s.log.Records(), s.logger)
}

// Validate runs ValidateIndex over the whole log.
func (s *Store) Validate() error {
	return ValidateIndex(s.log.Records())
}

// IsEmpty reports whether the log holds no records.
func (s *Store) IsEmpty() bool {
	return s.log.Len() == 0
}

// Len returns the number of records in the log.
func (s *Store) Len() int {
	return s.log.Len()
}

// Reset discards every record.
func (s *Store) Reset() error {
	return s.log.Reset()
}
