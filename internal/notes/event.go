package notes

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/notelog/internal/recordlog"
)

// Record kinds. The server speaks the same kinds.
const (
	KindCreateNote   = "note-create"
	KindDeleteNote   = "note-delete"
	KindSetNoteMeta  = "note-meta"
	KindPut          = "put"
	KindPutEncrypted = "put-encrypted"
	KindWriteFile    = "write-file"
)

var (
	ErrUnknownKind     = errors.New("unknown record kind")
	ErrMalformedRecord = errors.New("malformed record meta")
)

// Event is the decoded form of one notes record.
//
// The set of variants is closed: CreateNote, DeleteNote, SetNoteMeta,
// PutContent and WriteFile.
type Event interface {
	// Kind returns the record kind the event is stored under.
	Kind() string
	isEvent()
}

// CreateNote starts the life of a note.
type CreateNote struct {
	NoteID string
	Name   string
}

// DeleteNote is a tombstone for a note.
type DeleteNote struct {
	NoteID string
}

// SetNoteMeta replaces the mutable fields of a note.
type SetNoteMeta struct {
	Meta Metadata
}

// PutContent stores one content version of a note. The payload of the
// record is the content.
type PutContent struct {
	VersionID string // "<noteId>:<verId>"
	Encrypted bool
}

// WriteFile stores a named blob outside of any note.
type WriteFile struct {
	Name string
}

func (CreateNote) Kind() string  { return KindCreateNote }
func (DeleteNote) Kind() string  { return KindDeleteNote }
func (SetNoteMeta) Kind() string { return KindSetNoteMeta }
func (WriteFile) Kind() string   { return KindWriteFile }

func (e PutContent) Kind() string {
	if e.Encrypted {
		return KindPutEncrypted
	}
	return KindPut
}

func (CreateNote) isEvent()  {}
func (DeleteNote) isEvent()  {}
func (SetNoteMeta) isEvent() {}
func (PutContent) isEvent()  {}
func (WriteFile) isEvent()   {}

type fileMeta struct {
	Name string `json:"name"`
}

// DecodeEvent decodes the kind and meta of rec.
func DecodeEvent(rec recordlog.Record) (Event, error) {
	switch rec.Kind {
	case KindCreateNote:
		id, name, ok := strings.Cut(rec.Meta, ":")
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: %s %q", ErrMalformedRecord, rec.Kind, rec.Meta)
		}
		return CreateNote{NoteID: id, Name: name}, nil

	case KindDeleteNote:
		if rec.Meta == "" {
			return nil, fmt.Errorf("%w: %s without note id", ErrMalformedRecord, rec.Kind)
		}
		return DeleteNote{NoteID: rec.Meta}, nil

	case KindSetNoteMeta:
		var m Metadata
		if err := json.Unmarshal([]byte(rec.Meta), &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, rec.Kind, err)
		}
		if m.ID == "" {
			return nil, fmt.Errorf("%w: %s without id", ErrMalformedRecord, rec.Kind)
		}
		return SetNoteMeta{Meta: m}, nil

	case KindPut, KindPutEncrypted:
		if _, err := NoteIDFromVersionID(rec.Meta); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, rec.Kind, err)
		}
		return PutContent{VersionID: rec.Meta, Encrypted: rec.Kind == KindPutEncrypted}, nil

	case KindWriteFile:
		var m fileMeta
		if err := json.Unmarshal([]byte(rec.Meta), &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, rec.Kind, err)
		}
		return WriteFile{Name: m.Name}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, rec.Kind)
}

// EncodeEvent returns the record kind and meta for ev.
func EncodeEvent(ev Event) (kind, meta string, err error) {
	switch e := ev.(type) {
	case CreateNote:
		if e.NoteID == "" || strings.Contains(e.NoteID, ":") {
			return "", "", fmt.Errorf("%w: note id %q", ErrMalformedRecord, e.NoteID)
		}
		return e.Kind(), e.NoteID + ":" + normalize(e.Name), nil
	case DeleteNote:
		if e.NoteID == "" {
			return "", "", fmt.Errorf("%w: empty note id", ErrMalformedRecord)
		}
		return e.Kind(), e.NoteID, nil
	case SetNoteMeta:
		if e.Meta.ID == "" {
			return "", "", fmt.Errorf("%w: metadata without id", ErrMalformedRecord)
		}
		b, err := marshalCompact(e.Meta.Normalized())
		if err != nil {
			return "", "", fmt.Errorf("encode metadata: %w", err)
		}
		return e.Kind(), string(b), nil
	case PutContent:
		if _, err := NoteIDFromVersionID(e.VersionID); err != nil {
			return "", "", err
		}
		return e.Kind(), e.VersionID, nil
	case WriteFile:
		b, err := marshalCompact(fileMeta{Name: e.Name})
		if err != nil {
			return "", "", fmt.Errorf("encode file meta: %w", err)
		}
		return e.Kind(), string(b), nil
	}
	return "", "", fmt.Errorf("%w: %T", ErrUnknownKind, ev)
}
