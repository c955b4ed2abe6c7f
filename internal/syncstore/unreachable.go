package syncstore

import (
	"context"
	"errors"

	"github.com/roach88/notelog/internal/notes"
	"github.com/roach88/notelog/internal/remote"
)

// ErrNoRemote is returned by Unreachable for every call.
var ErrNoRemote = errors.New("no remote configured")

// Unreachable is a Remote that fails every call. A Store over it works
// purely locally: reads come from the cache and writes are queued.
type Unreachable struct{}

var _ Remote = Unreachable{}

func (Unreachable) Ping(context.Context) error { return ErrNoRemote }

func (Unreachable) Get(context.Context, string) (remote.Content, error) {
	return remote.Content{}, ErrNoRemote
}

func (Unreachable) Put(context.Context, string, []byte, bool) error    { return ErrNoRemote }
func (Unreachable) WriteFile(context.Context, string, []byte) error    { return ErrNoRemote }
func (Unreachable) ReadFile(context.Context, string) ([]byte, error)   { return nil, ErrNoRemote }
func (Unreachable) CreateNote(context.Context, string, string) error   { return ErrNoRemote }
func (Unreachable) DeleteNote(context.Context, string) error           { return ErrNoRemote }
func (Unreachable) WriteNoteMeta(context.Context, notes.Metadata) error { return ErrNoRemote }

func (Unreachable) GetNotes(context.Context, int64) (remote.NotesList, error) {
	return remote.NotesList{}, ErrNoRemote
}

func (Unreachable) GetNotesMultiContent(context.Context, []string) ([]remote.Blob, error) {
	return nil, ErrNoRemote
}

func (Unreachable) UploadOfflineChanges(context.Context, []byte) error { return ErrNoRemote }
