package notes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// Note is the derived state of one note. It is never stored directly.
type Note struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	VersionIDs  []string `json:"versionIds"`
	IsStarred   bool     `json:"isStarred"`
	IsArchived  bool     `json:"isArchived"`
	AltShortcut string   `json:"altShortcut"`
	CreatedAt   int64    `json:"createdAt"`
	UpdatedAt   int64    `json:"updatedAt"`
}

// CurrentVersionID returns the latest content version id, or "" for a note
// with no content yet.
func (n Note) CurrentVersionID() string {
	if len(n.VersionIDs) == 0 {
		return ""
	}
	return n.VersionIDs[len(n.VersionIDs)-1]
}

// Metadata returns the mutable fields of n.
func (n Note) Metadata() Metadata {
	return Metadata{
		ID:          n.ID,
		Name:        n.Name,
		IsArchived:  n.IsArchived,
		IsStarred:   n.IsStarred,
		AltShortcut: n.AltShortcut,
	}
}

func (n *Note) apply(m Metadata) {
	n.Name = m.Name
	n.IsArchived = m.IsArchived
	n.IsStarred = m.IsStarred
	n.AltShortcut = m.AltShortcut
}

// Metadata is the note-meta record body. Applying it overwrites every
// mutable field of the note; absent fields reset to their zero value.
type Metadata struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	IsArchived  bool   `json:"isArchived,omitempty"`
	IsStarred   bool   `json:"isStarred,omitempty"`
	AltShortcut string `json:"altShortcut,omitempty"`
}

// Normalized returns m with user-entered strings in NFC so equal names
// typed on different platforms compare equal after replay.
func (m Metadata) Normalized() Metadata {
	m.Name = normalize(m.Name)
	m.AltShortcut = normalize(m.AltShortcut)
	return m
}

func normalize(s string) string {
	return norm.NFC.String(s)
}

// marshalCompact encodes v as single-line JSON without HTML escaping.
func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// NewNoteID returns a fresh note id.
func NewNoteID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// NewVersionID returns a fresh content version id for noteID, in the form
// "<noteId>:<verId>". Version ids of one note sort by creation time.
func NewVersionID(noteID string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return noteID + ":" + id.String()
}

// NoteIDFromVersionID returns the note id prefix of a version id.
func NoteIDFromVersionID(versionID string) (string, error) {
	noteID, _, ok := strings.Cut(versionID, ":")
	if !ok || noteID == "" {
		return "", fmt.Errorf("%w: version id %q", ErrMalformedRecord, versionID)
	}
	return noteID, nil
}
