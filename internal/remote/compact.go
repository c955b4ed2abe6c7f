package remote

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/notelog/internal/notes"
)

// Flag bits in a compact note row.
const (
	FlagStarred  = 0x01
	FlagArchived = 0x02
)

// WireVersion is the only notes list version this client understands.
const WireVersion = 1

// NotesResponse is the body of a getNotes response.
type NotesResponse struct {
	Ver          int               `json:"ver"`
	LastChangeID int64             `json:"lastChangeId"`
	NotesCompact []json.RawMessage `json:"notesCompact"`
}

// EncodeCompactNote renders n as
// [id, name, flags, altShortcut, createdAt, updatedAt, ...versionIds].
func EncodeCompactNote(n notes.Note) (json.RawMessage, error) {
	flags := 0
	if n.IsStarred {
		flags |= FlagStarred
	}
	if n.IsArchived {
		flags |= FlagArchived
	}
	row := []any{n.ID, n.Name, flags, n.AltShortcut, n.CreatedAt, n.UpdatedAt}
	for _, v := range n.VersionIDs {
		row = append(row, v)
	}
	return json.Marshal(row)
}

// DecodeCompactNotes is the inverse of EncodeCompactNote over a list of rows.
func DecodeCompactNotes(rows []json.RawMessage) ([]notes.Note, error) {
	result := make([]notes.Note, 0, len(rows))
	for i, raw := range rows {
		var cells []json.RawMessage
		if err := json.Unmarshal(raw, &cells); err != nil {
			return nil, fmt.Errorf("note row %d: %w", i, err)
		}
		if len(cells) < 6 {
			return nil, fmt.Errorf("note row %d: %d cells, want at least 6", i, len(cells))
		}

		var (
			n     notes.Note
			flags int
			alt   *string
		)
		for j, dst := range []any{&n.ID, &n.Name, &flags, &alt, &n.CreatedAt, &n.UpdatedAt} {
			if err := json.Unmarshal(cells[j], dst); err != nil {
				return nil, fmt.Errorf("note row %d cell %d: %w", i, j, err)
			}
		}
		if alt != nil {
			n.AltShortcut = *alt
		}
		n.IsStarred = flags&FlagStarred != 0
		n.IsArchived = flags&FlagArchived != 0

		for j, cell := range cells[6:] {
			var v string
			if err := json.Unmarshal(cell, &v); err != nil {
				return nil, fmt.Errorf("note row %d version %d: %w", i, j, err)
			}
			n.VersionIDs = append(n.VersionIDs, v)
		}
		result = append(result, n)
	}
	return result, nil
}
