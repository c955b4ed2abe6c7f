package notes

import (
	"fmt"
	"log/slog"

	"github.com/roach88/notelog/internal/recordlog"
)

// Derive replays records in order and returns the live notes, in the order
// they were created.
//
// Records that reference a missing note are skipped with a warning. Derive is
// a pure function of records: the same input always yields the same notes.
func Derive(records []recordlog.Record, logger *slog.Logger) []Note {
	if logger == nil {
		logger = slog.Default()
	}

	byID := make(map[string]*Note)
	var order []string

	for pos, rec := range records {
		ev, err := DecodeEvent(rec)
		if err != nil {
			logger.Warn("skipping undecodable record",
				"position", pos, "kind", rec.Kind, "meta", rec.Meta, "error", err)
			continue
		}

		switch e := ev.(type) {
		case CreateNote:
			if _, ok := byID[e.NoteID]; !ok {
				order = append(order, e.NoteID)
			}
			byID[e.NoteID] = &Note{
				ID:        e.NoteID,
				Name:      e.Name,
				CreatedAt: rec.TimestampMs,
				UpdatedAt: rec.TimestampMs,
			}

		case SetNoteMeta:
			note, ok := byID[e.Meta.ID]
			if !ok {
				logger.Warn("no note for meta record",
					"position", pos, "kind", rec.Kind, "meta", rec.Meta)
				continue
			}
			if e.Meta.AltShortcut != "" {
				for _, other := range byID {
					if other.AltShortcut == e.Meta.AltShortcut {
						other.AltShortcut = ""
					}
				}
			}
			note.apply(e.Meta)
			note.UpdatedAt = rec.TimestampMs

		case DeleteNote:
			if _, ok := byID[e.NoteID]; !ok {
				logger.Warn("no note to delete",
					"position", pos, "kind", rec.Kind, "meta", rec.Meta)
				continue
			}
			delete(byID, e.NoteID)

		case PutContent:
			noteID, _ := NoteIDFromVersionID(e.VersionID)
			note, ok := byID[noteID]
			if !ok {
				logger.Warn("no note for content",
					"position", pos, "kind", rec.Kind, "meta", rec.Meta)
				continue
			}
			note.VersionIDs = append(note.VersionIDs, e.VersionID)
			note.UpdatedAt = rec.TimestampMs

		case WriteFile:
			// files do not affect notes
		}
	}

	result := make([]Note, 0, len(byID))
	seen := make(map[string]bool, len(byID))
	for _, id := range order {
		note, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, *note)
	}
	return result
}

// InvariantError reports the first record that breaks the lifecycle rules of
// the log.
type InvariantError struct {
	Position int
	Record   recordlog.Record
	Reason   string
}

func (e *InvariantError) Error() string {
	line := string(recordlog.FormatRecord(e.Record))
	return fmt.Sprintf("invalid record at position %d: %s (%s)", e.Position, e.Reason, line[:len(line)-1])
}

// ValidateIndex checks that every record targets a note in the right state:
// creates need a fresh id, deletes, puts and meta updates need a live one.
// Unknown kinds and undecodable meta are violations too.
//
// It tracks only the set of live ids and is cheap enough to run after every
// mutation.
func ValidateIndex(records []recordlog.Record) error {
	live := make(map[string]struct{})
	fail := func(pos int, rec recordlog.Record, format string, args ...any) error {
		return &InvariantError{Position: pos, Record: rec, Reason: fmt.Sprintf(format, args...)}
	}

	for pos, rec := range records {
		ev, err := DecodeEvent(rec)
		if err != nil {
			return fail(pos, rec, "%v", err)
		}

		switch e := ev.(type) {
		case CreateNote:
			if _, ok := live[e.NoteID]; ok {
				return fail(pos, rec, "duplicate note id %s", e.NoteID)
			}
			live[e.NoteID] = struct{}{}
		case DeleteNote:
			if _, ok := live[e.NoteID]; !ok {
				return fail(pos, rec, "deleting non-existing note %s", e.NoteID)
			}
			delete(live, e.NoteID)
		case PutContent:
			noteID, _ := NoteIDFromVersionID(e.VersionID)
			if _, ok := live[noteID]; !ok {
				return fail(pos, rec, "putting content for non-existing note %s", noteID)
			}
		case SetNoteMeta:
			if _, ok := live[e.Meta.ID]; !ok {
				return fail(pos, rec, "setting meta for non-existing note %s", e.Meta.ID)
			}
		case WriteFile:
		}
	}
	return nil
}
