package syncstore

import (
	"log/slog"
	"slices"

	"github.com/roach88/notelog/internal/notes"
	"github.com/roach88/notelog/internal/recordlog"
)

// The helpers below edit a note list in place the way replay would, so the
// local list stays in step with writes the remote has not reported back yet.

func indexOf(list []notes.Note, id string) int {
	return slices.IndexFunc(list, func(n notes.Note) bool { return n.ID == id })
}

func addNote(list []notes.Note, n notes.Note) []notes.Note {
	if indexOf(list, n.ID) >= 0 {
		return list
	}
	return append(list, n)
}

func removeNote(list []notes.Note, id string) []notes.Note {
	if i := indexOf(list, id); i >= 0 {
		return slices.Delete(list, i, i+1)
	}
	return list
}

func setMeta(list []notes.Note, m notes.Metadata, ms int64) []notes.Note {
	i := indexOf(list, m.ID)
	if i < 0 {
		return list
	}
	if m.AltShortcut != "" {
		for j := range list {
			if list[j].AltShortcut == m.AltShortcut {
				list[j].AltShortcut = ""
			}
		}
	}
	n := &list[i]
	n.Name = m.Name
	n.IsArchived = m.IsArchived
	n.IsStarred = m.IsStarred
	n.AltShortcut = m.AltShortcut
	n.UpdatedAt = ms
	return list
}

func addVersion(list []notes.Note, noteID, versionID string, ms int64) []notes.Note {
	i := indexOf(list, noteID)
	if i < 0 {
		return list
	}
	n := &list[i]
	if !slices.Contains(n.VersionIDs, versionID) {
		n.VersionIDs = append(n.VersionIDs, versionID)
	}
	n.UpdatedAt = ms
	return list
}

// applyQueued replays queued records on top of a list received from the
// remote.
func applyQueued(list []notes.Note, queued []recordlog.Record, logger *slog.Logger) []notes.Note {
	for pos, rec := range queued {
		ev, err := notes.DecodeEvent(rec)
		if err != nil {
			logger.Warn("skipping undecodable queued record",
				"position", pos, "kind", rec.Kind, "meta", rec.Meta, "error", err)
			continue
		}
		switch e := ev.(type) {
		case notes.CreateNote:
			list = addNote(list, notes.Note{
				ID:        e.NoteID,
				Name:      e.Name,
				CreatedAt: rec.TimestampMs,
				UpdatedAt: rec.TimestampMs,
			})
		case notes.DeleteNote:
			list = removeNote(list, e.NoteID)
		case notes.SetNoteMeta:
			list = setMeta(list, e.Meta, rec.TimestampMs)
		case notes.PutContent:
			noteID, _ := notes.NoteIDFromVersionID(e.VersionID)
			list = addVersion(list, noteID, e.VersionID, rec.TimestampMs)
		}
	}
	return list
}

func cloneNotes(list []notes.Note) []notes.Note {
	out := make([]notes.Note, len(list))
	for i, n := range list {
		n.VersionIDs = slices.Clone(n.VersionIDs)
		out[i] = n
	}
	return out
}
