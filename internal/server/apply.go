package server

import (
	"bytes"

	"github.com/roach88/notelog/internal/bundle"
	"github.com/roach88/notelog/internal/notes"
	"github.com/roach88/notelog/internal/recordlog"
)

// apply replays uploaded records onto the store in order. A record that
// would break the note lifecycle, repeats the current metadata of a note, or
// stores a content version the store already has is skipped, so uploading the
// same bundle twice appends nothing the second time.
func (s *Server) apply(records []recordlog.Record, data []byte) (UploadResult, error) {
	var res UploadResult
	live := s.liveNotes()

	for pos, rec := range records {
		ev, err := notes.DecodeEvent(rec)
		if err != nil {
			s.logger.Warn("skipping uploaded record",
				"position", pos, "kind", rec.Kind, "meta", rec.Meta, "error", err)
			res.Skipped++
			continue
		}

		applied, err := s.applyEvent(ev, bundle.Payload(data, rec), live)
		if err != nil {
			return res, err
		}
		if applied {
			res.Applied++
		} else {
			res.Skipped++
		}
	}
	return res, nil
}

func (s *Server) applyEvent(ev notes.Event, payload []byte, live map[string]notes.Metadata) (bool, error) {
	switch e := ev.(type) {
	case notes.CreateNote:
		if _, ok := live[e.NoteID]; ok {
			return false, nil
		}
		n, err := s.store.CreateNote(e.NoteID, e.Name)
		if err != nil {
			return false, err
		}
		live[e.NoteID] = n.Metadata()

	case notes.DeleteNote:
		if _, ok := live[e.NoteID]; !ok {
			return false, nil
		}
		if err := s.store.DeleteNote(e.NoteID); err != nil {
			return false, err
		}
		delete(live, e.NoteID)

	case notes.SetNoteMeta:
		meta := e.Meta.Normalized()
		current, ok := live[meta.ID]
		if !ok || current == meta {
			return false, nil
		}
		if err := s.store.WriteNoteMeta(e.Meta); err != nil {
			return false, err
		}
		if meta.AltShortcut != "" {
			for id, m := range live {
				if m.AltShortcut == meta.AltShortcut {
					m.AltShortcut = ""
					live[id] = m
				}
			}
		}
		live[meta.ID] = meta

	case notes.PutContent:
		noteID, _ := notes.NoteIDFromVersionID(e.VersionID)
		if _, ok := live[noteID]; !ok || s.hasVersion(e.VersionID) {
			return false, nil
		}
		if err := s.store.Put(e.VersionID, payload, e.Encrypted); err != nil {
			return false, err
		}

	case notes.WriteFile:
		if b, err := s.store.ReadFile(e.Name); err == nil && bytes.Equal(b, payload) {
			return false, nil
		}
		if err := s.store.WriteFile(e.Name, payload); err != nil {
			return false, err
		}
	}
	return true, nil
}
