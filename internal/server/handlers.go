package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/roach88/notelog/internal/bundle"
	"github.com/roach88/notelog/internal/notes"
	"github.com/roach88/notelog/internal/recordlog"
	"github.com/roach88/notelog/internal/remote"
)

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, remote.Pong)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	content, encrypted, err := s.store.Get(key)
	if errors.Is(err, notes.ErrNotFound) {
		http.Error(w, "no content for "+key, http.StatusNotFound)
		return
	}
	if err != nil {
		s.serverError(w, "get", err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	if encrypted {
		w.Header().Set(remote.EncryptedHeader, "true")
	}
	_, _ = w.Write(content)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	noteID, err := notes.NoteIDFromVersionID(key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	encrypted, _ := strconv.ParseBool(r.URL.Query().Get("isEncrypted"))
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if _, ok := s.liveNotes()[noteID]; !ok {
		http.Error(w, "no note "+noteID, http.StatusNotFound)
		return
	}
	if s.hasVersion(key) {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := s.store.Put(key, body, encrypted); err != nil {
		s.serverError(w, "put", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "missing name", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.store.WriteFile(name, body); err != nil {
		s.serverError(w, "writeFile", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	b, err := s.store.ReadFile(name)
	if errors.Is(err, notes.ErrNotFound) {
		http.Error(w, "no file "+name, http.StatusNotFound)
		return
	}
	if err != nil {
		s.serverError(w, "readFile", err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(b)
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	noteID, name := q.Get("noteId"), q.Get("name")
	if noteID == "" {
		http.Error(w, "missing noteId", http.StatusBadRequest)
		return
	}
	if _, ok := s.liveNotes()[noteID]; ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	if _, err := s.store.CreateNote(noteID, name); err != nil {
		s.badMutation(w, "createNote", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	noteID := r.URL.Query().Get("noteId")
	if _, ok := s.liveNotes()[noteID]; !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := s.store.DeleteNote(noteID); err != nil {
		s.serverError(w, "deleteNote", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleWriteNoteMeta(w http.ResponseWriter, r *http.Request) {
	var m notes.Metadata
	if err := json.Unmarshal([]byte(r.URL.Query().Get("meta")), &m); err != nil {
		http.Error(w, "invalid meta: "+err.Error(), http.StatusBadRequest)
		return
	}
	current, ok := s.liveNotes()[m.ID]
	if !ok {
		http.Error(w, "no note "+m.ID, http.StatusNotFound)
		return
	}
	if current == m.Normalized() {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := s.store.WriteNoteMeta(m); err != nil {
		s.badMutation(w, "writeNoteMeta", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetNotes(w http.ResponseWriter, r *http.Request) {
	var since int64
	if v := r.URL.Query().Get("lastChangeID"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid lastChangeID: %s", v), http.StatusBadRequest)
			return
		}
		since = n
	}

	current := int64(s.store.Len())
	if since >= current {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	list := s.store.Notes()
	rsp := remote.NotesResponse{
		Ver:          remote.WireVersion,
		LastChangeID: current,
		NotesCompact: make([]json.RawMessage, 0, len(list)),
	}
	for _, n := range list {
		row, err := remote.EncodeCompactNote(n)
		if err != nil {
			s.serverError(w, "getNotes", err)
			return
		}
		rsp.NotesCompact = append(rsp.NotesCompact, row)
	}
	s.writeJSON(w, rsp)
}

func (s *Server) handleGetNotesMultiContent(w http.ResponseWriter, r *http.Request) {
	var req remote.MultiContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	var files []bundle.File
	for _, verID := range req.VerIDs {
		content, encrypted, err := s.store.Get(verID)
		if errors.Is(err, notes.ErrNotFound) {
			continue
		}
		if err != nil {
			s.serverError(w, "getNotesMultiContent", err)
			return
		}
		name := verID
		if encrypted {
			name = remote.EncryptedPrefix + verID
		}
		files = append(files, bundle.File{Name: name, Data: content})
	}

	var buf bytes.Buffer
	if err := bundle.WriteFiles(&buf, files); err != nil {
		s.serverError(w, "getNotesMultiContent", err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	_, _ = w.Write(buf.Bytes())
}

// UploadResult is the body of an uploadOfflineChanges response.
type UploadResult struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
}

func (s *Server) handleUploadOfflineChanges(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	index, data, err := bundle.Decode(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	records, err := bundle.Records(index, data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.apply(records, data)
	if err != nil {
		s.serverError(w, "uploadOfflineChanges", err)
		return
	}
	s.logger.Info("applied offline changes",
		"records", len(records), "applied", res.Applied, "skipped", res.Skipped)
	s.writeJSON(w, res)
}

// liveNotes maps the id of every live note to its current metadata.
func (s *Server) liveNotes() map[string]notes.Metadata {
	live := make(map[string]notes.Metadata)
	for _, n := range s.store.Notes() {
		live[n.ID] = n.Metadata()
	}
	return live
}

func (s *Server) hasVersion(verID string) bool {
	_, _, err := s.store.Get(verID)
	return err == nil
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.serverError(w, "encode response", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("request failed", "op", op, "error", err)
	http.Error(w, op+": internal error", http.StatusInternalServerError)
}

// badMutation reports input the record log refused as a client error and
// anything else as a server error.
func (s *Server) badMutation(w http.ResponseWriter, op string, err error) {
	var verr *recordlog.ValidationError
	if errors.As(err, &verr) || errors.Is(err, notes.ErrMalformedRecord) {
		http.Error(w, fmt.Sprintf("%s: %v", op, err), http.StatusBadRequest)
		return
	}
	s.serverError(w, op, err)
}
