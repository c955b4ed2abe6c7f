// Package server is a reference implementation of the notes service.
//
// It keeps one notes store and serializes every request on a single mutex.
// Mutations are applied idempotently so a client may retry any of them,
// including a whole offline upload, without duplicating records.
package server

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/roach88/notelog/internal/notes"
)

// maxBodySize caps request bodies.
const maxBodySize = 64 << 20

// Server serves the store API over HTTP.
type Server struct {
	mu     sync.Mutex
	store  *notes.Store
	logger *slog.Logger
}

// New returns a server over store.
func New(store *notes.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, logger: logger}
}

// Handler returns the HTTP handler with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.Methods(http.MethodGet).Path("/ping").HandlerFunc(s.handlePing)

	st := r.PathPrefix("/store").Subrouter()
	st.Use(s.serialize)
	st.Methods(http.MethodGet).Path("/get").HandlerFunc(s.handleGet)
	st.Methods(http.MethodPost).Path("/put").HandlerFunc(s.handlePut)
	st.Methods(http.MethodPost).Path("/writeFile").HandlerFunc(s.handleWriteFile)
	st.Methods(http.MethodGet).Path("/readFile").HandlerFunc(s.handleReadFile)
	st.Methods(http.MethodGet).Path("/createNote").HandlerFunc(s.handleCreateNote)
	st.Methods(http.MethodGet).Path("/deleteNote").HandlerFunc(s.handleDeleteNote)
	st.Methods(http.MethodGet).Path("/writeNoteMeta").HandlerFunc(s.handleWriteNoteMeta)
	st.Methods(http.MethodGet).Path("/getNotes").HandlerFunc(s.handleGetNotes)
	st.Methods(http.MethodPost).Path("/getNotesMultiContent").HandlerFunc(s.handleGetNotesMultiContent)
	st.Methods(http.MethodPost).Path("/uploadOfflineChanges").HandlerFunc(s.handleUploadOfflineChanges)

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.logger.Info("handled",
			"method", r.Method,
			"url", r.URL.String(),
			"status", m.Code,
			"bytes", m.Written,
			"duration", m.Duration,
		)
	})
}

func (s *Server) serialize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		s.mu.Lock()
		defer s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}
