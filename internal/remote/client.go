// Package remote is the HTTP client for the notes service.
//
// Every call takes a context and is additionally bounded by the client
// timeout. Any response outside 2xx is an error; 304 from GetNotes is
// ErrNotModified and 404 from content and file reads is ErrNotFound.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/notelog/internal/bundle"
	"github.com/roach88/notelog/internal/notes"
)

const (
	// EncryptedHeader marks a content body as ciphertext.
	EncryptedHeader = "X-Encrypted"
	// EncryptedPrefix marks an encrypted entry in a multi-content archive.
	EncryptedPrefix = "e-"
	// Pong is the body of a healthy ping response.
	Pong = "pong"

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

var (
	ErrNotModified = errors.New("not modified")
	ErrNotFound    = errors.New("not found")
	ErrBadPing     = errors.New("unexpected ping response")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Code, e.Body)
}

// Content is a content version as served by the remote.
type Content struct {
	Data      []byte
	Encrypted bool
}

// Blob is one entry of a multi-content response.
type Blob struct {
	VersionID string
	Data      []byte
	Encrypted bool
}

// Client talks to one notes service.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

// New returns a client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends a request and returns the response for 2xx and 304. Callers close
// the body.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body []byte, header http.Header) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode/100 == 2 || resp.StatusCode == http.StatusNotModified {
		return resp, nil
	}

	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	serr := &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, serr)
	}
	return nil, serr
}

func (c *Client) call(ctx context.Context, op, method, path string, query url.Values, body []byte, header http.Header) error {
	resp, err := c.do(ctx, op, method, path, query, body, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func readBody(op string, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", op, err)
	}
	return b, nil
}

func octetStream() http.Header {
	return http.Header{"Content-Type": []string{"application/octet-stream"}}
}

// Ping reports whether the service is reachable and healthy.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, "ping", http.MethodGet, "/ping", nil, nil, nil)
	if err != nil {
		return err
	}
	b, err := readBody("ping", resp)
	if err != nil {
		return err
	}
	if string(b) != Pong {
		return fmt.Errorf("%w: %q", ErrBadPing, b)
	}
	return nil
}

// Get fetches the content stored under key.
func (c *Client) Get(ctx context.Context, key string) (Content, error) {
	resp, err := c.do(ctx, "get", http.MethodGet, "/store/get", url.Values{"key": {key}}, nil, nil)
	if err != nil {
		return Content{}, err
	}
	encrypted := resp.Header.Get(EncryptedHeader) == "true"
	b, err := readBody("get", resp)
	if err != nil {
		return Content{}, err
	}
	return Content{Data: b, Encrypted: encrypted}, nil
}

// Put stores content under key.
func (c *Client) Put(ctx context.Context, key string, data []byte, encrypted bool) error {
	q := url.Values{
		"key":         {key},
		"isEncrypted": {strconv.FormatBool(encrypted)},
	}
	return c.call(ctx, "put", http.MethodPost, "/store/put", q, nonNil(data), octetStream())
}

// WriteFile stores a named file.
func (c *Client) WriteFile(ctx context.Context, name string, data []byte) error {
	return c.call(ctx, "writeFile", http.MethodPost, "/store/writeFile", url.Values{"name": {name}}, nonNil(data), octetStream())
}

// ReadFile fetches a named file.
func (c *Client) ReadFile(ctx context.Context, name string) ([]byte, error) {
	resp, err := c.do(ctx, "readFile", http.MethodGet, "/store/readFile", url.Values{"name": {name}}, nil, nil)
	if err != nil {
		return nil, err
	}
	return readBody("readFile", resp)
}

// CreateNote creates a note.
func (c *Client) CreateNote(ctx context.Context, noteID, name string) error {
	return c.call(ctx, "createNote", http.MethodGet, "/store/createNote",
		url.Values{"noteId": {noteID}, "name": {name}}, nil, nil)
}

// DeleteNote deletes a note.
func (c *Client) DeleteNote(ctx context.Context, noteID string) error {
	return c.call(ctx, "deleteNote", http.MethodGet, "/store/deleteNote",
		url.Values{"noteId": {noteID}}, nil, nil)
}

// WriteNoteMeta replaces the metadata of a note.
func (c *Client) WriteNoteMeta(ctx context.Context, m notes.Metadata) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("writeNoteMeta: %w", err)
	}
	return c.call(ctx, "writeNoteMeta", http.MethodGet, "/store/writeNoteMeta",
		url.Values{"meta": {string(b)}}, nil, nil)
}

// NotesList is a decoded getNotes response.
type NotesList struct {
	LastChangeID int64
	Notes        []notes.Note
}

// GetNotes fetches the note list. It returns ErrNotModified when nothing
// changed since lastChangeID.
func (c *Client) GetNotes(ctx context.Context, lastChangeID int64) (NotesList, error) {
	q := url.Values{"lastChangeID": {strconv.FormatInt(lastChangeID, 10)}}
	resp, err := c.do(ctx, "getNotes", http.MethodGet, "/store/getNotes", q, nil, nil)
	if err != nil {
		return NotesList{}, err
	}
	if resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		return NotesList{}, ErrNotModified
	}
	b, err := readBody("getNotes", resp)
	if err != nil {
		return NotesList{}, err
	}

	var nr NotesResponse
	if err := json.Unmarshal(b, &nr); err != nil {
		return NotesList{}, fmt.Errorf("getNotes: %w", err)
	}
	if nr.Ver != WireVersion {
		return NotesList{}, fmt.Errorf("getNotes: unsupported version %d", nr.Ver)
	}
	list, err := DecodeCompactNotes(nr.NotesCompact)
	if err != nil {
		return NotesList{}, fmt.Errorf("getNotes: %w", err)
	}
	return NotesList{LastChangeID: nr.LastChangeID, Notes: list}, nil
}

// MultiContentRequest is the body of a getNotesMultiContent request.
type MultiContentRequest struct {
	VerIDs []string `json:"verIds"`
}

// GetNotesMultiContent fetches several content versions in one request.
// Versions the service does not have are missing from the result.
func (c *Client) GetNotesMultiContent(ctx context.Context, verIDs []string) ([]Blob, error) {
	body, err := json.Marshal(MultiContentRequest{VerIDs: verIDs})
	if err != nil {
		return nil, fmt.Errorf("getNotesMultiContent: %w", err)
	}
	header := http.Header{"Content-Type": []string{"application/json"}}
	resp, err := c.do(ctx, "getNotesMultiContent", http.MethodPost, "/store/getNotesMultiContent", nil, body, header)
	if err != nil {
		return nil, err
	}
	b, err := readBody("getNotesMultiContent", resp)
	if err != nil {
		return nil, err
	}

	files, err := bundle.ReadFiles(b)
	if err != nil {
		return nil, fmt.Errorf("getNotesMultiContent: %w", err)
	}
	blobs := make([]Blob, 0, len(files))
	for _, f := range files {
		verID, encrypted := strings.CutPrefix(f.Name, EncryptedPrefix)
		blobs = append(blobs, Blob{VersionID: verID, Data: f.Data, Encrypted: encrypted})
	}
	return blobs, nil
}

// UploadOfflineChanges sends a bundle of queued records.
func (c *Client) UploadOfflineChanges(ctx context.Context, b []byte) error {
	return c.call(ctx, "uploadOfflineChanges", http.MethodPost, "/store/uploadOfflineChanges", nil, b, octetStream())
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
