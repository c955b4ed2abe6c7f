package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notelog/internal/bundle"
	"github.com/roach88/notelog/internal/notes"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	c, err := New(ts.URL, opts...)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)

	_, err = New("://nope")
	assert.Error(t, err)

	c, err := New("https://notes.example.com/api")
	require.NoError(t, err)
	assert.Equal(t, "https://notes.example.com/api/store/get?key=n1%3Av1",
		c.endpoint("/store/get", map[string][]string{"key": {"n1:v1"}}))
}

func TestPing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ping", r.URL.Path)
		_, _ = io.WriteString(w, "pong")
	})
	assert.NoError(t, c.Ping(context.Background()))

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>captive portal</html>")
	})
	assert.ErrorIs(t, c.Ping(context.Background()), ErrBadPing)
}

func TestStatusErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("key") {
		case "n1:gone":
			http.Error(w, "no content", http.StatusNotFound)
		default:
			http.Error(w, "backend down", http.StatusServiceUnavailable)
		}
	})
	ctx := context.Background()

	_, err := c.Get(ctx, "n1:gone")
	assert.ErrorIs(t, err, ErrNotFound)
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusNotFound, serr.Code)

	err = c.Put(ctx, "n1:v1", []byte("x"), false)
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusServiceUnavailable, serr.Code)
	assert.Equal(t, "backend down", serr.Body)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "put: HTTP 503: backend down", err.Error())
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithTimeout(50*time.Millisecond))
	defer close(release)

	err := c.CreateNote(context.Background(), "n1", "A")
	assert.Error(t, err)
}

func TestPut_SendsContent(t *testing.T) {
	var got struct {
		key, encrypted string
		body           []byte
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/store/put", r.URL.Path)
		got.key = r.URL.Query().Get("key")
		got.encrypted = r.URL.Query().Get("isEncrypted")
		got.body, _ = io.ReadAll(r.Body)
	})

	require.NoError(t, c.Put(context.Background(), "n1:v1", []byte("hello"), true))
	assert.Equal(t, "n1:v1", got.key)
	assert.Equal(t, "true", got.encrypted)
	assert.Equal(t, "hello", string(got.body))
}

func TestGet_EncryptedHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(EncryptedHeader, "true")
		_, _ = w.Write([]byte{0xde, 0xad})
	})

	content, err := c.Get(context.Background(), "n1:v1")
	require.NoError(t, err)
	assert.True(t, content.Encrypted)
	assert.Equal(t, []byte{0xde, 0xad}, content.Data)
}

func TestWriteNoteMeta_QueryEncoding(t *testing.T) {
	var meta notes.Metadata
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/store/writeNoteMeta", r.URL.Path)
		require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("meta")), &meta))
	})

	want := notes.Metadata{ID: "n1", Name: "a & b ?", IsArchived: true}
	require.NoError(t, c.WriteNoteMeta(context.Background(), want))
	assert.Equal(t, want, meta)
}

func TestGetNotes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("lastChangeID") == "7" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		_, _ = io.WriteString(w, `{
			"ver": 1,
			"lastChangeId": 7,
			"notesCompact": [
				["n1", "Foo", 3, "2", 100, 200, "n1:v1", "n1:v2"],
				["n2", "Bar", 0, null, 300, 300]
			]
		}`)
	})
	ctx := context.Background()

	list, err := c.GetNotes(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), list.LastChangeID)
	assert.Equal(t, []notes.Note{
		{
			ID: "n1", Name: "Foo", IsStarred: true, IsArchived: true, AltShortcut: "2",
			CreatedAt: 100, UpdatedAt: 200, VersionIDs: []string{"n1:v1", "n1:v2"},
		},
		{ID: "n2", Name: "Bar", CreatedAt: 300, UpdatedAt: 300},
	}, list.Notes)

	_, err = c.GetNotes(ctx, 7)
	assert.ErrorIs(t, err, ErrNotModified)
}

func TestGetNotes_RejectsUnknownVersion(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ver":2,"lastChangeId":1,"notesCompact":[]}`)
	})
	_, err := c.GetNotes(context.Background(), 0)
	assert.ErrorContains(t, err, "unsupported version 2")
}

func TestCompactNote_RoundTrip(t *testing.T) {
	in := notes.Note{
		ID: "n1", Name: "Foo", IsStarred: true, AltShortcut: "4",
		CreatedAt: 1, UpdatedAt: 2, VersionIDs: []string{"n1:v1"},
	}
	row, err := EncodeCompactNote(in)
	require.NoError(t, err)
	assert.JSONEq(t, `["n1","Foo",1,"4",1,2,"n1:v1"]`, string(row))

	out, err := DecodeCompactNotes([]json.RawMessage{row})
	require.NoError(t, err)
	assert.Equal(t, []notes.Note{in}, out)
}

func TestDecodeCompactNotes_Malformed(t *testing.T) {
	for _, raw := range []string{
		`{"id":"n1"}`,
		`["n1","Foo",0,""]`,
		`["n1","Foo","starred","",1,2]`,
		`["n1","Foo",0,"",1,2,42]`,
	} {
		_, err := DecodeCompactNotes([]json.RawMessage{json.RawMessage(raw)})
		assert.Error(t, err, raw)
	}
}

func TestGetNotesMultiContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req MultiContentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"n1:v1", "n2:v1"}, req.VerIDs)

		var buf bytes.Buffer
		require.NoError(t, bundle.WriteFiles(&buf, []bundle.File{
			{Name: "n1:v1", Data: []byte("plain")},
			{Name: "e-n2:v1", Data: []byte("sealed")},
		}))
		_, _ = w.Write(buf.Bytes())
	})

	blobs, err := c.GetNotesMultiContent(context.Background(), []string{"n1:v1", "n2:v1"})
	require.NoError(t, err)
	assert.Equal(t, []Blob{
		{VersionID: "n1:v1", Data: []byte("plain")},
		{VersionID: "n2:v1", Data: []byte("sealed"), Encrypted: true},
	}, blobs)
}
