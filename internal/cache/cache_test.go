package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notelog/internal/logging"
	"github.com/roach88/notelog/internal/recordlog"
)

func newLog() *recordlog.Log {
	return recordlog.NewMem(recordlog.WithLogger(logging.Discard()))
}

func TestPutGet(t *testing.T) {
	c := Open(newLog())

	require.NoError(t, c.Put("n1:v1", []byte("hello"), false))
	assert.True(t, c.Has("n1:v1"))

	e, ok, err := c.Get("n1:v1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", string(e.Data))
	assert.False(t, e.Encrypted)

	require.NoError(t, c.Put("n1:v1", []byte("secret"), true))
	e, ok, err = c.Get("n1:v1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "secret", string(e.Data))
	assert.True(t, e.Encrypted)

	_, ok, err = c.Get("n1:v2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, c.Has("n1:v2"))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 2, c.Log().Len())
}

func TestFiles(t *testing.T) {
	c := Open(newLog())

	require.NoError(t, c.WriteFile("a.txt", []byte("one")))
	require.NoError(t, c.WriteFile("a.txt", []byte("two")))

	b, ok, err := c.ReadFile("a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two", string(b))

	require.NoError(t, c.DeleteFile("a.txt"))
	_, ok, err = c.ReadFile("a.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.WriteFile("a.txt", []byte("three")))
	b, ok, err = c.ReadFile("a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "three", string(b))
}

func TestKeySpacesAreSeparate(t *testing.T) {
	c := Open(newLog())

	require.NoError(t, c.WriteFile("k", []byte("file")))
	assert.False(t, c.Has("k"))

	require.NoError(t, c.Put("k", []byte("content"), false))
	require.NoError(t, c.DeleteFile("k"))
	e, ok, err := c.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "content", string(e.Data))
}

func TestOpenRebuildsIndex(t *testing.T) {
	dir := t.TempDir()
	log, err := recordlog.Open(dir, "cache_store")
	require.NoError(t, err)
	c := Open(log)
	require.NoError(t, c.Put("n1:v1", []byte("old"), false))
	require.NoError(t, c.Put("n1:v1", []byte("new"), true))
	require.NoError(t, c.WriteFile("f", []byte("gone")))
	require.NoError(t, c.DeleteFile("f"))
	require.NoError(t, c.Close())

	log, err = recordlog.Open(dir, "cache_store")
	require.NoError(t, err)
	c = Open(log)
	defer c.Close()

	e, ok, err := c.Get("n1:v1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", string(e.Data))
	assert.True(t, e.Encrypted)

	_, ok, err = c.ReadFile("f")
	require.NoError(t, err)
	assert.False(t, ok)
}

// backwardScan is the reference lookup: walk from the newest record to the
// oldest and return the first content record for key.
func backwardScan(t *testing.T, log *recordlog.Log, key string) (Entry, bool) {
	t.Helper()
	records := log.Records()
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if (rec.Kind == KindPut || rec.Kind == KindPutEncrypted) && rec.Meta == key {
			b, err := log.ReadPayload(rec)
			require.NoError(t, err)
			return Entry{Data: b, Encrypted: rec.Kind == KindPutEncrypted}, true
		}
	}
	return Entry{}, false
}

func TestIndexMatchesBackwardScan(t *testing.T) {
	log := newLog()
	c := Open(log)

	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("n%d:v%d", i%7, i%5)
		require.NoError(t, c.Put(key, []byte(fmt.Sprintf("payload-%d", i)), i%3 == 0))
		if i%11 == 0 {
			require.NoError(t, c.WriteFile(key, []byte("noise")))
		}
	}

	reopened := Open(log)
	for n := 0; n < 7; n++ {
		for v := 0; v < 6; v++ {
			key := fmt.Sprintf("n%d:v%d", n, v)
			want, wantOK := backwardScan(t, log, key)
			for _, cc := range []*Cache{c, reopened} {
				got, ok, err := cc.Get(key)
				require.NoError(t, err)
				assert.Equal(t, wantOK, ok, key)
				assert.Equal(t, want, got, key)
			}
		}
	}
}
