package recordlog

import (
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notelog/internal/bytelog"
	"github.com/roach88/notelog/internal/logging"
	"github.com/roach88/notelog/internal/testutil"
)

func testOptions() []Option {
	return []Option{
		WithClock(testutil.NewDeterministicClock().Now),
		WithLogger(logging.Discard()),
	}
}

func TestAppend_HelloWorld(t *testing.T) {
	l := NewMem(testOptions()...)

	r0, err := l.AppendString("hello", "text", "")
	require.NoError(t, err)
	r1, err := l.AppendString("world", "text", "")
	require.NoError(t, err)

	records := l.Records()
	require.Len(t, records, 2)
	assert.Equal(t, uint64(0), records[0].Offset)
	assert.Equal(t, uint64(5), records[0].Size)
	assert.Equal(t, uint64(5), records[1].Offset)
	assert.Equal(t, uint64(5), records[1].Size)
	assert.Equal(t, r0, records[0])
	assert.Equal(t, r1, records[1])

	b, err := l.ReadPayload(records[0])
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
	b, err = l.ReadPayload(records[1])
	require.NoError(t, err)
	assert.Equal(t, "world", string(b))
}

func TestAppend_RoundTrip(t *testing.T) {
	l := NewMem(testOptions()...)

	payloads := [][]byte{
		[]byte("first"),
		{0x00, 0xff, 0x10, '\n', ' '},
		[]byte("héllo wörld"),
		nil,
		[]byte("last"),
	}
	var records []Record
	for _, p := range payloads {
		rec, err := l.Append(p, "blob", "")
		require.NoError(t, err)
		records = append(records, rec)
	}

	for i, rec := range records {
		b, err := l.ReadPayload(rec)
		require.NoError(t, err)
		assert.Equal(t, len(payloads[i]), len(b), "record %d", i)
		if len(payloads[i]) > 0 {
			assert.Equal(t, payloads[i], b, "record %d", i)
		}
	}
}

func TestAppend_MarkerWritesNoData(t *testing.T) {
	l := NewMem(testOptions()...)

	_, err := l.AppendString("abc", "put", "n1:v1")
	require.NoError(t, err)
	rec, err := l.Append(nil, "note-delete", "n1")
	require.NoError(t, err)

	assert.True(t, rec.IsMarker())
	assert.Equal(t, uint64(0), rec.Offset)
	data, err := l.DataBytes()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	b, err := l.ReadPayload(rec)
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestAppend_ValidationFailsBeforeIO(t *testing.T) {
	l := NewMem(testOptions()...)

	_, err := l.AppendString("payload", "bad kind", "")
	assert.ErrorIs(t, err, ErrInvalidKind)
	_, err = l.AppendString("payload", "put", "line\nbreak")
	assert.ErrorIs(t, err, ErrInvalidMeta)
	_, err = l.AppendString("payload", "", "")
	assert.ErrorIs(t, err, ErrInvalidKind)

	assert.Equal(t, 0, l.Len())
	index, err := l.IndexBytes()
	require.NoError(t, err)
	assert.Empty(t, index)
	data, err := l.DataBytes()
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestIndexFormat_Golden(t *testing.T) {
	l := NewMem(testOptions()...)

	_, err := l.AppendString("hello", "text", "")
	require.NoError(t, err)
	_, err = l.AppendString("world", "text", "greeting")
	require.NoError(t, err)
	_, err = l.Append(nil, "note-delete", "n1")
	require.NoError(t, err)
	_, err = l.AppendString("abc", "put", "n1:v1 has spaces")
	require.NoError(t, err)

	index, err := l.IndexBytes()
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "index", index)
}

func TestOpen_ReopenRestoresRecords(t *testing.T) {
	dir := t.TempDir()

	l, err := Open(dir, "notes", testOptions()...)
	require.NoError(t, err)
	_, err = l.AppendString("hello", "text", "")
	require.NoError(t, err)
	_, err = l.AppendString("world", "text", "second")
	require.NoError(t, err)
	want := l.Records()
	require.NoError(t, l.Close())

	l, err = Open(dir, "notes", testOptions()...)
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, want, l.Records())
	b, err := l.ReadPayload(l.Records()[1])
	require.NoError(t, err)
	assert.Equal(t, "world", string(b))

	rec, err := l.AppendString("!", "text", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), rec.Offset)
}

func TestOpen_OrphanedDataIsSkipped(t *testing.T) {
	dir := t.TempDir()
	_, dataPath := Paths(dir, "notes")

	l, err := Open(dir, "notes", testOptions()...)
	require.NoError(t, err)
	_, err = l.AppendString("hello", "text", "")
	require.NoError(t, err)
	require.NoError(t, l.Close())

	// simulate a crash between the data write and the index write
	appendFile(t, dataPath, "ORPHAN")

	l, err = Open(dir, "notes", testOptions()...)
	require.NoError(t, err)
	defer l.Close()

	require.Equal(t, 1, l.Len())
	rec, err := l.AppendString("world", "text", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(11), rec.Offset)

	b, err := l.ReadPayload(rec)
	require.NoError(t, err)
	assert.Equal(t, "world", string(b))
	b, err = l.ReadPayload(l.Records()[0])
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
}

func TestOpen_RepairsTornIndexTail(t *testing.T) {
	dir := t.TempDir()
	indexPath, _ := Paths(dir, "notes")

	l, err := Open(dir, "notes", testOptions()...)
	require.NoError(t, err)
	_, err = l.AppendString("hello", "text", "")
	require.NoError(t, err)
	require.NoError(t, l.Close())

	appendFile(t, indexPath, "5 5 17040")

	l, err = Open(dir, "notes", testOptions()...)
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, 1, l.Len())
	index, err := l.IndexBytes()
	require.NoError(t, err)
	assert.Equal(t, "0 5 1704067200000 text\n", string(index))

	_, err = l.AppendString("world", "text", "")
	require.NoError(t, err)
	assert.Len(t, ParseIndex(mustIndex(t, l)), 2)
}

func TestOpen_DropsIndexPastEndOfData(t *testing.T) {
	dir := t.TempDir()
	indexPath, _ := Paths(dir, "notes")

	l, err := Open(dir, "notes", testOptions()...)
	require.NoError(t, err)
	_, err = l.AppendString("hello", "text", "")
	require.NoError(t, err)
	require.NoError(t, l.Close())

	// index line that reached disk while its payload did not
	appendFile(t, indexPath, "5 100 1704067200001 text\n")

	l, err = Open(dir, "notes", testOptions()...)
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, 1, l.Len())
	rec, err := l.AppendString("world", "text", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), rec.Offset)
	assert.Len(t, ParseIndex(mustIndex(t, l)), 2)
}

func TestNew_KeepsRecordsAfterOutOfRangeLine(t *testing.T) {
	index := bytelog.NewMemFrom([]byte("0 5 1 text\n999 5 2 text\n5 5 3 text\n"))
	data := bytelog.NewMemFrom([]byte("helloworld"))

	l, err := New(index, data, WithLogger(logging.Discard()))
	require.NoError(t, err)

	records := l.Records()
	require.Len(t, records, 2)
	b, err := l.ReadPayload(records[1])
	require.NoError(t, err)
	assert.Equal(t, "world", string(b))

	raw, err := l.IndexBytes()
	require.NoError(t, err)
	assert.Equal(t, "0 5 1 text\n999 5 2 text\n5 5 3 text\n", string(raw), "index must not be truncated")
}

func TestNew_SkipsMalformedMiddleLines(t *testing.T) {
	index := bytelog.NewMemFrom([]byte("0 5 1 text\nnot a record\n5 5 2 text\n"))
	data := bytelog.NewMemFrom([]byte("helloworld"))

	l, err := New(index, data, WithLogger(logging.Discard()))
	require.NoError(t, err)

	records := l.Records()
	require.Len(t, records, 2)
	b, err := l.ReadPayload(records[1])
	require.NoError(t, err)
	assert.Equal(t, "world", string(b))
}

func TestOpen_SecondWriterIsLocked(t *testing.T) {
	dir := t.TempDir()

	l, err := Open(dir, "notes", testOptions()...)
	require.NoError(t, err)
	defer l.Close()

	_, err = Open(dir, "notes", testOptions()...)
	assert.ErrorIs(t, err, bytelog.ErrLocked)
}

func TestAppend_Concurrent(t *testing.T) {
	l := NewMem(WithLogger(logging.Discard()))
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Append([]byte{byte(i), byte(i)}, "blob", "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	records := l.Records()
	require.Len(t, records, n)
	for i, rec := range records {
		assert.Equal(t, uint64(2*i), rec.Offset)
		b, err := l.ReadPayload(rec)
		require.NoError(t, err)
		assert.Equal(t, b[0], b[1])
	}
	assert.Equal(t, records, ParseIndex(mustIndex(t, l)))
}

func TestAppend_IndexFailureRollsBackPartialLine(t *testing.T) {
	index := &flakyLog{Mem: bytelog.NewMem()}
	l, err := New(index, bytelog.NewMem(), testOptions()...)
	require.NoError(t, err)

	_, err = l.AppendString("hello", "text", "")
	require.NoError(t, err)

	index.failNext = true
	_, err = l.AppendString("world", "text", "")
	require.Error(t, err)
	assert.Equal(t, 1, l.Len())

	_, err = l.AppendString("again", "text", "")
	require.NoError(t, err)

	raw := mustIndex(t, l)
	parsed := ParseIndex(raw)
	require.Len(t, parsed, 2)
	// the orphaned "world" bytes are skipped, not reused
	assert.Equal(t, uint64(10), parsed[1].Offset)
}

func TestReset(t *testing.T) {
	l := NewMem(testOptions()...)
	_, err := l.AppendString("hello", "text", "")
	require.NoError(t, err)

	require.NoError(t, l.Reset())
	assert.Equal(t, 0, l.Len())

	rec, err := l.AppendString("fresh", "text", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), rec.Offset)
}

// flakyLog writes half of the next append and then fails.
type flakyLog struct {
	*bytelog.Mem
	failNext bool
}

func (f *flakyLog) Append(p []byte) (uint64, error) {
	if f.failNext {
		f.failNext = false
		_, _ = f.Mem.Append(p[:len(p)/2])
		return 0, errors.New("disk full")
	}
	return f.Mem.Append(p)
}

func appendFile(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(s)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func mustIndex(t *testing.T, l *Log) []byte {
	t.Helper()
	b, err := l.IndexBytes()
	require.NoError(t, err)
	return b
}
