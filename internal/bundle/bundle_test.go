package bundle

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notelog/internal/recordlog"
)

func TestFromLog_Decode(t *testing.T) {
	l := recordlog.NewMem()
	_, err := l.AppendString("n1:Foo", "note-create", "n1:Foo")
	require.NoError(t, err)
	_, err = l.AppendString("Foo content", "put", "n1:v1")
	require.NoError(t, err)
	_, err = l.Append(nil, "note-delete", "n1")
	require.NoError(t, err)

	b, err := FromLog(l)
	require.NoError(t, err)

	index, data, err := Decode(b)
	require.NoError(t, err)

	wantIndex, err := l.IndexBytes()
	require.NoError(t, err)
	wantData, err := l.DataBytes()
	require.NoError(t, err)
	assert.Equal(t, wantIndex, index)
	assert.Equal(t, wantData, data)

	records, err := Records(index, data)
	require.NoError(t, err)
	assert.Equal(t, l.Records(), records)
	assert.Equal(t, "Foo content", string(Payload(data, records[1])))
}

func TestDecode_EmptyData(t *testing.T) {
	b, err := Encode([]byte("0 0 1 note-delete n1\n"), nil)
	require.NoError(t, err)

	index, data, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, "0 0 1 note-delete n1\n", string(index))
	assert.Empty(t, data)
}

func TestDecode_MissingEntry(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fw, err := zw.Create(IndexEntry)
	require.NoError(t, err)
	_, err = fw.Write([]byte("0 1 1 text\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, _, err = Decode(buf.Bytes())
	assert.ErrorIs(t, err, ErrMissingEntry)
}

func TestDecode_LegacyNames(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"notes_store_index.txt": "0 2 1 text\n",
		"notes_store_data.bin":  "hi",
	} {
		fw, err := zw.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	index, data, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "0 2 1 text\n", string(index))
	assert.Equal(t, "hi", string(data))
}

func TestDecode_NotAZip(t *testing.T) {
	_, _, err := Decode([]byte("definitely not a zip"))
	assert.Error(t, err)
}

func TestRecords_RejectsOutOfRange(t *testing.T) {
	_, err := Records([]byte("0 5 1 text\n3 5 2 text\n"), []byte("hello"))
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestFiles_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := []File{
		{Name: "n1:v1", Data: []byte("plain")},
		{Name: "e-n2:v1", Data: []byte{0x00, 0x01}},
		{Name: "empty", Data: nil},
	}
	require.NoError(t, WriteFiles(&buf, in))

	out, err := ReadFiles(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := range in {
		assert.Equal(t, in[i].Name, out[i].Name)
		assert.Equal(t, len(in[i].Data), len(out[i].Data))
	}
	assert.Equal(t, "plain", string(out[0].Data))
}
