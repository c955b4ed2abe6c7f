package recordlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKindMeta(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		meta    string
		wantErr error
	}{
		{name: "plain", kind: "put", meta: "n1:v1"},
		{name: "no meta", kind: "note-delete"},
		{name: "meta with spaces", kind: "note-create", meta: "n1:My Note"},
		{name: "empty kind", kind: "", wantErr: ErrInvalidKind},
		{name: "kind with space", kind: "note create", wantErr: ErrInvalidKind},
		{name: "kind with tab", kind: "put\t", wantErr: ErrInvalidKind},
		{name: "kind with newline", kind: "put\n", wantErr: ErrInvalidKind},
		{name: "meta with newline", kind: "put", meta: "a\nb", wantErr: ErrInvalidMeta},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKindMeta(tt.kind, tt.meta)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestFormatRecord(t *testing.T) {
	assert.Equal(t, "0 5 1704067200000 text\n",
		string(FormatRecord(Record{Offset: 0, Size: 5, TimestampMs: 1704067200000, Kind: "text"})))
	assert.Equal(t, "5 3 7 put n1:v1\n",
		string(FormatRecord(Record{Offset: 5, Size: 3, TimestampMs: 7, Kind: "put", Meta: "n1:v1"})))
}

func TestParseIndex_Tolerant(t *testing.T) {
	index := []byte("0 5 100 text\n" +
		"garbage\n" +
		"\n" +
		"5 x 101 text\n" +
		"5 5 102 put n1:v1 with spaces\n" +
		"1 2\n" +
		"10 0 103 note-delete")

	got := ParseIndex(index)
	want := []Record{
		{Offset: 0, Size: 5, TimestampMs: 100, Kind: "text"},
		{Offset: 5, Size: 5, TimestampMs: 102, Kind: "put", Meta: "n1:v1 with spaces"},
		{Offset: 10, Size: 0, TimestampMs: 103, Kind: "note-delete"},
	}
	assert.Equal(t, want, got)
}

func TestParseIndex_Deterministic(t *testing.T) {
	index := []byte("0 5 100 text\nbroken line\n5 5 101 text greeting\n7 7")
	first := ParseIndex(index)
	second := ParseIndex(index)
	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
}

func TestParseIndex_FormatRoundTrip(t *testing.T) {
	records := []Record{
		{Offset: 0, Size: 11, TimestampMs: 1, Kind: "note-create", Meta: "n1:Shopping list"},
		{Offset: 0, Size: 0, TimestampMs: 2, Kind: "note-delete", Meta: "n1"},
		{Offset: 11, Size: 4, TimestampMs: 3, Kind: "write-file"},
	}
	var index []byte
	for _, rec := range records {
		index = append(index, FormatRecord(rec)...)
	}
	assert.Equal(t, records, ParseIndex(index))
}

func TestParseIndex_Empty(t *testing.T) {
	assert.Empty(t, ParseIndex(nil))
	assert.Empty(t, ParseIndex([]byte("\n\n")))
}
