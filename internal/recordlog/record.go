package recordlog

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var (
	// ErrInvalidKind is returned for an empty kind or one containing whitespace.
	ErrInvalidKind = errors.New("kind must be non-empty and contain no whitespace")
	// ErrInvalidMeta is returned for meta containing a newline.
	ErrInvalidMeta = errors.New("meta must not contain a newline")
)

// Record is one entry of the log.
type Record struct {
	Offset      uint64 // byte offset of the payload in the data stream
	Size        uint64 // payload size in bytes, 0 for markers
	TimestampMs int64  // wall-clock time of the append, advisory only
	Kind        string
	Meta        string // empty when absent
}

// End returns the offset one past the record's payload.
func (r Record) End() uint64 {
	return r.Offset + r.Size
}

// IsMarker reports whether the record carries no payload.
func (r Record) IsMarker() bool {
	return r.Size == 0
}

// ValidationError reports a kind or meta rejected before any I/O.
type ValidationError struct {
	Field string // "kind" or "meta"
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidateKindMeta checks kind and meta against the index line grammar.
func ValidateKindMeta(kind, meta string) error {
	if kind == "" || strings.IndexFunc(kind, unicode.IsSpace) >= 0 {
		return &ValidationError{Field: "kind", Value: kind, Err: ErrInvalidKind}
	}
	if strings.ContainsAny(meta, "\n") {
		return &ValidationError{Field: "meta", Value: meta, Err: ErrInvalidMeta}
	}
	return nil
}

// FormatRecord renders rec as one newline-terminated index line.
func FormatRecord(rec Record) []byte {
	b := make([]byte, 0, 48+len(rec.Kind)+len(rec.Meta))
	b = strconv.AppendUint(b, rec.Offset, 10)
	b = append(b, ' ')
	b = strconv.AppendUint(b, rec.Size, 10)
	b = append(b, ' ')
	b = strconv.AppendInt(b, rec.TimestampMs, 10)
	b = append(b, ' ')
	b = append(b, rec.Kind...)
	if rec.Meta != "" {
		b = append(b, ' ')
		b = append(b, rec.Meta...)
	}
	return append(b, '\n')
}

// ParseIndex parses index text into records.
//
// Lines that do not carry an offset, size, timestamp and kind are dropped.
// A final line without a trailing newline is accepted if it is otherwise
// well formed. Parsing is deterministic: the same bytes always yield the
// same records.
func ParseIndex(index []byte) []Record {
	var records []Record
	for _, ln := range scanLines(index) {
		if ln.ok {
			records = append(records, ln.rec)
		}
	}
	return records
}

// indexLine is one line of index text with its byte span.
type indexLine struct {
	rec        Record
	ok         bool
	start, end uint64 // end is one past the newline, or len(index)
	terminated bool
}

func scanLines(index []byte) []indexLine {
	var lines []indexLine
	pos := 0
	for pos < len(index) {
		nl := bytes.IndexByte(index[pos:], '\n')
		end := len(index)
		terminated := false
		text := index[pos:]
		if nl >= 0 {
			end = pos + nl + 1
			terminated = true
			text = index[pos : pos+nl]
		}
		rec, ok := parseLine(string(text))
		lines = append(lines, indexLine{
			rec:        rec,
			ok:         ok,
			start:      uint64(pos),
			end:        uint64(end),
			terminated: terminated,
		})
		pos = end
	}
	return lines
}

func parseLine(line string) (Record, bool) {
	parts := strings.SplitN(line, " ", 5)
	if len(parts) < 4 {
		return Record{}, false
	}

	offset, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Record{}, false
	}
	size, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Record{}, false
	}
	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Record{}, false
	}

	rec := Record{
		Offset:      offset,
		Size:        size,
		TimestampMs: ts,
		Kind:        parts[3],
	}
	if len(parts) == 5 {
		rec.Meta = parts[4]
	}
	if ValidateKindMeta(rec.Kind, rec.Meta) != nil || rec.End() < rec.Offset {
		return Record{}, false
	}
	return rec, true
}
