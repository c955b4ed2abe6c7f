// Package bundle packs the two streams of a record log into a single zip
// archive for upload and export.
//
// A bundle holds exactly two entries, IndexEntry and DataEntry, carrying the
// raw index text and the raw payload data of one log. WriteFiles and
// ReadFiles handle plain archives of named blobs.
package bundle

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/notelog/internal/recordlog"
)

const (
	IndexEntry = "index.txt"
	DataEntry  = "data.bin"

	// names written by older clients
	legacyIndexEntry = "notes_store_index.txt"
	legacyDataEntry  = "notes_store_data.bin"
)

var (
	// ErrMissingEntry is returned when a bundle lacks the index or data entry.
	ErrMissingEntry = errors.New("bundle must contain index.txt and data.bin")
	// ErrInvalidRecord is returned when an index record addresses bytes
	// outside the data entry.
	ErrInvalidRecord = errors.New("record range outside data")
)

// Write writes a bundle of index and data to w.
func Write(w io.Writer, index, data []byte) error {
	return WriteFiles(w, []File{
		{Name: IndexEntry, Data: index},
		{Name: DataEntry, Data: data},
	})
}

// Encode returns a bundle of index and data as bytes.
func Encode(index, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, index, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromLog encodes the current contents of l.
func FromLog(l *recordlog.Log) ([]byte, error) {
	index, err := l.IndexBytes()
	if err != nil {
		return nil, fmt.Errorf("bundle index: %w", err)
	}
	data, err := l.DataBytes()
	if err != nil {
		return nil, fmt.Errorf("bundle data: %w", err)
	}
	return Encode(index, data)
}

// Decode extracts the index and data entries from a bundle.
func Decode(b []byte) (index, data []byte, err error) {
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid bundle: %w", err)
	}

	var haveIndex, haveData bool
	for _, f := range zr.File {
		switch f.Name {
		case IndexEntry, legacyIndexEntry:
			if index, err = readEntry(f); err != nil {
				return nil, nil, err
			}
			haveIndex = true
		case DataEntry, legacyDataEntry:
			if data, err = readEntry(f); err != nil {
				return nil, nil, err
			}
			haveData = true
		}
	}
	if !haveIndex || !haveData {
		return nil, nil, ErrMissingEntry
	}
	return index, data, nil
}

// Records parses index and checks that every record lies within data.
func Records(index, data []byte) ([]recordlog.Record, error) {
	records := recordlog.ParseIndex(index)
	size := uint64(len(data))
	for i, rec := range records {
		if rec.End() > size {
			return nil, fmt.Errorf("%w: record %d offset=%d size=%d data size=%d",
				ErrInvalidRecord, i, rec.Offset, rec.Size, size)
		}
	}
	return records, nil
}

// Payload returns the bytes rec addresses in data. rec must have been
// checked by Records.
func Payload(data []byte, rec recordlog.Record) []byte {
	return data[rec.Offset:rec.End()]
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return b, nil
}
