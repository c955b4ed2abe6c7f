// Package bytelog provides persistent append-only byte streams addressed by
// byte offset and length.
//
// A ByteLog carries no framing of its own: no header, checksum or length
// prefix is written into the stream. All structure lives outside, in whatever
// index the caller keeps (see package recordlog).
//
// Two implementations are provided:
//   - Mem: an in-memory stream, used by tests and scratch logs
//   - File: a file-backed stream holding an exclusive advisory lock, so a
//     second process cannot open the same stream for writing
//
// Every implementation serializes Append internally, so the offset it returns
// always matches the position the bytes were written at.
package bytelog

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrOutOfRange is returned when a read addresses bytes past the end of the stream.
	ErrOutOfRange = errors.New("bytelog: read out of range")
	// ErrLocked is returned when another process holds the stream's lock.
	ErrLocked = errors.New("bytelog: stream is locked by another writer")
	// ErrClosed is returned by operations on a closed stream.
	ErrClosed = errors.New("bytelog: stream is closed")
)

// ByteLog is an append-only byte stream.
type ByteLog interface {
	// Append writes p at the current end of the stream and returns the
	// offset it was written at.
	Append(p []byte) (offset uint64, err error)

	// ReadAt returns size bytes starting at offset.
	ReadAt(offset, size uint64) ([]byte, error)

	// Len returns the current length of the stream.
	Len() uint64

	// Bytes returns a copy of the whole stream.
	Bytes() ([]byte, error)

	// Truncate shrinks the stream to size bytes. Truncate(0) discards
	// all content.
	Truncate(size uint64) error

	// Sync flushes written bytes to stable storage.
	Sync() error

	Close() error
}

// Mem is an in-memory ByteLog.
type Mem struct {
	mu     sync.RWMutex
	buf    []byte
	closed bool
}

// NewMem creates an empty in-memory stream.
func NewMem() *Mem {
	return &Mem{}
}

// NewMemFrom creates an in-memory stream holding a copy of b.
func NewMemFrom(b []byte) *Mem {
	return &Mem{buf: append([]byte(nil), b...)}
}

// Append adds p at the end of the stream and returns its offset.
func (m *Mem) Append(p []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	off := uint64(len(m.buf))
	m.buf = append(m.buf, p...)
	return off, nil
}

// ReadAt returns a copy of size bytes starting at offset.
func (m *Mem) ReadAt(offset, size uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	if err := checkRange(offset, size, uint64(len(m.buf))); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, m.buf[offset:offset+size])
	return out, nil
}

// Len returns the stream length in bytes.
func (m *Mem) Len() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.buf))
}

// Bytes returns a copy of the whole stream.
func (m *Mem) Bytes() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return append([]byte(nil), m.buf...), nil
}

// Truncate shrinks the stream to size bytes.
func (m *Mem) Truncate(size uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if size > uint64(len(m.buf)) {
		return fmt.Errorf("%w: truncate to %d, len=%d", ErrOutOfRange, size, len(m.buf))
	}
	m.buf = m.buf[:size:size]
	return nil
}

// Sync is a no-op for memory streams.
func (m *Mem) Sync() error { return nil }

// Close marks the stream closed; later reads and writes fail with ErrClosed.
func (m *Mem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// checkRange verifies [offset, offset+size) lies within a stream of length n.
func checkRange(offset, size, n uint64) error {
	end := offset + size
	if end < offset || end > n {
		return fmt.Errorf("%w: offset=%d size=%d len=%d", ErrOutOfRange, offset, size, n)
	}
	return nil
}
