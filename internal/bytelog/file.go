package bytelog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// FileOptions configures a file-backed stream.
type FileOptions struct {
	// SyncOnAppend fsyncs the file after every Append.
	SyncOnAppend bool
}

// File is a ByteLog backed by a single file.
//
// The file is opened read-write and exclusively locked for the lifetime of
// the File. The logical length is the file size at open time plus everything
// appended since.
type File struct {
	mu     sync.RWMutex
	path   string
	f      *os.File
	size   uint64
	opts   FileOptions
	closed bool
}

// OpenFile opens or creates the stream at path.
// Returns ErrLocked if another process holds the stream.
func OpenFile(path string, opts FileOptions) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create stream directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	stat, err := f.Stat()
	if err != nil {
		unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("stat stream: %w", err)
	}

	return &File{
		path: path,
		f:    f,
		size: uint64(stat.Size()),
		opts: opts,
	}, nil
}

// Path returns the file path of the stream.
func (l *File) Path() string {
	return l.path
}

// Append writes p at the end of the file and returns its offset. With
// SyncOnAppend the file is synced before returning.
func (l *File) Append(p []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}

	off := l.size
	if len(p) == 0 {
		return off, nil
	}
	n, err := l.f.WriteAt(p, int64(off))
	// a short write still moves the end of the file; account for it so the
	// next append does not overwrite those bytes
	l.size += uint64(n)
	if err != nil {
		return 0, fmt.Errorf("append to %s: %w", l.path, err)
	}
	if l.opts.SyncOnAppend {
		if err := l.f.Sync(); err != nil {
			return 0, fmt.Errorf("sync %s: %w", l.path, err)
		}
	}
	return off, nil
}

// ReadAt reads size bytes starting at offset.
func (l *File) ReadAt(offset, size uint64) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrClosed
	}
	if err := checkRange(offset, size, l.size); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	if size == 0 {
		return out, nil
	}
	if _, err := l.f.ReadAt(out, int64(offset)); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read %s: %w", l.path, err)
	}
	return out, nil
}

// Len returns the file length in bytes as tracked by the stream.
func (l *File) Len() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Bytes reads the whole file.
func (l *File) Bytes() ([]byte, error) {
	l.mu.RLock()
	size := l.size
	l.mu.RUnlock()
	return l.ReadAt(0, size)
}

// Truncate shrinks the file to size bytes and syncs it.
func (l *File) Truncate(size uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if size > l.size {
		return fmt.Errorf("%w: truncate to %d, len=%d", ErrOutOfRange, size, l.size)
	}
	if err := l.f.Truncate(int64(size)); err != nil {
		return fmt.Errorf("truncate %s: %w", l.path, err)
	}
	l.size = size
	return l.f.Sync()
}

// Sync flushes the file to disk.
func (l *File) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return l.f.Sync()
}

// Close releases the lock and closes the file. Closing twice is a no-op.
func (l *File) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	_ = unlockFile(l.f)
	return l.f.Close()
}
