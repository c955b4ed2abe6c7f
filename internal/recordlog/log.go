package recordlog

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/roach88/notelog/internal/bytelog"
)

const (
	indexSuffix = "_index.txt"
	dataSuffix  = "_data.bin"
)

// Log is an append-only sequence of records plus the data stream they index into.
type Log struct {
	mu      sync.Mutex
	index   bytelog.ByteLog
	data    bytelog.ByteLog
	records []Record
	now     func() time.Time
	logger  *slog.Logger
}

type options struct {
	now    func() time.Time
	logger *slog.Logger
	fsync  bool
}

// Option configures a Log.
type Option func(*options)

// WithClock sets the source of record timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger used for recovery diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithFsync makes file-backed logs fsync both streams on every append.
func WithFsync(enabled bool) Option {
	return func(o *options) { o.fsync = enabled }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Paths returns the index and data file paths for a log named prefix in dir.
func Paths(dir, prefix string) (indexPath, dataPath string) {
	return filepath.Join(dir, prefix+indexSuffix), filepath.Join(dir, prefix+dataSuffix)
}

// Open opens or creates the file-backed log named prefix in dir and loads
// its index.
func Open(dir, prefix string, opts ...Option) (*Log, error) {
	o := buildOptions(opts)
	indexPath, dataPath := Paths(dir, prefix)
	fileOpts := bytelog.FileOptions{SyncOnAppend: o.fsync}

	data, err := bytelog.OpenFile(dataPath, fileOpts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", prefix, err)
	}
	index, err := bytelog.OpenFile(indexPath, fileOpts)
	if err != nil {
		data.Close()
		return nil, fmt.Errorf("open %s: %w", prefix, err)
	}

	l, err := New(index, data, opts...)
	if err != nil {
		index.Close()
		data.Close()
		return nil, fmt.Errorf("open %s: %w", prefix, err)
	}
	return l, nil
}

// NewMem creates an empty in-memory log.
func NewMem(opts ...Option) *Log {
	l, _ := New(bytelog.NewMem(), bytelog.NewMem(), opts...)
	return l
}

// New creates a log over existing streams and loads the index.
// A torn index tail is repaired before loading (see package docs).
func New(index, data bytelog.ByteLog, opts ...Option) (*Log, error) {
	o := buildOptions(opts)
	l := &Log{
		index:  index,
		data:   data,
		now:    o.now,
		logger: o.logger,
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) load() error {
	raw, err := l.index.Bytes()
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}

	dataLen := l.data.Len()
	lines := scanLines(raw)

	// Records past the end of data are a torn tail only when nothing after
	// them is addressable; earlier ones are skipped like malformed lines.
	lastValid := -1
	for i, ln := range lines {
		if ln.terminated && ln.ok && ln.rec.End() <= dataLen {
			lastValid = i
		}
	}

	keep := uint64(len(raw))
	var records []Record
	for i, ln := range lines {
		if !ln.terminated {
			l.logger.Warn("dropping torn index tail", "offset", ln.start)
			keep = ln.start
			break
		}
		if !ln.ok {
			l.logger.Warn("skipping malformed index line", "offset", ln.start)
			continue
		}
		if ln.rec.End() > dataLen {
			if i > lastValid {
				l.logger.Warn("dropping index tail past end of data",
					"offset", ln.start,
					"record_end", ln.rec.End(),
					"data_len", dataLen,
				)
				keep = ln.start
				break
			}
			l.logger.Warn("skipping index line past end of data",
				"offset", ln.start,
				"record_end", ln.rec.End(),
				"data_len", dataLen,
			)
			continue
		}
		records = append(records, ln.rec)
	}

	if keep < uint64(len(raw)) {
		if err := l.index.Truncate(keep); err != nil {
			return fmt.Errorf("repair index: %w", err)
		}
	}
	l.records = records
	return nil
}

// Append adds a record. kind and meta are validated before any I/O; an empty
// payload produces a marker record with no data write.
func (l *Log) Append(payload []byte, kind, meta string) (Record, error) {
	if err := ValidateKindMeta(kind, meta); err != nil {
		return Record{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec := Record{
		TimestampMs: l.now().UnixMilli(),
		Kind:        kind,
		Meta:        meta,
	}
	if len(payload) > 0 {
		off, err := l.data.Append(payload)
		if err != nil {
			return Record{}, fmt.Errorf("append data: %w", err)
		}
		rec.Offset = off
		rec.Size = uint64(len(payload))
	}

	indexLen := l.index.Len()
	if _, err := l.index.Append(FormatRecord(rec)); err != nil {
		// drop whatever part of the line made it out so the next append
		// starts on a clean line
		if terr := l.index.Truncate(indexLen); terr != nil {
			l.logger.Error("failed to roll back partial index line", "error", terr)
		}
		return Record{}, fmt.Errorf("append index: %w", err)
	}

	l.records = append(l.records, rec)
	return rec, nil
}

// AppendString is Append with a UTF-8 string payload.
func (l *Log) AppendString(payload, kind, meta string) (Record, error) {
	return l.Append([]byte(payload), kind, meta)
}

// ReadPayload returns the payload bytes of rec.
func (l *Log) ReadPayload(rec Record) ([]byte, error) {
	if rec.Size == 0 {
		return []byte{}, nil
	}
	b, err := l.data.ReadAt(rec.Offset, rec.Size)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return b, nil
}

// Records returns a snapshot of all records in append order.
func (l *Log) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.records)
}

// Len returns the number of records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// IndexBytes returns the raw index stream.
func (l *Log) IndexBytes() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index.Bytes()
}

// DataBytes returns the raw data stream.
func (l *Log) DataBytes() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.data.Bytes()
}

// Reset discards every record, leaving an empty log.
// The index is truncated before the data so a crash in between leaves only
// unaddressed data bytes behind.
func (l *Log) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.index.Truncate(0); err != nil {
		return fmt.Errorf("reset index: %w", err)
	}
	l.records = nil
	if err := l.data.Truncate(0); err != nil {
		return fmt.Errorf("reset data: %w", err)
	}
	return nil
}

// Sync flushes both streams to stable storage.
func (l *Log) Sync() error {
	if err := l.data.Sync(); err != nil {
		return err
	}
	return l.index.Sync()
}

// Close closes both streams.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ierr := l.index.Close()
	derr := l.data.Close()
	if ierr != nil {
		return ierr
	}
	return derr
}
