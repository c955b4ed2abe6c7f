// Package cache is a latest-wins content cache backed by a record log.
//
// Content is keyed by version id and stored under the put or put-encrypted
// kind. Files are keyed by name and stored under write-file; a delete-file
// marker hides every earlier write of the same name. The two key spaces are
// independent.
//
// The log is the source of truth. Lookups go through an in-memory map from
// key to the latest record for that key, built with one pass over the log
// at open and updated on every append.
package cache

import (
	"fmt"
	"sync"

	"github.com/roach88/notelog/internal/recordlog"
)

const (
	KindPut          = "put"
	KindPutEncrypted = "put-encrypted"
	KindWriteFile    = "write-file"
	KindDeleteFile   = "delete-file"
)

// Entry is a cached content version.
type Entry struct {
	Data      []byte
	Encrypted bool
}

// Cache maps version ids to content and names to files.
type Cache struct {
	mu       sync.RWMutex
	log      *recordlog.Log
	contents map[string]recordlog.Record
	files    map[string]recordlog.Record
}

// Open builds the key index over log.
func Open(log *recordlog.Log) *Cache {
	c := &Cache{
		log:      log,
		contents: make(map[string]recordlog.Record),
		files:    make(map[string]recordlog.Record),
	}
	for _, rec := range log.Records() {
		c.index(rec)
	}
	return c
}

func (c *Cache) index(rec recordlog.Record) {
	switch rec.Kind {
	case KindPut, KindPutEncrypted:
		c.contents[rec.Meta] = rec
	case KindWriteFile:
		c.files[rec.Meta] = rec
	case KindDeleteFile:
		delete(c.files, rec.Meta)
	}
}

func (c *Cache) append(payload []byte, kind, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, err := c.log.Append(payload, kind, key)
	if err != nil {
		return fmt.Errorf("cache %s %s: %w", kind, key, err)
	}
	c.index(rec)
	return nil
}

// Has reports whether content for key is cached.
func (c *Cache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.contents[key]
	return ok
}

// Get returns the latest content for key.
func (c *Cache) Get(key string) (Entry, bool, error) {
	c.mu.RLock()
	rec, ok := c.contents[key]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}
	b, err := c.log.ReadPayload(rec)
	if err != nil {
		return Entry{}, false, err
	}
	return Entry{Data: b, Encrypted: rec.Kind == KindPutEncrypted}, true, nil
}

// Put caches data under key. Earlier entries for key stay in the log.
func (c *Cache) Put(key string, data []byte, encrypted bool) error {
	kind := KindPut
	if encrypted {
		kind = KindPutEncrypted
	}
	return c.append(data, kind, key)
}

// WriteFile caches a file.
func (c *Cache) WriteFile(name string, data []byte) error {
	return c.append(data, KindWriteFile, name)
}

// ReadFile returns the latest write of name unless it was deleted since.
func (c *Cache) ReadFile(name string) ([]byte, bool, error) {
	c.mu.RLock()
	rec, ok := c.files[name]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	b, err := c.log.ReadPayload(rec)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// DeleteFile appends a delete-file marker for name.
func (c *Cache) DeleteFile(name string) error {
	return c.append(nil, KindDeleteFile, name)
}

// Len returns the number of cached content keys.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.contents)
}

// Log returns the backing record log.
func (c *Cache) Log() *recordlog.Log {
	return c.log
}

// Close closes the backing log.
func (c *Cache) Close() error {
	return c.log.Close()
}
