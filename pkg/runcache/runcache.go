// Package runcache remembers which files were already in their rewritten
// form, so later runs with the same options can skip them without parsing.
//
// The cache is a JSON document compressed as one LZ4 frame. It is keyed by
// an options fingerprint: a cache written under other options is ignored.
package runcache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/pyqualify/pkg/atomicfile"
)

const formatVersion = 1

// ErrCorrupt is returned by Open when the cache file cannot be decoded.
var ErrCorrupt = errors.New("run cache is corrupt")

type document struct {
	Version     int               `json:"version"`
	Fingerprint string            `json:"fingerprint"`
	Entries     map[string]string `json:"entries"`
}

// Cache maps file paths to the content hash they had when last seen in
// rewritten form. It is safe for concurrent use.
type Cache struct {
	path        string
	fingerprint string

	mu      sync.Mutex
	entries map[string]string
	dirty   bool
}

// Open loads the cache at path. A missing file, another format version or
// another fingerprint yields an empty cache. A file that fails to decode
// yields an empty cache and ErrCorrupt so the caller can log it.
func Open(path, fingerprint string) (*Cache, error) {
	c := &Cache{path: path, fingerprint: fingerprint, entries: make(map[string]string)}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}

	if err != nil {
		return c, fmt.Errorf("open run cache: %w", err)
	}

	defer f.Close()

	var doc document

	err = json.NewDecoder(lz4.NewReader(f)).Decode(&doc)
	if err != nil {
		return c, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	if doc.Version == formatVersion && doc.Fingerprint == fingerprint && doc.Entries != nil {
		c.entries = doc.Entries
	}

	return c, nil
}

// Key hashes file content.
func Key(content []byte) string {
	sum := sha256.Sum256(content)

	return hex.EncodeToString(sum[:])
}

// Fresh reports whether file is known to be in rewritten form with exactly
// this content.
func (c *Cache) Fresh(file string, content []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, ok := c.entries[file]

	return ok && key == Key(content)
}

// Mark records content as the rewritten form of file.
func (c *Cache) Mark(file string, content []byte) {
	key := Key(content)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries[file] != key {
		c.entries[file] = key
		c.dirty = true
	}
}

// Forget drops file from the cache.
func (c *Cache) Forget(file string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[file]; ok {
		delete(c.entries, file)
		c.dirty = true
	}
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Save writes the cache back when it changed.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return nil
	}

	var buf bytes.Buffer

	err := encode(&buf, document{Version: formatVersion, Fingerprint: c.fingerprint, Entries: c.entries})
	if err != nil {
		return err
	}

	if dir := filepath.Dir(c.path); dir != "" {
		if err = os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create run cache dir: %w", err)
		}
	}

	if err = atomicfile.WriteFile(c.path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("save run cache: %w", err)
	}

	c.dirty = false

	return nil
}

func encode(w io.Writer, doc document) error {
	zw := lz4.NewWriter(w)

	if err := json.NewEncoder(zw).Encode(doc); err != nil {
		return fmt.Errorf("encode run cache: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress run cache: %w", err)
	}

	return nil
}
