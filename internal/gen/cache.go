package gen

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Current schema version. Increment when Payload changes.
const cacheSchemaVersion uint16 = 1

// Digest identifies the sources of one package.
type Digest [sha256.Size]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Cache keeps generated files keyed by the digest of the package sources
// they were generated from. Safe for concurrent use.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Payload is one cache entry.
type Payload struct {
	// Schema version for safe invalidation when the format changes
	Schema uint16

	Package string
	Items   []string
	// Source is the formatted generated file, empty when the package
	// declares nothing to derive.
	Source []byte
}

// OpenCache opens (creating if needed) the cache rooted at dir.
func OpenCache(dir string) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("cache directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the root directory of c.
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) pathFor(key Digest) string {
	return filepath.Join(c.dir, "pkgs", key.String()+".mp")
}

// Put writes payload under key, replacing any previous entry atomically.
func (c *Cache) Put(key Digest, payload *Payload) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	payload.Schema = cacheSchemaVersion
	if err = msgpack.NewEncoder(f).Encode(payload); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get reads the entry of key into out. A missing entry or one written by
// another schema version is a miss.
func (c *Cache) Get(key Digest, out *Payload) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	if err := msgpack.NewDecoder(f).Decode(out); err != nil {
		return false, err
	}
	if out.Schema != cacheSchemaVersion {
		return false, nil
	}
	return true, nil
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.RemoveAll(filepath.Join(c.dir, "pkgs"))
}

// Hash returns the digest of the named files and the generator settings
// that affect the output. Files are hashed in sorted order.
func Hash(files []string, settings ...string) (Digest, error) {
	h := sha256.New()
	fmt.Fprintf(h, "schema=%d\n", cacheSchemaVersion)
	for _, s := range settings {
		fmt.Fprintf(h, "%s\n", s)
	}
	sorted := slices.Clone(files)
	slices.Sort(sorted)
	for _, name := range sorted {
		data, err := os.ReadFile(name)
		if err != nil {
			return Digest{}, err
		}
		fmt.Fprintf(h, "%s %d\n", filepath.Base(name), len(data))
		h.Write(data)
	}
	var d Digest
	h.Sum(d[:0])
	return d, nil
}
