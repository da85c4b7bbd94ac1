package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// DefaultTTL is the default cache time-to-live
const DefaultTTL = 24 * time.Hour

// ErrExpired is returned by Get when an entry exists but is older than the TTL
var ErrExpired = errors.New("cache entry expired")

// Cache provides local file-based caching of JSON-encodable registry responses.
// Keys are hashed, so any string is a valid key. Namespace returns a view that
// prefixes keys, keeping different registries apart in the same directory.
type Cache struct {
	dir    string
	ttl    time.Duration
	prefix string
}

// DefaultDir returns ~/.cache/<appName>
func DefaultDir(appName string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".cache", appName), nil
}

// New creates a cache rooted at dir, creating the directory if needed
func New(dir string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	if ttl == 0 {
		ttl = DefaultTTL
	}

	return &Cache{dir: dir, ttl: ttl}, nil
}

// Dir returns the cache directory
func (c *Cache) Dir() string { return c.dir }

// Namespace returns a view of the cache whose keys are prefixed with prefix
func (c *Cache) Namespace(prefix string) *Cache {
	return &Cache{dir: c.dir, ttl: c.ttl, prefix: c.prefix + prefix}
}

// keyToFilename converts a key to a safe filename
func (c *Cache) keyToFilename(key string) string {
	hash := sha256.Sum256([]byte(c.prefix + key))
	return hex.EncodeToString(hash[:16]) + ".json"
}

// Path returns the full path to the cache file for a key
func (c *Cache) Path(key string) string {
	return filepath.Join(c.dir, c.keyToFilename(key))
}

// Get decodes the cached value for key into v.
// It returns (false, nil) on a miss and (false, ErrExpired) for stale entries.
func (c *Cache) Get(key string, v any) (bool, error) {
	path := c.Path(key)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if time.Since(info.ModTime()) > c.ttl {
		return false, ErrExpired
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores v in the cache
func (c *Cache) Set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(c.Path(key), data, 0o644)
}

// Clear removes all cached files and returns how many were removed
func (c *Cache) Clear() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
