package hosts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/maypok86/otter"
)

// DefaultCacheSize is the number of host results kept when no size is configured.
const DefaultCacheSize = 256

// ResultCache memoizes host output by host name, arguments and artifact content hash.
// Identical inputs across artifacts (e.g. the same DLL in two directories) reuse one result.
type ResultCache struct {
	cache otter.Cache[string, []byte]
}

// NewResultCache creates a cache holding up to capacity results.
func NewResultCache(capacity int) (*ResultCache, error) {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	c, err := otter.MustBuilder[string, []byte](capacity).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build host result cache: %w", err)
	}
	return &ResultCache{cache: c}, nil
}

// Key derives the cache key for a host invocation over path.
func (rc *ResultCache) Key(host string, args []string, path string) (string, error) {
	sum, err := ContentHash(path)
	if err != nil {
		return "", err
	}
	return host + "\x00" + strings.Join(args, "\x00") + "\x00" + sum, nil
}

// Get returns a cached result.
func (rc *ResultCache) Get(key string) ([]byte, bool) {
	return rc.cache.Get(key)
}

// Set stores a result.
func (rc *ResultCache) Set(key string, out []byte) {
	rc.cache.Set(key, out)
}

// Close releases the cache.
func (rc *ResultCache) Close() {
	rc.cache.Close()
}

// ContentHash returns the hex SHA-256 of the file at path.
func ContentHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
