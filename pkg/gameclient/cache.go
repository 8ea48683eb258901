package gameclient

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Cache is the content-addressed level file cache. Files are stored as
// <root>/<level>/<sha256-hex>; the bytes under a hash always hash to it.
type Cache struct {
	root string
}

// DefaultCacheDir is the per-user cache location.
func DefaultCacheDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".rogue-talk", "level_cache"), nil
}

func NewCache(root string) *Cache {
	return &Cache{root: root}
}

// Get returns the cached bytes for (level, hash). Entries whose content
// no longer matches the hash are treated as missing.
func (c *Cache) Get(levelName, hash string) ([]byte, bool) {
	data, err := os.ReadFile(filepath.Join(c.root, levelName, hash))
	if err != nil {
		return nil, false
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != hash {
		return nil, false
	}
	return data, true
}

// Put stores data under its own content hash and returns the hash.
func (c *Cache) Put(levelName string, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	dir := filepath.Join(c.root, levelName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, hash), data, 0o644); err != nil {
		return "", fmt.Errorf("write cache entry: %w", err)
	}
	return hash, nil
}

// Partition splits a manifest into files already cached (by content) and
// the filenames that must be fetched from the server.
func (c *Cache) Partition(levelName string, manifest []ManifestEntry) (cached map[string][]byte, missing []string) {
	cached = map[string][]byte{}
	for _, e := range manifest {
		if data, ok := c.Get(levelName, e.Hash); ok {
			cached[e.Filename] = data
		} else {
			missing = append(missing, e.Filename)
		}
	}
	return cached, missing
}

// ManifestEntry mirrors one wire manifest row.
type ManifestEntry struct {
	Filename string
	Hash     string
	Size     uint32
}
