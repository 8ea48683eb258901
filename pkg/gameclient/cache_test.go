package gameclient

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func TestCachePutGet(t *testing.T) {
	c := NewCache(t.TempDir())

	data := []byte("level bytes")
	hash, err := c.Put("main", data)
	if err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(data)
	if hash != hex.EncodeToString(sum[:]) {
		t.Errorf("hash = %s", hash)
	}

	got, ok := c.Get("main", hash)
	if !ok || string(got) != string(data) {
		t.Errorf("get = %q, %v", got, ok)
	}
	if _, ok := c.Get("main", "0000"); ok {
		t.Error("unknown hash hit")
	}
	if _, ok := c.Get("other", hash); ok {
		t.Error("wrong level hit")
	}
}

func TestCacheRejectsCorruptEntry(t *testing.T) {
	root := t.TempDir()
	c := NewCache(root)

	hash, err := c.Put("main", []byte("original"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "main", hash), []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("main", hash); ok {
		t.Error("corrupt entry served")
	}
}

func TestCachePartition(t *testing.T) {
	c := NewCache(t.TempDir())

	cachedBytes := []byte("cached level.txt")
	h1, err := c.Put("dungeon", cachedBytes)
	if err != nil {
		t.Fatal(err)
	}
	manifest := []ManifestEntry{
		{Filename: "level.txt", Hash: h1, Size: uint32(len(cachedBytes))},
		{Filename: "level.json", Hash: "deadbeef", Size: 12},
	}

	cached, missing := c.Partition("dungeon", manifest)
	if len(cached) != 1 || string(cached["level.txt"]) != string(cachedBytes) {
		t.Errorf("cached = %v", cached)
	}
	if len(missing) != 1 || missing[0] != "level.json" {
		t.Errorf("missing = %v", missing)
	}
}
