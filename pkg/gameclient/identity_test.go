package gameclient

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLoadOrCreateIdentity(t *testing.T) {
	dir := t.TempDir()

	id1, err := LoadOrCreateIdentity(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(id1.Public) == 0 || len(id1.Private) == 0 {
		t.Fatal("empty keypair")
	}

	// Second load returns the same keypair.
	id2, err := LoadOrCreateIdentity(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(id1.Public, id2.Public) || !bytes.Equal(id1.Private, id2.Private) {
		t.Error("identity not stable across loads")
	}

	if runtime.GOOS != "windows" {
		fi, err := os.Stat(filepath.Join(dir, "identity.json"))
		if err != nil {
			t.Fatal(err)
		}
		if fi.Mode().Perm() != 0o600 {
			t.Errorf("identity.json mode = %o, want 600", fi.Mode().Perm())
		}
	}
}

func TestLoadOrCreateIdentityCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "identity.json"), []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	// A corrupt file is replaced by a fresh keypair.
	id, err := LoadOrCreateIdentity(dir)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := LoadOrCreateIdentity(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(id.Public, id2.Public) {
		t.Error("regenerated identity not persisted")
	}
}
