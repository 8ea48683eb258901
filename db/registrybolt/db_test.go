package registrybolt

import (
	"path/filepath"
	"testing"

	"github.com/roguetalk/roguetalk/pkg/registry/registrytest"
)

func TestRegistryStorage(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		panic(err)
	}
	defer db.Close()

	registrytest.TestStorage(t, db)
}
