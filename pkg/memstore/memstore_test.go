package memstore

import (
	"testing"

	"github.com/roguetalk/roguetalk/pkg/registry/registrytest"
)

func TestStore(t *testing.T) {
	registrytest.TestStorage(t, NewStore())
}
