// Package registrytest implements a blackbox test suite for registry
// storage backends.
package registrytest

import (
	"errors"
	"sync"
	"testing"

	"github.com/roguetalk/roguetalk/pkg/registry"
)

func key(b byte) registry.Key {
	var k registry.Key
	for i := range k {
		k[i] = b
	}
	return k
}

// TestStorage tests a fresh, empty registry storage backend.
func TestStorage(t *testing.T, s registry.Storage) {
	t.Run("EmptyLookups", func(t *testing.T) {
		k, err := s.GetKeyByName("alice")
		if err != nil || k != nil {
			t.Errorf("GetKeyByName = %v, %v, want nil, nil", k, err)
		}
		n, err := s.GetNameByKey(key(1))
		if err != nil || n != "" {
			t.Errorf("GetNameByKey = %q, %v, want \"\", nil", n, err)
		}
		p, err := s.LoadPosition("alice")
		if err != nil || p != nil {
			t.Errorf("LoadPosition = %v, %v, want nil, nil", p, err)
		}
	})

	t.Run("Register", func(t *testing.T) {
		if err := s.Register("alice", key(1)); err != nil {
			t.Fatalf("Register error: %v", err)
		}
		k, err := s.GetKeyByName("alice")
		if err != nil || k == nil || *k != key(1) {
			t.Errorf("GetKeyByName = %v, %v, want key(1), nil", k, err)
		}
		n, err := s.GetNameByKey(key(1))
		if err != nil || n != "alice" {
			t.Errorf("GetNameByKey = %q, %v, want alice, nil", n, err)
		}
	})

	t.Run("RegisterIdempotent", func(t *testing.T) {
		if err := s.Register("alice", key(1)); err != nil {
			t.Errorf("re-registering the same binding = %v, want nil", err)
		}
	})

	t.Run("NameConflict", func(t *testing.T) {
		if err := s.Register("alice", key(2)); !errors.Is(err, registry.ErrNameTaken) {
			t.Errorf("Register(alice, key2) = %v, want ErrNameTaken", err)
		}
		// The original binding must be untouched.
		k, err := s.GetKeyByName("alice")
		if err != nil || k == nil || *k != key(1) {
			t.Errorf("GetKeyByName after conflict = %v, %v", k, err)
		}
	})

	t.Run("KeyConflict", func(t *testing.T) {
		if err := s.Register("impostor", key(1)); !errors.Is(err, registry.ErrKeyBound) {
			t.Errorf("Register(impostor, key1) = %v, want ErrKeyBound", err)
		}
		n, err := s.GetNameByKey(key(1))
		if err != nil || n != "alice" {
			t.Errorf("GetNameByKey after conflict = %q, %v", n, err)
		}
	})

	t.Run("Position", func(t *testing.T) {
		want := registry.Position{X: 5, Y: 7, Level: "dungeon"}
		if err := s.SavePosition("alice", want); err != nil {
			t.Fatalf("SavePosition error: %v", err)
		}
		p, err := s.LoadPosition("alice")
		if err != nil || p == nil || *p != want {
			t.Errorf("LoadPosition = %v, %v, want %v", p, err, want)
		}

		// Overwrite.
		want = registry.Position{X: 1, Y: 2, Level: "main"}
		if err := s.SavePosition("alice", want); err != nil {
			t.Fatalf("SavePosition error: %v", err)
		}
		p, err = s.LoadPosition("alice")
		if err != nil || p == nil || *p != want {
			t.Errorf("LoadPosition after overwrite = %v, %v, want %v", p, err, want)
		}
	})

	t.Run("RegisterRace", func(t *testing.T) {
		const n = 8
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if i%2 == 0 {
					errs[i] = s.Register("racer", key(9))
				} else {
					errs[i] = s.Register("racer", key(10))
				}
			}(i)
		}
		wg.Wait()

		k, err := s.GetKeyByName("racer")
		if err != nil || k == nil {
			t.Fatalf("GetKeyByName(racer) = %v, %v", k, err)
		}
		n2, err := s.GetNameByKey(*k)
		if err != nil || n2 != "racer" {
			t.Fatalf("GetNameByKey = %q, %v", n2, err)
		}
		// Every error must be a conflict against the winning binding.
		for i, err := range errs {
			if err != nil && !errors.Is(err, registry.ErrNameTaken) && !errors.Is(err, registry.ErrKeyBound) {
				t.Errorf("racer %d: unexpected error %v", i, err)
			}
		}
	})
}
