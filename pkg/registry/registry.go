// Package registry defines the durable identity registry: the bijection
// between player names and long-term public keys, plus each player's
// last saved position. Backends live in pkg/memstore, db/registrydb and
// db/registrybolt.
package registry

import (
	"crypto/ed25519"
	"errors"
)

// Key is a player's long-term public key.
type Key [ed25519.PublicKeySize]byte

// Position is a player's last saved location.
type Position struct {
	X     int
	Y     int
	Level string
}

var (
	// ErrNameTaken means the name is already bound to a different key.
	ErrNameTaken = errors.New("registry: name bound to a different key")

	// ErrKeyBound means the key is already bound to a different name.
	ErrKeyBound = errors.New("registry: key bound to a different name")
)

// Storage persists identity bindings and positions. Implementations must
// make Register atomic against concurrent handshakes: when two register
// calls race, exactly one wins and the loser gets the conflict error
// matching the winner's binding. Registering an existing identical
// binding is a no-op.
//
// Lookups return zero values (nil error) for unknown names/keys.
type Storage interface {
	GetKeyByName(name string) (*Key, error)
	GetNameByKey(key Key) (string, error)
	Register(name string, key Key) error
	SavePosition(name string, pos Position) error
	LoadPosition(name string) (*Position, error)
}
