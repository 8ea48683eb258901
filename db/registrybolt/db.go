// Package registrybolt implements bbolt key-value storage for the player
// identity registry. A single file, no external process, transactional
// writes.
package registrybolt

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/roguetalk/roguetalk/pkg/registry"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketNames     = []byte("names")     // name -> pubkey
	bucketKeys      = []byte("keys")      // pubkey -> name
	bucketPositions = []byte("positions") // name -> position JSON
)

// DB stores registry data in a bbolt database.
type DB struct {
	b *bolt.DB
}

// Open opens or creates the database at the provided path.
func Open(path string) (*DB, error) {
	b, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 6 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := b.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketNames, bucketKeys, bucketPositions} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		b.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &DB{b}, nil
}

func (db *DB) Close() error {
	return db.b.Close()
}

func (db *DB) GetKeyByName(name string) (*registry.Key, error) {
	var k *registry.Key
	err := db.b.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketNames).Get([]byte(name)); v != nil {
			if len(v) != len(registry.Key{}) {
				return fmt.Errorf("stored key for %q has %d bytes", name, len(v))
			}
			k = new(registry.Key)
			copy(k[:], v)
		}
		return nil
	})
	return k, err
}

func (db *DB) GetNameByKey(key registry.Key) (string, error) {
	var name string
	err := db.b.View(func(tx *bolt.Tx) error {
		name = string(tx.Bucket(bucketKeys).Get(key[:]))
		return nil
	})
	return name, err
}

func (db *DB) Register(name string, key registry.Key) error {
	return db.b.Update(func(tx *bolt.Tx) error {
		names, keys := tx.Bucket(bucketNames), tx.Bucket(bucketKeys)
		if v := names.Get([]byte(name)); v != nil {
			if !bytes.Equal(v, key[:]) {
				return registry.ErrNameTaken
			}
			return nil
		}
		if v := keys.Get(key[:]); v != nil {
			if string(v) != name {
				return registry.ErrKeyBound
			}
			return nil
		}
		if err := names.Put([]byte(name), key[:]); err != nil {
			return err
		}
		return keys.Put(key[:], []byte(name))
	})
}

type positionJSON struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Level string `json:"level"`
}

func (db *DB) SavePosition(name string, pos registry.Position) error {
	buf, err := json.Marshal(positionJSON(pos))
	if err != nil {
		return err
	}
	return db.b.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPositions).Put([]byte(name), buf)
	})
}

func (db *DB) LoadPosition(name string) (*registry.Position, error) {
	var pos *registry.Position
	err := db.b.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketPositions).Get([]byte(name))
		if v == nil {
			return nil
		}
		var p positionJSON
		if err := json.Unmarshal(v, &p); err != nil {
			return fmt.Errorf("decode position for %q: %w", name, err)
		}
		pos = &registry.Position{X: p.X, Y: p.Y, Level: p.Level}
		return nil
	})
	return pos, err
}
