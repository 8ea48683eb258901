// Package registrydb implements sqlite3 storage for the player identity
// registry.
package registrydb

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/jmoiron/sqlx"
	"github.com/roguetalk/roguetalk/pkg/registry"
)

// DB stores registry data in a sqlite3 database.
type DB struct {
	x *sqlx.DB
}

// Open opens a DB from the provided sqlite3 filename.
func Open(name string) (*DB, error) {
	// note: WAL and a larger cache makes our writes and queries MUCH faster
	x, err := sqlx.Connect("sqlite3", (&url.URL{
		Path: name,
		RawQuery: (url.Values{
			"_journal":      {"WAL"},
			"_cache_size":   {"-32000"},
			"_busy_timeout": {"6000"},
			"_txlock":       {"immediate"},
		}).Encode(),
	}).String())
	if err != nil {
		return nil, err
	}
	return &DB{x}, nil
}

func (db *DB) Close() error {
	return db.x.Close()
}

func (db *DB) GetKeyByName(name string) (*registry.Key, error) {
	var buf []byte
	if err := db.x.Get(&buf, `SELECT pubkey FROM players WHERE name = ?`, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(buf) != len(registry.Key{}) {
		return nil, fmt.Errorf("stored key for %q has %d bytes", name, len(buf))
	}
	var k registry.Key
	copy(k[:], buf)
	return &k, nil
}

func (db *DB) GetNameByKey(key registry.Key) (string, error) {
	var name string
	if err := db.x.Get(&name, `SELECT name FROM players WHERE pubkey = ?`, key[:]); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return name, nil
}

func (db *DB) Register(name string, key registry.Key) error {
	tx, err := db.x.Beginx()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var buf []byte
	if err := tx.Get(&buf, `SELECT pubkey FROM players WHERE name = ?`, name); err == nil {
		var k registry.Key
		copy(k[:], buf)
		if k != key {
			return registry.ErrNameTaken
		}
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	var existing string
	if err := tx.Get(&existing, `SELECT name FROM players WHERE pubkey = ?`, key[:]); err == nil {
		if existing != name {
			return registry.ErrKeyBound
		}
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if _, err := tx.Exec(`INSERT INTO players (name, pubkey) VALUES (?, ?)`, name, key[:]); err != nil {
		return fmt.Errorf("insert player: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (db *DB) SavePosition(name string, pos registry.Position) error {
	if _, err := db.x.NamedExec(`
		UPDATE players
		SET pos_x = :pos_x, pos_y = :pos_y, pos_level = :pos_level
		WHERE name = :name
	`, map[string]any{
		"name":      name,
		"pos_x":     pos.X,
		"pos_y":     pos.Y,
		"pos_level": pos.Level,
	}); err != nil {
		return err
	}
	return nil
}

func (db *DB) LoadPosition(name string) (*registry.Position, error) {
	var obj struct {
		X     sql.NullInt64  `db:"pos_x"`
		Y     sql.NullInt64  `db:"pos_y"`
		Level sql.NullString `db:"pos_level"`
	}
	if err := db.x.Get(&obj, `SELECT pos_x, pos_y, pos_level FROM players WHERE name = ?`, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if !obj.Level.Valid {
		return nil, nil
	}
	return &registry.Position{
		X:     int(obj.X.Int64),
		Y:     int(obj.Y.Int64),
		Level: obj.Level.String,
	}, nil
}
