package registrydb

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

func init() {
	migrate(up001, down001)
}

func up001(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx, strings.ReplaceAll(`
		CREATE TABLE players (
			name      TEXT PRIMARY KEY NOT NULL,
			pubkey    BLOB NOT NULL UNIQUE,
			pos_x     INTEGER,
			pos_y     INTEGER,
			pos_level TEXT
		) STRICT;
	`, `
		`, "\n")); err != nil {
		return fmt.Errorf("create players table: %w", err)
	}
	return nil
}

func down001(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx, `DROP TABLE players`); err != nil {
		return fmt.Errorf("drop players table: %w", err)
	}
	return nil
}
