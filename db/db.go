package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS config_entries (
	id TEXT PRIMARY KEY,
	token TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL,
	password TEXT NOT NULL,
	reauth_required BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS readings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pool_id TEXT NOT NULL,
	fetched_at TEXT NOT NULL,
	payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_readings_pool_fetched ON readings (pool_id, fetched_at);
`

// Open opens the sqlite file at dbPath and makes sure the schema exists.
func Open(dbPath string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers anyway; one connection also keeps :memory: stable
	conn.SetMaxOpenConns(1)

	if err := ApplySchema(conn); err != nil {
		conn.Close()
		return nil, err
	}
	log.Info().Str("path", dbPath).Msg("Database ready")
	return conn, nil
}

func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
