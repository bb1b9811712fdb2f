package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/thatsimonsguy/poolstation-bridge/internal/model"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

// CreateEntry stores a new account and returns it with a fresh ID.
func CreateEntry(db *sql.DB, email, password, token string) (*model.ConfigEntry, error) {
	e := &model.ConfigEntry{
		ID:        uuid.NewString(),
		Token:     token,
		Email:     email,
		Password:  password,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := db.Exec(`INSERT INTO config_entries (id, token, email, password, reauth_required, updated_at) VALUES (?, ?, ?, ?, FALSE, ?)`,
		e.ID, e.Token, e.Email, e.Password, e.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert config entry: %w", err)
	}
	return e, nil
}

func UpdateEntryToken(db *sql.DB, id, token string) error {
	return updateEntry(db, id, "update entry token",
		`UPDATE config_entries SET token = ?, updated_at = ? WHERE id = ?`,
		token, now(), id)
}

// UpdateEntryCredentials replaces the stored login after a successful
// re-authentication and clears the reauth flag.
func UpdateEntryCredentials(db *sql.DB, id, email, password, token string) error {
	return updateEntry(db, id, "update entry credentials",
		`UPDATE config_entries SET email = ?, password = ?, token = ?, reauth_required = FALSE, updated_at = ? WHERE id = ?`,
		email, password, token, now(), id)
}

func SetReauthRequired(db *sql.DB, id string, required bool) error {
	return updateEntry(db, id, "set reauth required",
		`UPDATE config_entries SET reauth_required = ?, updated_at = ? WHERE id = ?`,
		required, now(), id)
}

func updateEntry(db *sql.DB, id, op, query string, args ...any) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	res, err := tx.Exec(query, args...)
	if err != nil {
		RollbackTransaction(tx)
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		RollbackTransaction(tx)
		return fmt.Errorf("%s %s: %w", op, id, ErrEntryNotFound)
	}
	return CommitTransaction(tx)
}

// InsertReading appends one fetched snapshot to the pool's history.
func InsertReading(db *sql.DB, poolID string, snap *model.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}
	fetchedAt := snap.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}
	_, err = db.Exec(`INSERT INTO readings (pool_id, fetched_at, payload) VALUES (?, ?, ?)`,
		poolID, fetchedAt.UTC().Format(time.RFC3339Nano), string(payload))
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
