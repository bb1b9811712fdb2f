package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/thatsimonsguy/poolstation-bridge/internal/model"
)

var ErrEntryNotFound = errors.New("config entry not found")

// GetEntry retrieves a config entry by its ID.
func GetEntry(db *sql.DB, id string) (*model.ConfigEntry, error) {
	var e model.ConfigEntry
	var updatedAt string
	err := db.QueryRow(`SELECT id, token, email, password, reauth_required, updated_at FROM config_entries WHERE id = ?`, id).
		Scan(&e.ID, &e.Token, &e.Email, &e.Password, &e.ReauthRequired, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get entry %s: %w", id, ErrEntryNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry %s: %w", id, err)
	}
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &e, nil
}

// GetRecentReadings returns up to limit readings for a pool, newest first.
func GetRecentReadings(db *sql.DB, poolID string, limit int) ([]model.Reading, error) {
	rows, err := db.Query(`SELECT pool_id, fetched_at, payload FROM readings WHERE pool_id = ? ORDER BY fetched_at DESC, id DESC LIMIT ?`, poolID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []model.Reading
	for rows.Next() {
		var r model.Reading
		var fetchedAt, payload string
		if err := rows.Scan(&r.PoolID, &fetchedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.FetchedAt, _ = time.Parse(time.RFC3339Nano, fetchedAt)
		if err := json.Unmarshal([]byte(payload), &r.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to decode reading payload: %w", err)
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}
