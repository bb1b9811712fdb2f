package db

import (
	"github.com/thatsimonsguy/poolstation-bridge/internal/model"
)

func CreateEntryCLI(dbPath, email, password string) (*model.ConfigEntry, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return CreateEntry(conn, email, password, "")
}

func ShowEntryCLI(dbPath, id string) (*model.ConfigEntry, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return GetEntry(conn, id)
}

func SetTokenCLI(dbPath, id, token string) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()
	return UpdateEntryToken(conn, id, token)
}

func ClearReauthCLI(dbPath, id string) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()
	return SetReauthRequired(conn, id, false)
}

func RecentReadingsCLI(dbPath, poolID string, limit int) ([]model.Reading, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return GetRecentReadings(conn, poolID, limit)
}

func SetCredentialsCLI(dbPath, id, email, password string) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()
	// the token is dropped so the next start logs in with the new credentials
	return UpdateEntryCredentials(conn, id, email, password, "")
}
