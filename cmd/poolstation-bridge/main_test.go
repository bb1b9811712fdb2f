package main

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/poolstation-bridge/db"
	"github.com/thatsimonsguy/poolstation-bridge/internal/integration"
	"github.com/thatsimonsguy/poolstation-bridge/internal/model"
	"github.com/thatsimonsguy/poolstation-bridge/internal/poolstation"
)

// stubClient accepts the token "good". listFailures makes the first n
// ListPools calls fail with listErr.
type stubClient struct {
	mu sync.Mutex

	loginErr     error
	listErr      error
	listFailures int

	logins int
	lists  int
}

func (c *stubClient) Login(context.Context, string, string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logins++
	if c.loginErr != nil {
		return "", c.loginErr
	}
	return "good", nil
}

func (c *stubClient) ListPools(_ context.Context, token string) ([]model.Pool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists++
	if c.listErr != nil && (c.listFailures < 0 || c.lists <= c.listFailures) {
		return nil, c.listErr
	}
	if token != "good" {
		return nil, poolstation.ErrAuthentication
	}
	return []model.Pool{{ID: "p1", Alias: "Backyard"}}, nil
}

func (c *stubClient) FetchPool(_ context.Context, token, _ string) (*model.Snapshot, error) {
	if token != "good" {
		return nil, poolstation.ErrAuthentication
	}
	return &model.Snapshot{CurrentPH: model.Float(7.2), FetchedAt: time.Now()}, nil
}

func (c *stubClient) SetTargetPH(context.Context, string, string, float64) error { return nil }

func (c *stubClient) SetTargetORP(context.Context, string, string, int) error { return nil }

func (c *stubClient) SetTargetClPPM(context.Context, string, string, float64) error { return nil }

func (c *stubClient) SetTargetElectrolysis(context.Context, string, string, int) error { return nil }

func (c *stubClient) counts() (logins, lists int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logins, c.lists
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(t.TempDir() + "/bridge.db")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSetup_RejectedLoginIsNotRetried(t *testing.T) {
	conn := openTestDB(t)
	entry, err := db.CreateEntry(conn, "owner@example.com", "wrong", "stale")
	require.NoError(t, err)
	client := &stubClient{loginErr: &poolstation.ResponseError{Op: "login", StatusCode: 500}}

	start := time.Now()
	in, err := setup(context.Background(), integration.Deps{Client: client, DB: conn}, entry, 5*time.Second)
	assert.Nil(t, in)
	assert.ErrorIs(t, err, integration.ErrAuthFailed)
	assert.Less(t, time.Since(start), time.Second)

	logins, lists := client.counts()
	assert.Equal(t, 1, logins)
	assert.Equal(t, 1, lists)

	stored, err := db.GetEntry(conn, entry.ID)
	require.NoError(t, err)
	assert.True(t, stored.ReauthRequired)
}

func TestSetup_UnreachableRetriesUntilMaxElapsed(t *testing.T) {
	conn := openTestDB(t)
	entry, err := db.CreateEntry(conn, "owner@example.com", "secret", "good")
	require.NoError(t, err)
	client := &stubClient{
		listErr:      &poolstation.ClientError{Op: "list pools", Err: errors.New("connection refused")},
		listFailures: -1,
	}

	maxElapsed := 1500 * time.Millisecond
	start := time.Now()
	in, err := setup(context.Background(), integration.Deps{Client: client, DB: conn}, entry, maxElapsed)
	assert.Nil(t, in)
	assert.ErrorIs(t, err, integration.ErrNotReady)
	assert.LessOrEqual(t, time.Since(start), maxElapsed+500*time.Millisecond)

	logins, lists := client.counts()
	assert.Zero(t, logins)
	assert.GreaterOrEqual(t, lists, 2)
}

func TestSetup_RecoversOnceReachable(t *testing.T) {
	conn := openTestDB(t)
	entry, err := db.CreateEntry(conn, "owner@example.com", "secret", "good")
	require.NoError(t, err)
	client := &stubClient{
		listErr:      &poolstation.ClientError{Op: "list pools", Err: errors.New("connection refused")},
		listFailures: 1,
	}

	in, err := setup(context.Background(), integration.Deps{Client: client, DB: conn}, entry, 10*time.Second)
	require.NoError(t, err)
	require.NotNil(t, in)
	assert.Len(t, in.Pools(), 1)

	_, lists := client.counts()
	assert.Equal(t, 2, lists)
}
