package poolstation

import (
	"context"
	"sync"

	"github.com/thatsimonsguy/poolstation-bridge/internal/model"
)

// Account binds a Client to the token of one poolstation.net login. The token
// can be replaced after a re-login without rebuilding the coordinators that
// use it.
type Account struct {
	client Client

	mu    sync.RWMutex
	token string
}

func NewAccount(client Client, token string) *Account {
	return &Account{client: client, token: token}
}

func (a *Account) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

func (a *Account) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

// Login exchanges credentials for a new token and keeps it.
func (a *Account) Login(ctx context.Context, email, password string) (string, error) {
	token, err := a.client.Login(ctx, email, password)
	if err != nil {
		return "", err
	}
	a.SetToken(token)
	return token, nil
}

func (a *Account) ListPools(ctx context.Context) ([]model.Pool, error) {
	return a.client.ListPools(ctx, a.Token())
}

func (a *Account) FetchPool(ctx context.Context, poolID string) (*model.Snapshot, error) {
	return a.client.FetchPool(ctx, a.Token(), poolID)
}

func (a *Account) SetTargetPH(ctx context.Context, poolID string, value float64) error {
	return a.client.SetTargetPH(ctx, a.Token(), poolID, value)
}

func (a *Account) SetTargetORP(ctx context.Context, poolID string, value int) error {
	return a.client.SetTargetORP(ctx, a.Token(), poolID, value)
}

func (a *Account) SetTargetClPPM(ctx context.Context, poolID string, value float64) error {
	return a.client.SetTargetClPPM(ctx, a.Token(), poolID, value)
}

func (a *Account) SetTargetElectrolysis(ctx context.Context, poolID string, value int) error {
	return a.client.SetTargetElectrolysis(ctx, a.Token(), poolID, value)
}
