package poolstation

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/thatsimonsguy/poolstation-bridge/internal/model"
)

// ErrAuthentication is returned when poolstation.net rejects the token or the
// credentials. The service also returns it spuriously under load.
var ErrAuthentication = errors.New("poolstation: authentication failed")

// Client is everything the bridge needs from poolstation.net.
type Client interface {
	Login(ctx context.Context, email, password string) (string, error)
	ListPools(ctx context.Context, token string) ([]model.Pool, error)
	FetchPool(ctx context.Context, token, poolID string) (*model.Snapshot, error)

	SetTargetPH(ctx context.Context, token, poolID string, value float64) error
	SetTargetORP(ctx context.Context, token, poolID string, value int) error
	SetTargetClPPM(ctx context.Context, token, poolID string, value float64) error
	SetTargetElectrolysis(ctx context.Context, token, poolID string, value int) error
}

// ResponseError is a non-auth HTTP failure. Usually a server side timeout.
type ResponseError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("poolstation %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("poolstation %s: status %d", e.Op, e.StatusCode)
}

// ClientError means the request never produced a response.
type ClientError struct {
	Op  string
	Err error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("poolstation %s: %v", e.Op, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }

// Timeout reports whether the request was abandoned because it took too long.
func (e *ClientError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}
