package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/thatsimonsguy/poolstation-bridge/internal/model"
	"github.com/thatsimonsguy/poolstation-bridge/internal/poolstation"
)

const (
	DefaultUpdateInterval  = 60 * time.Second
	DefaultMaxAuthRetries  = 10
	DefaultRefreshCooldown = 10 * time.Second
)

// ErrAuthRequired means the retry budget is spent and the credentials need to
// be refreshed before this pool can be polled again.
var ErrAuthRequired = errors.New("re-authentication required")

type State int

const (
	StateReady State = iota
	StateEscalated
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateEscalated:
		return "escalated"
	default:
		return "unknown"
	}
}

// FetchFunc retrieves a complete snapshot for the coordinator's pool.
type FetchFunc func(ctx context.Context) (*model.Snapshot, error)

// Listener is called after every snapshot swap.
type Listener func(pool model.Pool, snap *model.Snapshot)

type EscalationHandler func(pool model.Pool, err error)

type Option func(*Coordinator)

func WithUpdateInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

func WithMaxAuthRetries(n int) Option {
	return func(c *Coordinator) {
		if n >= 0 {
			c.maxAuthRetries = n
		}
	}
}

// WithRefreshCooldown sets the minimum spacing between manual refreshes.
func WithRefreshCooldown(d time.Duration) Option {
	return func(c *Coordinator) {
		if d <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

func WithEscalationHandler(h EscalationHandler) Option {
	return func(c *Coordinator) {
		c.onEscalation = h
	}
}

func WithListener(l Listener) Option {
	return func(c *Coordinator) {
		c.listeners = append(c.listeners, l)
	}
}

// Coordinator keeps one pool's snapshot in sync with poolstation.net.
type Coordinator struct {
	pool           model.Pool
	fetch          FetchFunc
	interval       time.Duration
	maxAuthRetries int
	limiter        *rate.Limiter
	onEscalation   EscalationHandler

	snapshot atomic.Pointer[model.Snapshot]

	// refreshMu serializes refreshes and snapshot mutations for this pool.
	refreshMu sync.Mutex

	mu                sync.Mutex
	authRetries       int
	state             State
	ready             bool
	lastUpdateSuccess bool
	lastUpdate        time.Time

	listenersMu sync.RWMutex
	listeners   []Listener

	manual chan struct{}
}

func New(pool model.Pool, fetch FetchFunc, opts ...Option) *Coordinator {
	c := &Coordinator{
		pool:           pool,
		fetch:          fetch,
		interval:       DefaultUpdateInterval,
		maxAuthRetries: DefaultMaxAuthRetries,
		limiter:        rate.NewLimiter(rate.Every(DefaultRefreshCooldown), 1),
		manual:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.authRetries = c.maxAuthRetries
	return c
}

func (c *Coordinator) Pool() model.Pool { return c.pool }

func (c *Coordinator) Interval() time.Duration { return c.interval }

// Snapshot returns the last successfully fetched state, or nil before the
// first success. The returned value must not be modified.
func (c *Coordinator) Snapshot() *model.Snapshot {
	return c.snapshot.Load()
}

func (c *Coordinator) Budget() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authRetries
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *Coordinator) LastUpdateSuccess() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUpdateSuccess
}

func (c *Coordinator) LastUpdate() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUpdate
}

func (c *Coordinator) AddListener(l Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, l)
}

// FirstRefresh runs the initial refresh. Entities must not be registered
// until it has returned.
func (c *Coordinator) FirstRefresh(ctx context.Context) error {
	err := c.Refresh(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()
	return nil
}

// Refresh fetches a new snapshot and classifies any failure.
//
// Transient response errors and authentication errors within the retry budget
// are absorbed and leave the previous snapshot in place. Once the budget is
// exhausted the next authentication error escalates and every later call
// returns ErrAuthRequired until ResetAuth is called. The escalation handler
// runs after the refresh lock is released.
func (c *Coordinator) Refresh(ctx context.Context) error {
	escalated, err := c.refresh(ctx)
	if escalated && c.onEscalation != nil {
		c.onEscalation(c.pool, err)
	}
	return err
}

func (c *Coordinator) refresh(ctx context.Context) (bool, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if c.State() == StateEscalated {
		return false, fmt.Errorf("pool %s: %w", c.pool.Alias, ErrAuthRequired)
	}

	log.Debug().
		Str("pool", c.pool.Alias).
		Int("auth_retries", c.Budget()).
		Msg("Starting data update")

	snap, err := c.fetch(ctx)
	if err == nil {
		if snap == nil {
			snap = &model.Snapshot{}
		}
		now := time.Now()
		if snap.FetchedAt.IsZero() {
			snap.FetchedAt = now
		}
		c.mu.Lock()
		c.authRetries = c.maxAuthRetries
		c.lastUpdateSuccess = true
		c.lastUpdate = now
		c.mu.Unlock()

		c.publish(snap)

		log.Debug().
			Str("pool", c.pool.Alias).
			Msg("Successfully updated pool data")
		return false, nil
	}

	switch {
	case isTransient(err):
		log.Warn().
			Err(err).
			Str("pool", c.pool.Alias).
			Int("auth_retries", c.Budget()).
			Msg("Ignoring transient error while retrieving pool data")
		return false, nil

	case errors.Is(err, poolstation.ErrAuthentication):
		return c.handleAuthError(err)

	default:
		c.mu.Lock()
		c.lastUpdateSuccess = false
		c.mu.Unlock()
		return false, fmt.Errorf("refresh pool %s: %w", c.pool.Alias, err)
	}
}

// handleAuthError spends one retry. It reports true only for the call that
// moves the coordinator into StateEscalated.
func (c *Coordinator) handleAuthError(err error) (bool, error) {
	c.mu.Lock()
	if c.authRetries > 0 {
		c.authRetries--
		remaining := c.authRetries
		c.mu.Unlock()

		log.Warn().
			Err(err).
			Str("pool", c.pool.Alias).
			Int("auth_retries", remaining).
			Msg("Ignoring authentication error")
		return false, nil
	}
	c.state = StateEscalated
	c.lastUpdateSuccess = false
	c.mu.Unlock()

	log.Warn().
		Err(err).
		Str("pool", c.pool.Alias).
		Msg("Max auth retries reached, re-authentication required")

	return true, fmt.Errorf("pool %s: %w: %w", c.pool.Alias, ErrAuthRequired, err)
}

// ResetAuth restores the full retry budget after new credentials have been
// installed.
func (c *Coordinator) ResetAuth() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authRetries = c.maxAuthRetries
	c.state = StateReady
}

// ApplyUpdate publishes a modified copy of the current snapshot. Used after a
// target was changed on the controller.
func (c *Coordinator) ApplyUpdate(fn func(*model.Snapshot)) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	next := c.snapshot.Load().Clone()
	if next == nil {
		next = &model.Snapshot{}
	}
	fn(next)
	c.publish(next)
}

func (c *Coordinator) publish(snap *model.Snapshot) {
	c.snapshot.Store(snap)

	c.listenersMu.RLock()
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.listenersMu.RUnlock()

	for _, l := range listeners {
		l(c.pool, snap)
	}
}

func isTransient(err error) bool {
	var re *poolstation.ResponseError
	if errors.As(err, &re) {
		return true
	}
	var ce *poolstation.ClientError
	return errors.As(err, &ce) && ce.Timeout()
}
