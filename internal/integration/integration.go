package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thatsimonsguy/poolstation-bridge/db"
	"github.com/thatsimonsguy/poolstation-bridge/internal/coordinator"
	"github.com/thatsimonsguy/poolstation-bridge/internal/entity"
	"github.com/thatsimonsguy/poolstation-bridge/internal/model"
	"github.com/thatsimonsguy/poolstation-bridge/internal/notifications"
	"github.com/thatsimonsguy/poolstation-bridge/internal/poolstation"
)

var (
	// ErrNotReady means poolstation.net could not be reached. Setup may be
	// retried later.
	ErrNotReady = errors.New("poolstation not ready")

	// ErrAuthFailed means the stored credentials were rejected. Retrying will
	// not help until they are replaced.
	ErrAuthFailed = errors.New("poolstation authentication failed")
)

type Deps struct {
	Client   poolstation.Client
	DB       *sql.DB
	Notifier *notifications.Notifier

	CoordinatorOptions []coordinator.Option
	// Listeners are attached to every coordinator.
	Listeners []coordinator.Listener
}

// Pool is one registered pool with its coordinator and bound entities.
type Pool struct {
	Info        model.Pool
	Coordinator *coordinator.Coordinator
	Points      []entity.Point
}

// Integration is the registry for one config entry.
type Integration struct {
	deps    Deps
	entryID string
	account *poolstation.Account
	history *historyRecorder

	mu    sync.RWMutex
	pools map[string]*Pool

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Setup lists the account's pools, performs a first refresh for each and
// registers the resulting coordinators and entities. When it fails with
// ErrAuthFailed the entry has already been flagged and the user notified.
func Setup(ctx context.Context, deps Deps, entry *model.ConfigEntry) (*Integration, error) {
	in := &Integration{
		deps:    deps,
		entryID: entry.ID,
		account: poolstation.NewAccount(deps.Client, entry.Token),
		history: &historyRecorder{conn: deps.DB, last: map[string]time.Time{}},
		pools:   map[string]*Pool{},
	}

	if err := in.setup(ctx, entry); err != nil {
		if errors.Is(err, ErrAuthFailed) {
			in.requireReauth("Poolstation login failed",
				fmt.Sprintf("Stored credentials were rejected: %v. Update them with the debug tool and restart.", err))
		}
		return nil, err
	}
	return in, nil
}

func (in *Integration) setup(ctx context.Context, entry *model.ConfigEntry) error {
	pools, err := in.account.ListPools(ctx)
	if errors.Is(err, poolstation.ErrAuthentication) {
		log.Info().Str("email", entry.Email).Msg("Stored token rejected, logging in again")
		if err := in.login(ctx, entry.Email, entry.Password); err != nil {
			return err
		}
		if err := db.UpdateEntryToken(in.deps.DB, entry.ID, in.account.Token()); err != nil {
			return fmt.Errorf("persist token: %w", err)
		}
		pools, err = in.account.ListPools(ctx)
	}
	if err != nil {
		if errors.Is(err, poolstation.ErrAuthentication) {
			return fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}
		return fmt.Errorf("%w: list pools: %w", ErrNotReady, err)
	}

	for _, p := range pools {
		c := in.newCoordinator(p)
		if err := c.FirstRefresh(ctx); err != nil {
			if errors.Is(err, coordinator.ErrAuthRequired) {
				return fmt.Errorf("%w: %w", ErrAuthFailed, err)
			}
			return fmt.Errorf("%w: %w", ErrNotReady, err)
		}
		in.mu.Lock()
		in.pools[p.ID] = &Pool{
			Info:        p,
			Coordinator: c,
			Points:      entity.Build(c, in.account),
		}
		in.mu.Unlock()
		log.Info().
			Str("pool", p.Alias).
			Str("pool_id", p.ID).
			Msg("Pool registered")
	}

	log.Info().
		Str("entry_id", entry.ID).
		Int("pools", len(pools)).
		Msg("Poolstation integration set up")
	return nil
}

// login exchanges credentials for a token. Rejected credentials, including the
// 500 poolstation.net answers them with, fail with ErrAuthFailed. Anything
// else is treated as connectivity.
func (in *Integration) login(ctx context.Context, email, password string) error {
	_, err := in.account.Login(ctx, email, password)
	if err == nil {
		return nil
	}
	var re *poolstation.ResponseError
	if errors.Is(err, poolstation.ErrAuthentication) || errors.As(err, &re) {
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	return fmt.Errorf("%w: login: %w", ErrNotReady, err)
}

func (in *Integration) newCoordinator(p model.Pool) *coordinator.Coordinator {
	poolID := p.ID
	fetch := func(ctx context.Context) (*model.Snapshot, error) {
		return in.account.FetchPool(ctx, poolID)
	}

	opts := append([]coordinator.Option{}, in.deps.CoordinatorOptions...)
	opts = append(opts,
		coordinator.WithEscalationHandler(in.onEscalation),
		coordinator.WithListener(in.history.record),
	)
	for _, l := range in.deps.Listeners {
		opts = append(opts, coordinator.WithListener(l))
	}
	return coordinator.New(p, fetch, opts...)
}

func (in *Integration) onEscalation(pool model.Pool, err error) {
	// a pool escalating during its first refresh fails Setup, which reports it
	if _, ok := in.Pool(pool.ID); !ok {
		log.Debug().Err(err).Str("pool", pool.Alias).Msg("Escalated before registration")
		return
	}

	log.Error().
		Err(err).
		Str("pool", pool.Alias).
		Msg("Poolstation credentials need to be refreshed")

	in.requireReauth("Poolstation re-authentication required",
		fmt.Sprintf("%s stopped updating: %v. Re-authenticate via POST /api/reauth.", pool.Alias, err))
}

// requireReauth flags the entry for re-authentication and notifies the user.
func (in *Integration) requireReauth(title, msg string) {
	if dbErr := db.SetReauthRequired(in.deps.DB, in.entryID, true); dbErr != nil {
		log.Error().Err(dbErr).Msg("Failed to flag entry for re-authentication")
	}

	if in.deps.Notifier.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if nErr := in.deps.Notifier.Send(ctx, title, msg); nErr != nil {
			log.Warn().Err(nErr).Msg("Failed to send re-authentication notification")
		}
	}
}

// Reauthenticate logs in with new credentials, stores them and brings every
// escalated coordinator back to a full retry budget.
func (in *Integration) Reauthenticate(ctx context.Context, email, password string) error {
	if err := in.login(ctx, email, password); err != nil {
		return err
	}
	if err := db.UpdateEntryCredentials(in.deps.DB, in.entryID, email, password, in.account.Token()); err != nil {
		return fmt.Errorf("persist credentials: %w", err)
	}
	log.Info().Str("email", email).Msg("Re-authenticated with poolstation.net")

	in.reload(ctx)
	return nil
}

func (in *Integration) reload(ctx context.Context) {
	for _, p := range in.Pools() {
		p.Coordinator.ResetAuth()
		if err := p.Coordinator.Refresh(ctx); err != nil {
			log.Warn().Err(err).Str("pool", p.Info.Alias).Msg("Refresh after reload failed")
		}
	}
}

// Pools returns the registered pools ordered by alias.
func (in *Integration) Pools() []*Pool {
	in.mu.RLock()
	defer in.mu.RUnlock()

	out := make([]*Pool, 0, len(in.pools))
	for _, p := range in.pools {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Info.Alias == out[j].Info.Alias {
			return out[i].Info.ID < out[j].Info.ID
		}
		return out[i].Info.Alias < out[j].Info.Alias
	})
	return out
}

func (in *Integration) Pool(id string) (*Pool, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	p, ok := in.pools[id]
	return p, ok
}

// Run drives every coordinator until ctx is cancelled or Unload is called.
func (in *Integration) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	in.runMu.Lock()
	if in.cancel != nil {
		in.runMu.Unlock()
		cancel()
		return errors.New("integration already running")
	}
	in.cancel = cancel
	in.done = done
	in.runMu.Unlock()

	defer func() {
		cancel()
		close(done)
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range in.Pools() {
		c := p.Coordinator
		g.Go(func() error {
			c.Run(gctx)
			return nil
		})
	}
	return g.Wait()
}

// Unload stops the run loops and empties the registry.
func (in *Integration) Unload() {
	in.runMu.Lock()
	cancel, done := in.cancel, in.done
	in.cancel, in.done = nil, nil
	in.runMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	in.mu.Lock()
	in.pools = map[string]*Pool{}
	in.mu.Unlock()

	log.Info().Str("entry_id", in.entryID).Msg("Poolstation integration unloaded")
}

// historyRecorder appends fetched snapshots to the readings table. Snapshots
// republished after a target change carry the same fetch time and are skipped.
type historyRecorder struct {
	conn *sql.DB

	mu   sync.Mutex
	last map[string]time.Time
}

func (h *historyRecorder) record(pool model.Pool, snap *model.Snapshot) {
	// a target change before the first successful fetch is not a reading
	if h.conn == nil || snap == nil || snap.FetchedAt.IsZero() {
		return
	}
	h.mu.Lock()
	if prev, ok := h.last[pool.ID]; ok && prev.Equal(snap.FetchedAt) {
		h.mu.Unlock()
		return
	}
	h.last[pool.ID] = snap.FetchedAt
	h.mu.Unlock()

	if err := db.InsertReading(h.conn, pool.ID, snap); err != nil {
		log.Warn().Err(err).Str("pool", pool.Alias).Msg("Failed to store reading")
	}
}
