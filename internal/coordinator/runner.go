package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Run refreshes on every tick and on manual requests until ctx is cancelled.
// Refreshes never overlap.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	log.Info().
		Str("pool", c.pool.Alias).
		Dur("interval", c.interval).
		Msg("Starting pool refresh loop")

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("pool", c.pool.Alias).Msg("Stopping pool refresh loop")
			return
		case <-ticker.C:
		case <-c.manual:
		}

		err := c.Refresh(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrAuthRequired):
			log.Debug().Err(err).Str("pool", c.pool.Alias).Msg("Skipping refresh until re-authenticated")
		case ctx.Err() != nil:
			return
		default:
			log.Error().Err(err).Str("pool", c.pool.Alias).Msg("Error fetching pool data")
		}
	}
}

// RequestRefresh asks the run loop for an immediate refresh. It returns false
// when the request was debounced.
func (c *Coordinator) RequestRefresh() bool {
	if !c.limiter.Allow() {
		return false
	}
	select {
	case c.manual <- struct{}{}:
	default:
	}
	return true
}
