package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thatsimonsguy/poolstation-bridge/db"
	"github.com/thatsimonsguy/poolstation-bridge/internal/api"
	"github.com/thatsimonsguy/poolstation-bridge/internal/config"
	"github.com/thatsimonsguy/poolstation-bridge/internal/coordinator"
	"github.com/thatsimonsguy/poolstation-bridge/internal/datadog"
	"github.com/thatsimonsguy/poolstation-bridge/internal/integration"
	"github.com/thatsimonsguy/poolstation-bridge/internal/logging"
	"github.com/thatsimonsguy/poolstation-bridge/internal/metrics"
	"github.com/thatsimonsguy/poolstation-bridge/internal/model"
	"github.com/thatsimonsguy/poolstation-bridge/internal/notifications"
	"github.com/thatsimonsguy/poolstation-bridge/internal/poolstation"
	"github.com/thatsimonsguy/poolstation-bridge/system/shutdown"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("db", cfg.DBPath).
		Str("entry_id", cfg.EntryID).
		Msg("Starting poolstation bridge")

	conn, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	shutdown.OnShutdown(func() { conn.Close() })

	entry, err := db.GetEntry(conn, cfg.EntryID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config entry")
	}
	if entry.ReauthRequired {
		log.Warn().Msg("Config entry is flagged for re-authentication, trying stored credentials anyway")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	shutdown.OnShutdown(stop)

	hub := api.NewHub()
	notifier := notifications.New("", cfg.NtfyTopic)

	deps := integration.Deps{
		Client:   poolstation.NewHTTPClient(cfg.PoolstationURL, cfg.HTTPTimeout()),
		DB:       conn,
		Notifier: notifier,
		CoordinatorOptions: []coordinator.Option{
			coordinator.WithUpdateInterval(cfg.UpdateInterval()),
			coordinator.WithMaxAuthRetries(*cfg.MaxAuthRetries),
			coordinator.WithRefreshCooldown(cfg.RefreshCooldown()),
		},
		Listeners: []coordinator.Listener{hub.Publish},
	}

	if cfg.EnableDatadog {
		reporter, err := datadog.New(cfg.DDAgentAddr, cfg.DDNamespace, cfg.DDTags)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		} else {
			deps.Listeners = append(deps.Listeners, reporter.Record)
		}
	}

	integ, err := setup(ctx, deps, entry, cfg.SetupMaxElapsed())
	if err != nil {
		shutdown.ShutdownWithError(err, "Poolstation integration setup failed")
	}

	shutdown.OnShutdown(integ.Unload)

	server := api.NewServer(integ, hub, promhttp.HandlerFor(metrics.NewRegistry(integ), promhttp.HandlerOpts{}))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return integ.Run(gctx)
	})
	g.Go(func() error {
		return server.Start(gctx, cfg.APIPort)
	})

	if err := g.Wait(); err != nil {
		shutdown.ShutdownWithError(err, "Bridge stopped with error")
	}
	log.Info().Msg("Shutdown signal received")
	shutdown.Shutdown()
}

// setup retries integration setup while poolstation.net is unreachable.
// Rejected credentials stop the retries immediately.
func setup(ctx context.Context, deps integration.Deps, entry *model.ConfigEntry, maxElapsed time.Duration) (*integration.Integration, error) {
	return backoff.Retry(ctx, func() (*integration.Integration, error) {
		in, err := integration.Setup(ctx, deps, entry)
		if errors.Is(err, integration.ErrAuthFailed) {
			return nil, backoff.Permanent(err)
		}
		return in, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Dur("retry_in", next).Msg("Poolstation not ready, retrying setup")
		}),
	)
}
