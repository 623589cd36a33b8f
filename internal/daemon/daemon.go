// Package daemon wires the tracker, dispatcher, services, and store
// into the long-running background process.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/etches/etches/internal/config"
	"github.com/etches/etches/internal/dispatch"
	"github.com/etches/etches/internal/nowplaying"
	"github.com/etches/etches/internal/service"
	"github.com/etches/etches/internal/store"
	"github.com/etches/etches/internal/tracker"
	"github.com/etches/etches/pkg/lastfm"
)

// probeInterval is how often cookie-session services are re-validated
// against the remote API while the daemon runs.
const probeInterval = 15 * time.Minute

// logRetention bounds the local scrobble history.
const logRetention = 90 * 24 * time.Hour

// restorer is implemented by services that can rehydrate persisted
// credentials on startup.
type restorer interface {
	Restore(ctx context.Context) error
}

// prober is implemented by services whose sessions can silently expire
// and need periodic revalidation.
type prober interface {
	Probe(ctx context.Context) error
}

// Daemon coordinates the playback tracker, scrobble dispatch, and
// persistence.
type Daemon struct {
	cfg        *config.Config
	store      *store.Store
	registry   *nowplaying.Registry
	dispatcher *dispatch.Dispatcher
	tracker    *tracker.Tracker
	services   []service.Service
	logger     zerolog.Logger
}

// New creates a Daemon instance from the loaded configuration.
func New(cfg *config.Config, st *store.Store, logger zerolog.Logger) (*Daemon, error) {
	services, err := BuildServices(cfg, st, nil, nil, logger)
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("no services enabled; run 'etches auth' first")
	}

	registry := nowplaying.NewRegistry(
		nowplaying.NewMusicSource(),
		nowplaying.NewSpotifySource(),
	)
	src, err := registry.Lookup(cfg.Player)
	if err != nil {
		return nil, err
	}

	dispatcher := dispatch.New(logger, services...)

	tr := tracker.New(tracker.Config{
		Source:       src,
		Dispatcher:   dispatcher,
		PollInterval: cfg.PollDuration(),
		Logger:       logger,
	})

	return &Daemon{
		cfg:        cfg,
		store:      st,
		registry:   registry,
		dispatcher: dispatcher,
		tracker:    tr,
		services:   services,
		logger:     logger.With().Str("component", "daemon").Logger(),
	}, nil
}

// BuildServices constructs the scrobble services enabled in cfg. The
// authorizer and browser collaborators may be nil for processes that
// only restore existing credentials and never run the interactive
// handshake.
func BuildServices(cfg *config.Config, st *store.Store, authorizer service.Authorizer, browser service.Browser, logger zerolog.Logger) ([]service.Service, error) {
	var services []service.Service

	for _, id := range cfg.EnabledServices {
		switch id {
		case "lastfm":
			if cfg.LastFM.APIKey == "" || cfg.LastFM.APISecret == "" {
				return nil, fmt.Errorf("lastfm enabled but api_key/api_secret not configured")
			}
			client, err := lastfm.NewClient(lastfm.Config{
				APIKey:    cfg.LastFM.APIKey,
				APISecret: cfg.LastFM.APISecret,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create lastfm client: %w", err)
			}
			services = append(services, service.NewSessionKeyService(client, service.SessionKeyConfig{
				ID:          "lastfm",
				Name:        "Last.fm",
				SettleDelay: cfg.SettleDelay(),
				Authorizer:  authorizer,
				Store:       st,
				Logger:      logger,
			}))

		case "custom":
			if cfg.Custom.BaseURL == "" {
				return nil, fmt.Errorf("custom service enabled but base_url not configured")
			}
			svc, err := service.NewOAuthCookieService(service.OAuthCookieConfig{
				ID:           "custom",
				Name:         cfg.Custom.Name,
				BaseURL:      cfg.Custom.BaseURL,
				ClientID:     cfg.Custom.ClientID,
				ClientSecret: cfg.Custom.ClientSecret,
				Browser:      browser,
				Store:        st,
				Logger:       logger,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create custom service: %w", err)
			}
			services = append(services, svc)

		default:
			return nil, fmt.Errorf("unknown service %q in enabled_services", id)
		}
	}

	return services, nil
}

// Run starts the daemon and blocks until a shutdown signal is received
func (d *Daemon) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Handle first signal gracefully, second signal forces exit
	go func() {
		<-sigChan
		d.logger.Info().Msg("Shutdown signal received, initiating graceful shutdown")
		cancel()

		// Second signal forces exit
		<-sigChan
		d.logger.Warn().Msg("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()

	if err := d.run(ctx); err != nil && err != context.Canceled {
		return err
	}

	return nil
}

// run is the main daemon loop
func (d *Daemon) run(ctx context.Context) error {
	d.logger.Info().Msg("Starting daemon")

	d.restoreServices(ctx)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.tracker.Run(ctx); err != nil && err != context.Canceled {
			d.logger.Error().Err(err).Msg("Tracker error")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.consumeEvents(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.probeServices(ctx)
	}()

	wg.Wait()

	d.logger.Info().Msg("Daemon stopped")
	return nil
}

// restoreServices rehydrates persisted credentials. A service that
// fails to restore stays unauthenticated and is skipped by dispatch;
// the daemon keeps running for the rest.
func (d *Daemon) restoreServices(ctx context.Context) {
	for _, svc := range d.services {
		r, ok := svc.(restorer)
		if !ok {
			continue
		}
		if err := r.Restore(ctx); err != nil {
			d.logger.Warn().Err(err).Str("service", svc.ID()).Msg("Failed to restore credentials")
			continue
		}
		if svc.IsAuthenticated() {
			d.logger.Info().Str("service", svc.ID()).Msg("Restored credentials")
		} else {
			d.logger.Warn().Str("service", svc.ID()).Msg("Service not authenticated; run 'etches auth'")
		}
	}
}

// consumeEvents records tracker events in the local scrobble log.
func (d *Daemon) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-d.tracker.Events():
			if e.Type != tracker.EventScrobbled || e.Outcome == nil {
				continue
			}

			entry := store.LogEntry{
				Artist:         e.Track.Artist,
				Track:          e.Track.Title,
				Album:          e.Track.Album,
				Timestamp:      e.At,
				ServicesOK:     e.Outcome.Succeeded,
				ServicesFailed: e.Outcome.FailedIDs(),
			}
			if _, err := d.store.AppendLog(ctx, entry); err != nil {
				d.logger.Error().Err(err).Msg("Failed to record scrobble")
			}
		}
	}
}

// probeServices periodically revalidates cookie-session services so a
// remotely revoked session is noticed without waiting for a dispatch
// to fail.
func (d *Daemon) probeServices(ctx context.Context) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, svc := range d.services {
				p, ok := svc.(prober)
				if !ok || !svc.IsAuthenticated() {
					continue
				}
				if err := p.Probe(ctx); err != nil {
					d.logger.Warn().Err(err).Str("service", svc.ID()).Msg("Session probe failed")
				}
			}
		}
	}
}

// Shutdown runs final housekeeping after the main loop exits.
func (d *Daemon) Shutdown() error {
	d.logger.Info().Msg("Shutting down daemon")

	ctx := context.Background()
	if n, err := d.store.Cleanup(ctx, logRetention); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to clean up scrobble log")
	} else if n > 0 {
		d.logger.Info().Int64("removed", n).Msg("Cleaned up scrobble log")
	}

	return nil
}
