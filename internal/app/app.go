package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/xipher-messenger/chatcore/internal/config"
	"github.com/xipher-messenger/chatcore/internal/core"
	"github.com/xipher-messenger/chatcore/internal/metrics"
	"github.com/xipher-messenger/chatcore/internal/router"
	"github.com/xipher-messenger/chatcore/internal/session"
	"github.com/xipher-messenger/chatcore/internal/store"
	"github.com/xipher-messenger/chatcore/internal/store/sqlite"
	"github.com/xipher-messenger/chatcore/internal/transport"
	transporthttp "github.com/xipher-messenger/chatcore/internal/transport/http"
	"github.com/xipher-messenger/chatcore/internal/transport/ws"
)

// App wires the session gate, both transports, the router and the
// conversation hub.
type App struct {
	gate    *session.Gate
	adapter *transport.Adapter
	router  *router.Router
	hub     *core.Hub
	cache   store.TimelineCache
	metrics *metrics.Metrics
	log     *zerolog.Logger
}

// New constructs the engine with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	clk := clock.New()
	m := metrics.New()

	var cache store.TimelineCache
	if cfg.CachePath != "" {
		st, err := sqlite.New(cfg.CachePath)
		if err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
		cache = st
		logger.Info().Str("cache_path", cfg.CachePath).Msg("timeline cache opened")
	}

	gate := session.NewGate(clk, logger)
	rest := transporthttp.NewClient(transporthttp.Options{
		BaseURL:        cfg.APIBaseURL,
		Timeout:        cfg.RequestTimeout,
		MaxRetries:     cfg.MaxRetries,
		RetryBaseDelay: cfg.RetryBaseDelay,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, gate, logger, m)
	rt := ws.NewClient(ws.Options{
		URL:           cfg.WSURL,
		ReconnectBase: cfg.WSReconnectBase,
		ReconnectMax:  cfg.WSReconnectMax,
		PingInterval:  cfg.WSPingInterval,
		AuthTimeout:   cfg.WSAuthTimeout,
	}, logger, m)
	adapter := transport.NewAdapter(rest, rt, gate, logger)

	deps := core.Deps{
		Gate:     gate,
		API:      adapter,
		Signaler: adapter,
		Clock:    clk,
		Logger:   logger,
		Metrics:  m,
	}
	if cache != nil {
		deps.Cache = cache
	}
	hub := core.NewHub(deps, core.Options{
		TypingCooldown:       cfg.TypingCooldown,
		TypingQuiet:          cfg.TypingQuiet,
		TypingDisplayTimeout: cfg.TypingDisplayTimeout,
		MaxUploadBytes:       cfg.MaxUploadBytes,
		RequestTimeout:       cfg.RequestTimeout,
	})

	return &App{
		gate:    gate,
		adapter: adapter,
		router:  router.New(gate.UserID, logger, m),
		hub:     hub,
		cache:   cache,
		metrics: m,
		log:     logger,
	}, nil
}

// Login installs a session and lets the realtime channel connect.
func (a *App) Login(token, userID, username string) error {
	if err := a.gate.Login(token, userID, username); err != nil {
		return err
	}
	a.log.Info().Str("user_id", a.gate.UserID()).Msg("signed in")
	return nil
}

// Logout ends the session, closes the open conversation and forgets the
// local cache.
func (a *App) Logout(ctx context.Context) error {
	a.gate.Logout()
	a.hub.Logout()
	if a.cache != nil {
		if err := a.cache.Purge(ctx); err != nil {
			return fmt.Errorf("purge cache: %w", err)
		}
	}
	a.log.Info().Msg("signed out")
	return nil
}

// Open makes a conversation active and returns it.
func (a *App) Open(conversationID, chatType string) *core.Conversation {
	return a.hub.Open(conversationID, chatType)
}

// Session exposes the session gate.
func (a *App) Session() *session.Gate {
	return a.gate
}

// API exposes the request/response transport for one-shot commands.
func (a *App) API() core.API {
	return a.adapter
}

// Metrics exposes the engine's metrics registry.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Run drives the realtime channel, the router and the hub until ctx is
// cancelled, then releases resources.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan core.Event, 64)
	errCh := make(chan error, 3)
	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}
	start("transport", a.adapter.Run)
	start("router", func(ctx context.Context) error {
		return a.router.Run(ctx, a.adapter.Frames(), events)
	})
	start("hub", func(ctx context.Context) error {
		return a.hub.Run(ctx, events)
	})

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
		a.log.Error().Err(err).Msg("engine component stopped")
	}
	cancel()
	wg.Wait()

	a.cleanup()
	return err
}

// cleanup closes the open conversation and the cache.
func (a *App) cleanup() {
	a.hub.CloseActive()
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close cache")
		} else {
			a.log.Info().Msg("cache closed")
		}
	}
}
