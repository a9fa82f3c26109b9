package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/courier"
	"github.com/xraph/courier/api"
	"github.com/xraph/courier/store"
)

// ErrNotInitialized is returned by operations that need the engine before
// Init has succeeded.
var ErrNotInitialized = errors.New("extension: not initialized")

// Extension hosts a Courier engine and its admin API.
type Extension struct {
	config  Config
	store   store.Store
	opts    []courier.Option
	logger  *slog.Logger
	courier *courier.Courier
}

// New creates an extension. Init must be called before use.
func New(opts ...ExtOption) *Extension {
	e := &Extension{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Init migrates the store and builds the engine.
func (e *Extension) Init(ctx context.Context) error {
	if e.store == nil {
		return courier.ErrNoStore
	}

	if !e.config.DisableMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return fmt.Errorf("extension: migrate: %w", err)
		}
	}

	opts := append([]courier.Option{
		courier.WithStore(e.store),
		courier.WithLogger(e.logger),
		courier.WithConfig(e.config.Config),
	}, e.opts...)

	c, err := courier.New(opts...)
	if err != nil {
		return fmt.Errorf("extension: init: %w", err)
	}
	e.courier = c

	e.logger.InfoContext(ctx, "courier extension initialized",
		"base_path", e.config.prefix(),
		"routes", !e.config.DisableRoutes,
	)
	return nil
}

// Courier returns the engine, or nil before Init.
func (e *Extension) Courier() *courier.Courier { return e.courier }

// Prefix returns the configured URL prefix.
func (e *Extension) Prefix() string { return e.config.prefix() }

// Handler returns the admin API mounted under the prefix.
func (e *Extension) Handler() http.Handler {
	if e.courier == nil || e.config.DisableRoutes {
		return http.NotFoundHandler()
	}
	h := api.NewHandler(e.courier, e.logger)
	if p := e.config.prefix(); p != "" {
		return http.StripPrefix(p, h)
	}
	return h
}

// RegisterRoutes mounts the admin API on a Forge router under the prefix.
func (e *Extension) RegisterRoutes(router forge.Router, log forge.Logger) error {
	if e.courier == nil {
		return ErrNotInitialized
	}
	if e.config.DisableRoutes {
		return nil
	}
	api.NewForgeAPI(e.courier, log).RegisterRoutes(router.Group(e.config.prefix()))
	return nil
}

// Start begins the retry sweeper.
func (e *Extension) Start(ctx context.Context) error {
	if e.courier == nil {
		return ErrNotInitialized
	}
	e.courier.Start(ctx)
	return nil
}

// Stop stops the engine and closes the store.
func (e *Extension) Stop(ctx context.Context) error {
	if e.courier == nil {
		return ErrNotInitialized
	}
	stopErr := e.courier.Stop(ctx)
	closeErr := e.store.Close()
	return errors.Join(stopErr, closeErr)
}

// Health reports store connectivity.
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return courier.ErrNoStore
	}
	return e.store.Ping(ctx)
}
