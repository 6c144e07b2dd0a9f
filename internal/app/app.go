// Package app wires the process together: config, logging, the two
// independent per-domain store pools, the secret store, the discovery
// worker pool, the engine, and the gin router, then runs the HTTP server
// with graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/discovery-engine/internal/api"
	"github.com/ExclusiveAccount/discovery-engine/internal/config"
	"github.com/ExclusiveAccount/discovery-engine/internal/engine"
	"github.com/ExclusiveAccount/discovery-engine/internal/logging"
	"github.com/ExclusiveAccount/discovery-engine/internal/secretstore"
	"github.com/ExclusiveAccount/discovery-engine/internal/store"
	"github.com/ExclusiveAccount/discovery-engine/internal/transport"
)

// App holds every long-lived resource the serve command owns.
type App struct {
	cfg config.Config
	log *logrus.Logger

	requestStore   *store.Store
	discoveryStore *store.Store

	pool   *transport.Pool
	router *api.Router
	server *http.Server
}

// New constructs the app from cfg but starts nothing yet.
func New(cfg config.Config) (*App, error) {
	log := logging.New(cfg.Log.Level, cfg.Log.File)

	secrets, err := secretstore.New(cfg.Encryption.Key)
	if err != nil {
		return nil, fmt.Errorf("app: secret store: %w", err)
	}

	// Each domain owns an independent connection pool (spec §5, §9): a
	// blocking discovery worker must never be able to starve the
	// request domain's pool.
	requestStore, err := store.Open(cfg.Database.Path, cfg.Database.MaxConnections)
	if err != nil {
		return nil, fmt.Errorf("app: request-domain store: %w", err)
	}
	discoveryStore, err := store.Open(cfg.Database.Path, cfg.Database.MaxConnections)
	if err != nil {
		return nil, fmt.Errorf("app: discovery-domain store: %w", err)
	}

	eng := engine.New(discoveryStore, secrets, engine.Limits{
		MinCIDRPrefix:    cfg.Discovery.CIDR.MinPrefix,
		AllowLargeCIDR:   cfg.Discovery.CIDR.AllowLarge,
		StageConcurrency: cfg.Discovery.Stage.MaxConcurrency,
		LivenessTimeout:  cfg.Discovery.Timeouts.Liveness,
		PortTimeout:      cfg.Discovery.Timeouts.Port,
		SSHTimeout:       cfg.Discovery.Timeouts.SSH,
	}, log)

	pool := transport.NewPool(eng, cfg.Discovery.WorkerCount(), log)
	proxy := transport.NewProxy(pool, cfg.Discovery.Timeouts.SSH+time.Second)

	router := api.NewRouter(proxy, requestStore.Profiles, log, ownerFromHeader)

	return &App{
		cfg:            cfg,
		log:            log,
		requestStore:   requestStore,
		discoveryStore: discoveryStore,
		pool:           pool,
		router:         router,
		server: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
	}, nil
}

// Migrate runs AutoMigrate against both store pools. Exposed separately so
// the `migrate` CLI subcommand can run it without starting the server.
func (a *App) Migrate() error {
	if err := a.requestStore.AutoMigrate(); err != nil {
		return err
	}
	return a.discoveryStore.AutoMigrate()
}

// Run starts the HTTP server and blocks until ctx is cancelled (typically
// by an interrupt signal), then drains connections and shuts the worker
// pool down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", a.server.Addr).Info("discoveryd: listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("discoveryd: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Error("discoveryd: server shutdown error")
	}
	a.pool.Shutdown()

	if err := a.requestStore.Close(); err != nil {
		a.log.WithError(err).Error("discoveryd: closing request-domain store")
	}
	if err := a.discoveryStore.Close(); err != nil {
		a.log.WithError(err).Error("discoveryd: closing discovery-domain store")
	}
	return nil
}
