package app

import (
	"context"
	"fmt"
	"net"

	"slackdb/internal/reconcile"
	"slackdb/pkg/api"
	"slackdb/pkg/config"
	"slackdb/pkg/kv"
	"slackdb/pkg/logger"
	"slackdb/pkg/materializer"
	"slackdb/pkg/substrate"
	"slackdb/pkg/telemetry"

	"github.com/valyala/fasthttp"
)

// App groups server state and components.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	sub      substrate.Substrate
	closeSub func() error
	store    *kv.Store
	handlers *api.Handlers

	srvFast         *fasthttp.Server
	ln              net.Listener // tests inject an in-memory listener
	reconcile       *reconcile.Manager
	reconcileCancel context.CancelFunc
	state           string
}

// New opens the substrate and bootstraps every configured server. It does
// not start the HTTP server; call Run for that.
func New(ctx context.Context, eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	cfg := eff.Config
	if cfg == nil {
		return nil, fmt.Errorf("no configuration")
	}
	telemetry.SetSlowThreshold(cfg.Telemetry.SlowThreshold.Duration())

	sub, closeSub, err := openSubstrate(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := kv.Open(ctx, sub, serverConfigs(cfg), storeOptions(cfg))
	if err != nil {
		_ = closeSub()
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		sub:       sub,
		closeSub:  closeSub,
		store:     store,
		handlers:  api.New(store, 0),
		state:     "initialized",
	}
	if cfg.Reconcile.Enabled {
		a.reconcile = reconcile.NewManager(cfg.Reconcile.Cron, store)
	}
	return a, nil
}

// Run starts the reconcile scheduler and the HTTP server, then blocks until
// ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	if a.reconcile != nil {
		a.reconcileCancel = a.reconcile.Start(ctx)
	} else {
		logger.Info("reconcile_disabled")
	}

	a.handlers.SetReady(true)
	errCh := a.startHTTP()
	a.state = "running"

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Store exposes the opened store.
func (a *App) Store() *kv.Store { return a.store }

func serverConfigs(cfg *config.Config) []kv.ServerConfig {
	out := make([]kv.ServerConfig, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		out = append(out, kv.ServerConfig{
			Name:       s.Name,
			BotUserID:  s.BotUserID,
			Supervisor: modelsChannel(s.Supervisor),
			Invitees:   append([]string(nil), s.Invitees...),
		})
	}
	return out
}

func storeOptions(cfg *config.Config) kv.Options {
	return kv.Options{
		WipeConcurrency: cfg.WipeConcurrency(),
		TieBreak:        materializer.TieBreak(cfg.Materializer.VotingTieBreak),
		PageSize:        cfg.Materializer.PageSize,
		MaxSearchPages:  cfg.Resolver.MaxPages,
	}
}
