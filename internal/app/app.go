// Package app wires the service graph. Everything is constructed once
// here and handed to its consumers; no package-level singletons.
package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calyptra/skillflow/internal/classifier"
	"github.com/calyptra/skillflow/internal/config"
	"github.com/calyptra/skillflow/internal/connection"
	"github.com/calyptra/skillflow/internal/engine"
	"github.com/calyptra/skillflow/internal/events"
	"github.com/calyptra/skillflow/internal/gateway"
	"github.com/calyptra/skillflow/internal/log"
	"github.com/calyptra/skillflow/internal/orchestrator"
	"github.com/calyptra/skillflow/internal/platform"
	"github.com/calyptra/skillflow/internal/store"
)

// App is the assembled service graph.
type App struct {
	Config       *config.Config
	Store        store.Store
	Platform     *platform.Client
	Gateways     *gateway.Manager
	Hooks        *gateway.Hooks
	Resolver     *connection.Resolver
	Engine       engine.Engine
	Classifier   *classifier.Classifier
	Orchestrator *orchestrator.Orchestrator
	Bus          *events.Bus
	Streams      *events.RunStreams

	pool *pgxpool.Pool
}

// New builds the full graph from configuration. With no database DSN
// configured the in-memory store backs everything, which keeps one-shot
// CLI runs working offline.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if cfg.DB.DSN != "" {
		pool, err := pgxpool.New(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, err
		}
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		a.pool = pool
		a.Store = pg
	} else {
		log.Warn("no database configured, using in-memory store")
		a.Store = store.NewMemoryStore()
	}

	a.Platform = platform.NewClient(cfg.Platform.BaseURL, cfg.Platform.APIKey)
	a.Gateways = gateway.NewManager(a.Platform, a.Store, a.Store, cfg.Platform.AccountID)
	a.Hooks = gateway.NewHooks(a.Gateways, a.Store)
	a.Resolver = connection.NewResolver(a.Store)
	a.Engine = engine.NewClaude(cfg.Engine.Command, cfg.Engine.Model, cfg.EngineTimeout())

	a.Bus = events.NewBus()
	a.Streams = events.NewRunStreams(a.Bus)

	a.Classifier = classifier.New(a.Store, a.Engine)
	a.Orchestrator = orchestrator.New(a.Resolver, a.Gateways, a.Engine, a.Bus, orchestrator.Options{
		StepDelay:   cfg.StepDelay(),
		WorkDirRoot: cfg.Orchestrator.WorkDirRoot,
	})

	return a, nil
}

// Close releases held resources.
func (a *App) Close() {
	if a.Streams != nil {
		a.Streams.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
