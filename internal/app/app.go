// Package app wires the generator, job store and orchestrator for a workspace.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"transcriptgen/internal/config"
	"transcriptgen/internal/db"
	"transcriptgen/internal/designer"
	"transcriptgen/internal/llm"
	"transcriptgen/internal/metrics"
	"transcriptgen/internal/migrate"
	"transcriptgen/internal/orchestrator"
	"transcriptgen/internal/pipeline"
	"transcriptgen/internal/store"
	"transcriptgen/internal/templates"
)

// App holds every long-lived component of a running workspace.
type App struct {
	Settings     config.Settings
	DB           *sql.DB
	Store        *store.Store
	Templates    *templates.Registry
	Model        *llm.Model
	Pipeline     *pipeline.Pipeline
	Orchestrator *orchestrator.Orchestrator
	Metrics      *metrics.Metrics
	Registry     *prometheus.Registry
	Logger       *slog.Logger
}

// Options override pieces of the default wiring.
type Options struct {
	// Engine replaces the local designer engine.
	Engine designer.Engine
}

// Open migrates the workspace database and builds the component graph.
func Open(ctx context.Context, s config.Settings, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := db.Open(db.Config{Workspace: s.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	reg, err := templates.Load()
	if err != nil {
		conn.Close()
		return nil, err
	}
	model, err := llm.NewModel(s.LLM.ModelConfig())
	if err != nil {
		conn.Close()
		return nil, err
	}
	if !model.Configured() {
		logger.Warn("llm api key not configured; generation requests will fail", "provider", s.LLM.Provider)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	engine := opts.Engine
	if engine == nil {
		engine = designer.NewLocal(model, s.LLM.Parallelism, s.LLM.Seed, logger.With("component", "designer"))
	}
	pipe := pipeline.New(engine, reg, logger.With("component", "pipeline"), m)
	st := store.New(conn)
	orch := orchestrator.New(st, pipe, s.MaxJobs, logger.With("component", "orchestrator"), m)

	return &App{
		Settings:     s,
		DB:           conn,
		Store:        st,
		Templates:    reg,
		Model:        model,
		Pipeline:     pipe,
		Orchestrator: orch,
		Metrics:      m,
		Registry:     promReg,
		Logger:       logger,
	}, nil
}

// Close waits for in-flight jobs until ctx ends, then closes the database.
func (a *App) Close(ctx context.Context) error {
	waitErr := a.Orchestrator.Wait(ctx)
	if err := a.DB.Close(); err != nil {
		return err
	}
	return waitErr
}
