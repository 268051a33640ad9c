package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/specialistvlad/biolockgo/internal/config"
	"github.com/specialistvlad/biolockgo/internal/ctxlog"
	"github.com/specialistvlad/biolockgo/internal/metrics"
	"github.com/specialistvlad/biolockgo/internal/plan"
	"github.com/specialistvlad/biolockgo/internal/procrun"
	"github.com/specialistvlad/biolockgo/internal/registry"
	"github.com/specialistvlad/biolockgo/internal/status"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	ctx        context.Context
	config     *Config
	model      *config.Model
	registry   *registry.Registry
	metrics    *metrics.Recorder
	store      status.Store
	runner     *procrun.Runner
	runID      string
	httpServer *http.Server

	mu   sync.RWMutex
	plan *plan.Plan
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger, registry and
// metrics. Configuration errors are fatal startup errors and panic.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, appConfig.ConfigPath)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	if err := model.Validate(); err != nil {
		panic(fmt.Errorf("invalid configuration: %w", err))
	}
	logger.Debug("Configuration loaded and translated into unified model.", "pipeline", model.Pipeline.Name)

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All stage modules registered.", "count", len(modules), "stages", reg.Len())

	for _, s := range model.Stages {
		if _, err := reg.Lookup(s.ID); err != nil {
			panic(fmt.Errorf("configured stage %q: %w", s.ID, err))
		}
	}

	return &App{
		outW:     outW,
		logger:   logger,
		ctx:      ctx,
		config:   appConfig,
		model:    model,
		registry: reg,
		metrics:  metrics.New(),
		store:    status.NewFS(),
		runner:   procrun.New(),
		runID:    uuid.NewString(),
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// RunID identifies this invocation in logs, summaries and notifications.
func (a *App) RunID() string {
	return a.runID
}

// Plan returns the plan of the current run, nil before it was built.
func (a *App) Plan() *plan.Plan {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.plan
}

func (a *App) setPlan(p *plan.Plan) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.plan = p
}
