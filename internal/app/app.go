package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/specialistvlad/livebind/internal/ctxlog"
	"github.com/specialistvlad/livebind/internal/lifecycle"
	"github.com/specialistvlad/livebind/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	config   *Config

	mu     sync.Mutex
	engine *lifecycle.Engine
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// The rendered document goes to outW and logs to logW. Invalid native
// modules or libraries are programmer errors and panic.
func NewApp(outW, logW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All native modules registered.", "count", len(modules))

	if cfg.ModulesPath != "" {
		if err := reg.LoadLibrariesRecursively(ctx, cfg.ModulesPath); err != nil {
			panic(fmt.Errorf("failed to load declaration libraries: %w", err))
		}
	}

	if err := reg.ValidateRegistry(ctx); err != nil {
		panic(err)
	}
	logger.Debug("Registry validation passed.", "names", reg.Names())

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		config:   cfg,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Stats reports the running engine's counters; zero before Run starts.
func (a *App) Stats() lifecycle.Stats {
	a.mu.Lock()
	eng := a.engine
	a.mu.Unlock()
	if eng == nil {
		return lifecycle.Stats{}
	}
	return eng.Stats()
}
