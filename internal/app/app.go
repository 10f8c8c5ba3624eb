// Package app wires the profile loader, the feature-service provider, the
// coordinator and the status/metrics HTTP server into one runnable
// application.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vk/tracegridgo/internal/config"
	"github.com/vk/tracegridgo/internal/coordinator"
	"github.com/vk/tracegridgo/internal/ctxlog"
	"github.com/vk/tracegridgo/internal/metrics"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	profile  *config.Profile
	metrics  *metrics.Metrics
	registry *prometheus.Registry

	mu    sync.Mutex
	coord *coordinator.Coordinator
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and metrics
// registry.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	profile, err := loader.Load(ctx, appConfig.ProfilePath)
	if err != nil {
		// A failure to load the profile is a fatal startup error.
		panic(fmt.Errorf("failed to load profile: %w", err))
	}
	logger.Debug("Profile loaded and translated into unified model.",
		"service", profile.Service.URL, "network", profile.Network.Name, "traces", len(profile.Traces))

	registry := prometheus.NewRegistry()

	return &App{
		outW:     outW,
		logger:   logger,
		profile:  profile,
		metrics:  metrics.New(registry),
		registry: registry,
	}
}

// Profile returns the loaded profile model.
func (a *App) Profile() *config.Profile { return a.profile }

// setCoordinator publishes the coordinator to the status endpoint.
func (a *App) setCoordinator(c *coordinator.Coordinator) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.coord = c
}

// coordinatorRef returns the active coordinator, nil before Run built one.
func (a *App) coordinatorRef() *coordinator.Coordinator {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.coord
}
