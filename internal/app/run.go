package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/tracegridgo/internal/config"
	"github.com/vk/tracegridgo/internal/coordinator"
	"github.com/vk/tracegridgo/internal/ctxlog"
	"github.com/vk/tracegridgo/internal/provider/featureserver"
	"github.com/vk/tracegridgo/internal/provider/jobfeed"
)

// Run executes the main application logic based on the provided configuration.
func (a *App) Run(ctx context.Context, appConfig *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if appConfig.HealthcheckPort > 0 {
		go a.startHealthcheckServer(appConfig.HealthcheckPort)
	}

	traces, err := a.selectTraces(appConfig.TraceName)
	if err != nil {
		return err
	}

	provider := a.buildProvider()
	coord := coordinator.New(provider, coordinator.Options{
		Start:   a.profile.Network.Start,
		Flags:   mergedFlags(traces),
		Metrics: a.metrics,
	})
	a.setCoordinator(coord)

	a.logger.Info("🚀 Starting load chain...", "service", a.profile.Service.URL, "network", a.profile.Network.Name)
	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("load chain failed: %w", err)
	}
	a.logger.Info("Coordinator ready.", "status", coord.Status().Message)

	var failed int
	for _, trace := range traces {
		if err := a.runTrace(ctx, coord, trace); err != nil {
			failed++
		}
	}

	a.logger.Info("🏁 Execution finished.", "traces", len(traces), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d trace operations failed", failed, len(traces))
	}
	return nil
}

// runTrace drives one named trace block through the coordinator.
func (a *App) runTrace(ctx context.Context, coord *coordinator.Coordinator, trace *config.Trace) error {
	logger := a.logger.With("trace", trace.Name)
	logger.Info("▶️ Running trace operation", "category", trace.Category, "targets", len(trace.Targets))

	result, err := coord.RunQuery(ctx, coordinator.QueryParams{
		Category: trace.Category,
		Targets:  trace.Targets,
	})
	if err != nil {
		logger.Error("Trace operation failed.", "error", err, "status", coord.Status().Message)
		return err
	}

	for key, features := range result.Groups {
		logger.Info("Group selection complete.", "group", key, "features", len(features))
	}
	for _, key := range result.Skipped {
		logger.Debug("Group had no local target, skipped.", "group", key)
	}
	for _, serr := range result.Errors {
		var sub *coordinator.SubRequestError
		if errors.As(serr, &sub) {
			logger.Warn("Group fetch failed, siblings unaffected.", "group", sub.Group, "error", sub.Err)
		}
	}

	logger.Info("✅ Trace operation complete.", "operation", result.OperationID, "status", coord.Status().Message)
	return nil
}

// buildProvider assembles the provider chain from the profile's service
// block: a plain HTTP client, wrapped by the job feed when one is configured.
func (a *App) buildProvider() coordinator.Provider {
	client := featureserver.NewClient(featureserver.Options{
		BaseURL: a.profile.Service.URL,
		Token:   a.profile.Service.Token,
		Timeout: a.profile.Service.Timeout,
	})

	feed := a.profile.Service.Feed
	if feed == nil {
		return client
	}

	a.logger.Debug("Trace submission goes through the job feed.", "feed", feed.URL)
	return jobfeed.New(client, client, jobfeed.Options{
		URL:       feed.URL,
		Namespace: feed.Namespace,
		Event:     feed.Event,
		Timeout:   feed.Timeout,
	})
}

// selectTraces resolves the requested trace block name, or all blocks when
// none was named.
func (a *App) selectTraces(name string) ([]*config.Trace, error) {
	if name == "" {
		return a.profile.Traces, nil
	}
	trace, ok := a.profile.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("profile defines no trace block named %q", name)
	}
	return []*config.Trace{trace}, nil
}

// mergedFlags folds the flags of every selected trace block into the
// coordinator's derived configuration. Later blocks win on conflicts.
func mergedFlags(traces []*config.Trace) map[string]bool {
	merged := make(map[string]bool)
	for _, t := range traces {
		for k, v := range t.Flags {
			merged[k] = v
		}
	}
	return merged
}
