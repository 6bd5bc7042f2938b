// Package app implements the application layer for vigil.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/vigilproject/vigil/internal/adapters/httpapi"
	"github.com/vigilproject/vigil/internal/adapters/probes"
	"github.com/vigilproject/vigil/internal/adapters/store"
	"github.com/vigilproject/vigil/internal/adapters/telemetry"
	"github.com/vigilproject/vigil/internal/core/domain"
	"github.com/vigilproject/vigil/internal/core/ports"
	"github.com/vigilproject/vigil/internal/engine/bus"
	"github.com/vigilproject/vigil/internal/engine/cache"
	"github.com/vigilproject/vigil/internal/engine/staleness"
	"github.com/vigilproject/vigil/internal/engine/warmup"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	resolver     ports.WatchResolver
	logger       ports.Logger
}

// New creates a new App instance.
func New(loader ports.ConfigLoader, resolver ports.WatchResolver, logger ports.Logger) *App {
	return &App{
		configLoader: loader,
		resolver:     resolver,
		logger:       logger,
	}
}

// ServeOptions configuration for the Serve method.
type ServeOptions struct {
	// Listen overrides the configured listen address when non-empty.
	Listen string
	// NoWarm skips the startup warm-up pass.
	NoWarm bool
}

// Serve runs the daemon: loads and validates configuration, builds the
// cache, bus, watcher, and HTTP server, warms the cache, and blocks until
// ctx is cancelled.
func (a *App) Serve(ctx context.Context, opts ServeOptions) error {
	cfg, err := a.configLoader.Load(".")
	if err != nil {
		return zerr.Wrap(err, "failed to load configuration")
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}

	setupOTel()
	tracer := telemetry.NewOTelTracer("vigil")

	entryStore, err := store.New(cfg.CachePath)
	if err != nil {
		return zerr.Wrap(err, "failed to open cache store")
	}

	eventBus := bus.New(cfg.RingSize, cfg.QueueSize)
	a.logger.Info(fmt.Sprintf("bus instance %s", eventBus.Instance()))

	registry := probes.NewRegistry(cfg, a.logger)
	facade := cache.New(cfg, entryStore, a.resolver, eventBus, tracer, a.logger)
	watcher := staleness.New(cfg, entryStore, a.resolver, eventBus, a.logger)
	server := httpapi.New(cfg.Listen, facade, eventBus, registry, a.logger)

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Run(groupCtx)
	})

	g.Go(func() error {
		if err := watcher.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		eventBus.RunHeartbeat(groupCtx, cfg.HeartbeatInterval)
		return nil
	})

	if !opts.NoWarm {
		g.Go(func() error {
			orchestrator := warmup.New(facade, eventBus, a.logger, cfg.WarmConcurrency)
			summary, err := orchestrator.Run(groupCtx, registry.Ordered())
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			if summary != nil {
				a.logger.Info(fmt.Sprintf(
					"warm-up done: %d computed, %d already valid, %d failed",
					len(summary.Computed), len(summary.AlreadyValid), len(summary.Failed),
				))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return zerr.Wrap(err, domain.ErrServeFailed.Error())
	}
	return nil
}

// setupOTel installs the SDK tracer provider so spans started through the
// global tracer are real recorded spans.
func setupOTel() {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
}
