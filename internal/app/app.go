// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package app builds the long-lived collaborators of a deep-research
// process once at startup and tears them down at shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/internal/metrics"
	"github.com/pdiddy/deep-research/internal/orchestrator"
	"github.com/pdiddy/deep-research/internal/progress"
	"github.com/pdiddy/deep-research/internal/research"
	"github.com/pdiddy/deep-research/internal/search"
	"github.com/pdiddy/deep-research/internal/store"
	"github.com/pdiddy/deep-research/pkg/types"
)

// App holds the process-wide services. Fields are read-only after New.
type App struct {
	Config       types.Config
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	Search       *search.Aggregator
	LLM          *llm.Client
	Store        *store.Store
	Feed         *progress.Feed
	Orchestrator *orchestrator.Service
}

// Options selects which optional parts New builds.
type Options struct {
	// Orchestrator configures the language model and starts the task
	// store and worker pool. Commands that only search leave it off.
	Orchestrator bool

	// Recover reconciles tasks left behind by an earlier process.
	Recover bool
}

// New wires every collaborator from cfg. On error, whatever was already
// opened is closed.
func New(ctx context.Context, cfg types.Config, logger *zap.Logger, opts Options) (a *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a = &App{Config: cfg, Logger: logger, Metrics: metrics.New()}
	defer func() {
		if err != nil {
			a.Close(context.Background())
			a = nil
		}
	}()

	hc := &http.Client{Timeout: cfg.Search.Timeout}
	backends := search.NewBackends(cfg.Search, hc, logger.Named("search"))
	if len(backends) == 0 {
		return a, errors.New("no search backends enabled")
	}
	a.Search = search.NewAggregator(backends, cfg.Search, logger.Named("search"),
		search.WithRecorder(a.Metrics),
		search.WithFetcher(search.NewHTTPFetcher(hc, cfg.Search)))

	if !opts.Orchestrator {
		return a, nil
	}

	a.LLM, err = llm.New(cfg.LLM, &http.Client{}, logger.Named("llm"), a.Metrics)
	if err != nil {
		return a, fmt.Errorf("configuring language model: %w", err)
	}

	a.Store, err = store.NewStore(cfg.Store)
	if err != nil {
		return a, fmt.Errorf("opening task store: %w", err)
	}

	orchOpts := []orchestrator.Option{orchestrator.WithRecorder(a.Metrics)}
	if cfg.Progress.RedisAddr != "" {
		a.Feed, err = progress.Dial(ctx, cfg.Progress, logger.Named("progress"))
		if err != nil {
			return a, err
		}
		orchOpts = append(orchOpts, orchestrator.WithPublisher(a.Feed))
	}

	a.Orchestrator = orchestrator.New(cfg.Orchestrator, a.Store, a.NewStrategy,
		logger.Named("orchestrator"), orchOpts...)
	a.Orchestrator.Start()

	if opts.Recover {
		if _, _, err := a.Orchestrator.Recover(ctx); err != nil {
			logger.Warn("task recovery failed", zap.Error(err))
		}
	}
	return a, nil
}

// NewStrategy builds strategy id over the shared aggregator and model,
// reporting progress through fn. It is the orchestrator's factory.
func (a *App) NewStrategy(id research.ID, fn research.ProgressFunc) (research.Strategy, error) {
	return research.New(id, research.Deps{
		Search:   a.Search,
		LLM:      a.LLM,
		Config:   a.Config.Research,
		Progress: fn,
		Logger:   a.Logger.Named("research"),
	})
}

// DefaultStrategy returns the configured default, or the built-in one
// when the setting is invalid.
func (a *App) DefaultStrategy() research.ID {
	id, err := research.ParseID(a.Config.Research.DefaultStrategy)
	if err != nil {
		a.Logger.Warn("invalid default strategy, using built-in",
			zap.String("configured", a.Config.Research.DefaultStrategy),
			zap.String("using", string(research.Default)))
		return research.Default
	}
	return id
}

// Close stops the orchestrator, waiting for running tasks until ctx ends,
// and releases the store and feed.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Orchestrator != nil {
		if err := a.Orchestrator.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Feed != nil {
		if err := a.Feed.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing progress feed: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing task store: %w", err))
		}
	}
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}
