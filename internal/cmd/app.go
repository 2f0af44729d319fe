package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/runger/clipfix/internal/cache"
	"github.com/runger/clipfix/internal/classify"
	"github.com/runger/clipfix/internal/config"
	"github.com/runger/clipfix/internal/format"
	"github.com/runger/clipfix/internal/knowledge"
	"github.com/runger/clipfix/internal/lang"
	"github.com/runger/clipfix/internal/metrics"
	"github.com/runger/clipfix/internal/pipeline"
	"github.com/runger/clipfix/internal/provider"
	"github.com/runger/clipfix/internal/repair"
	"github.com/runger/clipfix/internal/sanitize"
	"github.com/runger/clipfix/internal/storage"
)

// appOptions are the per-invocation settings that do not live in config.
type appOptions struct {
	Override lang.Language
	RunID    string
	Logger   *slog.Logger
}

// app holds every component of one clipfix run.
type app struct {
	cfg        *config.Config
	paths      *config.Paths
	logger     *slog.Logger
	profiles   *knowledge.Store
	formatters *format.Registry
	backends   *provider.Registry
	backend    *provider.Guarded // nil when generative features are off
	store      *storage.SQLiteStore
	recorder   *metrics.Recorder
	cache      *cache.Cache
	engine     *pipeline.Engine
}

func newApp(cfg *config.Config, opts appOptions) (*app, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Settle everything that can fail on bad input before opening the store
	// and starting the metrics writer.
	order, err := cfg.SignalOrder()
	if err != nil {
		return nil, err
	}
	defaultLang, _ := lang.Parse(cfg.Classify.DefaultLanguage)

	a := &app{
		cfg:    cfg,
		paths:  config.ForConfig(cfg),
		logger: logger,
	}

	knowledgeDir := cfg.Knowledge.Dir
	if knowledgeDir == "" {
		knowledgeDir = a.paths.KnowledgeDir()
	}
	a.profiles = knowledge.NewStore(knowledgeDir, logger)

	formatters, err := format.NewDefaultRegistry(format.RegistryConfig{
		Logger:  logger,
		Timeout: cfg.FormatTimeout(),
	}, cfg.Formatters)
	if err != nil {
		return nil, fmt.Errorf("failed to set up formatters: %w", err)
	}
	a.formatters = formatters

	a.backends = provider.NewDefaultRegistry(provider.Config{
		Provider:      cfg.AI.Provider,
		Model:         cfg.AI.Model,
		ClaudeBinary:  cfg.AI.ClaudeBinary,
		OpenAIBaseURL: cfg.AI.BaseURL,
		Logger:        logger,
	})
	if cfg.AI.Enabled {
		b, err := a.backends.Best()
		if err != nil {
			logger.Info("generative features unavailable", "error", err)
		} else {
			a.backend = provider.Guard(b, provider.NewBreaker(&provider.BreakerConfig{
				Threshold: cfg.AI.BreakerThreshold,
				Cooldown:  time.Duration(cfg.AI.BreakerCooldownS) * time.Second,
				Logger:    logger,
			}))
			logger.Debug("using generative backend", "backend", provider.ModelOf(b))
		}
	}

	if cfg.Cache.Persist {
		store, err := storage.NewSQLiteStore(a.paths.CacheDatabase())
		if err != nil {
			logger.Warn("persistent cache disabled", "path", a.paths.CacheDatabase(), "error", err)
		} else {
			a.store = store
		}
	}

	var sink metrics.Sink
	if a.store != nil {
		sink = a.store
	}
	a.recorder = metrics.NewRecorder(metrics.Config{Sink: sink, Logger: logger})

	if cfg.Cache.Enabled {
		cc := cache.Config{
			MaxEntries: cfg.Cache.MaxEntries,
			TTL:        cfg.CacheTTL(),
			Logger:     logger,
		}
		if a.store != nil {
			cc.Store = a.store
		}
		a.cache = cache.New(cc)
	}

	classifySanitizer := sanitize.Default
	if !cfg.Privacy.SanitizeClassification {
		classifySanitizer = sanitize.NewWithPatterns(nil)
	}

	classifyCfg := classify.Config{
		DefaultLanguage: defaultLang,
		SignalOrder:     order,
		Override:        opts.Override,
		Sanitizer:       classifySanitizer,
		Timeout:         cfg.ClassifyTimeout(),
		Logger:          logger,
	}
	if a.backend != nil && cfg.Classify.AllowModel {
		classifyCfg.Backend = a.backend
		classifyCfg.AllowModel = true
	}

	var repairer *repair.Router
	if a.backend != nil {
		repairer = repair.NewRouter(repair.Config{
			Profiles:  a.profiles,
			Backend:   a.backend,
			Timeout:   cfg.AITimeout(),
			MaxTokens: cfg.AI.MaxOutputTokens,
			Recorder:  a.recorder,
			RunID:     opts.RunID,
			Redact:    cfg.Privacy.RedactRepairs,
			Logger:    logger,
		})
	}

	a.engine = pipeline.NewEngine(pipeline.EngineConfig{
		Classifier: classify.New(classifyCfg),
		Orchestrator: pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
			Profiles:     a.profiles,
			Formatters:   a.formatters,
			Repairer:     repairer,
			Cache:        a.cache,
			CacheRepairs: cfg.Cache.IncludeRepairs,
			Annotate:     cfg.Formatting.AnnotateFailures,
			Logger:       logger,
		}),
		Executor: pipeline.NewExecutor(pipeline.ExecutorConfig{
			Enabled:     cfg.Parallel.Enabled,
			MinSegments: cfg.Parallel.MinSegments,
			MaxWorkers:  cfg.Parallel.MaxWorkers,
			Logger:      logger,
		}),
		Cache:              a.cache,
		AllowRepair:        repairer != nil,
		FormatInterstitial: cfg.Formatting.FormatInterstitial,
		RunID:              opts.RunID,
		Logger:             logger,
	})

	return a, nil
}

// prune trims the persistent cache tier to its entry bound.
func (a *app) prune(ctx context.Context) {
	if a.cache == nil || a.store == nil {
		return
	}
	removed, err := a.cache.Prune(ctx)
	if err != nil {
		a.logger.Warn("failed to prune cache", "error", err)
		return
	}
	if removed > 0 {
		a.logger.Debug("pruned cache", "removed", removed)
	}
}

// Close flushes pending metrics and closes the store.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.recorder != nil {
		if err := a.recorder.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush metrics: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
