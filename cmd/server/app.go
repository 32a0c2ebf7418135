package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/treatment-plan-assistant/internal/config"
	"github.com/treatment-plan-assistant/internal/database"
	"github.com/treatment-plan-assistant/internal/domain"
	"github.com/treatment-plan-assistant/internal/llm"
	"github.com/treatment-plan-assistant/internal/logging"
	"github.com/treatment-plan-assistant/internal/repository"
	"github.com/treatment-plan-assistant/internal/service"
	"github.com/treatment-plan-assistant/internal/telemetry"
	"github.com/treatment-plan-assistant/internal/validation"
	"github.com/treatment-plan-assistant/pkg/external"
)

// app holds the process-wide dependencies shared by every command
type app struct {
	config  *config.Manager
	logger  *logrus.Logger
	closers []func()
}

// pipeline is the wired analysis path
type pipeline struct {
	analyzer *service.AnalyzerService
	lookups  *external.ResilientLookupClient
}

func newApp(ctx context.Context, configFile string, needsModel bool) (*app, error) {
	manager, err := config.NewManager(configFile)
	if err != nil {
		return nil, err
	}
	if err := manager.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	if needsModel {
		if err := manager.ValidateLLM(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	logger, err := logging.New(manager.GetConfig().Logging)
	if err != nil {
		return nil, err
	}

	a := &app{config: manager, logger: logger}

	shutdown, err := telemetry.Setup(ctx, manager.GetConfig().Telemetry, logger)
	if err != nil {
		return nil, err
	}
	a.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.WithError(err).Warn("Telemetry shutdown failed")
		}
	})

	return a, nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// openStore connects the configured analysis store, creating the schema
// first when migrate is set.
func (a *app) openStore(ctx context.Context, migrate bool) (domain.AnalysisStore, error) {
	cfg := *a.config.GetDatabaseConfig()

	switch cfg.Driver {
	case "postgres":
		db, err := database.NewConnection(ctx, cfg, a.logger)
		if err != nil {
			return nil, err
		}
		a.onClose(db.Close)
		if migrate {
			if err := db.EnsureSchema(ctx); err != nil {
				return nil, err
			}
		}
		return repository.NewPostgresAnalysisRepository(db.Pool, a.logger), nil

	case "sqlite":
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath, a.logger)
		if err != nil {
			return nil, err
		}
		store := repository.NewSQLiteAnalysisRepository(db, a.logger)
		a.onClose(func() {
			if err := store.Close(); err != nil {
				a.logger.WithError(err).Warn("Closing SQLite store failed")
			}
		})
		if migrate {
			if err := database.EnsureSQLiteSchema(ctx, db, a.logger); err != nil {
				return nil, err
			}
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}

// buildPipeline wires lookups, the model client and the analyzer. A nil
// store disables persistence.
func (a *app) buildPipeline(store domain.AnalysisStore) (*pipeline, error) {
	cfg := a.config.GetConfig()

	cache, err := external.NewLookupCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("creating lookup cache: %w", err)
	}
	if cache != nil {
		a.onClose(func() {
			if err := cache.Close(); err != nil {
				a.logger.WithError(err).Warn("Closing lookup cache failed")
			}
		})
	}

	breakerConfig := external.DefaultCircuitBreakerConfig()
	if cfg.Cache.DefaultTTL > 0 {
		breakerConfig.CacheTTL = cfg.Cache.DefaultTTL
	}
	lookups := external.NewResilientLookupClient(
		external.NewRxNormClient(cfg.Lookup.RxNorm, a.logger),
		external.NewOpenFDAClient(cfg.Lookup.OpenFDA, a.logger),
		cache,
		breakerConfig,
		a.logger,
	)

	model, err := llm.NewClient(cfg.LLM, a.logger)
	if err != nil {
		return nil, err
	}

	enrichment := service.NewEnrichmentService(lookups, lookups, cfg.Lookup.Concurrency, a.logger)
	analyzer := service.NewAnalyzerService(validation.New(), enrichment, model, store, a.logger)

	return &pipeline{analyzer: analyzer, lookups: lookups}, nil
}
