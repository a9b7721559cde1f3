package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/BroWo1/factcheck-backend/internal/analysis"
	"github.com/BroWo1/factcheck-backend/internal/api"
	"github.com/BroWo1/factcheck-backend/internal/api/handlers"
	"github.com/BroWo1/factcheck-backend/internal/cache"
	"github.com/BroWo1/factcheck-backend/internal/cache/memory"
	"github.com/BroWo1/factcheck-backend/internal/cache/redis"
	"github.com/BroWo1/factcheck-backend/internal/crawler"
	"github.com/BroWo1/factcheck-backend/internal/llm"
	"github.com/BroWo1/factcheck-backend/internal/metrics"
	"github.com/BroWo1/factcheck-backend/internal/notify"
	"github.com/BroWo1/factcheck-backend/internal/search/web"
	"github.com/BroWo1/factcheck-backend/internal/storage/sqlite"
	"github.com/BroWo1/factcheck-backend/internal/worker"
	"github.com/BroWo1/factcheck-backend/pkg/config"
	"github.com/BroWo1/factcheck-backend/pkg/logger"
)

var _ analysis.Store = (*sqlite.Client)(nil)

// App owns every long-lived component of the service.
type App struct {
	Config       *config.Config
	Store        *sqlite.Client
	Orchestrator *analysis.Orchestrator
	Hub          *notify.Hub
	Pool         *worker.Pool

	redis *redis.Client
}

// New connects storage and collaborators and builds the orchestrator. The
// worker pool is created but not started.
func New(cfg *config.Config) (*App, error) {
	metrics.Init()

	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	store, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite client: %w", err)
	}
	if err := store.InitSchema(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	a := &App{Config: cfg, Store: store, Hub: notify.NewHub(0)}

	guard := analysis.SessionGuard(analysis.NewLocalGuard())
	var resultCache cache.Cache
	if cfg.Redis.Enabled {
		a.redis, err = redis.NewClient(cfg.Redis)
		if err != nil {
			store.Close()
			return nil, err
		}
		resultCache = a.redis
		guard = analysis.ChainGuards(guard, a.redis)
	} else {
		resultCache = memory.New(cacheTTL(cfg), 10*time.Minute)
	}

	analyst := llm.NewAnalyst(llm.NewClient(cfg.LLM))
	collab := analysis.Collaborators{
		Claims:     analyst,
		Web:        analyst,
		Research:   analyst,
		Summarizer: analyst,
		Crawlers:   crawler.NewFactory(cfg.Crawler),
	}
	if cfg.Search.Enabled {
		collab.Search = web.NewClient(cfg.Search, resultCache, cacheTTL(cfg))
	} else {
		logger.Warn("Web search disabled; traditional runs will fail at source search")
	}

	a.Orchestrator = analysis.NewOrchestrator(store, collab, analysis.Config{
		FanOutLimit:      cfg.Analysis.FanOutLimit,
		StepTimeout:      cfg.Analysis.StepTimeout(),
		ResultsPerQuery:  cfg.Search.ResultsPerQuery,
		MaxQueries:       cfg.Search.MaxQueries,
		MaxSearchResults: cfg.Search.MaxResults,
		MaxCrawlPages:    cfg.Crawler.MaxPages,
	}, analysis.WithNotifier(a.Hub), analysis.WithGuard(guard))

	a.Pool = worker.NewPool(cfg.Analysis.Workers, cfg.Analysis.QueueSize, a.runSession)

	logger.Info("Application initialized",
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("search", cfg.Search.Enabled),
		zap.Int("workers", cfg.Analysis.Workers),
	)

	return a, nil
}

func (a *App) runSession(ctx context.Context, sessionID string) error {
	_, err := a.Orchestrator.Run(ctx, sessionID)
	return err
}

// Server builds the HTTP surface backed by this app.
func (a *App) Server() *fiber.App {
	checks := map[string]handlers.Pinger{"sqlite": a.Store}
	if a.redis != nil {
		checks["redis"] = a.redis
	}

	return api.NewServer(api.Deps{
		Server:    a.Config.Server,
		Storage:   a.Config.Storage,
		Store:     a.Store,
		Queue:     a.Pool,
		Hub:       a.Hub,
		Checks:    checks,
		AccessLog: true,
	})
}

// Close drains the worker pool and releases connections.
func (a *App) Close(ctx context.Context) {
	if err := a.Pool.Shutdown(ctx); err != nil {
		logger.Warn("Worker pool did not drain", zap.Error(err))
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn("Failed to close redis", zap.Error(err))
		}
	}
	if err := a.Store.Close(); err != nil {
		logger.Warn("Failed to close SQLite", zap.Error(err))
	}
}

func cacheTTL(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Redis.CacheTTLSec) * time.Second
}
