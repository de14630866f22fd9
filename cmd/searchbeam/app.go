package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/samzong/searchbeam/internal/cache"
	"github.com/samzong/searchbeam/internal/cache/memory"
	"github.com/samzong/searchbeam/internal/config"
	"github.com/samzong/searchbeam/internal/keypool"
	"github.com/samzong/searchbeam/internal/metrics"
	"github.com/samzong/searchbeam/internal/repository"
	"github.com/samzong/searchbeam/internal/repository/postgres"
	"github.com/samzong/searchbeam/internal/search"
	"github.com/samzong/searchbeam/internal/search/youtube"
	"github.com/samzong/searchbeam/internal/service"
)

// app - собранные зависимости, общие для serve и search
type app struct {
	pool    *keypool.Pool
	cache   *cache.ResponseCache
	search  service.SearchService
	history repository.SearchLogRepository
	db      *postgres.DB
	metrics *metrics.Metrics
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*app, error) {
	a := &app{metrics: m}

	a.pool = keypool.New(cfg.YouTube.APIKeys, keypool.Config{
		Cooldown:         cfg.Keys.Cooldown,
		RecoveryInterval: cfg.Keys.RecoveryInterval,
	}, logger.Named("keypool"))

	yt := youtube.New(youtube.Config{
		BaseURL:      cfg.YouTube.BaseURL,
		Timeout:      cfg.YouTube.Timeout,
		RateLimit:    cfg.YouTube.RateLimit,
		FetchDetails: cfg.YouTube.FetchDetails,
	}, a.pool, logger.Named("youtube"))

	a.cache = cache.New(memory.Config{
		MaxItems: cfg.Cache.MaxItems,
		TTL:      cfg.Cache.TTL,
	})

	if cfg.HistoryEnabled() {
		db, err := postgres.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		a.db = db
		a.history = postgres.NewSearchLogRepo(db)
		logger.Info("search history enabled")
	}

	a.search = service.NewSearchService(service.SearchServiceDeps{
		Providers: []search.Provider{yt},
		Cache:     a.cache,
		History:   a.history,
		Logger:    logger.Named("search"),
		Metrics:   m,
		Config: service.SearchConfig{
			MaxRetries:      serviceMaxRetries(cfg.Search.MaxRetries),
			DefaultPageSize: cfg.Search.DefaultPageSize,
			MaxPageSize:     cfg.Search.MaxPageSize,
			SingleFlight:    cfg.Search.SingleFlight,
		},
	})

	return a, nil
}

// SEARCH_MAX_RETRIES=0 - явная одна попытка, у сервиса ноль означает значение по умолчанию
func serviceMaxRetries(n int) int {
	if n == 0 {
		return service.NoRetries
	}
	return n
}

func (a *app) Close() {
	a.search.Wait()
	if a.db != nil {
		a.db.Close()
	}
}
