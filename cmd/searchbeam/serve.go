package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/samzong/searchbeam/internal/auth"
	"github.com/samzong/searchbeam/internal/config"
	"github.com/samzong/searchbeam/internal/metrics"
	"github.com/samzong/searchbeam/internal/ratelimit"
	"github.com/samzong/searchbeam/internal/server"
	"github.com/samzong/searchbeam/internal/telegram"
)

const limiterCleanupInterval = 5 * time.Minute

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and optional Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := cfg.ValidateServer(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	m := metrics.New(nil)

	a, err := newApp(ctx, cfg, logger, m)
	if err != nil {
		return err
	}
	defer a.Close()

	limiter := ratelimit.New(ratelimit.Config{RequestsPerMinute: cfg.Server.RateLimitPerMinute})

	srv := server.New(server.Deps{
		Search:  a.search,
		Cache:   a.cache,
		Auth:    auth.New(cfg.Server.AuthTokens),
		Logger:  logger.Named("http"),
		History: a.history,
		Limiter: limiter,
		Metrics: m,
		Config: server.Config{
			Port:            cfg.Server.Port,
			CORSOrigins:     cfg.Server.CORSOrigins,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		},
	})

	var bot *telegram.Bot
	if cfg.TelegramEnabled() {
		bot, err = telegram.New(telegram.BotConfig{
			Token:             cfg.Telegram.Token,
			Debug:             cfg.Telegram.Debug,
			RequestsPerMinute: cfg.Server.RateLimitPerMinute,
			AllowedUsers:      cfg.Telegram.AllowedUsers,
			DefaultPlatform:   cfg.Telegram.DefaultPlatform,
		}, a.search, logger.Named("telegram"), m)
		if err != nil {
			return fmt.Errorf("create telegram bot: %w", err)
		}
	}

	m.SetKeysAvailable("youtube", a.pool.AvailableCount())

	logger.Info("starting searchbeam",
		zap.Int("port", cfg.Server.Port),
		zap.Int("api_keys", a.pool.TotalCount()),
		zap.Bool("history", cfg.HistoryEnabled()),
		zap.Bool("telegram", bot != nil),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.pool.Run(gctx)
		return nil
	})
	g.Go(func() error {
		limiter.Run(gctx, limiterCleanupInterval)
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if bot != nil {
		g.Go(func() error {
			return bot.Run(gctx)
		})
	}

	err = g.Wait()
	logger.Info("searchbeam stopped")
	return err
}
