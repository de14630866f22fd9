// Package server - HTTP API поверх диспетчера поиска.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/samzong/searchbeam/internal/auth"
	"github.com/samzong/searchbeam/internal/cache"
	"github.com/samzong/searchbeam/internal/metrics"
	"github.com/samzong/searchbeam/internal/ratelimit"
	"github.com/samzong/searchbeam/internal/repository"
	"github.com/samzong/searchbeam/internal/service"
)

type Config struct {
	Port            int
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

type Deps struct {
	Search service.SearchService
	Cache  *cache.ResponseCache
	Auth   *auth.Verifier
	Logger *zap.Logger
	Config Config

	// опционально
	History repository.SearchLogRepository
	Limiter *ratelimit.Limiter
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type Server struct {
	search  service.SearchService
	cache   *cache.ResponseCache
	auth    *auth.Verifier
	history repository.SearchLogRepository
	limiter *ratelimit.Limiter
	metrics *metrics.Metrics
	logger  *zap.Logger
	config  Config
	now     func() time.Time

	handler http.Handler
}

func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Config.ShutdownTimeout <= 0 {
		deps.Config.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		search:  deps.Search,
		cache:   deps.Cache,
		auth:    deps.Auth,
		history: deps.History,
		limiter: deps.Limiter,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		config:  deps.Config,
		now:     deps.Now,
	}

	s.handler = otelhttp.NewHandler(s.routes(), "searchbeam")
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(s.recoverPanics)

	if len(s.config.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.CORSOrigins,
			AllowedMethods: []string{"GET", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		if s.limiter != nil {
			r.Use(s.rateLimit)
		}

		r.Get("/search", s.handleSearch)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/keys", s.handleKeys)
			r.Delete("/cache", s.handleClearCache)
			r.Delete("/cache/{platform}", s.handleDeleteCacheEntry)
			r.Get("/history", s.handleHistory)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Route %s:%s not found", r.Method, r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run слушает порт до отмены ctx, затем плавно останавливается.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.Int("port", s.config.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
