package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/samzong/searchbeam/internal/cache"
	"github.com/samzong/searchbeam/internal/domain"
	"github.com/samzong/searchbeam/internal/keypool"
	"github.com/samzong/searchbeam/internal/metrics"
	"github.com/samzong/searchbeam/internal/repository"
	"github.com/samzong/searchbeam/internal/search"
)

const (
	MsgProcessingFailed     = "Search processing failed"
	MsgCredentialsExhausted = "All API keys have reached their quota limit, please try again later"
	MsgUpstreamFailed       = "Search request failed"

	DefaultMaxRetries = 3
	// NoRetries - одна попытка без ротации ключей
	NoRetries = -1

	historyTimeout = 5 * time.Second
)

type SearchService interface {
	Search(ctx context.Context, req domain.SearchRequest) *domain.SearchResponse
	Platforms() []string
	KeyStats() map[string]keypool.Stats
	// Wait дожидается фоновых записей в историю
	Wait()
}

// SearchConfig - нулевые поля получают значения по умолчанию,
// MaxRetries < 0 означает одну попытку.
type SearchConfig struct {
	MaxRetries      int
	DefaultPageSize int
	MaxPageSize     int
	SingleFlight    bool
}

type SearchServiceDeps struct {
	Providers []search.Provider
	Cache     *cache.ResponseCache
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Config    SearchConfig

	// опционально
	History repository.SearchLogRepository
}

type searchService struct {
	providers map[string]search.Provider
	platforms []string
	cache     *cache.ResponseCache
	history   repository.SearchLogRepository
	logger    *zap.Logger
	metrics   *metrics.Metrics
	config    SearchConfig

	inflight singleflight.Group
	pending  sync.WaitGroup
}

func NewSearchService(deps SearchServiceDeps) SearchService {
	switch {
	case deps.Config.MaxRetries == 0:
		deps.Config.MaxRetries = DefaultMaxRetries
	case deps.Config.MaxRetries < 0:
		deps.Config.MaxRetries = 0
	}
	if deps.Config.DefaultPageSize == 0 {
		deps.Config.DefaultPageSize = 10
	}
	if deps.Config.MaxPageSize == 0 {
		deps.Config.MaxPageSize = 50
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	providers := make(map[string]search.Provider, len(deps.Providers))
	platforms := make([]string, 0, len(deps.Providers))
	for _, p := range deps.Providers {
		if _, dup := providers[p.Platform()]; dup {
			continue
		}
		providers[p.Platform()] = p
		platforms = append(platforms, p.Platform())
	}
	sort.Strings(platforms)

	return &searchService{
		providers: providers,
		platforms: platforms,
		cache:     deps.Cache,
		history:   deps.History,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		config:    deps.Config,
	}
}

func (s *searchService) Platforms() []string {
	out := make([]string, len(s.platforms))
	copy(out, s.platforms)
	return out
}

func (s *searchService) KeyStats() map[string]keypool.Stats {
	stats := make(map[string]keypool.Stats, len(s.providers))
	for name, p := range s.providers {
		stats[name] = p.Keys().Stats()
	}
	return stats
}

func (s *searchService) Wait() {
	s.pending.Wait()
}

// Search никогда не возвращает ошибку: любой сбой превращается в ответ
// с заполненным Error и пустым списком.
func (s *searchService) Search(ctx context.Context, req domain.SearchRequest) (resp *domain.SearchResponse) {
	start := time.Now()
	cacheHit := false

	if s.metrics != nil {
		s.metrics.IncRequestsInFlight()
		defer s.metrics.DecRequestsInFlight()
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("search panicked",
				zap.String("platform", req.Platform),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			resp = s.errorResponse(req, domain.ErrProcessingFailed)
		}
		s.finish(req, resp, cacheHit, time.Since(start))
	}()

	provider, ok := s.providers[req.Platform]
	if !ok {
		return s.errorResponse(req, fmt.Errorf("%w: %s", domain.ErrUnsupportedPlatform, req.Platform))
	}

	req.ClampPageSize(s.config.DefaultPageSize, s.config.MaxPageSize)

	if cached, ok := s.cache.Get(req.Platform, req.Query, req.PageToken); ok {
		cacheHit = true
		if s.metrics != nil {
			s.metrics.RecordCacheHit()
		}
		s.logger.Debug("cache hit",
			zap.String("platform", req.Platform),
			zap.String("query", req.Query),
		)
		return cached
	}

	if s.metrics != nil {
		s.metrics.RecordCacheMiss()
	}

	if !s.config.SingleFlight {
		out, err := s.fetch(ctx, provider, req)
		if err != nil {
			return s.errorResponse(req, err)
		}
		return out
	}

	// общий запрос не зависит от отмены ctx первого вызывающего,
	// время ограничено таймаутом HTTP-клиента провайдера
	key := cache.Key(req.Platform, req.Query, req.PageToken)
	v, err, shared := s.inflight.Do(key, func() (any, error) {
		return s.fetch(context.WithoutCancel(ctx), provider, req)
	})
	if shared {
		s.logger.Debug("joined in-flight search", zap.String("key", key))
	}
	if err != nil {
		return s.errorResponse(req, err)
	}
	return v.(*domain.SearchResponse).Clone()
}

// fetch - цикл запрос/ротация ключа. Попыток не больше MaxRetries+1.
func (s *searchService) fetch(ctx context.Context, p search.Provider, req domain.SearchRequest) (*domain.SearchResponse, error) {
	keys := p.Keys()
	platform := p.Platform()

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if keys.AvailableCount() == 0 && keys.Recover() == 0 {
			s.logger.Warn("all api keys are limited",
				zap.String("platform", platform),
				zap.Int("total", keys.TotalCount()),
			)
			return nil, domain.ErrCredentialsExhausted
		}

		upstreamStart := time.Now()
		resp, err := p.Search(ctx, req)
		s.observeKeys(platform, keys)

		if err == nil {
			s.recordUpstream(platform, "ok", time.Since(upstreamStart))
			if resp == nil {
				resp = &domain.SearchResponse{}
			}
			if resp.Items == nil {
				resp.Items = []domain.SearchResultItem{}
			}
			if len(resp.Items) > 0 && !resp.Failed() {
				s.cache.Set(platform, req.Query, resp, req.PageToken)
			}
			return resp, nil
		}

		var qe *search.QuotaError
		switch {
		case errors.As(err, &qe):
			s.recordUpstream(platform, "quota", time.Since(upstreamStart))
			if s.metrics != nil {
				s.metrics.RecordQuotaHit(platform)
			}
			keys.MarkLimited(qe.Key)
			s.observeKeys(platform, keys)
			s.logger.Warn("api key quota exceeded, rotating",
				zap.String("platform", platform),
				zap.Stringer("key", qe.Key),
				zap.Int("attempt", attempt+1),
				zap.Int("available", keys.AvailableCount()),
			)
			continue

		case errors.Is(err, keypool.ErrExhausted):
			s.logger.Warn("no api key available", zap.String("platform", platform))
			return nil, fmt.Errorf("%w: %w", domain.ErrCredentialsExhausted, err)

		default:
			s.recordUpstream(platform, "error", time.Since(upstreamStart))
			s.logger.Error("upstream search failed",
				zap.String("platform", platform),
				zap.Error(err),
			)
			return nil, err
		}
	}

	s.logger.Warn("retry limit reached",
		zap.String("platform", platform),
		zap.Int("max_retries", s.config.MaxRetries),
	)
	return nil, fmt.Errorf("%w: retry limit reached", domain.ErrCredentialsExhausted)
}

// errorResponse - единственное место, где ошибка превращается в текст для клиента.
func (s *searchService) errorResponse(req domain.SearchRequest, err error) *domain.SearchResponse {
	return domain.ErrorResponse(s.errorMessage(req, err))
}

func (s *searchService) errorMessage(req domain.SearchRequest, err error) string {
	var ue *search.UpstreamError
	switch {
	case errors.Is(err, domain.ErrUnsupportedPlatform):
		return fmt.Sprintf("Unsupported platform: %s. Currently supported: %s",
			req.Platform, strings.Join(s.platforms, ", "))
	case errors.Is(err, domain.ErrCredentialsExhausted):
		return MsgCredentialsExhausted
	case errors.Is(err, domain.ErrProcessingFailed):
		return MsgProcessingFailed
	case errors.As(err, &ue):
		return ue.UserMessage()
	default:
		return MsgUpstreamFailed
	}
}

func (s *searchService) recordUpstream(platform, status string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordUpstreamRequest(platform, status, d)
	}
}

func (s *searchService) observeKeys(platform string, keys search.KeyPool) {
	if s.metrics != nil {
		s.metrics.SetKeysAvailable(platform, keys.AvailableCount())
	}
}

func (s *searchService) finish(req domain.SearchRequest, resp *domain.SearchResponse, cacheHit bool, d time.Duration) {
	outcome := "ok"
	switch {
	case resp.Failed():
		outcome = "error"
	case cacheHit:
		outcome = "cache_hit"
	}

	// платформа из запроса - пользовательский ввод, в label идут только известные
	platform := req.Platform
	if _, ok := s.providers[platform]; !ok {
		platform = "unsupported"
	}

	if s.metrics != nil {
		s.metrics.RecordSearch(platform, outcome)
		s.metrics.SetCacheEntries(s.cache.Len())
	}

	s.logger.Info("search done",
		zap.String("platform", platform),
		zap.Int("items", len(resp.Items)),
		zap.String("outcome", outcome),
		zap.Duration("duration", d),
	)

	if s.history == nil {
		return
	}

	rec := &domain.SearchRecord{
		Platform:    req.Platform,
		Query:       req.Query,
		PageToken:   req.PageToken,
		ResultCount: len(resp.Items),
		CacheHit:    cacheHit,
		Error:       resp.Error,
		Duration:    d,
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		if err := s.history.Create(ctx, rec); err != nil {
			s.logger.Warn("failed to save search record", zap.Error(err))
		}
	}()
}
