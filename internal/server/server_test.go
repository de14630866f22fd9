package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/samzong/searchbeam/internal/auth"
	"github.com/samzong/searchbeam/internal/cache"
	"github.com/samzong/searchbeam/internal/cache/memory"
	"github.com/samzong/searchbeam/internal/domain"
	"github.com/samzong/searchbeam/internal/keypool"
	"github.com/samzong/searchbeam/internal/metrics"
	"github.com/samzong/searchbeam/internal/ratelimit"
	"github.com/samzong/searchbeam/internal/repository"
	"github.com/samzong/searchbeam/internal/search"
	"github.com/samzong/searchbeam/internal/search/mock"
	"github.com/samzong/searchbeam/internal/service"
)

const (
	token   = "test-token"
	apiKeyA = "AIzaSyAAAAAAAAAAAAAAA"
)

type testEnv struct {
	srv      *Server
	provider *mock.Provider
	cache    *cache.ResponseCache
	history  *repository.MockSearchLogRepository
	svc      service.SearchService
}

type envOption func(*Deps)

func newEnv(t *testing.T, provider *mock.Provider, opts ...envOption) *testEnv {
	t.Helper()

	c := cache.New(memory.Config{})
	history := repository.NewMockSearchLogRepository()
	svc := service.NewSearchService(service.SearchServiceDeps{
		Providers: []search.Provider{provider},
		Cache:     c,
		History:   history,
		Logger:    zap.NewNop(),
		Config:    service.SearchConfig{MaxRetries: service.DefaultMaxRetries},
	})
	t.Cleanup(svc.Wait)

	deps := Deps{
		Search:  svc,
		Cache:   c,
		Auth:    auth.New([]string{token}),
		History: history,
		Metrics: metrics.New(prometheus.NewRegistry()),
		Logger:  zap.NewNop(),
		Now:     func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &testEnv{
		srv:      New(deps),
		provider: provider,
		cache:    c,
		history:  history,
		svc:      svc,
	}
}

func (e *testEnv) do(t *testing.T, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, r)
	return rec
}

func bearer() map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	env := newEnv(t, mock.New("youtube", apiKeyA))

	rec := env.do(t, "GET", "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "2025-03-01T12:00:00Z", body["timestamp"])
}

func TestSearch_Auth(t *testing.T) {
	env := newEnv(t, mock.New("youtube", apiKeyA).WithItems(mock.Items("youtube", 2)))

	tests := []struct {
		name       string
		target     string
		header     map[string]string
		wantStatus int
		wantMsg    string
	}{
		{"missing token", "/search?platform=youtube&q=cats", nil, http.StatusUnauthorized, "Missing authentication token"},
		{"invalid token", "/search?platform=youtube&q=cats&token=nope", nil, http.StatusUnauthorized, "Invalid authentication token"},
		{"invalid bearer", "/search?platform=youtube&q=cats", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized, "Invalid authentication token"},
		{"bearer ok", "/search?platform=youtube&q=cats", bearer(), http.StatusOK, ""},
		{"query token ok", "/search?platform=youtube&q=cats&token=" + token, nil, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "GET", tt.target, tt.header)
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantMsg != "" {
				var body errorBody
				decode(t, rec, &body)
				assert.Equal(t, http.StatusUnauthorized, body.StatusCode)
				assert.Equal(t, "Unauthorized", body.Error)
				assert.Equal(t, tt.wantMsg, body.Message)
			}
		})
	}
}

func TestSearch_Success(t *testing.T) {
	env := newEnv(t, mock.New("youtube", apiKeyA).
		WithItems(mock.Items("youtube", 3)).
		WithNextPageToken("NEXT"))

	rec := env.do(t, "GET", "/search?platform=youtube&q=cats&maxResults=3", bearer())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Items []struct {
			VideoID      string `json:"videoId"`
			VideoURL     string `json:"videoUrl"`
			Title        string `json:"title"`
			ThumbnailURL string `json:"thumbnailUrl"`
			Platform     string `json:"platform"`
		} `json:"items"`
		NextPageToken string `json:"nextPageToken"`
		TotalResults  *int   `json:"totalResults"`
		Error         string `json:"error"`
	}
	decode(t, rec, &body)

	assert.Len(t, body.Items, 3)
	assert.Equal(t, "vid001", body.Items[0].VideoID)
	assert.Equal(t, "youtube", body.Items[0].Platform)
	assert.Equal(t, "NEXT", body.NextPageToken)
	assert.Empty(t, body.Error)
	assert.Equal(t, 3, env.provider.LastRequest.MaxResults)
}

func TestSearch_BadRequests(t *testing.T) {
	env := newEnv(t, mock.New("youtube", apiKeyA).WithItems(mock.Items("youtube", 1)))

	tests := []struct {
		name    string
		target  string
		wantMsg string
	}{
		{"missing platform", "/search?q=cats", "querystring must have required property 'platform'"},
		{"missing q", "/search?platform=youtube", "querystring must have required property 'q'"},
		{"blank q", "/search?platform=youtube&q=%20%20", "Query must not be empty"},
		{"bad maxResults", "/search?platform=youtube&q=cats&maxResults=ten", "querystring/maxResults must be number"},
		{"too long", "/search?platform=youtube&q=" + strings.Repeat("a", domain.MaxQueryLength+1), "Query is too long, max 500 characters"},
		{"unsupported platform", "/search?platform=vimeo&q=cats", "Unsupported platform: vimeo. Currently supported: youtube"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "GET", tt.target, bearer())

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var body errorBody
			decode(t, rec, &body)
			assert.Equal(t, 400, body.StatusCode)
			assert.Equal(t, "Bad Request", body.Error)
			assert.Equal(t, tt.wantMsg, body.Message)
		})
	}
	assert.Zero(t, env.provider.Calls())
}

func TestSearch_ExhaustedIsBadRequest(t *testing.T) {
	env := newEnv(t, mock.New("youtube", apiKeyA).WithAllQuota())

	rec := env.do(t, "GET", "/search?platform=youtube&q=cats", bearer())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	decode(t, rec, &body)
	assert.Equal(t, service.MsgCredentialsExhausted, body.Message)
	assert.NotContains(t, rec.Body.String(), apiKeyA)
}

type panicService struct{ service.SearchService }

func (panicService) Search(context.Context, domain.SearchRequest) *domain.SearchResponse {
	panic("unexpected")
}

func TestSearch_PanicIsInternalError(t *testing.T) {
	env := newEnv(t, mock.New("youtube", apiKeyA), func(d *Deps) {
		d.Search = panicService{d.Search}
	})

	rec := env.do(t, "GET", "/search?platform=youtube&q=cats", bearer())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorBody
	decode(t, rec, &body)
	assert.Equal(t, "Internal Server Error", body.Error)
	assert.Equal(t, "Server Internal Error", body.Message)
}

func TestSearch_RateLimited(t *testing.T) {
	env := newEnv(t, mock.New("youtube", apiKeyA).WithItems(mock.Items("youtube", 1)), func(d *Deps) {
		d.Limiter = ratelimit.New(ratelimit.Config{RequestsPerMinute: 2})
	})

	for i := 0; i < 2; i++ {
		rec := env.do(t, "GET", "/search?platform=youtube&q=cats", bearer())
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := env.do(t, "GET", "/search?platform=youtube&q=cats", bearer())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body errorBody
	decode(t, rec, &body)
	assert.Equal(t, "Too Many Requests", body.Error)
	assert.Contains(t, body.Message, "Rate limit exceeded")
}

func TestAdminKeys(t *testing.T) {
	env := newEnv(t, mock.New("youtube", apiKeyA, "AIzaSyBBBBBBBBBBBBBBB"))

	rec := env.do(t, "GET", "/admin/keys", bearer())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), apiKeyA)

	var body struct {
		Platforms map[string]keypool.Stats `json:"platforms"`
	}
	decode(t, rec, &body)
	require.Contains(t, body.Platforms, "youtube")
	assert.Equal(t, 2, body.Platforms["youtube"].Total)
	assert.Equal(t, 2, body.Platforms["youtube"].Available)
}

func TestAdminKeys_RequiresAuth(t *testing.T) {
	env := newEnv(t, mock.New("youtube", apiKeyA))

	assert.Equal(t, http.StatusUnauthorized, env.do(t, "GET", "/admin/keys", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, "DELETE", "/admin/cache", nil).Code)
}

func TestAdminCache(t *testing.T) {
	env := newEnv(t, mock.New("youtube", apiKeyA).WithItems(mock.Items("youtube", 1)))

	env.do(t, "GET", "/search?platform=youtube&q=cats", bearer())
	env.do(t, "GET", "/search?platform=youtube&q=dogs", bearer())
	require.Equal(t, 2, env.cache.Len())

	rec := env.do(t, "DELETE", "/admin/cache/youtube?q=CATS", bearer())
	require.Equal(t, http.StatusOK, rec.Code)
	var deleted map[string]bool
	decode(t, rec, &deleted)
	assert.True(t, deleted["deleted"])
	assert.Equal(t, 1, env.cache.Len())

	rec = env.do(t, "DELETE", "/admin/cache/youtube", bearer())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "DELETE", "/admin/cache", bearer())
	require.Equal(t, http.StatusOK, rec.Code)
	var cleared map[string]int
	decode(t, rec, &cleared)
	assert.Equal(t, 1, cleared["cleared"])
	assert.Zero(t, env.cache.Len())

	rec = env.do(t, "DELETE", "/admin/cache", bearer())
	decode(t, rec, &cleared)
	assert.Equal(t, 0, cleared["cleared"])
}

func TestAdminHistory(t *testing.T) {
	env := newEnv(t, mock.New("youtube", apiKeyA).WithItems(mock.Items("youtube", 2)))

	env.do(t, "GET", "/search?platform=youtube&q=cats", bearer())
	env.do(t, "GET", "/search?platform=youtube&q=dogs", bearer())
	env.svc.Wait()

	rec := env.do(t, "GET", "/admin/history?limit=1", bearer())
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Records []struct {
			Platform    string `json:"platform"`
			Query       string `json:"query"`
			ResultCount int    `json:"resultCount"`
			DurationMs  *int64 `json:"durationMs"`
		} `json:"records"`
		Totals map[string]int `json:"totals"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Records, 1)
	assert.Equal(t, "youtube", body.Records[0].Platform)
	assert.Equal(t, 2, body.Records[0].ResultCount)
	assert.NotNil(t, body.Records[0].DurationMs)
	assert.Equal(t, map[string]int{"youtube": 2}, body.Totals)

	assert.Equal(t, http.StatusBadRequest, env.do(t, "GET", "/admin/history?limit=-1", bearer()).Code)
}

func TestAdminHistory_Disabled(t *testing.T) {
	env := newEnv(t, mock.New("youtube", apiKeyA), func(d *Deps) {
		d.History = nil
	})

	rec := env.do(t, "GET", "/admin/history", bearer())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newEnv(t, mock.New("youtube", apiKeyA).WithItems(mock.Items("youtube", 1)))

	env.do(t, "GET", "/health", nil)
	rec := env.do(t, "GET", "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `searchbeam_http_requests_total{route="/health",status="200"} 1`)
}

func TestCORS(t *testing.T) {
	env := newEnv(t, mock.New("youtube", apiKeyA), func(d *Deps) {
		d.Config.CORSOrigins = []string{"https://app.example"}
	})

	rec := env.do(t, "OPTIONS", "/search", map[string]string{
		"Origin":                        "https://app.example",
		"Access-Control-Request-Method": "GET",
	})

	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = env.do(t, "OPTIONS", "/search", map[string]string{
		"Origin":                        "https://evil.example",
		"Access-Control-Request-Method": "GET",
	})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNotFound(t *testing.T) {
	env := newEnv(t, mock.New("youtube", apiKeyA))

	rec := env.do(t, "GET", "/nope", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body errorBody
	decode(t, rec, &body)
	assert.Equal(t, "Route GET:/nope not found", body.Message)
}

func TestRun_StopsOnCancel(t *testing.T) {
	env := newEnv(t, mock.New("youtube", apiKeyA), func(d *Deps) {
		d.Config.Port = 0
	})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- env.srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
