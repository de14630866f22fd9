package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/samzong/searchbeam/internal/domain"
	"github.com/samzong/searchbeam/internal/keypool"
	"github.com/samzong/searchbeam/internal/search"
)

const (
	Platform       = "youtube"
	DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

	defaultPageSize = 10
	maxBodySize     = 4 << 20
)

var quotaReasons = map[string]bool{
	"quotaExceeded":      true,
	"dailyLimitExceeded": true,
}

type Config struct {
	BaseURL      string
	Timeout      time.Duration
	RateLimit    float64 // запросов в секунду, 0 - без ограничения
	FetchDetails bool
}

type Client struct {
	baseURL      string
	client       *http.Client
	keys         search.KeyPool
	limiter      *rate.Limiter
	fetchDetails bool
	logger       *zap.Logger
}

func New(cfg Config, keys search.KeyPool, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		client:       &http.Client{Timeout: cfg.Timeout},
		keys:         keys,
		limiter:      limiter,
		fetchDetails: cfg.FetchDetails,
		logger:       logger.With(zap.String("platform", Platform)),
	}
}

type searchResponse struct {
	Items         []searchItem `json:"items"`
	NextPageToken string       `json:"nextPageToken"`
	PageInfo      *struct {
		TotalResults   int `json:"totalResults"`
		ResultsPerPage int `json:"resultsPerPage"`
	} `json:"pageInfo"`
}

type searchItem struct {
	ID struct {
		Kind    string `json:"kind"`
		VideoID string `json:"videoId"`
	} `json:"id"`
	Snippet struct {
		PublishedAt  string               `json:"publishedAt"`
		ChannelID    string               `json:"channelId"`
		Title        string               `json:"title"`
		Description  string               `json:"description"`
		Thumbnails   map[string]thumbnail `json:"thumbnails"`
		ChannelTitle string               `json:"channelTitle"`
	} `json:"snippet"`
}

type thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type videosResponse struct {
	Items []struct {
		ID             string `json:"id"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
			LikeCount string `json:"likeCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"error"`
}

func (c *Client) Platform() string {
	return Platform
}

func (c *Client) Keys() search.KeyPool {
	return c.keys
}

// Search делает один запрос к search.list с новым ключом из пула.
// Исчерпание квоты возвращается как *search.QuotaError с использованным ключом.
func (c *Client) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	if req.MaxResults <= 0 {
		req.MaxResults = defaultPageSize
	}

	key, err := c.keys.Acquire()
	if err != nil {
		return nil, fmt.Errorf("acquire key: %w", err)
	}

	params := url.Values{
		"part":       {"snippet"},
		"type":       {"video"},
		"q":          {req.Query},
		"maxResults": {strconv.Itoa(req.MaxResults)},
		"key":        {string(key)},
	}
	if req.PageToken != "" {
		params.Set("pageToken", req.PageToken)
	}

	var sr searchResponse
	if err := c.get(ctx, "/search", params, key, &sr); err != nil {
		return nil, err
	}

	resp := c.toSearchResponse(&sr)

	c.logger.Debug("youtube search done",
		zap.Stringer("key", key),
		zap.Int("items", len(resp.Items)),
		zap.Bool("has_next", resp.NextPageToken != ""),
	)

	if c.fetchDetails && len(resp.Items) > 0 {
		c.enrich(ctx, resp.Items)
	}

	return resp, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, key keypool.Credential, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &search.UpstreamError{Err: err}
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return &search.UpstreamError{Err: stripURL(err)}
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return &search.UpstreamError{Err: stripURL(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &search.UpstreamError{Status: resp.StatusCode, Err: stripURL(err)}
	}

	if resp.StatusCode != http.StatusOK {
		return classify(resp.StatusCode, body, key)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &search.UpstreamError{Status: resp.StatusCode, Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	return nil
}

func classify(status int, body []byte, key keypool.Credential) error {
	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	if status == http.StatusForbidden {
		for _, e := range apiErr.Error.Errors {
			if quotaReasons[e.Reason] {
				return &search.QuotaError{Key: key, Reason: e.Reason}
			}
		}
	}

	return &search.UpstreamError{Status: status, Message: apiErr.Error.Message}
}

// stripURL убирает URL запроса из ошибки net/http: в нем лежит ключ.
func stripURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}

func (c *Client) toSearchResponse(sr *searchResponse) *domain.SearchResponse {
	items := make([]domain.SearchResultItem, 0, len(sr.Items))
	for _, it := range sr.Items {
		item, ok := toItem(it)
		if !ok {
			continue
		}
		items = append(items, item)
	}

	resp := &domain.SearchResponse{
		Items:         items,
		NextPageToken: sr.NextPageToken,
	}
	if sr.PageInfo != nil {
		total := sr.PageInfo.TotalResults
		resp.TotalResults = &total
	}
	return resp
}

func toItem(it searchItem) (domain.SearchResultItem, bool) {
	id := it.ID.VideoID
	if id == "" {
		return domain.SearchResultItem{}, false
	}

	title := html.UnescapeString(it.Snippet.Title)
	if title == "" {
		title = id
	}

	item := domain.SearchResultItem{
		VideoID:      id,
		VideoURL:     "https://www.youtube.com/watch?v=" + id,
		Title:        title,
		ThumbnailURL: pickThumbnail(id, it.Snippet.Thumbnails),
		Platform:     Platform,
		ChannelTitle: html.UnescapeString(it.Snippet.ChannelTitle),
	}

	if ts, err := time.Parse(time.RFC3339, it.Snippet.PublishedAt); err == nil {
		item.PublishedAt = &ts
	}

	extra := make(map[string]any)
	if it.Snippet.ChannelID != "" {
		extra["channelId"] = it.Snippet.ChannelID
	}
	if it.Snippet.Description != "" {
		extra["description"] = html.UnescapeString(it.Snippet.Description)
	}
	if len(extra) > 0 {
		item.Extra = extra
	}

	return item, true
}

// medium -> default -> превью по id
func pickThumbnail(id string, thumbs map[string]thumbnail) string {
	if t, ok := thumbs["medium"]; ok && t.URL != "" {
		return t.URL
	}
	if t, ok := thumbs["default"]; ok && t.URL != "" {
		return t.URL
	}
	return "https://i.ytimg.com/vi/" + id + "/mqdefault.jpg"
}

// enrich дотягивает длительность и просмотры через videos.list. Best effort:
// ошибки только логируются, исчерпанный ключ помечается в пуле.
func (c *Client) enrich(ctx context.Context, items []domain.SearchResultItem) {
	key, err := c.keys.Acquire()
	if err != nil {
		c.logger.Debug("skip video details, no key available", zap.Error(err))
		return
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.VideoID
	}

	params := url.Values{
		"part": {"contentDetails,statistics"},
		"id":   {strings.Join(ids, ",")},
		"key":  {string(key)},
	}

	var vr videosResponse
	if err := c.get(ctx, "/videos", params, key, &vr); err != nil {
		var qe *search.QuotaError
		if errors.As(err, &qe) {
			c.keys.MarkLimited(qe.Key)
		}
		c.logger.Warn("video details request failed", zap.Error(err))
		return
	}

	byID := make(map[string]int, len(vr.Items))
	for i, v := range vr.Items {
		byID[v.ID] = i
	}

	for i := range items {
		idx, ok := byID[items[i].VideoID]
		if !ok {
			continue
		}
		v := vr.Items[idx]
		items[i].ViewCount = v.Statistics.ViewCount
		if v.ContentDetails.Duration != "" {
			if items[i].Extra == nil {
				items[i].Extra = make(map[string]any)
			}
			items[i].Extra["duration"] = v.ContentDetails.Duration
		}
		if v.Statistics.LikeCount != "" {
			if items[i].Extra == nil {
				items[i].Extra = make(map[string]any)
			}
			items[i].Extra["likeCount"] = v.Statistics.LikeCount
		}
	}
}
