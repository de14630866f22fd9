package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/samzong/searchbeam/internal/domain"
	"github.com/samzong/searchbeam/internal/keypool"
	"github.com/samzong/searchbeam/internal/search"
)

// Provider - управляемый провайдер для тестов. Ключи берутся из настоящего
// пула, поэтому ротация и пометка квоты работают как с живым апстримом.
type Provider struct {
	Name          string
	Items         []domain.SearchResultItem
	NextPageToken string
	Error         error
	Delay         time.Duration
	PanicValue    any

	CallCount   int
	LastRequest domain.SearchRequest
	AllRequests []domain.SearchRequest
	UsedKeys    []keypool.Credential

	quotaKeys map[string]bool
	allQuota  bool
	keys      search.KeyPool

	mu sync.Mutex
}

func New(platform string, keys ...string) *Provider {
	return NewWithPool(platform, keypool.New(keys, keypool.Config{}, zap.NewNop()))
}

func NewWithPool(platform string, pool search.KeyPool) *Provider {
	return &Provider{
		Name:      platform,
		keys:      pool,
		quotaKeys: make(map[string]bool),
	}
}

func (p *Provider) WithItems(items []domain.SearchResultItem) *Provider {
	p.Items = items
	return p
}

func (p *Provider) WithNextPageToken(token string) *Provider {
	p.NextPageToken = token
	return p
}

func (p *Provider) WithError(err error) *Provider {
	p.Error = err
	return p
}

func (p *Provider) WithDelay(delay time.Duration) *Provider {
	p.Delay = delay
	return p
}

func (p *Provider) WithPanic(v any) *Provider {
	p.PanicValue = v
	return p
}

// WithQuotaKeys - эти ключи отвечают отказом по квоте.
func (p *Provider) WithQuotaKeys(keys ...string) *Provider {
	for _, k := range keys {
		p.quotaKeys[k] = true
	}
	return p
}

// WithAllQuota - любой ключ отвечает отказом по квоте.
func (p *Provider) WithAllQuota() *Provider {
	p.allQuota = true
	return p
}

func (p *Provider) Platform() string {
	return p.Name
}

func (p *Provider) Keys() search.KeyPool {
	return p.keys
}

func (p *Provider) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	p.mu.Lock()
	p.CallCount++
	p.LastRequest = req
	p.AllRequests = append(p.AllRequests, req)
	delay := p.Delay
	err := p.Error
	panicValue := p.PanicValue
	items := p.Items
	next := p.NextPageToken
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if panicValue != nil {
		panic(panicValue)
	}

	key, acqErr := p.keys.Acquire()
	if acqErr != nil {
		return nil, fmt.Errorf("acquire key: %w", acqErr)
	}

	p.mu.Lock()
	p.UsedKeys = append(p.UsedKeys, key)
	quota := p.allQuota || p.quotaKeys[string(key)]
	p.mu.Unlock()

	if quota {
		return nil, &search.QuotaError{Key: key, Reason: "quotaExceeded"}
	}

	if err != nil {
		return nil, err
	}

	out := make([]domain.SearchResultItem, len(items))
	copy(out, items)
	total := len(out)

	return &domain.SearchResponse{
		Items:         out,
		NextPageToken: next,
		TotalResults:  &total,
	}, nil
}

func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CallCount
}

func (p *Provider) Used() []keypool.Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]keypool.Credential, len(p.UsedKeys))
	copy(out, p.UsedKeys)
	return out
}

func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCount = 0
	p.LastRequest = domain.SearchRequest{}
	p.AllRequests = nil
	p.UsedKeys = nil
}

// Items генерирует n валидных видео для платформы.
func Items(platform string, n int) []domain.SearchResultItem {
	items := make([]domain.SearchResultItem, n)
	for i := range items {
		id := fmt.Sprintf("vid%03d", i+1)
		items[i] = domain.SearchResultItem{
			VideoID:      id,
			VideoURL:     "https://www.youtube.com/watch?v=" + id,
			Title:        fmt.Sprintf("Video %d", i+1),
			ThumbnailURL: "https://i.ytimg.com/vi/" + id + "/mqdefault.jpg",
			Platform:     platform,
		}
	}
	return items
}
