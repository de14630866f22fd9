package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/samzong/searchbeam/internal/domain"
	"github.com/samzong/searchbeam/internal/keypool"
)

var ErrUpstreamFailed = errors.New("search request failed")

// Provider - адаптер одной платформы. Ключ для каждого запроса провайдер
// берет из своего пула сам.
type Provider interface {
	Platform() string
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error)
	Keys() KeyPool
}

type KeyPool interface {
	Acquire() (keypool.Credential, error)
	MarkLimited(c keypool.Credential)
	Recover() int
	AvailableCount() int
	TotalCount() int
	Stats() keypool.Stats
}

// QuotaError - апстрим отказал из-за исчерпанной квоты конкретного ключа.
type QuotaError struct {
	Key    keypool.Credential
	Reason string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded for key %s (%s)", e.Key, e.Reason)
}

// UpstreamError - любая другая ошибка апстрима, без ретраев.
type UpstreamError struct {
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", ErrUpstreamFailed, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%v: status %d", ErrUpstreamFailed, e.Status)
	default:
		return ErrUpstreamFailed.Error()
	}
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUpstreamFailed, e.Err}
	}
	return []error{ErrUpstreamFailed}
}

// UserMessage - текст для клиента: сообщение апстрима или общий текст.
func (e *UpstreamError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return "Search request failed"
}
