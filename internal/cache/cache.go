// Package cache хранит готовые ответы поиска по ключу (платформа, запрос, курсор).
package cache

import (
	"strings"

	"github.com/samzong/searchbeam/internal/cache/memory"
	"github.com/samzong/searchbeam/internal/domain"
)

// FirstPage - курсор в ключе, когда pageToken не передан.
const FirstPage = "first"

type ResponseCache struct {
	store *memory.Cache[*domain.SearchResponse]
}

func New(cfg memory.Config) *ResponseCache {
	return &ResponseCache{
		store: memory.New[*domain.SearchResponse](cfg),
	}
}

func Key(platform, query, pageToken string) string {
	if pageToken == "" {
		pageToken = FirstPage
	}
	return platform + ":" + NormalizeQuery(query) + ":" + pageToken
}

func NormalizeQuery(q string) string {
	q = strings.ToLower(q)
	return strings.Join(strings.Fields(q), " ")
}

func (c *ResponseCache) Get(platform, query, pageToken string) (*domain.SearchResponse, bool) {
	resp, ok := c.store.Get(Key(platform, query, pageToken))
	if !ok || resp == nil {
		return nil, false
	}
	return resp.Clone(), true
}

// Set кладет ответ целиком, перезаписывая старый. Ответы с ошибкой не кешируются.
func (c *ResponseCache) Set(platform, query string, resp *domain.SearchResponse, pageToken string) {
	if resp == nil || resp.Failed() {
		return
	}
	c.store.Set(Key(platform, query, pageToken), resp.Clone())
}

func (c *ResponseCache) Delete(platform, query, pageToken string) {
	c.store.Delete(Key(platform, query, pageToken))
}

func (c *ResponseCache) Clear() {
	c.store.Purge()
}

func (c *ResponseCache) Len() int {
	return c.store.Len()
}
