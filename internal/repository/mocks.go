package repository

import (
	"context"
	"sync"
	"time"

	"github.com/samzong/searchbeam/internal/domain"
)

type MockSearchLogRepository struct {
	mu      sync.RWMutex
	records []domain.SearchRecord
	nextID  int64

	// CreateErr возвращается из Create, если задан
	CreateErr error
}

func NewMockSearchLogRepository() *MockSearchLogRepository {
	return &MockSearchLogRepository{nextID: 1}
}

func (m *MockSearchLogRepository) Create(ctx context.Context, rec *domain.SearchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return m.CreateErr
	}

	rec.ID = m.nextID
	m.nextID++
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.records = append(m.records, *rec)
	return nil
}

// Recent - последние записи, новые первыми.
func (m *MockSearchLogRepository) Recent(ctx context.Context, limit int) ([]domain.SearchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}

	out := make([]domain.SearchRecord, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

func (m *MockSearchLogRepository) CountByPlatform(ctx context.Context, platform string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, r := range m.records {
		if r.Platform == platform {
			count++
		}
	}
	return count, nil
}

func (m *MockSearchLogRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
