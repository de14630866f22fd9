package repository

import (
	"context"

	"github.com/samzong/searchbeam/internal/domain"
)

// SearchLogRepository - журнал выполненных поисков. Кэш и состояние ключей
// сюда не пишутся.
type SearchLogRepository interface {
	Create(ctx context.Context, rec *domain.SearchRecord) error
	Recent(ctx context.Context, limit int) ([]domain.SearchRecord, error)
	CountByPlatform(ctx context.Context, platform string) (int, error)
}
