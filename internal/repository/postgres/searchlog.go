package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/samzong/searchbeam/internal/domain"
)

const maxRecentLimit = 500

type SearchLogRepo struct {
	db *DB
}

func NewSearchLogRepo(db *DB) *SearchLogRepo {
	return &SearchLogRepo{db: db}
}

func (r *SearchLogRepo) Create(ctx context.Context, rec *domain.SearchRecord) error {
	query := `
        INSERT INTO search_log (platform, query, page_token, result_count, cache_hit, error, duration_ms)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at
    `

	err := r.db.Pool.QueryRow(ctx, query,
		rec.Platform,
		rec.Query,
		rec.PageToken,
		rec.ResultCount,
		rec.CacheHit,
		rec.Error,
		rec.Duration.Milliseconds(),
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("create search record: %w", err)
	}

	return nil
}

func (r *SearchLogRepo) Recent(ctx context.Context, limit int) ([]domain.SearchRecord, error) {
	if limit <= 0 || limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	query := `
        SELECT id, platform, query, page_token, result_count, cache_hit, error, duration_ms, created_at
        FROM search_log
        ORDER BY created_at DESC, id DESC
        LIMIT $1
    `

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list search records: %w", err)
	}
	defer rows.Close()

	var records []domain.SearchRecord
	for rows.Next() {
		var rec domain.SearchRecord
		var durationMs int64
		if err := rows.Scan(
			&rec.ID,
			&rec.Platform,
			&rec.Query,
			&rec.PageToken,
			&rec.ResultCount,
			&rec.CacheHit,
			&rec.Error,
			&durationMs,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan search record: %w", err)
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search records: %w", err)
	}

	return records, nil
}

func (r *SearchLogRepo) CountByPlatform(ctx context.Context, platform string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM search_log WHERE platform = $1`, platform,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count search records: %w", err)
	}
	return count, nil
}
