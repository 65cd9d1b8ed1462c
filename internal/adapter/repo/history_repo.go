package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"postergen/internal/domain"
	"postergen/internal/history"
)

// HistoryRepositoryPG implements history.Store on PostgreSQL. Serialization
// of writers is delegated to the database; each record is one row with the
// image metadata in a JSON column.
type HistoryRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository creates a history store backed by PostgreSQL.
func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepositoryPG {
	return &HistoryRepositoryPG{pool: pool}
}

// Append inserts one finalized record.
func (r *HistoryRepositoryPG) Append(ctx context.Context, record domain.HistoryRecord) error {
	images, err := json.Marshal(record.Images)
	if err != nil {
		return fmt.Errorf("history: encode images: %w", err)
	}
	query := `
INSERT INTO generation_history (id, prompt, aspect_ratio, images, created_at)
VALUES ($1, $2, $3, $4, $5);
`
	_, err = r.pool.Exec(ctx, query,
		record.ID,
		record.Prompt,
		record.AspectRatio,
		images,
		record.CreatedAt,
	)
	return err
}

// List returns records in insertion order.
func (r *HistoryRepositoryPG) List(ctx context.Context) ([]domain.HistoryRecord, error) {
	query := `
SELECT id, prompt, aspect_ratio, images, created_at
FROM generation_history
ORDER BY created_at ASC;
`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.HistoryRecord
	for rows.Next() {
		var rec domain.HistoryRecord
		var images []byte
		if err := rows.Scan(&rec.ID, &rec.Prompt, &rec.AspectRatio, &images, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if len(images) > 0 {
			if err := json.Unmarshal(images, &rec.Images); err != nil {
				return nil, fmt.Errorf("history: decode images: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

var _ history.Store = (*HistoryRepositoryPG)(nil)
