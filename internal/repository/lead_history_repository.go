package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/crm-service/internal/domain"
)

// LeadHistoryRepository stores status audit entries.
type LeadHistoryRepository interface {
	Create(ctx context.Context, entry *domain.LeadStatusChange) error
	ListByLead(ctx context.Context, leadID string, limit, offset int) ([]domain.LeadStatusChange, error)
}

type leadHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewLeadHistoryRepository builds repository.
func NewLeadHistoryRepository(pool *pgxpool.Pool) LeadHistoryRepository {
	return &leadHistoryRepository{pool: pool}
}

func (r *leadHistoryRepository) Create(ctx context.Context, entry *domain.LeadStatusChange) error {
	const query = `
        INSERT INTO lead_status_history (lead_id, changed_by, old_status, new_status, reason)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		entry.LeadID,
		entry.ChangedBy,
		entry.OldStatus,
		entry.NewStatus,
		entry.Reason,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *leadHistoryRepository) ListByLead(ctx context.Context, leadID string, limit, offset int) ([]domain.LeadStatusChange, error) {
	const query = `
        SELECT id, lead_id, changed_by, old_status, new_status, reason, created_at
        FROM lead_status_history WHERE lead_id=$1 ORDER BY created_at ASC, id LIMIT $2 OFFSET $3`
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, query, leadID, clampLimit(limit), offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.LeadStatusChange{}
	for rows.Next() {
		var entry domain.LeadStatusChange
		if err := rows.Scan(
			&entry.ID,
			&entry.LeadID,
			&entry.ChangedBy,
			&entry.OldStatus,
			&entry.NewStatus,
			&entry.Reason,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
