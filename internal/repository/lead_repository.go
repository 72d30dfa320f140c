package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/crm-service/internal/domain"
)

// LeadSortField is the whitelist of sortable lead columns.
type LeadSortField string

const (
	LeadSortCreatedAt LeadSortField = "created_at"
	LeadSortUpdatedAt LeadSortField = "updated_at"
	LeadSortName      LeadSortField = "name"
)

// LeadFilter captures lead listing parameters. It is also hashed into listing cache keys.
type LeadFilter struct {
	OwnerID  *string             `json:"owner_id,omitempty"`
	Statuses []domain.LeadStatus `json:"statuses,omitempty"`
	Search   *string             `json:"search,omitempty"`
	SortBy   LeadSortField       `json:"sort_by,omitempty"`
	SortDesc bool                `json:"sort_desc,omitempty"`
	Limit    int                 `json:"limit"`
	Offset   int                 `json:"offset"`
}

// LeadRepository encapsulates lead persistence. Status columns are only written through
// the conditional Mark*/SetStatus methods, which compare against the status the caller
// validated and return ErrPreconditionFailed when it moved.
type LeadRepository interface {
	Create(ctx context.Context, lead *domain.Lead) error
	GetByID(ctx context.Context, id string, scope domain.Scope) (*domain.Lead, error)
	List(ctx context.Context, filter LeadFilter) ([]domain.Lead, error)
	UpdateDetails(ctx context.Context, lead *domain.Lead, scope domain.Scope) error
	SoftDelete(ctx context.Context, id string, scope domain.Scope) error
	SetStatus(ctx context.Context, id string, from, to domain.LeadStatus) (*domain.Lead, error)
	MarkQualified(ctx context.Context, id string, from domain.LeadStatus, clientID, qualifiedBy string, at time.Time) (*domain.Lead, error)
	MarkUnqualified(ctx context.Context, id string, from domain.LeadStatus, reason string, at time.Time) (*domain.Lead, error)
}

type leadRepository struct {
	pool *pgxpool.Pool
}

// NewLeadRepository returns a Postgres-backed implementation.
func NewLeadRepository(pool *pgxpool.Pool) LeadRepository {
	return &leadRepository{pool: pool}
}

const leadColumns = `id, name, email, phone, company, source, notes, status, created_by, client_id,
        qualified_by, qualified_at, unqualified_reason, unqualified_at, created_at, updated_at, deleted_at`

func (r *leadRepository) Create(ctx context.Context, lead *domain.Lead) error {
	const query = `
        INSERT INTO leads (name, email, phone, company, source, notes, status, created_by)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		lead.Name,
		lead.Email,
		lead.Phone,
		lead.Company,
		lead.Source,
		lead.Notes,
		lead.Status,
		lead.CreatedBy,
	).Scan(&lead.ID, &lead.CreatedAt, &lead.UpdatedAt)
	return translate(err)
}

func (r *leadRepository) GetByID(ctx context.Context, id string, scope domain.Scope) (*domain.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id=$1 AND deleted_at IS NULL`
	args := []any{id}
	if scope.OwnerID != nil {
		args = append(args, *scope.OwnerID)
		query += " AND created_by=$2"
	}
	return scanLead(r.pool.QueryRow(ctx, query, args...))
}

func (r *leadRepository) List(ctx context.Context, filter LeadFilter) ([]domain.Lead, error) {
	clauses := []string{"deleted_at IS NULL"}
	args := []any{}

	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Search != nil && strings.TrimSpace(*filter.Search) != "" {
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(*filter.Search))+"%")
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(name) LIKE %[1]s OR LOWER(email) LIKE %[1]s OR LOWER(company) LIKE %[1]s)", placeholder))
	}

	sortBy := LeadSortCreatedAt
	switch filter.SortBy {
	case LeadSortUpdatedAt, LeadSortName:
		sortBy = filter.SortBy
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM leads WHERE %s ORDER BY %s %s, id LIMIT %d OFFSET %d`,
		leadColumns, strings.Join(clauses, " AND "), sortBy, direction, clampLimit(filter.Limit), offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Lead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *lead)
	}
	return result, rows.Err()
}

func (r *leadRepository) UpdateDetails(ctx context.Context, lead *domain.Lead, scope domain.Scope) error {
	query := `
        UPDATE leads SET name=$1, email=$2, phone=$3, company=$4, source=$5, notes=$6, updated_at=NOW()
        WHERE id=$7 AND deleted_at IS NULL`
	args := []any{lead.Name, lead.Email, lead.Phone, lead.Company, lead.Source, lead.Notes, lead.ID}
	if scope.OwnerID != nil {
		args = append(args, *scope.OwnerID)
		query += " AND created_by=$8"
	}
	query += " RETURNING updated_at"

	return translate(r.pool.QueryRow(ctx, query, args...).Scan(&lead.UpdatedAt))
}

func (r *leadRepository) SoftDelete(ctx context.Context, id string, scope domain.Scope) error {
	query := `UPDATE leads SET deleted_at=NOW(), updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL`
	args := []any{id}
	if scope.OwnerID != nil {
		args = append(args, *scope.OwnerID)
		query += " AND created_by=$2"
	}
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *leadRepository) SetStatus(ctx context.Context, id string, from, to domain.LeadStatus) (*domain.Lead, error) {
	query := `
        UPDATE leads SET status=$3, updated_at=NOW()
        WHERE id=$1 AND status=$2 AND deleted_at IS NULL
        RETURNING ` + leadColumns
	return conditional(scanLead(r.pool.QueryRow(ctx, query, id, from, to)))
}

func (r *leadRepository) MarkQualified(ctx context.Context, id string, from domain.LeadStatus, clientID, qualifiedBy string, at time.Time) (*domain.Lead, error) {
	query := `
        UPDATE leads SET status=$3, client_id=$4, qualified_by=$5, qualified_at=$6, updated_at=NOW()
        WHERE id=$1 AND status=$2 AND client_id IS NULL AND deleted_at IS NULL
        RETURNING ` + leadColumns
	return conditional(scanLead(r.pool.QueryRow(ctx, query, id, from, domain.LeadStatusQualified, clientID, qualifiedBy, at)))
}

func (r *leadRepository) MarkUnqualified(ctx context.Context, id string, from domain.LeadStatus, reason string, at time.Time) (*domain.Lead, error) {
	query := `
        UPDATE leads SET status=$3, unqualified_reason=$4, unqualified_at=$5, updated_at=NOW()
        WHERE id=$1 AND status=$2 AND deleted_at IS NULL
        RETURNING ` + leadColumns
	return conditional(scanLead(r.pool.QueryRow(ctx, query, id, from, domain.LeadStatusUnqualified, reason, at)))
}

// conditional turns "no row matched" on a guarded UPDATE into ErrPreconditionFailed.
func conditional(lead *domain.Lead, err error) (*domain.Lead, error) {
	if errors.Is(err, ErrNotFound) {
		return nil, ErrPreconditionFailed
	}
	return lead, err
}

func scanLead(row pgx.Row) (*domain.Lead, error) {
	var lead domain.Lead
	if err := row.Scan(
		&lead.ID,
		&lead.Name,
		&lead.Email,
		&lead.Phone,
		&lead.Company,
		&lead.Source,
		&lead.Notes,
		&lead.Status,
		&lead.CreatedBy,
		&lead.ClientID,
		&lead.QualifiedBy,
		&lead.QualifiedAt,
		&lead.UnqualifiedReason,
		&lead.UnqualifiedAt,
		&lead.CreatedAt,
		&lead.UpdatedAt,
		&lead.DeletedAt,
	); err != nil {
		return nil, translate(err)
	}
	return &lead, nil
}
