package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/crm-service/internal/domain"
)

// ClientFilter captures client listing parameters. It is also hashed into listing cache keys.
type ClientFilter struct {
	CreatedBy    *string              `json:"created_by,omitempty"`
	ClientStatus *domain.ClientStatus `json:"client_status,omitempty"`
	Search       *string              `json:"search,omitempty"`
	Limit        int                  `json:"limit"`
	Offset       int                  `json:"offset"`
}

// UserRepository defines persistence access for directory accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ListClients(ctx context.Context, filter ClientFilter) ([]domain.User, error)
	MarkClientUnqualified(ctx context.Context, id, reason string, at time.Time) (*domain.User, error)
	ConsumeTemporaryPassword(ctx context.Context, id string) (string, error)
	ListOrphanedClients(ctx context.Context, limit int) ([]domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, name, email, password_hash, role_id, department_id, is_client, lead_id, status,
        client_status, client_unqualified_at, client_unqualified_reason, metadata, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (name, email, password_hash, role_id, department_id, is_client, lead_id, status, client_status, metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at, updated_at`

	metadata, err := json.Marshal(user.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	err = r.pool.QueryRow(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.RoleID,
		user.DepartmentID,
		user.IsClient,
		user.LeadID,
		user.Status,
		user.ClientStatus,
		metadata,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	return translate(err)
}

// Update writes the mutable account fields. lead_id and is_client are never rewritten.
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	const query = `
        UPDATE users SET name=$1, password_hash=$2, status=$3, metadata=$4, updated_at=NOW()
        WHERE id=$5`

	metadata, err := json.Marshal(user.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	cmd, err := r.pool.Exec(ctx, query,
		user.Name,
		user.PasswordHash,
		user.Status,
		metadata,
		user.ID,
	)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email)=lower($1)`
	return scanUser(r.pool.QueryRow(ctx, query, strings.TrimSpace(email)))
}

func (r *userRepository) ListClients(ctx context.Context, filter ClientFilter) ([]domain.User, error) {
	clauses := []string{"is_client"}
	args := []any{}

	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("metadata->>'created_by'=$%d", len(args)))
	}
	if filter.ClientStatus != nil {
		args = append(args, *filter.ClientStatus)
		clauses = append(clauses, fmt.Sprintf("client_status=$%d", len(args)))
	}
	if filter.Search != nil && strings.TrimSpace(*filter.Search) != "" {
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(*filter.Search))+"%")
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(name) LIKE %[1]s OR LOWER(email) LIKE %[1]s)", placeholder))
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s ORDER BY created_at DESC, id LIMIT %d OFFSET %d`,
		userColumns, strings.Join(clauses, " AND "), clampLimit(filter.Limit), offset)
	return r.queryUsers(ctx, query, args...)
}

func (r *userRepository) MarkClientUnqualified(ctx context.Context, id, reason string, at time.Time) (*domain.User, error) {
	query := `
        UPDATE users SET client_status=$2, client_unqualified_at=$3, client_unqualified_reason=$4, updated_at=NOW()
        WHERE id=$1 AND is_client
        RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, query, id, domain.ClientStatusUnqualified, at, reason))
}

// ConsumeTemporaryPassword returns the stored one-time password and removes it in the same statement.
func (r *userRepository) ConsumeTemporaryPassword(ctx context.Context, id string) (string, error) {
	const query = `
        WITH prev AS (
            SELECT id, metadata->>'temporary_password' AS temporary_password
            FROM users WHERE id=$1 AND metadata ? 'temporary_password'
            FOR UPDATE
        )
        UPDATE users u SET metadata = u.metadata - 'temporary_password', updated_at=NOW()
        FROM prev WHERE u.id = prev.id
        RETURNING prev.temporary_password`

	var password string
	if err := r.pool.QueryRow(ctx, query, id).Scan(&password); err != nil {
		return "", translate(err)
	}
	return password, nil
}

// ListOrphanedClients finds client accounts whose source lead does not point back at them.
func (r *userRepository) ListOrphanedClients(ctx context.Context, limit int) ([]domain.User, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM users u
        WHERE u.is_client AND u.lead_id IS NOT NULL
          AND NOT EXISTS (SELECT 1 FROM leads l WHERE l.client_id = u.id)
        ORDER BY u.created_at ASC
        LIMIT %d`, prefixColumns("u", userColumns), clampLimit(limit))
	return r.queryUsers(ctx, query)
}

func (r *userRepository) queryUsers(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user     domain.User
		metadata []byte
	)
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.RoleID,
		&user.DepartmentID,
		&user.IsClient,
		&user.LeadID,
		&user.Status,
		&user.ClientStatus,
		&user.ClientUnqualifiedAt,
		&user.ClientUnqualifiedReason,
		&metadata,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, translate(err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &user.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &user, nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
