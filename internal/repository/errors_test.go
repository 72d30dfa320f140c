package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil))
	assert.ErrorIs(t, translate(pgx.ErrNoRows), ErrNotFound)
	assert.ErrorIs(t, translate(fmt.Errorf("scan: %w", pgx.ErrNoRows)), ErrNotFound)

	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_lower_idx"}
	err := translate(pgErr)
	assert.ErrorIs(t, err, ErrDuplicate)
	var dup *DuplicateError
	if assert.True(t, errors.As(err, &dup)) {
		assert.Equal(t, "users_email_lower_idx", dup.Constraint)
	}

	other := &pgconn.PgError{Code: "23503"}
	assert.Same(t, error(other), translate(other))
}

func TestConditionalMapsMissingRow(t *testing.T) {
	_, err := conditional(nil, ErrNotFound)
	assert.ErrorIs(t, err, ErrPreconditionFailed)

	boom := errors.New("boom")
	_, err = conditional(nil, boom)
	assert.ErrorIs(t, err, boom)
}

func TestPrefixColumns(t *testing.T) {
	assert.Equal(t, "u.id, u.name, u.email", prefixColumns("u", "id, name,\n        email"))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, clampLimit(0))
	assert.Equal(t, 50, clampLimit(50))
	assert.Equal(t, 200, clampLimit(1000))
}
