package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/crm-service/internal/config"
)

func TestPoolConfig(t *testing.T) {
	_, err := poolConfig(config.PostgresConfig{})
	assert.ErrorIs(t, err, ErrMissingDSN)

	_, err = poolConfig(config.PostgresConfig{DSN: "postgres://%zz"})
	assert.Error(t, err)

	cfg, err := poolConfig(config.PostgresConfig{
		DSN:             "postgres://crm:secret@db:5432/crm?sslmode=disable",
		ApplicationName: "crm-service",
		MaxConns:        8,
		MinConns:        20,
		ConnMaxIdleSec:  15,
	})
	require.NoError(t, err)
	assert.Equal(t, "crm", cfg.ConnConfig.Database)
	assert.Equal(t, int32(8), cfg.MaxConns)
	assert.Zero(t, cfg.MinConns, "min above max is ignored")
	assert.Equal(t, 15*time.Second, cfg.MaxConnIdleTime)
	assert.Equal(t, "crm-service", cfg.ConnConfig.RuntimeParams["application_name"])
}

func TestNilPostgres(t *testing.T) {
	var p *Postgres
	assert.Nil(t, p.PoolHandle())
	assert.Error(t, p.Ping(context.Background()))
	p.Close()
}
