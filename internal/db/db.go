package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scrippt-tech/scrippt-server/internal/config"
)

// NewPool construye y devuelve un pool de conexiones configurado.
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	// Configuración razonable para ambientes iniciales.
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// Ping verifica conectividad con la base de datos.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	return pool.Ping(ctx)
}

const accountsSchema = `
	CREATE TABLE IF NOT EXISTS accounts (
		id                TEXT PRIMARY KEY,
		name              TEXT NOT NULL,
		email             TEXT NOT NULL UNIQUE,
		password_hash     TEXT NOT NULL DEFAULT '',
		external_id       TEXT NOT NULL DEFAULT '',
		external_provider TEXT NOT NULL DEFAULT '',
		profile           JSONB NOT NULL DEFAULT '{"education":[],"experience":[],"skills":[]}'::jsonb,
		documents         JSONB NOT NULL DEFAULT '[]'::jsonb,
		created_at        TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL
	)
`

const accountsDocumentsColumn = `ALTER TABLE accounts ADD COLUMN IF NOT EXISTS documents JSONB NOT NULL DEFAULT '[]'::jsonb`

// EnsureSchema crea la tabla de cuentas si no existe y agrega columnas nuevas.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, accountsSchema); err != nil {
		return err
	}
	_, err := pool.Exec(ctx, accountsDocumentsColumn)
	return err
}
