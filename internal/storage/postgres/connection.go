package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver goose migrates through
	"github.com/pressly/goose/v3"

	"github.com/rezkam/rapo/internal/env"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// A control run spends most of its wall clock in in-process matching
// between two source fetches and one batched result write, so the pool is
// sized by how many control runs may overlap (each holding at most a
// fetch/write statement plus a bookkeeping write at a time), not by CPU
// count — the database does the waiting, not this process.
const (
	defaultMaxConns        = 8
	defaultMinConns        = 2
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

// DBConfig holds PostgreSQL database connection configuration. Every field
// is also loadable from the environment via LoadDBConfig, since the engine
// itself has no config-file parser but still needs something ambient to
// point it at a database.
type DBConfig struct {
	DSN             string        `env:"RAPO_DB_DSN"`                // PostgreSQL connection string
	MaxOpenConns    int           `env:"RAPO_DB_MAX_OPEN_CONNS"`     // Maximum open connections (0 = default, sized for concurrent control runs)
	MaxIdleConns    int           `env:"RAPO_DB_MAX_IDLE_CONNS"`     // Minimum warm connections (0 = default)
	ConnMaxLifetime time.Duration `env:"RAPO_DB_CONN_MAX_LIFETIME"`  // Connection max lifetime (0 = default: 30min)
	ConnMaxIdleTime time.Duration `env:"RAPO_DB_CONN_MAX_IDLE_TIME"` // Connection max idle time (0 = default: 5min)
}

// Validate implements env.Validator: a DSN is the one setting with no
// sensible zero-value default.
func (c DBConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("RAPO_DB_DSN is required")
	}
	return nil
}

// LoadDBConfig reads a DBConfig from the environment (RAPO_DB_DSN and
// friends), validating that a DSN was actually set.
func LoadDBConfig() (DBConfig, error) {
	var cfg DBConfig
	if err := env.Load(&cfg); err != nil {
		return DBConfig{}, fmt.Errorf("load db config: %w", err)
	}
	return cfg, nil
}

// NewStoreWithConfig bootstraps the engine's bookkeeping schema and opens
// the connection pool every store method shares.
func NewStoreWithConfig(ctx context.Context, cfg DBConfig) (*Store, error) {
	if err := bootstrapSchema(ctx, cfg.DSN); err != nil {
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	poolConfig.MaxConns = defaultMaxConns
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	poolConfig.MinConns = defaultMinConns
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	poolConfig.MaxConnLifetime = defaultConnMaxLifetime
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	poolConfig.MaxConnIdleTime = defaultConnMaxIdleTime
	if cfg.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}

	// Window arithmetic and time-shift math assume UTC timestamps; pin every
	// connection so a server-side timezone can't skew either.
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET TIMEZONE='UTC'")
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewStore(pool), nil
}

// Connect opens a store against dsn with default pool settings.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	return NewStoreWithConfig(ctx, DBConfig{DSN: dsn})
}

// bootstrapSchema applies the embedded goose migrations that create the
// engine's own bookkeeping relations (rapo_process_log,
// rapo_instance_lease). Per-control result tables are deliberately not
// migrated here: their shape depends on each control's source schema, so
// SideWriter issues that DDL itself at run time. Per-run temporary
// relations are not created by the engine at all. goose drives a
// short-lived database/sql connection since that is the interface it
// migrates through.
func bootstrapSchema(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.ErrorContext(ctx, "close migration connection", "error", err)
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping for migrations: %w", err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	goose.SetBaseFS(embedMigrations)

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
