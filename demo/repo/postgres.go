package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds the connection parameters for NewPostgresDB.
type PostgresConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	Database       string
	MaxConnections int32
}

// PostgresDB wraps a pgx connection pool.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB opens a connection pool and verifies it with a ping.
func NewPostgresDB(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connString := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.MaxConnections,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("repo: parse connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConnections
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("repo: create connection pool: %w", err)
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("repo: ping database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Pool returns the underlying pgx pool for callers that need raw access.
func (db *PostgresDB) Pool() *pgxpool.Pool { return db.pool }

// Ping checks that the database is reachable.
func (db *PostgresDB) Ping(ctx context.Context) error { return db.pool.Ping(ctx) }
