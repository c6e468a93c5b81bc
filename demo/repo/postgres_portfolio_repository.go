package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/chainfolio/aggregator-core/internal/domain"
	"github.com/chainfolio/aggregator-core/internal/ports"
)

// PostgresPortfolioRepository implements ports.PortfolioRepository on top
// of a Postgres table holding one JSONB snapshot column per portfolio,
// queried and updated through the shared Save/FindByID semantics the
// in-memory and Redis adapters also satisfy.
type PostgresPortfolioRepository struct {
	db *PostgresDB
}

// NewPostgresPortfolioRepository wraps an already-migrated PostgresDB.
func NewPostgresPortfolioRepository(db *PostgresDB) *PostgresPortfolioRepository {
	return &PostgresPortfolioRepository{db: db}
}

var _ ports.PortfolioRepository = (*PostgresPortfolioRepository)(nil)

// Save upserts the portfolio's snapshot by id.
func (r *PostgresPortfolioRepository) Save(ctx context.Context, p *domain.Portfolio) error {
	snapshot, err := json.Marshal(toStored(p))
	if err != nil {
		return fmt.Errorf("repo: marshal portfolio: %w", err)
	}

	const query = `
		INSERT INTO portfolios (id, user_id, snapshot, last_updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET user_id = EXCLUDED.user_id, snapshot = EXCLUDED.snapshot, last_updated = EXCLUDED.last_updated
	`
	_, err = r.db.Pool().Exec(ctx, query, p.ID, p.UserID, snapshot, p.LastUpdated())
	if err != nil {
		return fmt.Errorf("repo: save portfolio: %w", err)
	}
	return nil
}

// FindByID returns the stored portfolio, or nil if none exists.
func (r *PostgresPortfolioRepository) FindByID(ctx context.Context, id string) (*domain.Portfolio, error) {
	const query = `SELECT snapshot FROM portfolios WHERE id = $1`

	var raw []byte
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("repo: get portfolio %s: %w", id, err)
	}

	var stored storedPortfolio
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("repo: unmarshal portfolio %s: %w", id, err)
	}
	return fromStored(stored)
}

// FindByUserID returns the most recently updated portfolio for a user.
func (r *PostgresPortfolioRepository) FindByUserID(ctx context.Context, userID string) (*domain.Portfolio, error) {
	const query = `SELECT snapshot FROM portfolios WHERE user_id = $1 ORDER BY last_updated DESC LIMIT 1`

	var raw []byte
	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("repo: get portfolio for user %s: %w", userID, err)
	}

	var stored storedPortfolio
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("repo: unmarshal portfolio for user %s: %w", userID, err)
	}
	return fromStored(stored)
}

// Delete removes a portfolio row.
func (r *PostgresPortfolioRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Pool().Exec(ctx, `DELETE FROM portfolios WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repo: delete portfolio %s: %w", id, err)
	}
	return nil
}

// Exists reports whether a row exists for id.
func (r *PostgresPortfolioRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM portfolios WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repo: check portfolio existence %s: %w", id, err)
	}
	return exists, nil
}
