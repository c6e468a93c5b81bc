// Package repo holds reference implementations of the portfolio
// repository port: an in-memory map, a Postgres table and a Redis
// keyspace. Host applications are expected to supply their own adapters;
// these are demonstration/test-grade only.
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chainfolio/aggregator-core/internal/domain"
	"github.com/chainfolio/aggregator-core/internal/ports"
)

// RedisPortfolioRepository implements ports.PortfolioRepository on top of
// a Redis client, storing one JSON snapshot per portfolio id.
type RedisPortfolioRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPortfolioRepository wraps an existing Redis client. ttl, if
// non-zero, is applied to every stored snapshot.
func NewRedisPortfolioRepository(client *redis.Client, ttl time.Duration) *RedisPortfolioRepository {
	return &RedisPortfolioRepository{client: client, ttl: ttl}
}

var _ ports.PortfolioRepository = (*RedisPortfolioRepository)(nil)

func portfolioKey(id string) string { return fmt.Sprintf("portfolio:%s", id) }

type storedPortfolio struct {
	ID          string                   `json:"id"`
	UserID      string                   `json:"userId,omitempty"`
	LastUpdated time.Time                `json:"lastUpdated"`
	Sources     []string                 `json:"sources"`
	Assets      []storedAsset            `json:"assets"`
}

type storedAsset struct {
	Symbol          string                 `json:"symbol"`
	Name            string                 `json:"name,omitempty"`
	Type            string                 `json:"type"`
	Chain           string                 `json:"chain,omitempty"`
	Amount          string                 `json:"amount"`
	Decimals        int                    `json:"decimals"`
	PriceValue      string                 `json:"priceValue,omitempty"`
	PriceCurrency   string                 `json:"priceCurrency,omitempty"`
	ContractAddress string                 `json:"contractAddress,omitempty"`
	Metadata        domain.Metadata        `json:"metadata"`
}

// Save serializes the portfolio and writes it under its id, applying the
// repository's TTL if configured.
func (r *RedisPortfolioRepository) Save(ctx context.Context, p *domain.Portfolio) error {
	raw, err := json.Marshal(toStored(p))
	if err != nil {
		return fmt.Errorf("repo: marshal portfolio: %w", err)
	}
	return r.client.Set(ctx, portfolioKey(p.ID), raw, r.ttl).Err()
}

// FindByID returns the stored portfolio, or nil if no snapshot exists.
func (r *RedisPortfolioRepository) FindByID(ctx context.Context, id string) (*domain.Portfolio, error) {
	raw, err := r.client.Get(ctx, portfolioKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repo: get portfolio %s: %w", id, err)
	}
	var stored storedPortfolio
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("repo: unmarshal portfolio %s: %w", id, err)
	}
	return fromStored(stored)
}

// FindByUserID derives the conventional portfolio id for a user and looks
// it up.
func (r *RedisPortfolioRepository) FindByUserID(ctx context.Context, userID string) (*domain.Portfolio, error) {
	return r.FindByID(ctx, "portfolio_"+userID)
}

// Delete removes a portfolio snapshot.
func (r *RedisPortfolioRepository) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, portfolioKey(id)).Err()
}

// Exists reports whether a snapshot is stored for id.
func (r *RedisPortfolioRepository) Exists(ctx context.Context, id string) (bool, error) {
	count, err := r.client.Exists(ctx, portfolioKey(id)).Result()
	return count > 0, err
}

func toStored(p *domain.Portfolio) storedPortfolio {
	out := storedPortfolio{
		ID:          p.ID,
		UserID:      p.UserID,
		LastUpdated: p.LastUpdated(),
	}
	for _, src := range p.Sources() {
		out.Sources = append(out.Sources, string(src))
	}
	for _, a := range p.Assets() {
		sa := storedAsset{
			Symbol:          a.Symbol,
			Name:            a.Name,
			Type:            string(a.Type),
			Chain:           string(a.Chain),
			Amount:          a.Balance.Amount.String(),
			Decimals:        a.Balance.Decimals,
			ContractAddress: a.ContractAddress,
			Metadata:        a.Metadata,
		}
		if a.Price != nil {
			sa.PriceValue = a.Price.Value.String()
			sa.PriceCurrency = a.Price.Currency
		}
		out.Assets = append(out.Assets, sa)
	}
	return out
}

func fromStored(s storedPortfolio) (*domain.Portfolio, error) {
	p := domain.NewPortfolio(s.UserID)
	p.ID = s.ID

	for _, sa := range s.Assets {
		amount, err := parseDecimal(sa.Amount)
		if err != nil {
			return nil, err
		}
		asset, err := domain.NewAsset("", sa.Symbol, assetType(sa.Type), chainID(sa.Chain), domain.Balance{Amount: amount, Decimals: sa.Decimals})
		if err != nil {
			return nil, err
		}
		asset.Name = sa.Name
		asset.ContractAddress = sa.ContractAddress
		asset.Metadata = sa.Metadata
		if sa.PriceValue != "" {
			priceValue, err := parseDecimal(sa.PriceValue)
			if err != nil {
				return nil, err
			}
			asset.UpdatePrice(priceValue, sa.PriceCurrency, s.LastUpdated, "")
		}
		if err := p.AddAsset(asset); err != nil {
			return nil, err
		}
	}
	p.SetLastUpdated(s.LastUpdated)
	return p, nil
}
