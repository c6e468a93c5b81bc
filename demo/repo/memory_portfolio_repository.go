package repo

import (
	"context"
	"sync"

	"github.com/chainfolio/aggregator-core/internal/domain"
	"github.com/chainfolio/aggregator-core/internal/ports"
)

// MemoryPortfolioRepository is a process-local ports.PortfolioRepository,
// useful for a demo run or a host application with no durability
// requirement.
type MemoryPortfolioRepository struct {
	mu    sync.RWMutex
	store map[string]*domain.Portfolio
}

// NewMemoryPortfolioRepository constructs an empty repository.
func NewMemoryPortfolioRepository() *MemoryPortfolioRepository {
	return &MemoryPortfolioRepository{store: make(map[string]*domain.Portfolio)}
}

var _ ports.PortfolioRepository = (*MemoryPortfolioRepository)(nil)

func (r *MemoryPortfolioRepository) Save(_ context.Context, p *domain.Portfolio) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[p.ID] = p
	return nil
}

func (r *MemoryPortfolioRepository) FindByID(_ context.Context, id string) (*domain.Portfolio, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store[id], nil
}

func (r *MemoryPortfolioRepository) FindByUserID(ctx context.Context, userID string) (*domain.Portfolio, error) {
	return r.FindByID(ctx, "portfolio_"+userID)
}

func (r *MemoryPortfolioRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.store, id)
	return nil
}

func (r *MemoryPortfolioRepository) Exists(ctx context.Context, id string) (bool, error) {
	p, _ := r.FindByID(ctx, id)
	return p != nil, nil
}
