package aggregation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainfolio/aggregator-core/internal/domain"
	"github.com/chainfolio/aggregator-core/internal/eventbus"
	"github.com/chainfolio/aggregator-core/internal/ports"
	"github.com/chainfolio/aggregator-core/internal/types"
)

type fakeProvider struct {
	name      types.ProviderID
	assets    []ports.RawAsset
	connected bool
	err       error
}

func (f *fakeProvider) Source() types.ProviderID { return f.name }
func (f *fakeProvider) Connect(context.Context) error {
	f.connected = true
	return nil
}
func (f *fakeProvider) Disconnect(context.Context) error { f.connected = false; return nil }
func (f *fakeProvider) IsConnected() bool                 { return f.connected }
func (f *fakeProvider) FetchAssets(context.Context, []string) ([]ports.RawAsset, error) {
	return f.assets, f.err
}
func (f *fakeProvider) FetchTransactions(context.Context, []string) ([]ports.RawTransaction, error) {
	return nil, nil
}

type fakeRepository struct {
	mu    sync.Mutex
	store map[string]*domain.Portfolio
}

func newFakeRepository() *fakeRepository { return &fakeRepository{store: make(map[string]*domain.Portfolio)} }

func (r *fakeRepository) Save(_ context.Context, p *domain.Portfolio) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[p.ID] = p
	return nil
}
func (r *fakeRepository) FindByID(_ context.Context, id string) (*domain.Portfolio, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store[id], nil
}
func (r *fakeRepository) FindByUserID(ctx context.Context, userID string) (*domain.Portfolio, error) {
	return r.FindByID(ctx, "portfolio_"+userID)
}
func (r *fakeRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.store, id)
	return nil
}
func (r *fakeRepository) Exists(ctx context.Context, id string) (bool, error) {
	p, _ := r.FindByID(ctx, id)
	return p != nil, nil
}

type fakeValuator struct{ prices map[string]domain.Price }

func (v *fakeValuator) GetPrice(_ context.Context, symbol, _ string) (domain.Price, error) {
	return v.prices[symbol], nil
}
func (v *fakeValuator) GetBatchPrices(_ context.Context, symbols []string, _ string) (map[string]domain.Price, error) {
	out := make(map[string]domain.Price)
	for _, s := range symbols {
		if p, ok := v.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}
func (v *fakeValuator) ConvertValue(context.Context, float64, string, string) (float64, error) {
	return 0, nil
}
func (v *fakeValuator) InvalidateCache([]string) {}

func TestAggregatePortfolioFansOutAndEnriches(t *testing.T) {
	evm := &fakeProvider{name: "evm", assets: []ports.RawAsset{
		{Symbol: "eth", Type: types.AssetCrypto, Chain: types.ChainEthereum, Balance: domain.Balance{}},
	}}
	repo := newFakeRepository()
	valuator := &fakeValuator{prices: map[string]domain.Price{
		"ETH": {Value: decimal.NewFromInt(3000), Currency: "USD", Timestamp: time.Now()},
	}}
	bus := eventbus.New(nil)

	svc := New(map[types.ProviderID]ports.Provider{"evm": evm}, repo, valuator, bus, 5*time.Minute, "USD")

	portfolio, err := svc.AggregatePortfolio(context.Background(), Params{
		Addresses: map[types.ChainID][]string{types.ChainEthereum: {"0xabc"}},
	})
	if err != nil {
		t.Fatalf("AggregatePortfolio() error = %v", err)
	}
	if len(portfolio.Assets()) != 1 {
		t.Fatalf("len(assets) = %d, want 1", len(portfolio.Assets()))
	}
	if portfolio.Assets()[0].Price == nil {
		t.Fatalf("expected price enrichment to have set a price")
	}
}

func TestAggregatePortfolioIsolatesProviderFailures(t *testing.T) {
	healthy := &fakeProvider{name: "solana", assets: []ports.RawAsset{
		{Symbol: "sol", Type: types.AssetCrypto, Chain: types.ChainSolana, Balance: domain.Balance{}},
	}}
	broken := &fakeProvider{name: "evm", err: context.DeadlineExceeded}
	repo := newFakeRepository()
	bus := eventbus.New(nil)

	var mu sync.Mutex
	var sourceFailedCount, completedCount int
	bus.Subscribe(domain.EventIntegrationSourceFailed, func(domain.Event) error {
		mu.Lock()
		sourceFailedCount++
		mu.Unlock()
		return nil
	})
	bus.Subscribe(domain.EventPortfolioAggregationCompleted, func(domain.Event) error {
		mu.Lock()
		completedCount++
		mu.Unlock()
		return nil
	})

	svc := New(map[types.ProviderID]ports.Provider{"evm": broken, "solana": healthy}, repo, nil, bus, 5*time.Minute, "USD")

	portfolio, err := svc.AggregatePortfolio(context.Background(), Params{
		Addresses: map[types.ChainID][]string{
			types.ChainEthereum: {"0xabc"},
			types.ChainSolana:   {"sol-addr"},
		},
	})
	if err != nil {
		t.Fatalf("AggregatePortfolio() error = %v, want nil (provider failures are isolated)", err)
	}
	if len(portfolio.Assets()) != 1 {
		t.Fatalf("len(assets) = %d, want 1 (only the healthy provider's asset)", len(portfolio.Assets()))
	}
	sources := portfolio.Sources()
	if len(sources) != 1 || sources[0] != "solana" {
		t.Fatalf("sources = %v, want only [solana]", sources)
	}
	if sourceFailedCount != 1 {
		t.Fatalf("IntegrationSourceFailed events = %d, want exactly 1", sourceFailedCount)
	}
	if completedCount != 1 {
		t.Fatalf("PortfolioAggregationCompleted events = %d, want exactly 1", completedCount)
	}
}

func TestAggregatePortfolioCacheShortCircuit(t *testing.T) {
	repo := newFakeRepository()
	bus := eventbus.New(nil)
	svc := New(map[types.ProviderID]ports.Provider{}, repo, nil, bus, time.Hour, "USD")

	cached := domain.NewPortfolio("user-1")
	cached.ID = "portfolio_user-1"
	cached.SetLastUpdated(time.Now())
	_ = repo.Save(context.Background(), cached)

	portfolio, err := svc.AggregatePortfolio(context.Background(), Params{UserID: "user-1"})
	if err != nil {
		t.Fatalf("AggregatePortfolio() error = %v", err)
	}
	if portfolio != cached {
		t.Fatalf("expected the cache short-circuit to return the same cached portfolio instance")
	}
}

func TestRefreshPortfolioNotFound(t *testing.T) {
	repo := newFakeRepository()
	bus := eventbus.New(nil)
	svc := New(map[types.ProviderID]ports.Provider{}, repo, nil, bus, time.Minute, "USD")

	_, err := svc.RefreshPortfolio(context.Background(), "portfolio_missing")
	if err == nil {
		t.Fatalf("expected PortfolioNotFound error")
	}
}

