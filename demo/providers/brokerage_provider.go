package providers

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/chainfolio/aggregator-core/internal/apperrors"
	"github.com/chainfolio/aggregator-core/internal/domain"
	"github.com/chainfolio/aggregator-core/internal/ports"
	"github.com/chainfolio/aggregator-core/internal/types"
)

// BrokerageProvider is an in-memory stand-in for a brokerage API client.
// Brokerage holdings aren't addressed by chain/address the way on-chain
// assets are, so this provider ignores the addresses argument entirely
// and returns a fixed holding set keyed by the "default" sentinel the
// aggregation service routes to it.
type BrokerageProvider struct {
	mu        sync.RWMutex
	connected bool
	holdings  []ports.RawAsset
}

// NewBrokerageProvider constructs a provider seeded with a holding set.
// A real adapter would fetch this from a brokerage's positions API.
func NewBrokerageProvider(holdings []ports.RawAsset) *BrokerageProvider {
	return &BrokerageProvider{holdings: holdings}
}

var _ ports.Provider = (*BrokerageProvider)(nil)

// Source identifies this provider.
func (p *BrokerageProvider) Source() types.ProviderID { return "brokerage" }

// Connect simulates authenticating with the brokerage API.
func (p *BrokerageProvider) Connect(context.Context) error {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return nil
}

// Disconnect simulates tearing down the brokerage session.
func (p *BrokerageProvider) Disconnect(context.Context) error {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}

// IsConnected reports the last Connect outcome.
func (p *BrokerageProvider) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// FetchAssets returns the seeded holding set, ignoring addresses.
func (p *BrokerageProvider) FetchAssets(context.Context, []string) ([]ports.RawAsset, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ports.RawAsset, len(p.holdings))
	copy(out, p.holdings)
	return out, nil
}

// FetchTransactions is out of scope for this reference provider.
func (p *BrokerageProvider) FetchTransactions(context.Context, []string) ([]ports.RawTransaction, error) {
	return nil, apperrors.New(apperrors.KindInvalidInput, "brokerage provider does not support transaction history")
}

// NewStockHolding builds a CEX-sourced stock RawAsset, a convenience for
// seeding a BrokerageProvider in tests and examples. shares must parse as
// a decimal; an unparsable value produces a zero balance.
func NewStockHolding(symbol, shares string) ports.RawAsset {
	amount, _ := decimal.NewFromString(shares)
	return ports.RawAsset{
		Symbol:     symbol,
		Type:       types.AssetStock,
		SourceType: types.SourceCEX,
		Balance: domain.Balance{
			Amount:    amount,
			Decimals:  0,
			Formatted: domain.FormatBalance(amount, 0),
		},
	}
}
