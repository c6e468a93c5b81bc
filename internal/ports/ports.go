// Package ports declares the interfaces the aggregation core consumes
// from external collaborators it does not implement itself: data
// providers, the portfolio and address repositories, and the price
// valuator. Concrete adapters live outside this package (see demo/ for
// reference implementations, each exercised by its own package's tests).
package ports

import (
	"context"

	"github.com/chainfolio/aggregator-core/internal/domain"
	"github.com/chainfolio/aggregator-core/internal/types"
)

// RawAsset is the shape a Provider hands back from FetchAssets, before
// the caller translates it into a domain.Asset.
type RawAsset struct {
	Symbol          string
	Name            string
	Type            types.AssetType
	Chain           types.ChainID
	Balance         domain.Balance
	ContractAddress string
	ImageURL        string
	SourceType      types.SourceType
}

// Provider is a data source the sync orchestrator and aggregation service
// pull asset holdings from: an EVM RPC client, a Solana client, a
// brokerage HTTP client, and so on.
type Provider interface {
	// Source identifies this provider, e.g. "evm", "solana", "brokerage".
	Source() types.ProviderID
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	FetchAssets(ctx context.Context, addresses []string) ([]RawAsset, error)
	// FetchTransactions is optional; adapters that don't support it
	// return apperrors.KindInvalidInput wrapped in an error, or simply a
	// nil slice with no error if transactions are out of scope.
	FetchTransactions(ctx context.Context, addresses []string) ([]RawTransaction, error)
}

// RawTransaction is the optional transaction-history shape a Provider may
// surface; the aggregation core does not interpret it beyond passing it
// through to callers.
type RawTransaction struct {
	Hash      string
	Chain     types.ChainID
	Timestamp int64
	Payload   map[string]interface{}
}

// PortfolioRepository persists Portfolio snapshots. The aggregation
// service relies on FindByID returning a portfolio whose LastUpdated
// reflects when it was last written, for the cache-freshness check.
type PortfolioRepository interface {
	Save(ctx context.Context, p *domain.Portfolio) error
	FindByID(ctx context.Context, id string) (*domain.Portfolio, error)
	FindByUserID(ctx context.Context, userID string) (*domain.Portfolio, error)
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}

// Valuator supplies market prices and currency conversion. Adapters are
// expected to cache internally; InvalidateCache drops cached entries and
// is left to the host to call, since the aggregation service does not.
type Valuator interface {
	GetPrice(ctx context.Context, symbol, currency string) (domain.Price, error)
	GetBatchPrices(ctx context.Context, symbols []string, currency string) (map[string]domain.Price, error)
	ConvertValue(ctx context.Context, amount float64, from, to string) (float64, error)
	InvalidateCache(symbols []string)
}

// AddressRepository persists address entries. The registry keeps its
// entries in memory and does not use this port; no implementation of it
// ships in this repository.
type AddressRepository interface {
	Save(ctx context.Context, entry *domain.AddressEntry) error
	Remove(ctx context.Context, chain types.ChainID, address string) error
	FindByChain(ctx context.Context, chain types.ChainID) ([]*domain.AddressEntry, error)
	FindAll(ctx context.Context) ([]*domain.AddressEntry, error)
	FindByLabel(ctx context.Context, label string) ([]*domain.AddressEntry, error)
	Update(ctx context.Context, chain types.ChainID, address string, fields map[string]interface{}) error
	Clear(ctx context.Context) error
}
