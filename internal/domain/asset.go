// Package domain holds the aggregation core's entities and aggregate root:
// Asset, Portfolio, and the domain events they emit.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chainfolio/aggregator-core/internal/apperrors"
	"github.com/chainfolio/aggregator-core/internal/types"
)

// Balance is a holding's size: a non-negative amount, the number of
// decimals it was minted with, and a pre-formatted display string.
type Balance struct {
	Amount    decimal.Decimal
	Decimals  int
	Formatted string
}

// FormatBalance renders amount at the given number of decimals the way
// on-chain balances are conventionally displayed (fixed-point, no
// trailing-zero trimming), so two providers reporting the same balance
// produce byte-identical display strings after a merge.
func FormatBalance(amount decimal.Decimal, decimals int) string {
	return amount.StringFixed(int32(decimals))
}

// Price is a point-in-time valuation: a rational value, a 3-letter
// currency code, and the time it was fetched.
type Price struct {
	Value     decimal.Decimal
	Currency  string
	Timestamp time.Time
	Source    string
}

// Metadata carries free-form provenance the reconciliation engine and
// aggregation service attach to an asset: which provider produced it, when
// it was fetched, its source-type precedence tag, and the append-only
// trail of providers that were merged into it.
type Metadata struct {
	Provider    string
	FetchedAt   time.Time
	SourceType  types.SourceType
	MergedFrom  []string
	Extra       map[string]interface{}
}

// Asset is a mutable entity representing one holding. Its identity is an
// opaque string, stable only within a single aggregation run.
type Asset struct {
	ID              string
	Symbol          string
	Name            string
	Type            types.AssetType
	Chain           types.ChainID
	Balance         Balance
	Price           *Price
	ContractAddress string
	ImageURL        string
	Metadata        Metadata
}

// NewAsset constructs an Asset, normalizing the symbol to upper-case and
// validating the non-negative-balance invariant. An empty id is assigned a
// fresh one.
func NewAsset(id, symbol string, assetType types.AssetType, chain types.ChainID, balance Balance) (*Asset, error) {
	symbol = types.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, apperrors.New(apperrors.KindInvalidInput, "asset symbol must not be empty")
	}
	if balance.Amount.IsNegative() {
		return nil, apperrors.New(apperrors.KindInvalidInput, "asset balance must be non-negative")
	}
	if id == "" {
		id = uuid.NewString()
	}
	if balance.Formatted == "" {
		balance.Formatted = FormatBalance(balance.Amount, balance.Decimals)
	}
	return &Asset{
		ID:      id,
		Symbol:  symbol,
		Type:    assetType,
		Chain:   chain,
		Balance: balance,
	}, nil
}

// NormalizedContract returns the lower-cased contract address, or "" if
// the asset carries no contract address (a native token).
func (a *Asset) NormalizedContract() string {
	return strings.ToLower(a.ContractAddress)
}

// Value returns balance.Amount * price.Value if a price is present; the
// second return value is false when there is no price to multiply by.
func (a *Asset) Value() (decimal.Decimal, bool) {
	if a.Price == nil {
		return decimal.Decimal{}, false
	}
	return a.Balance.Amount.Mul(a.Price.Value), true
}

// UpdatePrice is the only mutator for an asset's price record.
func (a *Asset) UpdatePrice(value decimal.Decimal, currency string, timestamp time.Time, source string) {
	a.Price = &Price{Value: value, Currency: currency, Timestamp: timestamp, Source: source}
}

// UpdateBalance is the only mutator for an asset's balance record. It
// refuses negative amounts.
func (a *Asset) UpdateBalance(amount decimal.Decimal, decimals int) error {
	if amount.IsNegative() {
		return apperrors.New(apperrors.KindInvalidInput, "asset balance must be non-negative")
	}
	a.Balance = Balance{Amount: amount, Decimals: decimals, Formatted: FormatBalance(amount, decimals)}
	return nil
}

// SameAsset implements the reconciliation engine's same-asset predicate:
// two assets are the same iff their chain tags are equal AND
//   - if both carry a contract address, the addresses match case-insensitively;
//   - if neither carries a contract address, their symbols match;
//   - if exactly one carries a contract address, they are never the same.
func SameAsset(a, b *Asset) bool {
	if a.Chain != b.Chain {
		return false
	}
	aHasContract := a.ContractAddress != ""
	bHasContract := b.ContractAddress != ""
	switch {
	case aHasContract && bHasContract:
		return a.NormalizedContract() == b.NormalizedContract()
	case !aHasContract && !bHasContract:
		return a.Symbol == b.Symbol
	default:
		return false
	}
}

// AssetKey returns the indexing key the reconciliation engine groups
// assets by: chain (or "unknown") : upper-case symbol : lower-case
// contract address (or "native").
func AssetKey(a *Asset) string {
	chain := string(a.Chain)
	if chain == "" {
		chain = string(types.ChainUnknown)
	}
	contract := a.NormalizedContract()
	if contract == "" {
		contract = "native"
	}
	return chain + ":" + a.Symbol + ":" + contract
}
