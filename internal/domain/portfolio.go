package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chainfolio/aggregator-core/internal/money"
	"github.com/chainfolio/aggregator-core/internal/types"
)

// Portfolio is the aggregation core's aggregate root: a map from
// asset-key to Asset, a set of contributing provider sources, and a
// last-updated timestamp. Portfolio exclusively owns its Assets; every
// mutation goes through the methods below so asset-key uniqueness and
// balance conservation hold after each call.
type Portfolio struct {
	ID          string
	UserID      string
	assets      map[string]*Asset // keyed by asset-key, never by raw id
	sources     map[types.ProviderID]struct{}
	lastUpdated time.Time
}

// NewPortfolio constructs an empty portfolio. If userID is non-empty the
// portfolio id is derived from it; otherwise a fresh generated id is used.
func NewPortfolio(userID string) *Portfolio {
	id := userID
	if id == "" {
		id = uuid.NewString()
	}
	return &Portfolio{
		ID:          id,
		UserID:      userID,
		assets:      make(map[string]*Asset),
		sources:     make(map[types.ProviderID]struct{}),
		lastUpdated: time.Time{},
	}
}

// mergeFunc is the merge rule AddAsset applies on an asset-key hit; merge.go
// sets it to MergeAssets at init time.
var mergeFunc func(a, b *Asset) (*Asset, error)

// AddAsset looks up an existing asset under a's asset-key; on a hit it
// replaces that asset with their merge, otherwise it inserts a under its
// key. Matching is by asset-key only, not by a SameAsset scan: assets with
// the same contract address but different symbols are stored separately,
// and a key hit that fails SameAsset (an empty chain against "unknown")
// returns the merge error. Bumps last-updated on success.
func (p *Portfolio) AddAsset(a *Asset) error {
	if a == nil {
		return fmt.Errorf("domain: cannot add nil asset")
	}
	key := AssetKey(a)
	if existing, ok := p.assets[key]; ok {
		merged, err := mergeFunc(existing, a)
		if err != nil {
			return err
		}
		p.assets[key] = merged
	} else {
		p.assets[key] = a
	}
	p.touch()
	return nil
}

// RemoveAsset deletes the asset with the given id, if present, and bumps
// last-updated only when a deletion actually occurred.
func (p *Portfolio) RemoveAsset(id string) {
	for key, a := range p.assets {
		if a.ID == id {
			delete(p.assets, key)
			p.touch()
			return
		}
	}
}

// AddSource set-inserts a provider id into the portfolio's source set.
func (p *Portfolio) AddSource(src types.ProviderID) {
	p.sources[src] = struct{}{}
}

// MergePortfolio folds every asset and source of other into p, via
// AddAsset and AddSource respectively.
func (p *Portfolio) MergePortfolio(other *Portfolio) error {
	for _, a := range other.assets {
		if err := p.AddAsset(a); err != nil {
			return err
		}
	}
	for src := range other.sources {
		p.AddSource(src)
	}
	return nil
}

// Reconcile rebuilds the internal map by asset-key, merging any
// collisions. Because assets are already stored by asset-key, collisions
// can only arise if two distinct keys normalize to the same string after
// an asset's identifying fields were mutated in place; Reconcile is
// idempotent and safe to call defensively at any time.
func (p *Portfolio) Reconcile() error {
	current := make([]*Asset, 0, len(p.assets))
	for _, a := range p.assets {
		current = append(current, a)
	}
	rebuilt, err := reconcileFunc(current)
	if err != nil {
		return err
	}
	next := make(map[string]*Asset, len(rebuilt))
	for _, a := range rebuilt {
		next[AssetKey(a)] = a
	}
	p.assets = next
	return nil
}

// reconcileFunc is the group-and-merge reducer Reconcile applies; merge.go
// sets it to ReconcileAssets at init time.
var reconcileFunc func(assets []*Asset) ([]*Asset, error)

// GetTotalValue sums value() over every asset whose price currency equals
// currency. Assets with another currency, no price, or a negative value
// are skipped; an invalid currency code returns zero. This method never
// returns an error.
func (p *Portfolio) GetTotalValue(currency string) decimal.Decimal {
	total, err := money.New(decimal.Zero, currency)
	if err != nil {
		return decimal.Zero
	}
	for _, a := range p.assets {
		if a.Price == nil || a.Price.Currency != currency {
			continue
		}
		v, ok := a.Value()
		if !ok {
			continue
		}
		assetValue, err := money.New(v, currency)
		if err != nil {
			continue
		}
		if sum, err := total.Add(assetValue); err == nil {
			total = sum
		}
	}
	return total.Amount()
}

// GetAssetsByChain returns a filtered view of assets on the given chain.
// Order is undefined.
func (p *Portfolio) GetAssetsByChain(chain types.ChainID) []*Asset {
	var out []*Asset
	for _, a := range p.assets {
		if a.Chain == chain {
			out = append(out, a)
		}
	}
	return out
}

// GetAssetsByType returns a filtered view of assets of the given type.
// Order is undefined.
func (p *Portfolio) GetAssetsByType(t types.AssetType) []*Asset {
	var out []*Asset
	for _, a := range p.assets {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

// Assets returns every asset currently held, in undefined order.
func (p *Portfolio) Assets() []*Asset {
	out := make([]*Asset, 0, len(p.assets))
	for _, a := range p.assets {
		out = append(out, a)
	}
	return out
}

// Sources returns the set of providers that have contributed to this
// portfolio, as a slice in undefined order.
func (p *Portfolio) Sources() []types.ProviderID {
	out := make([]types.ProviderID, 0, len(p.sources))
	for s := range p.sources {
		out = append(out, s)
	}
	return out
}

// LastUpdated returns the timestamp of the most recent mutation.
func (p *Portfolio) LastUpdated() time.Time { return p.lastUpdated }

// IsEmpty reports whether the portfolio holds no assets.
func (p *Portfolio) IsEmpty() bool { return len(p.assets) == 0 }

// Clear removes every asset and source, and bumps last-updated.
func (p *Portfolio) Clear() {
	p.assets = make(map[string]*Asset)
	p.sources = make(map[types.ProviderID]struct{})
	p.touch()
}

func (p *Portfolio) touch() {
	now := time.Now()
	if now.After(p.lastUpdated) {
		p.lastUpdated = now
	}
}

// SetLastUpdated overrides the last-updated timestamp directly. Used by
// repository adapters reconstructing a Portfolio from a persisted
// snapshot, where rebuilding it through AddAsset must not count as fresh
// activity.
func (p *Portfolio) SetLastUpdated(t time.Time) {
	p.lastUpdated = t
}

// assetJSON mirrors the persistence snapshot's per-asset shape.
type assetJSON struct {
	ID              string      `json:"id"`
	Symbol          string      `json:"symbol"`
	Name            string      `json:"name,omitempty"`
	Type            string      `json:"type"`
	Chain           string      `json:"chain,omitempty"`
	Balance         balanceJSON `json:"balance"`
	Price           *priceJSON  `json:"price,omitempty"`
	Value           *string     `json:"value,omitempty"`
	ContractAddress string      `json:"contractAddress,omitempty"`
	ImageURL        string      `json:"imageUrl,omitempty"`
	Metadata        Metadata    `json:"metadata"`
}

type balanceJSON struct {
	Amount    string `json:"amount"`
	Decimals  int    `json:"decimals"`
	Formatted string `json:"formatted"`
}

type priceJSON struct {
	Value     string    `json:"value"`
	Currency  string    `json:"currency"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

type totalValueJSON struct {
	Value     string    `json:"value"`
	Currency  string    `json:"currency"`
	Timestamp time.Time `json:"timestamp"`
}

type portfolioJSON struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId,omitempty"`
	Assets      []assetJSON     `json:"assets"`
	TotalValue  *totalValueJSON `json:"totalValue,omitempty"`
	LastUpdated time.Time       `json:"lastUpdated"`
	Sources     []string        `json:"sources"`
}

// ToJSON serializes the portfolio to the persistence snapshot shape
// described for the portfolio repository port. valueCurrency, if
// non-empty, populates totalValue using GetTotalValue(valueCurrency).
func (p *Portfolio) ToJSON(valueCurrency string) ([]byte, error) {
	snapshot := portfolioJSON{
		ID:          p.ID,
		UserID:      p.UserID,
		LastUpdated: p.lastUpdated,
	}
	for _, a := range p.assets {
		aj := assetJSON{
			ID:     a.ID,
			Symbol: a.Symbol,
			Name:   a.Name,
			Type:   string(a.Type),
			Chain:  string(a.Chain),
			Balance: balanceJSON{
				Amount:    a.Balance.Amount.String(),
				Decimals:  a.Balance.Decimals,
				Formatted: a.Balance.Formatted,
			},
			ContractAddress: a.ContractAddress,
			ImageURL:        a.ImageURL,
			Metadata:        a.Metadata,
		}
		if a.Price != nil {
			aj.Price = &priceJSON{
				Value:     a.Price.Value.String(),
				Currency:  a.Price.Currency,
				Timestamp: a.Price.Timestamp,
				Source:    a.Price.Source,
			}
			if v, ok := a.Value(); ok {
				s := v.String()
				aj.Value = &s
			}
		}
		snapshot.Assets = append(snapshot.Assets, aj)
	}
	for _, s := range p.Sources() {
		snapshot.Sources = append(snapshot.Sources, string(s))
	}
	if valueCurrency != "" {
		snapshot.TotalValue = &totalValueJSON{
			Value:     p.GetTotalValue(valueCurrency).String(),
			Currency:  valueCurrency,
			Timestamp: time.Now(),
		}
	}
	return json.Marshal(snapshot)
}
