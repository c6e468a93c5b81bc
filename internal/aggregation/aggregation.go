// Package aggregation implements the aggregation service: the end-to-end
// cache → fan-out → reconcile → enrich → persist → emit pipeline that
// turns an address set and a provider list into a deduplicated,
// price-enriched Portfolio.
package aggregation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chainfolio/aggregator-core/internal/apperrors"
	"github.com/chainfolio/aggregator-core/internal/domain"
	"github.com/chainfolio/aggregator-core/internal/eventbus"
	"github.com/chainfolio/aggregator-core/internal/logging"
	"github.com/chainfolio/aggregator-core/internal/ports"
	"github.com/chainfolio/aggregator-core/internal/types"
)

// Params are the inputs to AggregatePortfolio.
type Params struct {
	Addresses    map[types.ChainID][]string
	Sources      []types.ProviderID
	UserID       string
	ForceRefresh bool
}

// Service is the aggregation service: it owns no providers or
// repositories (those are injected and their lifecycle belongs to the
// host) and drives the pipeline described for aggregatePortfolio.
type Service struct {
	providers  map[types.ProviderID]ports.Provider
	repository ports.PortfolioRepository
	valuator   ports.Valuator
	bus        *eventbus.Bus
	cacheTTL   time.Duration
	currency   string
}

// New constructs an aggregation Service. currency selects the value
// currency used for the totalValue figure published in lifecycle events.
func New(providers map[types.ProviderID]ports.Provider, repository ports.PortfolioRepository, valuator ports.Valuator, bus *eventbus.Bus, cacheTTL time.Duration, currency string) *Service {
	return &Service{
		providers:  providers,
		repository: repository,
		valuator:   valuator,
		bus:        bus,
		cacheTTL:   cacheTTL,
		currency:   currency,
	}
}

// AggregatePortfolio runs the full pipeline: cache short-circuit, fan-out
// fetch, reconcile, price enrichment, persistence, and event emission.
func (s *Service) AggregatePortfolio(ctx context.Context, params Params) (*domain.Portfolio, error) {
	portfolioID := derivePortfolioID(params.UserID)

	if !params.ForceRefresh {
		if cached, ok := s.freshCached(ctx, portfolioID); ok {
			return cached, nil
		}
	}

	start := time.Now()
	s.bus.Publish(domain.NewEvent(domain.EventPortfolioAggregationStarted, portfolioID, map[string]interface{}{
		"sources":   params.Sources,
		"addresses": params.Addresses,
	}))

	portfolio := domain.NewPortfolio(params.UserID)
	portfolio.ID = portfolioID

	targetProviders := params.Sources
	if len(targetProviders) == 0 {
		targetProviders = s.allProviderIDs()
	}

	if err := s.fetchAndReconcile(ctx, portfolio, targetProviders, params.Addresses); err != nil {
		s.bus.Publish(domain.NewEvent(domain.EventPortfolioAggregationFailed, portfolioID, map[string]interface{}{
			"error": err.Error(),
		}))
		return nil, apperrors.Wrap(apperrors.KindAggregationFatal, "aggregation pipeline failed", err)
	}

	s.enrichPrices(ctx, portfolio)

	if err := s.repository.Save(ctx, portfolio); err != nil {
		s.bus.Publish(domain.NewEvent(domain.EventPortfolioAggregationFailed, portfolioID, map[string]interface{}{
			"error": err.Error(),
		}))
		return nil, apperrors.Wrap(apperrors.KindAggregationFatal, "failed to persist portfolio", err)
	}

	s.bus.Publish(domain.NewEvent(domain.EventPortfolioAggregationCompleted, portfolioID, map[string]interface{}{
		"totalValue": portfolio.GetTotalValue(s.currency).String(),
		"assetCount": len(portfolio.Assets()),
		"duration":   time.Since(start),
	}))

	return portfolio, nil
}

// freshCached returns the repository's stored portfolio if it exists and
// is within cacheTTL of now; this is the only synchronous short-circuit
// in the pipeline.
func (s *Service) freshCached(ctx context.Context, portfolioID string) (*domain.Portfolio, bool) {
	existing, err := s.repository.FindByID(ctx, portfolioID)
	if err != nil || existing == nil {
		return nil, false
	}
	if time.Since(existing.LastUpdated()) < s.cacheTTL {
		return existing, true
	}
	return nil, false
}

// fetchAndReconcile fans out one fetch per target provider with a
// non-empty relevant address set, merges each provider's assets in as
// they complete, then runs a full defense-in-depth reconciliation pass.
func (s *Service) fetchAndReconcile(ctx context.Context, portfolio *domain.Portfolio, targetProviders []types.ProviderID, addresses map[types.ChainID][]string) error {
	type fetchResult struct {
		provider types.ProviderID
		assets   []ports.RawAsset
		err      error
	}

	var wg sync.WaitGroup
	results := make(chan fetchResult, len(targetProviders))

	for _, name := range targetProviders {
		provider, ok := s.providers[name]
		if !ok {
			continue
		}
		relevant := relevantAddresses(name, addresses)
		if len(relevant) == 0 {
			continue
		}

		wg.Add(1)
		go func(name types.ProviderID, provider ports.Provider, relevant []string) {
			defer wg.Done()
			assets, err := fetchFromProvider(ctx, provider, relevant)
			results <- fetchResult{provider: name, assets: assets, err: err}
		}(name, provider, relevant)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if res.err != nil {
			logging.WithFields(map[string]interface{}{"provider": string(res.provider)}).WithError(res.err).Warn("provider fetch failed during aggregation")
			s.bus.Publish(domain.NewEvent(domain.EventIntegrationSourceFailed, portfolio.ID, map[string]interface{}{
				"provider": res.provider,
				"error":    res.err.Error(),
			}))
			continue
		}
		for _, raw := range res.assets {
			asset, err := rawToDomainAsset(raw, res.provider)
			if err != nil {
				logging.WithError(err).Warn("dropping malformed asset from provider")
				continue
			}
			if err := portfolio.AddAsset(asset); err != nil {
				logging.WithError(err).Warn("failed to add asset to portfolio")
				continue
			}
			s.bus.Publish(domain.NewEvent(domain.EventAssetAddedToPortfolio, portfolio.ID, map[string]interface{}{
				"provider": res.provider,
				"symbol":   asset.Symbol,
			}))
		}
		portfolio.AddSource(res.provider)
	}

	s.bus.Publish(domain.NewEvent(domain.EventPortfolioReconciliationStarted, portfolio.ID, nil))
	if err := portfolio.Reconcile(); err != nil {
		return err
	}
	s.bus.Publish(domain.NewEvent(domain.EventPortfolioReconciliationCompleted, portfolio.ID, map[string]interface{}{
		"assetCount": len(portfolio.Assets()),
	}))
	return nil
}

func fetchFromProvider(ctx context.Context, provider ports.Provider, addresses []string) ([]ports.RawAsset, error) {
	if !provider.IsConnected() {
		if err := provider.Connect(ctx); err != nil {
			return nil, err
		}
	}
	return provider.FetchAssets(ctx, addresses)
}

func rawToDomainAsset(raw ports.RawAsset, provider types.ProviderID) (*domain.Asset, error) {
	asset, err := domain.NewAsset("", raw.Symbol, raw.Type, raw.Chain, raw.Balance)
	if err != nil {
		return nil, err
	}
	asset.Name = raw.Name
	asset.ContractAddress = raw.ContractAddress
	asset.ImageURL = raw.ImageURL
	asset.Metadata = domain.Metadata{
		Provider:   string(provider),
		FetchedAt:  time.Now(),
		SourceType: raw.SourceType,
	}
	return asset, nil
}

// enrichPrices collects the distinct set of symbols held in portfolio and
// batch-fetches prices for them, best-effort: a valuator failure is
// caught and logged, leaving assets unpriced rather than failing the run.
func (s *Service) enrichPrices(ctx context.Context, portfolio *domain.Portfolio) {
	if s.valuator == nil {
		return
	}
	symbols := distinctSymbols(portfolio.Assets())
	if len(symbols) == 0 {
		return
	}

	prices, err := s.valuator.GetBatchPrices(ctx, symbols, s.currency)
	if err != nil {
		logging.WithError(err).Warn("price enrichment failed, continuing with unpriced assets")
		return
	}
	for _, asset := range portfolio.Assets() {
		price, ok := prices[asset.Symbol]
		if !ok {
			continue
		}
		asset.UpdatePrice(price.Value, price.Currency, price.Timestamp, price.Source)
		s.bus.Publish(domain.NewEvent(domain.EventAssetPriceUpdated, portfolio.ID, map[string]interface{}{
			"symbol": asset.Symbol,
			"price":  price.Value.String(),
		}))
	}
}

// RefreshPortfolio loads the existing portfolio, reconstructs an address
// map from its assets' chains, and forces a fresh aggregation run.
func (s *Service) RefreshPortfolio(ctx context.Context, id string) (*domain.Portfolio, error) {
	existing, err := s.repository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperrors.PortfolioNotFound(id)
	}

	addresses := make(map[types.ChainID][]string)
	for _, asset := range existing.Assets() {
		if asset.Chain == "" {
			continue
		}
		addresses[asset.Chain] = append(addresses[asset.Chain], asset.ContractAddress)
	}

	return s.AggregatePortfolio(ctx, Params{
		Addresses:    addresses,
		UserID:       existing.UserID,
		ForceRefresh: true,
	})
}

// GetPortfolio returns the stored portfolio by id, or nil if it does not
// exist.
func (s *Service) GetPortfolio(ctx context.Context, id string) (*domain.Portfolio, error) {
	return s.repository.FindByID(ctx, id)
}

// OnPortfolioEvent subscribes a handler to a portfolio lifecycle event
// type, returning an idempotent unsubscribe handle.
func (s *Service) OnPortfolioEvent(eventType domain.EventType, h eventbus.Handler) eventbus.Unsubscribe {
	return s.bus.Subscribe(eventType, h)
}

func (s *Service) allProviderIDs() []types.ProviderID {
	out := make([]types.ProviderID, 0, len(s.providers))
	for name := range s.providers {
		out = append(out, name)
	}
	return out
}

func derivePortfolioID(userID string) string {
	if userID != "" {
		return "portfolio_" + userID
	}
	return fmt.Sprintf("portfolio_%d", time.Now().UnixMilli())
}

var evmChains = types.EVMChains

// relevantAddresses computes a provider's relevant address subset: EVM
// providers get the union of every EVM
// chain's addresses, the Solana provider gets the solana chain's
// addresses, the brokerage provider gets the sentinel "default" (it has
// no addresses), and any other provider id gets nothing.
func relevantAddresses(provider types.ProviderID, addresses map[types.ChainID][]string) []string {
	switch provider {
	case "evm":
		seen := make(map[string]struct{})
		var out []string
		for _, chain := range evmChains {
			for _, addr := range addresses[chain] {
				if _, dup := seen[addr]; dup {
					continue
				}
				seen[addr] = struct{}{}
				out = append(out, addr)
			}
		}
		return out
	case "solana":
		return dedupe(addresses[types.ChainSolana])
	case "brokerage":
		return []string{"default"}
	default:
		return nil
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func distinctSymbols(assets []*domain.Asset) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, a := range assets {
		if _, ok := seen[a.Symbol]; ok {
			continue
		}
		seen[a.Symbol] = struct{}{}
		out = append(out, a.Symbol)
	}
	return out
}
