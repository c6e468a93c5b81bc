// Package valuator holds a reference ports.Valuator implementation: a
// static exchange-rate table behind an internally-cached lookup. The
// rates carry no normative weight, only the Valuator port contract does.
package valuator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainfolio/aggregator-core/internal/apperrors"
	"github.com/chainfolio/aggregator-core/internal/domain"
	"github.com/chainfolio/aggregator-core/internal/ports"
)

type cacheEntry struct {
	price    domain.Price
	cachedAt time.Time
}

// Static is a single-writer, in-memory Valuator backed by a fixed
// symbol-to-USD rate table, with an internal TTL cache so repeated
// GetPrice/GetBatchPrices calls within ttl don't recompute anything.
type Static struct {
	mu    sync.Mutex
	rates map[string]decimal.Decimal // symbol -> USD price
	cache map[string]cacheEntry
	ttl   time.Duration
}

// NewStatic constructs a valuator from a symbol->USD rate table. ttl, if
// zero, falls back to the core's default price-cache TTL.
func NewStatic(rates map[string]decimal.Decimal, ttl time.Duration) *Static {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Static{rates: rates, cache: make(map[string]cacheEntry), ttl: ttl}
}

var _ ports.Valuator = (*Static)(nil)

// GetPrice returns the cached or freshly computed price for symbol in
// currency. Only USD is natively priced; any other currency is rejected
// since this reference adapter does no currency conversion.
func (s *Static) GetPrice(ctx context.Context, symbol, currency string) (domain.Price, error) {
	if currency == "" {
		currency = "USD"
	}
	if strings.ToUpper(currency) != "USD" {
		return domain.Price{}, apperrors.New(apperrors.KindInvalidInput, "static valuator only prices in USD")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	symbol = strings.ToUpper(symbol)
	if entry, ok := s.cache[symbol]; ok && time.Since(entry.cachedAt) < s.ttl {
		return entry.price, nil
	}

	rate, ok := s.rates[symbol]
	if !ok {
		return domain.Price{}, apperrors.New(apperrors.KindInvalidInput, "no rate for symbol "+symbol)
	}
	price := domain.Price{Value: rate, Currency: "USD", Timestamp: time.Now(), Source: "static-demo-valuator"}
	s.cache[symbol] = cacheEntry{price: price, cachedAt: price.Timestamp}
	return price, nil
}

// GetBatchPrices resolves every symbol it has a rate for; symbols with no
// known rate are simply absent from the result rather than failing the
// whole call, matching the aggregation service's best-effort enrichment
// contract.
func (s *Static) GetBatchPrices(ctx context.Context, symbols []string, currency string) (map[string]domain.Price, error) {
	out := make(map[string]domain.Price, len(symbols))
	for _, symbol := range symbols {
		price, err := s.GetPrice(ctx, symbol, currency)
		if err != nil {
			continue
		}
		out[strings.ToUpper(symbol)] = price
	}
	return out, nil
}

// ConvertValue converts amount from one currency to another via the
// static USD rate table. from and to must both resolve to a known symbol
// or be "USD" itself.
func (s *Static) ConvertValue(ctx context.Context, amount float64, from, to string) (float64, error) {
	fromRate, err := s.rateFor(from)
	if err != nil {
		return 0, err
	}
	toRate, err := s.rateFor(to)
	if err != nil {
		return 0, err
	}
	return amount * fromRate / toRate, nil
}

func (s *Static) rateFor(code string) (float64, error) {
	code = strings.ToUpper(code)
	if code == "USD" {
		return 1, nil
	}
	s.mu.Lock()
	rate, ok := s.rates[code]
	s.mu.Unlock()
	if !ok {
		return 0, apperrors.New(apperrors.KindInvalidInput, "no rate for currency "+code)
	}
	f, _ := rate.Float64()
	return f, nil
}

// InvalidateCache drops the cached price for every symbol given, or the
// entire cache if symbols is empty.
func (s *Static) InvalidateCache(symbols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(symbols) == 0 {
		s.cache = make(map[string]cacheEntry)
		return
	}
	for _, symbol := range symbols {
		delete(s.cache, strings.ToUpper(symbol))
	}
}
