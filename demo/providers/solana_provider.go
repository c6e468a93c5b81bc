package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainfolio/aggregator-core/internal/apperrors"
	"github.com/chainfolio/aggregator-core/internal/domain"
	"github.com/chainfolio/aggregator-core/internal/ports"
	"github.com/chainfolio/aggregator-core/internal/types"
)

var base58Address = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// SolanaProvider fetches native SOL balances over a Solana JSON-RPC
// endpoint's getBalance method. It avoids pulling in a full Solana SDK,
// matching the size of the other reference providers.
type SolanaProvider struct {
	rpcURL string
	http   *http.Client

	mu        sync.RWMutex
	connected bool
}

// NewSolanaProvider constructs a provider bound to a Solana RPC endpoint.
func NewSolanaProvider(rpcURL string) *SolanaProvider {
	return &SolanaProvider{rpcURL: rpcURL, http: &http.Client{Timeout: 10 * time.Second}}
}

var _ ports.Provider = (*SolanaProvider)(nil)

// Source identifies this provider.
func (p *SolanaProvider) Source() types.ProviderID { return "solana" }

// Connect performs a lightweight getHealth probe against the endpoint.
func (p *SolanaProvider) Connect(ctx context.Context) error {
	if _, err := p.call(ctx, "getHealth", []interface{}{}); err != nil {
		return apperrors.Wrap(apperrors.KindProviderFailure, "solana rpc health check failed", err)
	}
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return nil
}

// Disconnect marks the provider as disconnected; there is no persistent
// connection to tear down for a plain JSON-RPC client.
func (p *SolanaProvider) Disconnect(context.Context) error {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}

// IsConnected reports the last Connect outcome.
func (p *SolanaProvider) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// FetchAssets returns the native SOL balance for every well-formed
// base58 address in addresses.
func (p *SolanaProvider) FetchAssets(ctx context.Context, addresses []string) ([]ports.RawAsset, error) {
	var out []ports.RawAsset
	for _, address := range addresses {
		if !base58Address.MatchString(address) {
			continue
		}
		result, err := p.call(ctx, "getBalance", []interface{}{address})
		if err != nil {
			return out, apperrors.Wrap(apperrors.KindProviderFailure, "fetch solana balance", err)
		}

		var parsed struct {
			Value uint64 `json:"value"`
		}
		if err := json.Unmarshal(result, &parsed); err != nil {
			return out, apperrors.Wrap(apperrors.KindProviderFailure, "parse solana balance response", err)
		}

		amount := decimal.NewFromInt(int64(parsed.Value)).Shift(-9) // lamports -> SOL
		out = append(out, ports.RawAsset{
			Symbol:     "SOL",
			Type:       types.AssetCrypto,
			Chain:      types.ChainSolana,
			Balance:    domain.Balance{Amount: amount, Decimals: 9, Formatted: domain.FormatBalance(amount, 9)},
			SourceType: types.SourceOnChain,
		})
	}
	return out, nil
}

// FetchTransactions is out of scope for this reference provider.
func (p *SolanaProvider) FetchTransactions(context.Context, []string) ([]ports.RawTransaction, error) {
	return nil, apperrors.New(apperrors.KindInvalidInput, "solana provider does not support transaction history")
}

func (p *SolanaProvider) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rpcResponse struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResponse); err != nil {
		return nil, err
	}
	if rpcResponse.Error != nil {
		return nil, fmt.Errorf("solana rpc error %d: %s", rpcResponse.Error.Code, rpcResponse.Error.Message)
	}
	return rpcResponse.Result, nil
}
