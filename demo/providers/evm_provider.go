// Package providers holds reference ports.Provider implementations: a
// live EVM RPC client, a Solana RPC client, and an in-memory brokerage
// stub, each exercised by this package's own tests.
package providers

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/chainfolio/aggregator-core/internal/apperrors"
	"github.com/chainfolio/aggregator-core/internal/domain"
	"github.com/chainfolio/aggregator-core/internal/ports"
	"github.com/chainfolio/aggregator-core/internal/types"
)

// EVMProvider fetches native-asset balances from an EVM-compatible RPC
// endpoint. It handles every EVM chain the registry recognizes; the
// caller decides which chain's addresses to route to it.
type EVMProvider struct {
	chain  types.ChainID
	rpcURL string

	mu     sync.RWMutex
	client *ethclient.Client
}

// NewEVMProvider constructs a provider bound to one EVM chain and its RPC
// endpoint. The connection itself is deferred to Connect.
func NewEVMProvider(chain types.ChainID, rpcURL string) *EVMProvider {
	return &EVMProvider{chain: chain, rpcURL: rpcURL}
}

var _ ports.Provider = (*EVMProvider)(nil)

// Source identifies this provider to the orchestrator and aggregation
// service.
func (p *EVMProvider) Source() types.ProviderID { return "evm" }

// Connect dials the RPC endpoint.
func (p *EVMProvider) Connect(ctx context.Context) error {
	client, err := ethclient.DialContext(ctx, p.rpcURL)
	if err != nil {
		return apperrors.Wrap(apperrors.KindProviderFailure, "dial evm rpc endpoint", err)
	}
	p.mu.Lock()
	p.client = client
	p.mu.Unlock()
	return nil
}

// Disconnect closes the RPC client.
func (p *EVMProvider) Disconnect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
	return nil
}

// IsConnected reports whether a client is currently dialed.
func (p *EVMProvider) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client != nil
}

// FetchAssets returns the native-asset balance for every well-formed
// address in addresses. Malformed addresses are skipped rather than
// failing the whole call, matching the aggregation service's
// partial-failure isolation at the asset level.
func (p *EVMProvider) FetchAssets(ctx context.Context, addresses []string) ([]ports.RawAsset, error) {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()
	if client == nil {
		return nil, apperrors.New(apperrors.KindProviderFailure, "evm provider is not connected")
	}

	var out []ports.RawAsset
	for _, address := range addresses {
		if !common.IsHexAddress(address) {
			continue
		}
		balance, err := client.BalanceAt(ctx, common.HexToAddress(address), nil)
		if err != nil {
			return out, apperrors.Wrap(apperrors.KindProviderFailure, "fetch native balance", err)
		}

		amount := decimal.NewFromBigInt(balance, -18)
		out = append(out, ports.RawAsset{
			Symbol:     nativeSymbol(p.chain),
			Type:       types.AssetCrypto,
			Chain:      p.chain,
			Balance:    domain.Balance{Amount: amount, Decimals: 18, Formatted: domain.FormatBalance(amount, 18)},
			SourceType: types.SourceOnChain,
		})
	}
	return out, nil
}

// FetchTransactions is out of scope for this reference provider.
func (p *EVMProvider) FetchTransactions(context.Context, []string) ([]ports.RawTransaction, error) {
	return nil, apperrors.New(apperrors.KindInvalidInput, "evm provider does not support transaction history")
}

func nativeSymbol(chain types.ChainID) string {
	switch chain {
	case types.ChainPolygon:
		return "MATIC"
	case types.ChainBinance:
		return "BNB"
	default:
		return "ETH"
	}
}
