package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainfolio/aggregator-core/internal/types"
)

func TestSameAsset(t *testing.T) {
	eth1, _ := NewAsset("", "eth", types.AssetCrypto, types.ChainEthereum, Balance{Amount: decimal.NewFromInt(1)})
	eth2, _ := NewAsset("", "ETH", types.AssetCrypto, types.ChainEthereum, Balance{Amount: decimal.NewFromInt(2)})
	if !SameAsset(eth1, eth2) {
		t.Fatalf("expected native assets with matching symbol and chain to be the same")
	}

	usdcA, _ := NewAsset("", "usdc", types.AssetToken, types.ChainEthereum, Balance{Amount: decimal.NewFromInt(1)})
	usdcA.ContractAddress = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	usdcB, _ := NewAsset("", "usdc", types.AssetToken, types.ChainEthereum, Balance{Amount: decimal.NewFromInt(1)})
	usdcB.ContractAddress = "0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48"
	if !SameAsset(usdcA, usdcB) {
		t.Fatalf("expected contract addresses to compare equal case-insensitively")
	}

	onePolygon, _ := NewAsset("", "matic", types.AssetCrypto, types.ChainPolygon, Balance{Amount: decimal.NewFromInt(1)})
	if SameAsset(eth1, onePolygon) {
		t.Fatalf("expected assets on different chains to never be the same")
	}

	mixed, _ := NewAsset("", "usdc", types.AssetToken, types.ChainEthereum, Balance{Amount: decimal.NewFromInt(1)})
	if SameAsset(usdcA, mixed) {
		t.Fatalf("expected an asset with a contract address to never match one without")
	}
}

func TestAssetKey(t *testing.T) {
	native, _ := NewAsset("", "eth", types.AssetCrypto, types.ChainEthereum, Balance{Amount: decimal.NewFromInt(1)})
	if got, want := AssetKey(native), "ethereum:ETH:native"; got != want {
		t.Fatalf("AssetKey() = %q, want %q", got, want)
	}

	token, _ := NewAsset("", "usdc", types.AssetToken, types.ChainEthereum, Balance{Amount: decimal.NewFromInt(1)})
	token.ContractAddress = "0xABCDEF"
	if got, want := AssetKey(token), "ethereum:USDC:0xabcdef"; got != want {
		t.Fatalf("AssetKey() = %q, want %q", got, want)
	}

	unknownChain, _ := NewAsset("", "aapl", types.AssetStock, "", Balance{Amount: decimal.NewFromInt(1)})
	if got, want := AssetKey(unknownChain), "unknown:AAPL:native"; got != want {
		t.Fatalf("AssetKey() = %q, want %q", got, want)
	}
}

func TestAssetValue(t *testing.T) {
	a, _ := NewAsset("", "eth", types.AssetCrypto, types.ChainEthereum, Balance{Amount: decimal.NewFromFloat(2)})
	if _, ok := a.Value(); ok {
		t.Fatalf("expected Value() to be undefined before a price is set")
	}
	a.UpdatePrice(decimal.NewFromFloat(3000), "USD", time.Now(), "coingecko")
	v, ok := a.Value()
	if !ok {
		t.Fatalf("expected Value() to be defined once a price is set")
	}
	if !v.Equal(decimal.NewFromFloat(6000)) {
		t.Fatalf("Value() = %s, want 6000", v)
	}
}

func TestNewAssetRejectsNegativeBalance(t *testing.T) {
	_, err := NewAsset("", "eth", types.AssetCrypto, types.ChainEthereum, Balance{Amount: decimal.NewFromInt(-1)})
	if err == nil {
		t.Fatalf("expected error for negative balance")
	}
}
