package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/chainfolio/aggregator-core/internal/domain"
	"github.com/chainfolio/aggregator-core/internal/types"
)

func newAsset(t *testing.T, symbol string, chain types.ChainID, amount int64, sourceType types.SourceType) *domain.Asset {
	t.Helper()
	a, err := domain.NewAsset("", symbol, types.AssetCrypto, chain, domain.Balance{Amount: decimal.NewFromInt(amount)})
	if err != nil {
		t.Fatalf("NewAsset() error = %v", err)
	}
	a.Metadata.SourceType = sourceType
	return a
}

func TestReconcileDeduplication(t *testing.T) {
	assets := []*domain.Asset{
		newAsset(t, "eth", types.ChainEthereum, 1, types.SourceOnChain),
		newAsset(t, "eth", types.ChainEthereum, 2, types.SourceCEX),
		newAsset(t, "sol", types.ChainSolana, 3, types.SourceOnChain),
	}

	out, err := Reconcile(assets)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2 (pairwise-distinct asset keys)", len(out))
	}
	if len(out) > len(assets) {
		t.Fatalf("reconcile must never grow the list")
	}
}

func TestReconcileCommutativeUnderShuffle(t *testing.T) {
	forward := []*domain.Asset{
		newAsset(t, "eth", types.ChainEthereum, 1, types.SourceOnChain),
		newAsset(t, "eth", types.ChainEthereum, 2, types.SourceCEX),
		newAsset(t, "eth", types.ChainEthereum, 3, types.SourceDEX),
	}
	backward := []*domain.Asset{forward[2], forward[1], forward[0]}

	outForward, err := Reconcile(forward)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	outBackward, err := Reconcile(backward)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !outForward[0].Balance.Amount.Equal(outBackward[0].Balance.Amount) {
		t.Fatalf("reconcile is not commutative over balance sums: %s != %s",
			outForward[0].Balance.Amount, outBackward[0].Balance.Amount)
	}
}

func TestReconcileEmptyInput(t *testing.T) {
	out, err := Reconcile(nil)
	if err != nil {
		t.Fatalf("Reconcile(nil) error = %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("Reconcile(nil) = %v, want empty", out)
	}
}
