package reconcile

import (
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/chainfolio/aggregator-core/internal/domain"
	"github.com/chainfolio/aggregator-core/internal/types"
)

var sourceTypes = []types.SourceType{types.SourceOnChain, types.SourceDEX, types.SourceCEX, types.SourceManual}

func genAssetBatch() gopter.Gen {
	return gen.SliceOfN(12, gen.IntRange(0, 2)).Map(func(symbolIdx []int) []*domain.Asset {
		symbols := []string{"eth", "sol", "usdc"}
		rng := rand.New(rand.NewSource(int64(len(symbolIdx))))
		out := make([]*domain.Asset, 0, len(symbolIdx))
		for i, idx := range symbolIdx {
			amount := decimal.NewFromInt(int64(1 + (i % 7)))
			a, err := domain.NewAsset("", symbols[idx], types.AssetCrypto, types.ChainEthereum, domain.Balance{Amount: amount})
			if err != nil {
				continue
			}
			a.Metadata.SourceType = sourceTypes[rng.Intn(len(sourceTypes))]
			out = append(out, a)
		}
		return out
	})
}

// TestReconcilePropertiesHold exercises deduplication, balance
// conservation via the key-grouped sum, and idempotence over randomly
// generated asset batches sharing one chain and a small symbol alphabet,
// so collisions are common enough to be worth reconciling.
func TestReconcilePropertiesHold(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("reconcile produces pairwise-distinct asset keys and never grows the list", prop.ForAll(
		func(assets []*domain.Asset) bool {
			out, err := Reconcile(assets)
			if err != nil {
				return false
			}
			seen := make(map[string]bool)
			for _, a := range out {
				key := AssetKey(a)
				if seen[key] {
					return false
				}
				seen[key] = true
			}
			return len(out) <= len(assets)
		},
		genAssetBatch(),
	))

	properties.Property("reconcile conserves total balance per key group", prop.ForAll(
		func(assets []*domain.Asset) bool {
			wantByKey := make(map[string]decimal.Decimal)
			for _, a := range assets {
				wantByKey[AssetKey(a)] = wantByKey[AssetKey(a)].Add(a.Balance.Amount)
			}
			out, err := Reconcile(assets)
			if err != nil {
				return false
			}
			for _, a := range out {
				if !a.Balance.Amount.Equal(wantByKey[AssetKey(a)]) {
					return false
				}
			}
			return true
		},
		genAssetBatch(),
	))

	properties.Property("reconcile is idempotent on its own output", prop.ForAll(
		func(assets []*domain.Asset) bool {
			once, err := Reconcile(assets)
			if err != nil {
				return false
			}
			twice, err := Reconcile(once)
			if err != nil {
				return false
			}
			if len(once) != len(twice) {
				return false
			}
			byKey := make(map[string]decimal.Decimal)
			for _, a := range once {
				byKey[AssetKey(a)] = a.Balance.Amount
			}
			for _, a := range twice {
				amt, ok := byKey[AssetKey(a)]
				if !ok || !amt.Equal(a.Balance.Amount) {
					return false
				}
			}
			return true
		},
		genAssetBatch(),
	))

	properties.TestingRun(t)
}

// TestReconcileCommutesUnderShuffleProperty checks that reconciling a
// shuffled batch yields the same multiset of (key, balance) pairs as the
// original order.
func TestReconcileCommutesUnderShuffleProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("reconcile is commutative under input shuffling", prop.ForAll(
		func(assets []*domain.Asset) bool {
			shuffled := make([]*domain.Asset, len(assets))
			copy(shuffled, assets)
			rand.New(rand.NewSource(int64(len(assets) + 1))).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})

			outOriginal, err := Reconcile(assets)
			if err != nil {
				return false
			}
			outShuffled, err := Reconcile(shuffled)
			if err != nil {
				return false
			}

			return sameKeyBalanceMultiset(outOriginal, outShuffled)
		},
		genAssetBatch(),
	))

	properties.TestingRun(t)
}

func sameKeyBalanceMultiset(a, b []*domain.Asset) bool {
	if len(a) != len(b) {
		return false
	}
	toMap := func(assets []*domain.Asset) map[string]decimal.Decimal {
		m := make(map[string]decimal.Decimal, len(assets))
		for _, asset := range assets {
			m[AssetKey(asset)] = asset.Balance.Amount
		}
		return m
	}
	ma, mb := toMap(a), toMap(b)
	if len(ma) != len(mb) {
		return false
	}
	for k, v := range ma {
		other, ok := mb[k]
		if !ok || !v.Equal(other) {
			return false
		}
	}
	return true
}
