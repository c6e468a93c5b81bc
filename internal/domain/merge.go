package domain

import (
	"github.com/chainfolio/aggregator-core/internal/apperrors"
	"github.com/chainfolio/aggregator-core/internal/types"
)

// MergeAssets reduces two same-assets a and b into one, following the
// source-type precedence rule: on-chain < dex < cex < manual, ties
// resolving to a. It fails with apperrors.DifferentAssetsMerged if a and b
// do not satisfy the same-asset predicate.
func MergeAssets(a, b *Asset) (*Asset, error) {
	if !SameAsset(a, b) {
		return nil, apperrors.DifferentAssetsMerged(a.ID, b.ID)
	}

	preferred, other := a, b
	if rank(b) < rank(a) {
		preferred, other = b, a
	}

	merged := *preferred
	merged.Balance = Balance{
		Amount:   preferred.Balance.Amount.Add(other.Balance.Amount),
		Decimals: preferred.Balance.Decimals,
	}
	merged.Balance.Formatted = FormatBalance(merged.Balance.Amount, merged.Balance.Decimals)

	merged.Price = laterPrice(preferred, other)

	if merged.Name == "" {
		merged.Name = other.Name
	}
	if merged.ContractAddress == "" {
		merged.ContractAddress = other.ContractAddress
	}
	if merged.ImageURL == "" {
		merged.ImageURL = other.ImageURL
	}

	merged.Metadata.MergedFrom = mergedFromTrail(preferred, other)

	return &merged, nil
}

func rank(a *Asset) int {
	if a.Metadata.SourceType == "" {
		return types.SourceManual.Rank() + 1
	}
	return a.Metadata.SourceType.Rank()
}

// laterPrice picks the price with the later Price.Timestamp (when it was
// quoted), falling back to whichever side has a price; ties go to the
// preferred side. Metadata.FetchedAt is not consulted.
func laterPrice(preferred, other *Asset) *Price {
	switch {
	case preferred.Price == nil && other.Price == nil:
		return nil
	case preferred.Price == nil:
		return other.Price
	case other.Price == nil:
		return preferred.Price
	}
	if other.Price.Timestamp.After(preferred.Price.Timestamp) {
		return other.Price
	}
	return preferred.Price
}

func mergedFromTrail(preferred, other *Asset) []string {
	var out []string
	out = append(out, preferred.Metadata.MergedFrom...)
	out = append(out, other.Metadata.MergedFrom...)
	if other.Metadata.Provider != "" {
		out = append(out, other.Metadata.Provider)
	}
	return dedupeEmpty(out)
}

func dedupeEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ReconcileAssets groups assets by asset-key and reduces each group with
// MergeAssets. The output preserves at most one asset per key.
func ReconcileAssets(assets []*Asset) ([]*Asset, error) {
	order := make([]string, 0, len(assets))
	groups := make(map[string]*Asset, len(assets))

	for _, a := range assets {
		key := AssetKey(a)
		existing, ok := groups[key]
		if !ok {
			groups[key] = a
			order = append(order, key)
			continue
		}
		merged, err := MergeAssets(existing, a)
		if err != nil {
			return nil, err
		}
		groups[key] = merged
	}

	out := make([]*Asset, 0, len(order))
	for _, key := range order {
		out = append(out, groups[key])
	}
	return out, nil
}

func init() {
	mergeFunc = MergeAssets
	reconcileFunc = ReconcileAssets
}
