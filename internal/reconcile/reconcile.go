// Package reconcile is the reconciliation engine's public face: the
// same-asset predicate, the asset-key indexing function, and the merge
// rule that collapses duplicate holdings reported by multiple providers
// into one. The actual reduction logic lives in the domain package as
// functions over *Asset, since the Portfolio aggregate needs it too and Go doesn't allow
// the import cycle that would otherwise result; this package is the
// stable entry point callers outside domain should use.
package reconcile

import (
	"github.com/chainfolio/aggregator-core/internal/domain"
)

// SameAsset implements the same-asset predicate: two assets are the same
// iff their chain tags are equal AND either both carry a matching contract
// address or neither carries a contract address and their symbols match.
func SameAsset(a, b *domain.Asset) bool {
	return domain.SameAsset(a, b)
}

// AssetKey returns the indexing key used to group same-assets:
// chain:symbol:contract (contract defaults to "native").
func AssetKey(a *domain.Asset) string {
	return domain.AssetKey(a)
}

// Merge reduces two same-assets a and b into one, following the
// source-type precedence rule: on-chain < dex < cex < manual, ties
// resolving to a. It fails with apperrors.DifferentAssetsMerged if a and b
// do not satisfy the same-asset predicate.
func Merge(a, b *domain.Asset) (*domain.Asset, error) {
	return domain.MergeAssets(a, b)
}

// Reconcile groups assets by asset-key and reduces each group with Merge.
// The output preserves at most one asset per key.
func Reconcile(assets []*domain.Asset) ([]*domain.Asset, error) {
	return domain.ReconcileAssets(assets)
}
