package repo

import (
	"github.com/shopspring/decimal"

	"github.com/chainfolio/aggregator-core/internal/types"
)

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func assetType(s string) types.AssetType { return types.AssetType(s) }

func chainID(s string) types.ChainID { return types.ChainID(s) }
