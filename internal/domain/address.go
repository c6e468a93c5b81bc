package domain

import (
	"time"

	"github.com/chainfolio/aggregator-core/internal/types"
)

// AddressEntry is a registry record: a (chain, normalized address) pair
// plus free-form tagging.
type AddressEntry struct {
	Chain     types.ChainID
	Address   string
	Label     string
	Tags      []string
	Source    types.AddressSource
	AddedAt   time.Time
	Metadata  map[string]interface{}
}
