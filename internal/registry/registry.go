// Package registry implements the address registry: chain-aware format
// validation and normalization, plus a simple in-memory store of address
// entries keyed by (chain, normalized address).
package registry

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chainfolio/aggregator-core/internal/apperrors"
	"github.com/chainfolio/aggregator-core/internal/domain"
	"github.com/chainfolio/aggregator-core/internal/eventbus"
	"github.com/chainfolio/aggregator-core/internal/types"
)

var (
	evmAddressPattern     = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	solanaAddressPattern  = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
	bitcoinP2PKHPattern   = regexp.MustCompile(`^1[1-9A-HJ-NP-Za-km-z]{25,34}$`)
	bitcoinP2SHPattern    = regexp.MustCompile(`^3[1-9A-HJ-NP-Za-km-z]{25,34}$`)
	bitcoinBech32Pattern  = regexp.MustCompile(`^bc1[0-9a-z]{11,71}$`)
)

// Validate reports whether address is a well-formed address for chain,
// per the format rules for EVM chains, Solana, Bitcoin, and the
// any-non-empty-string-under-100-chars fallback for unknown chains.
func Validate(chain types.ChainID, address string) bool {
	switch {
	case chain.IsEVM():
		return evmAddressPattern.MatchString(address)
	case chain == types.ChainSolana:
		return solanaAddressPattern.MatchString(address)
	case chain == types.ChainBitcoin:
		return bitcoinP2PKHPattern.MatchString(address) ||
			bitcoinP2SHPattern.MatchString(address) ||
			bitcoinBech32Pattern.MatchString(address)
	default:
		return address != "" && len(address) < 100
	}
}

// Normalize returns address in its canonical stored form: lower-cased for
// EVM chains, unchanged for every other chain.
func Normalize(chain types.ChainID, address string) string {
	if chain.IsEVM() {
		return strings.ToLower(address)
	}
	return address
}

// WalletConnection is the minimal shape a wallet-discovery connector must
// expose for discoverAddresses: the numeric chain id it is connected to
// (EIP-155 style) and the addresses it reports controlling.
type WalletConnection interface {
	ChainID() string
	Addresses() []string
}

type entryKey struct {
	chain   types.ChainID
	address string
}

// Registry is an in-memory address book. It does not load from or save to
// a ports.AddressRepository, so its entries last only as long as the
// process; the aggregation service and sync orchestrator do not read it.
type Registry struct {
	mu      sync.RWMutex
	entries map[entryKey]*domain.AddressEntry
	bus     *eventbus.Bus
}

// New constructs an empty registry. bus may be nil; every publish through
// it is then a no-op per the event-bus's nil-Bus contract.
func New(bus *eventbus.Bus) *Registry {
	return &Registry{entries: make(map[entryKey]*domain.AddressEntry), bus: bus}
}

// AddAddress validates and normalizes address for chain, then stores it
// with the given label and tags. Returns apperrors.InvalidAddress if the
// format check fails.
func (r *Registry) AddAddress(chain types.ChainID, address, label string, tags []string, source types.AddressSource) (*domain.AddressEntry, error) {
	if !Validate(chain, address) {
		return nil, apperrors.InvalidAddress(string(chain), address)
	}
	normalized := Normalize(chain, address)

	entry := &domain.AddressEntry{
		Chain:   chain,
		Address: normalized,
		Label:   label,
		Tags:    tags,
		Source:  source,
		AddedAt: time.Now(),
	}

	r.mu.Lock()
	r.entries[entryKey{chain: chain, address: normalized}] = entry
	r.mu.Unlock()

	r.bus.Publish(domain.NewEvent(domain.EventAddressAdded, normalized, map[string]interface{}{
		"chain": chain, "label": label, "source": source,
	}))
	return entry, nil
}

// RemoveAddress deletes the entry for (chain, address), if present.
func (r *Registry) RemoveAddress(chain types.ChainID, address string) {
	normalized := Normalize(chain, address)
	r.mu.Lock()
	_, existed := r.entries[entryKey{chain: chain, address: normalized}]
	delete(r.entries, entryKey{chain: chain, address: normalized})
	r.mu.Unlock()

	if existed {
		r.bus.Publish(domain.NewEvent(domain.EventAddressRemoved, normalized, map[string]interface{}{"chain": chain}))
	}
}

// UpdateMetadata merges fields into the entry's metadata map for
// (chain, address). A no-op if the entry does not exist.
func (r *Registry) UpdateMetadata(chain types.ChainID, address string, fields map[string]interface{}) {
	normalized := Normalize(chain, address)
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[entryKey{chain: chain, address: normalized}]
	if !ok {
		return
	}
	if entry.Metadata == nil {
		entry.Metadata = make(map[string]interface{})
	}
	for k, v := range fields {
		entry.Metadata[k] = v
	}
	r.bus.Publish(domain.NewEvent(domain.EventAddressMetadataUpdated, normalized, map[string]interface{}{"chain": chain}))
}

// GetAddresses returns every entry, optionally filtered to one chain. An
// empty chain argument returns entries for every chain.
func (r *Registry) GetAddresses(chain types.ChainID) []*domain.AddressEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.AddressEntry
	for key, entry := range r.entries {
		if chain != "" && key.chain != chain {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// GetByLabel returns every entry carrying the given label.
func (r *Registry) GetByLabel(label string) []*domain.AddressEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.AddressEntry
	for _, entry := range r.entries {
		if entry.Label == label {
			out = append(out, entry)
		}
	}
	return out
}

// DiscoverAddresses pulls addresses from a wallet connection, maps its
// numeric chain id to a ChainID, and registers every discovered address
// with AddressSourceDiscovered. Addresses that fail the chain's format
// check are skipped rather than failing the whole call.
func (r *Registry) DiscoverAddresses(conn WalletConnection) []*domain.AddressEntry {
	chain := types.ChainIDFromWalletChainID(conn.ChainID())

	var out []*domain.AddressEntry
	for _, addr := range conn.Addresses() {
		entry, err := r.AddAddress(chain, addr, "", nil, types.AddressSourceDiscovered)
		if err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// Clear removes every entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[entryKey]*domain.AddressEntry)
}
