// Package chain defines the supported chains and their parameters.
// Dispatch is by enumerated chain ID, never by raw currency strings.
package chain

import "strings"

// Family represents the ledger model of a chain.
type Family string

const (
	FamilyEVM  Family = "evm"  // account-based, Ethereum-compatible
	FamilyUTXO Family = "utxo" // unspent-output based, insight-style explorers
)

// ID identifies a supported chain.
type ID string

const (
	ETH    ID = "ETH"
	BNB    ID = "BNB"
	MATIC  ID = "MATIC"
	ARBETH ID = "ARBETH"
	GHOST  ID = "GHOST"
	NEXT   ID = "NEXT"
)

// Ticker returns the chain ticker (same as the ID for native coins).
func (id ID) Ticker() string {
	return string(id)
}

// Key returns the lower-cased form used for storage and cache keys.
func (id ID) Key() string {
	return strings.ToLower(string(id))
}

// FeePolicy is the admin-fee policy for a chain: a percentage of the
// sent amount with a fixed minimum, paid to Address. A nil policy means
// the chain charges no admin fee.
type FeePolicy struct {
	Percent float64 // percent of the sent amount
	Min     float64 // minimum fee in display units
	Address string  // fee recipient
}

// Params contains all parameters for a chain. Immutable after startup.
type Params struct {
	ID       ID
	Name     string
	Family   Family
	Decimals uint8

	// BIP44 coin type for mnemonic derivation.
	CoinType uint32

	// EVM parameters.
	ChainID      uint64
	GasLimitSend uint64 // default gas limit for plain value transfers

	// UTXO network parameters.
	PubKeyHashAddrID byte
	ScriptHashAddrID byte
	WIF              byte
	HDPrivateKeyID   [4]byte
	HDPublicKeyID    [4]byte

	// Explorer is the endpoint name this chain's adapter queries.
	Explorer string

	// AdminFee is set from configuration at startup; nil disables the fee.
	AdminFee *FeePolicy
}

// IsEVM reports whether the chain is account-based.
func (p *Params) IsEVM() bool {
	return p.Family == FamilyEVM
}

var registry = make(map[ID]*Params)

// Register adds chain params to the registry.
func Register(params *Params) {
	registry[params.ID] = params
}

// Get returns chain params for an ID.
func Get(id ID) (*Params, bool) {
	params, ok := registry[id]
	return params, ok
}

// List returns all registered chain IDs.
func List() []ID {
	ids := make([]ID, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	return ids
}

// ListByFamily returns all chains of the given family.
func ListByFamily(family Family) []ID {
	var ids []ID
	for id, params := range registry {
		if params.Family == family {
			ids = append(ids, id)
		}
	}
	return ids
}

// IsSupported returns true if the chain is registered.
func IsSupported(id ID) bool {
	_, ok := registry[id]
	return ok
}
