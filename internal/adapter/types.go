// Package adapter implements the per-chain transaction engines. Each
// adapter speaks one chain family (EVM node RPC or insight-style UTXO
// explorer) behind a common interface keyed by chain ID.
package adapter

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/swapdeck/walletd/internal/chain"
)

var (
	// ErrSigningFailed is returned when no usable key material exists
	// for the sending address.
	ErrSigningFailed = errors.New("adapter: signing failed")

	// ErrBroadcastFailed is returned when a built transaction is
	// rejected by the node or explorer.
	ErrBroadcastFailed = errors.New("adapter: broadcast failed")

	// ErrInsufficientFunds is returned when the inputs cannot cover the
	// amount plus miner fee.
	ErrInsufficientFunds = errors.New("adapter: insufficient funds")

	// ErrUnknownChain is returned by the registry for unregistered
	// chain IDs.
	ErrUnknownChain = errors.New("adapter: unknown chain")
)

// FeeSpeed selects a miner-fee tier for estimation and sending.
type FeeSpeed string

const (
	SpeedSlow   FeeSpeed = "slow"
	SpeedNormal FeeSpeed = "normal"
	SpeedFast   FeeSpeed = "fast"
)

// Direction classifies a history entry relative to the queried address.
type Direction string

const (
	DirectionIn   Direction = "in"
	DirectionOut  Direction = "out"
	DirectionSelf Direction = "self"
)

// HistoryEntry is one transaction in an address history, amounts in
// display units.
type HistoryEntry struct {
	Chain         chain.ID  `json:"chain"`
	Hash          string    `json:"hash"`
	Direction     Direction `json:"direction"`
	Value         float64   `json:"value"`
	Address       string    `json:"address"`
	Confirmations int64     `json:"confirmations"`
	Confirmed     bool      `json:"confirmed"`
	Time          time.Time `json:"time"`
}

// Output is one transaction output (UTXO chains only).
type Output struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
}

// TxInfo is the normalized per-transaction view, amounts in display
// units.
type TxInfo struct {
	Chain           chain.ID `json:"chain"`
	Hash            string   `json:"hash"`
	SenderAddress   string   `json:"senderAddress"`
	ReceiverAddress string   `json:"receiverAddress"`
	Amount          float64  `json:"amount"`
	Confirmed       bool     `json:"confirmed"`
	Confirmations   int64    `json:"confirmations"`

	MinerFee         float64 `json:"minerFee"`
	MinerFeeCurrency string  `json:"minerFeeCurrency"`

	// AdminFee is meaningful only when AdminFeeApplied is true.
	AdminFee        float64 `json:"adminFee"`
	AdminFeeApplied bool    `json:"adminFeeApplied"`

	// AfterBalance is the change returned to the sender, when it could
	// be identified among the outputs.
	AfterBalance    float64  `json:"afterBalance"`
	HasAfterBalance bool     `json:"hasAfterBalance"`
	Outputs         []Output `json:"outputs,omitempty"`
}

// SendParams describe an outgoing transfer. Amount is in display
// units. Zero-valued fee fields mean "estimate".
type SendParams struct {
	From   string
	To     string
	Amount float64
	Speed  FeeSpeed

	// GasPrice and GasLimit override estimation on EVM chains.
	GasPrice *big.Int
	GasLimit uint64

	// FeeRate overrides estimation on UTXO chains, in sat/byte.
	FeeRate int64

	// ExternalKey is key material supplied by an externally connected
	// wallet. Sends signed with it carry no admin-fee leg.
	ExternalKey string
}

// Submitted is the immediate result of a send: the transaction hash is
// known as soon as the main transfer is accepted, while Confirmed
// resolves later with the first confirmation.
type Submitted struct {
	Hash      string
	Confirmed <-chan Confirmation
}

// Confirmation reports the outcome of waiting for a submitted
// transaction to confirm.
type Confirmation struct {
	Hash          string
	Confirmations int64
	Err           error
}

// Adapter is the per-chain transaction engine.
type Adapter interface {
	// Chain returns the chain this adapter serves.
	Chain() chain.ID

	// FetchBalance returns the confirmed and unconfirmed balance of an
	// address in display units. Failures record a balance error on the
	// owning account and report zero.
	FetchBalance(ctx context.Context, address string) (balance, unconfirmed float64)

	// Balance returns the primary account balance through the shared
	// 30-second cache.
	Balance(ctx context.Context) float64

	// FetchTransactionHistory lists transactions touching an address.
	// Explorer failures collapse to an empty list.
	FetchTransactionHistory(ctx context.Context, address string) []HistoryEntry

	// FetchTransactionInfo returns the normalized view of one
	// transaction.
	FetchTransactionInfo(ctx context.Context, hash string) (*TxInfo, error)

	// EstimateFee returns the fee rate for a speed tier: wei gas price
	// on EVM chains, sat/byte on UTXO chains. Estimation failures
	// collapse to zero and the send path falls back to its default.
	EstimateFee(ctx context.Context, speed FeeSpeed) *big.Int

	// BuildAndSend builds, signs and broadcasts a transfer, returning
	// as soon as the hash is known. When an admin-fee policy applies, a
	// detached best-effort fee transfer is dispatched after the main
	// hash is obtained; its failure never affects the returned result.
	BuildAndSend(ctx context.Context, params *SendParams) (*Submitted, error)
}

// Registry maps chain IDs to their adapters.
type Registry struct {
	adapters map[chain.ID]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[chain.ID]Adapter)}
}

// Register adds an adapter.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Chain()] = a
}

// Get returns the adapter for a chain.
func (r *Registry) Get(id chain.ID) (Adapter, error) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, ErrUnknownChain
	}
	return a, nil
}

// Chains returns the registered chain IDs.
func (r *Registry) Chains() []chain.ID {
	ids := make([]chain.ID, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}
