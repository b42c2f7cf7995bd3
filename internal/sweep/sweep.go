// Package sweep manages the migration of pre-mnemonic accounts onto
// mnemonic-derived keys. Each chain has its own coordinator; sweep
// state is never stored, it is recomputed from the loaded addresses.
package sweep

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/swapdeck/walletd/internal/adapter"
	"github.com/swapdeck/walletd/internal/chain"
	"github.com/swapdeck/walletd/internal/keys"
	"github.com/swapdeck/walletd/internal/storage"
	"github.com/swapdeck/walletd/pkg/logging"
)

// State is the sweep progress for one chain.
type State string

const (
	// StateNotSwept: the active key predates the mnemonic.
	StateNotSwept State = "not_swept"
	// StatePending: a mnemonic-derived sweep account is loaded next to
	// the primary account and funds still need moving.
	StatePending State = "pending"
	// StateSwept: the active account is mnemonic-derived.
	StateSwept State = "swept"
)

// ErrMissingMnemonicKey is returned when a pending sweep cannot locate
// the chain-specific mnemonic key. It is terminal for the login
// attempt: no replacement account is created.
var ErrMissingMnemonicKey = errors.New("sweep: mnemonic key unavailable")

// mnemonicErased is the placeholder stored once the user confirms the
// mnemonic was written down and it is wiped from the client.
const mnemonicErased = "-"

// LoginOptions carry the credentials for loading one chain's wallet.
type LoginOptions struct {
	// PrivateKey is existing key material; empty means derive (or
	// create) a mnemonic wallet.
	PrivateKey string
	// Mnemonic is the user mnemonic, or "-" after it was erased.
	Mnemonic string
	// MnemonicKeys maps chains to their mnemonic-derived key material.
	MnemonicKeys map[chain.ID]string
}

// Coordinator runs login and sweep bookkeeping for one chain.
type Coordinator struct {
	params   *chain.Params
	accounts *keys.AccountStore
	store    *storage.Store
	adapter  adapter.Adapter
	log      *logging.Logger
	detached atomic.Bool
}

// NewCoordinator creates a sweep coordinator for a chain.
func NewCoordinator(params *chain.Params, accounts *keys.AccountStore, store *storage.Store, ad adapter.Adapter, log *logging.Logger) *Coordinator {
	return &Coordinator{
		params:   params,
		accounts: accounts,
		store:    store,
		adapter:  ad,
		log:      log.Component("sweep/" + params.ID.Key()),
	}
}

// Detach suppresses further sweep-driven account writes. In-flight
// balance fetches are not aborted; their results are discarded.
func (c *Coordinator) Detach() {
	c.detached.Store(true)
}

// Attach re-enables account writes after a Detach.
func (c *Coordinator) Attach() {
	c.detached.Store(false)
}

// Login loads the chain account from the supplied credentials and
// works out the sweep position. With no private key at all, a mnemonic
// wallet is created (generating a mnemonic if needed) and the account
// is immediately mnemonic-derived. With a private key, the account is
// mnemonic-derived only when the key matches the chain's
// mnemonic-derived key; otherwise a sweep account is loaded alongside
// it, which requires the chain's mnemonic key to be available.
func (c *Coordinator) Login(ctx context.Context, opts *LoginOptions) (keys.Account, error) {
	id := c.params.ID
	material := strings.TrimSpace(opts.PrivateKey)
	ready := false

	if material == "" {
		mnemonic := opts.Mnemonic
		if mnemonic == "" || mnemonic == mnemonicErased {
			generated, err := keys.GenerateMnemonic()
			if err != nil {
				return keys.Account{}, err
			}
			mnemonic = generated
			c.log.Info("generated new mnemonic wallet")
		}
		kp, err := keys.Derive(c.params, mnemonic, 0)
		if err != nil {
			return keys.Account{}, err
		}
		material = kp.Material
		ready = true
	} else if mnemonicKey, ok := opts.MnemonicKeys[id]; ok && mnemonicKey == material {
		ready = true
	} else if opts.Mnemonic != "" && opts.Mnemonic != mnemonicErased {
		if kp, err := keys.Derive(c.params, opts.Mnemonic, 0); err == nil && kp.Material == material {
			ready = true
		}
	}

	kp, err := keys.FromMaterial(c.params, material)
	if err != nil {
		return keys.Account{}, err
	}

	primary := &keys.Account{Chain: id, Keypair: kp, MnemonicDerived: ready}
	c.accounts.SetPrimary(primary)
	if err := c.store.PutKey(id, storage.RolePrimary, material); err != nil {
		return keys.Account{}, err
	}
	if ready {
		c.accounts.ClearSweep(id)
		if err := c.store.PutKey(id, storage.RoleMnemonic, material); err != nil {
			return keys.Account{}, err
		}
		c.log.Debug("login complete", "address", kp.Address, "swept", true)
		return *primary, nil
	}

	// Pending sweep: the mnemonic-derived key must already exist, it is
	// never created here.
	sweepMaterial, ok := opts.MnemonicKeys[id]
	if !ok {
		if opts.Mnemonic == "" || opts.Mnemonic == mnemonicErased || !keys.ValidateMnemonic(opts.Mnemonic) {
			return *primary, ErrMissingMnemonicKey
		}
		sweepKp, err := keys.Derive(c.params, opts.Mnemonic, 0)
		if err != nil {
			return *primary, ErrMissingMnemonicKey
		}
		sweepMaterial = sweepKp.Material
	}

	sweepKp, err := keys.FromMaterial(c.params, sweepMaterial)
	if err != nil {
		return *primary, ErrMissingMnemonicKey
	}
	if err := c.store.PutKey(id, storage.RoleMnemonic, sweepMaterial); err != nil {
		return *primary, err
	}

	if strings.EqualFold(sweepKp.Address, kp.Address) {
		// Same account after all; nothing left to sweep.
		primary.MnemonicDerived = true
		c.accounts.SetPrimary(primary)
		return *primary, nil
	}

	c.accounts.SetSweep(&keys.Account{Chain: id, Keypair: sweepKp, MnemonicDerived: true})
	c.log.Debug("login complete", "address", kp.Address, "sweepAddress", sweepKp.Address)

	go c.refreshSweepBalance(sweepKp.Address)
	return *primary, nil
}

// LoadStored re-creates the login from persisted key material.
func (c *Coordinator) LoadStored(ctx context.Context) (keys.Account, error) {
	material, err := c.store.Key(c.params.ID, storage.RolePrimary)
	if err != nil {
		return keys.Account{}, err
	}
	opts := &LoginOptions{PrivateKey: material}
	if mnemonicKey, err := c.store.Key(c.params.ID, storage.RoleMnemonic); err == nil {
		opts.MnemonicKeys = map[chain.ID]string{c.params.ID: mnemonicKey}
	}
	return c.Login(ctx, opts)
}

func (c *Coordinator) refreshSweepBalance(address string) {
	if c.detached.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	balance, unconfirmed := c.adapter.FetchBalance(ctx, address)
	if c.detached.Load() {
		return
	}
	c.accounts.SetBalance(c.params.ID, true, balance, unconfirmed)
}

// State reports the sweep position, recomputed from the loaded
// accounts.
func (c *Coordinator) State() State {
	id := c.params.ID
	primary, ok := c.accounts.Primary(id)
	if !ok {
		return StateNotSwept
	}
	sweepAcct, hasSweep := c.accounts.Sweep(id)
	if !hasSweep {
		if primary.MnemonicDerived {
			return StateSwept
		}
		return StateNotSwept
	}
	if strings.EqualFold(primary.Address(), sweepAcct.Address()) {
		return StateSwept
	}
	return StatePending
}

// IsSweepComplete reports whether nothing remains to sweep. It is
// derived from the addresses on every call, comparing without case.
func (c *Coordinator) IsSweepComplete() bool {
	id := c.params.ID
	sweepAcct, hasSweep := c.accounts.Sweep(id)
	if !hasSweep {
		return true
	}
	primary, ok := c.accounts.Primary(id)
	if !ok {
		return false
	}
	return strings.EqualFold(primary.Address(), sweepAcct.Address())
}

// SweepAddress returns the mnemonic-derived address awaiting sweep,
// or "".
func (c *Coordinator) SweepAddress() string {
	sweepAcct, ok := c.accounts.Sweep(c.params.ID)
	if !ok {
		return ""
	}
	return sweepAcct.Address()
}

// SweepToMnemonic derives the chain key for a mnemonic, persists it as
// the chain's mnemonic key, and returns its material.
func (c *Coordinator) SweepToMnemonic(mnemonic string) (string, error) {
	kp, err := keys.Derive(c.params, mnemonic, 0)
	if err != nil {
		return "", err
	}
	if err := c.store.PutKey(c.params.ID, storage.RoleMnemonic, kp.Material); err != nil {
		return "", err
	}
	if primary, ok := c.accounts.Primary(c.params.ID); ok && strings.EqualFold(primary.Address(), kp.Address) {
		updated := primary
		updated.MnemonicDerived = true
		c.accounts.SetPrimary(&updated)
	}
	return kp.Material, nil
}
