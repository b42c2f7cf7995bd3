package keys

import (
	"strings"
	"sync"

	"github.com/swapdeck/walletd/internal/chain"
)

// Account is a loaded wallet account for one chain.
type Account struct {
	Chain   chain.ID
	Keypair *Keypair
	// MnemonicDerived marks the account as already backed by the user
	// mnemonic, meaning no sweep is needed.
	MnemonicDerived bool

	Balance        float64
	Unconfirmed    float64
	BalanceFetched bool
	BalanceError   error
}

// Address returns the account address.
func (a *Account) Address() string {
	if a == nil || a.Keypair == nil {
		return ""
	}
	return a.Keypair.Address
}

// AccountStore holds the loaded accounts: one primary and optionally
// one sweep account per chain, plus externally connected addresses.
// All mutation goes through the store so concurrent balance refreshes
// stay consistent.
type AccountStore struct {
	mu       sync.RWMutex
	primary  map[chain.ID]*Account
	sweep    map[chain.ID]*Account
	external map[chain.ID]string
}

// NewAccountStore creates an empty account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		primary:  make(map[chain.ID]*Account),
		sweep:    make(map[chain.ID]*Account),
		external: make(map[chain.ID]string),
	}
}

// SetPrimary installs the primary account for its chain.
func (s *AccountStore) SetPrimary(a *Account) {
	s.mu.Lock()
	s.primary[a.Chain] = a
	s.mu.Unlock()
}

// SetSweep installs the sweep (mnemonic-derived) account for its chain.
func (s *AccountStore) SetSweep(a *Account) {
	s.mu.Lock()
	s.sweep[a.Chain] = a
	s.mu.Unlock()
}

// ClearSweep drops the sweep account for a chain.
func (s *AccountStore) ClearSweep(id chain.ID) {
	s.mu.Lock()
	delete(s.sweep, id)
	s.mu.Unlock()
}

// SetExternalAddress records an externally connected wallet address.
func (s *AccountStore) SetExternalAddress(id chain.ID, address string) {
	s.mu.Lock()
	if address == "" {
		delete(s.external, id)
	} else {
		s.external[id] = address
	}
	s.mu.Unlock()
}

// Primary returns a copy of the primary account for a chain.
func (s *AccountStore) Primary(id chain.ID) (Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.primary[id]
	if !ok {
		return Account{}, false
	}
	return *a, true
}

// Sweep returns a copy of the sweep account for a chain.
func (s *AccountStore) Sweep(id chain.ID) (Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.sweep[id]
	if !ok {
		return Account{}, false
	}
	return *a, true
}

// ExternalAddress returns the connected wallet address for a chain,
// or "".
func (s *AccountStore) ExternalAddress(id chain.ID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.external[id]
}

// FindPrivateKeyByAddress returns the keypair controlling address on a
// chain. The primary account is checked before the sweep account and
// the first match wins. Comparison ignores address case; the stored
// key material is returned untouched.
func (s *AccountStore) FindPrivateKeyByAddress(id chain.ID, address string) (*Keypair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.primary[id]; ok && strings.EqualFold(a.Address(), address) {
		return a.Keypair, true
	}
	if a, ok := s.sweep[id]; ok && strings.EqualFold(a.Address(), address) {
		return a.Keypair, true
	}
	return nil, false
}

// AllAddresses returns every known address for a chain, lower-cased
// and deduplicated, ordered primary, sweep, external.
func (s *AccountStore) AllAddresses(id chain.ID) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	seen := make(map[string]bool)
	add := func(addr string) {
		if addr == "" {
			return
		}
		addr = strings.ToLower(addr)
		if !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	if a, ok := s.primary[id]; ok {
		add(a.Address())
	}
	if a, ok := s.sweep[id]; ok {
		add(a.Address())
	}
	add(s.external[id])
	return out
}

// SetBalance records a successful balance fetch for the primary or
// sweep account of a chain.
func (s *AccountStore) SetBalance(id chain.ID, sweep bool, balance, unconfirmed float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.account(id, sweep); ok {
		a.Balance = balance
		a.Unconfirmed = unconfirmed
		a.BalanceFetched = true
		a.BalanceError = nil
	}
}

// SetBalanceError records a failed balance fetch. The balance is reset
// to zero so consumers never see a stale value without its error.
func (s *AccountStore) SetBalanceError(id chain.ID, sweep bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.account(id, sweep); ok {
		a.Balance = 0
		a.Unconfirmed = 0
		a.BalanceFetched = true
		a.BalanceError = err
	}
}

func (s *AccountStore) account(id chain.ID, sweep bool) (*Account, bool) {
	if sweep {
		a, ok := s.sweep[id]
		return a, ok
	}
	a, ok := s.primary[id]
	return a, ok
}
