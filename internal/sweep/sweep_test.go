package sweep

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/swapdeck/walletd/internal/adapter"
	"github.com/swapdeck/walletd/internal/chain"
	"github.com/swapdeck/walletd/internal/keys"
	"github.com/swapdeck/walletd/internal/storage"
	"github.com/swapdeck/walletd/pkg/logging"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// stubAdapter satisfies adapter.Adapter for balance refreshes.
type stubAdapter struct {
	id      chain.ID
	balance float64
}

func (s *stubAdapter) Chain() chain.ID { return s.id }
func (s *stubAdapter) FetchBalance(ctx context.Context, address string) (float64, float64) {
	return s.balance, 0
}
func (s *stubAdapter) Balance(ctx context.Context) float64 { return s.balance }
func (s *stubAdapter) FetchTransactionHistory(ctx context.Context, address string) []adapter.HistoryEntry {
	return nil
}
func (s *stubAdapter) FetchTransactionInfo(ctx context.Context, hash string) (*adapter.TxInfo, error) {
	return nil, errors.New("not implemented")
}
func (s *stubAdapter) EstimateFee(ctx context.Context, speed adapter.FeeSpeed) *big.Int {
	return big.NewInt(0)
}
func (s *stubAdapter) BuildAndSend(ctx context.Context, params *adapter.SendParams) (*adapter.Submitted, error) {
	return nil, errors.New("not implemented")
}

func newTestCoordinator(t *testing.T, id chain.ID) (*Coordinator, *keys.AccountStore, *storage.Store) {
	t.Helper()
	params, ok := chain.Get(id)
	if !ok {
		t.Fatalf("chain %s not registered", id)
	}
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	accounts := keys.NewAccountStore()
	log := logging.New(&logging.Config{Level: "fatal"})
	c := NewCoordinator(params, accounts, store, &stubAdapter{id: id}, log)
	return c, accounts, store
}

func TestLoginWithoutPrivateKeyIsSwept(t *testing.T) {
	c, _, _ := newTestCoordinator(t, chain.ETH)

	acct, err := c.Login(context.Background(), &LoginOptions{Mnemonic: testMnemonic})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !acct.MnemonicDerived {
		t.Error("account not marked mnemonic-derived")
	}
	if c.State() != StateSwept {
		t.Errorf("state = %s, want swept", c.State())
	}
	if !c.IsSweepComplete() {
		t.Error("sweep not complete")
	}
}

func TestLoginGeneratesMnemonicWhenAbsent(t *testing.T) {
	c, _, store := newTestCoordinator(t, chain.GHOST)

	acct, err := c.Login(context.Background(), &LoginOptions{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !acct.MnemonicDerived || acct.Address() == "" {
		t.Errorf("account: %+v", acct)
	}
	if _, err := store.Key(chain.GHOST, storage.RolePrimary); err != nil {
		t.Errorf("primary key not persisted: %v", err)
	}
}

func TestLoginMatchingMnemonicKeyIsSwept(t *testing.T) {
	c, _, _ := newTestCoordinator(t, chain.ETH)
	params, _ := chain.Get(chain.ETH)
	kp, _ := keys.Derive(params, testMnemonic, 0)

	acct, err := c.Login(context.Background(), &LoginOptions{
		PrivateKey:   kp.Material,
		Mnemonic:     "-",
		MnemonicKeys: map[chain.ID]string{chain.ETH: kp.Material},
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !acct.MnemonicDerived || c.State() != StateSwept {
		t.Errorf("state = %s, derived = %v", c.State(), acct.MnemonicDerived)
	}
}

func TestLoginForeignKeyGoesPending(t *testing.T) {
	c, accounts, _ := newTestCoordinator(t, chain.ETH)
	params, _ := chain.Get(chain.ETH)
	foreign, _ := keys.Derive(params, testMnemonic, 5) // pretend pre-mnemonic key

	acct, err := c.Login(context.Background(), &LoginOptions{
		PrivateKey: foreign.Material,
		Mnemonic:   testMnemonic,
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if acct.MnemonicDerived {
		t.Error("foreign key marked mnemonic-derived")
	}
	if c.State() != StatePending {
		t.Errorf("state = %s, want pending", c.State())
	}
	if c.IsSweepComplete() {
		t.Error("sweep reported complete while pending")
	}

	expected, _ := keys.Derive(params, testMnemonic, 0)
	if c.SweepAddress() != expected.Address {
		t.Errorf("sweep address = %s, want %s", c.SweepAddress(), expected.Address)
	}

	// The sweep balance refresh lands asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a, ok := accounts.Sweep(chain.ETH); ok && a.BalanceFetched {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("sweep balance never fetched")
}

func TestLoginMissingMnemonicKeyIsTerminal(t *testing.T) {
	c, accounts, _ := newTestCoordinator(t, chain.ETH)
	params, _ := chain.Get(chain.ETH)
	foreign, _ := keys.Derive(params, testMnemonic, 5)

	_, err := c.Login(context.Background(), &LoginOptions{
		PrivateKey: foreign.Material,
		Mnemonic:   "-",
	})
	if !errors.Is(err, ErrMissingMnemonicKey) {
		t.Fatalf("err = %v, want ErrMissingMnemonicKey", err)
	}
	// The primary account still loads; no sweep account is invented.
	if _, ok := accounts.Primary(chain.ETH); !ok {
		t.Error("primary account missing")
	}
	if _, ok := accounts.Sweep(chain.ETH); ok {
		t.Error("sweep account created without a mnemonic key")
	}
}

func TestIsSweepCompleteFlips(t *testing.T) {
	c, accounts, _ := newTestCoordinator(t, chain.ETH)
	params, _ := chain.Get(chain.ETH)
	foreign, _ := keys.Derive(params, testMnemonic, 5)
	derived, _ := keys.Derive(params, testMnemonic, 0)

	c.Login(context.Background(), &LoginOptions{
		PrivateKey: foreign.Material,
		Mnemonic:   testMnemonic,
	})
	if c.IsSweepComplete() {
		t.Fatal("complete before sweep")
	}

	// Re-login with the mnemonic key as primary, case shifted to prove
	// the comparison ignores case.
	shifted := &keys.Account{
		Chain:   chain.ETH,
		Keypair: &keys.Keypair{Address: strings.ToUpper(derived.Address), Material: derived.Material},
	}
	accounts.SetPrimary(shifted)
	if !c.IsSweepComplete() {
		t.Error("complete flag did not flip after addresses matched")
	}
	if c.State() != StateSwept {
		t.Errorf("state = %s, want swept", c.State())
	}
}

func TestSweepToMnemonic(t *testing.T) {
	c, _, store := newTestCoordinator(t, chain.GHOST)
	params, _ := chain.Get(chain.GHOST)
	derived, _ := keys.Derive(params, testMnemonic, 0)

	material, err := c.SweepToMnemonic(testMnemonic)
	if err != nil {
		t.Fatalf("SweepToMnemonic: %v", err)
	}
	if material != derived.Material {
		t.Error("returned material is not the derived key")
	}
	stored, err := store.Key(chain.GHOST, storage.RoleMnemonic)
	if err != nil || stored != material {
		t.Errorf("mnemonic key not persisted: %q %v", stored, err)
	}

	if _, err := c.SweepToMnemonic("broken mnemonic"); !errors.Is(err, keys.ErrInvalidMnemonic) {
		t.Errorf("err = %v, want ErrInvalidMnemonic", err)
	}
}

func TestLoadStored(t *testing.T) {
	c, _, _ := newTestCoordinator(t, chain.ETH)

	first, err := c.Login(context.Background(), &LoginOptions{Mnemonic: testMnemonic})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	restored, err := c.LoadStored(context.Background())
	if err != nil {
		t.Fatalf("LoadStored: %v", err)
	}
	if restored.Address() != first.Address() {
		t.Errorf("restored %s, want %s", restored.Address(), first.Address())
	}
	if !restored.MnemonicDerived {
		t.Error("restored account lost mnemonic-derived flag")
	}
}

func TestLoadStoredEmpty(t *testing.T) {
	c, _, _ := newTestCoordinator(t, chain.ETH)
	if _, err := c.LoadStored(context.Background()); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Errorf("err = %v, want ErrKeyNotFound", err)
	}
}
