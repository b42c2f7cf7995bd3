package storage

import (
	"errors"
	"testing"

	"github.com/swapdeck/walletd/internal/chain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetKey(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.Key(chain.ETH, RolePrimary); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}

	if err := s.PutKey(chain.ETH, RolePrimary, "0xdeadbeef"); err != nil {
		t.Fatalf("PutKey: %v", err)
	}
	got, err := s.Key(chain.ETH, RolePrimary)
	if err != nil || got != "0xdeadbeef" {
		t.Fatalf("Key = %q, %v", got, err)
	}

	// Replace.
	if err := s.PutKey(chain.ETH, RolePrimary, "0xcafe"); err != nil {
		t.Fatalf("PutKey replace: %v", err)
	}
	got, _ = s.Key(chain.ETH, RolePrimary)
	if got != "0xcafe" {
		t.Errorf("Key after replace = %q, want 0xcafe", got)
	}
}

func TestRolesAreIndependent(t *testing.T) {
	s := openTestStore(t)

	s.PutKey(chain.GHOST, RolePrimary, "wif-primary")
	s.PutKey(chain.GHOST, RoleMnemonic, "wif-mnemonic")

	primary, _ := s.Key(chain.GHOST, RolePrimary)
	mnemonic, _ := s.Key(chain.GHOST, RoleMnemonic)
	if primary != "wif-primary" || mnemonic != "wif-mnemonic" {
		t.Errorf("roles collided: primary=%q mnemonic=%q", primary, mnemonic)
	}
}

func TestKeysByRole(t *testing.T) {
	s := openTestStore(t)

	s.PutKey(chain.ETH, RoleMnemonic, "a")
	s.PutKey(chain.GHOST, RoleMnemonic, "b")
	s.PutKey(chain.BNB, RolePrimary, "c")

	keys, err := s.KeysByRole(RoleMnemonic)
	if err != nil {
		t.Fatalf("KeysByRole: %v", err)
	}
	if len(keys) != 2 || keys[chain.ETH] != "a" || keys[chain.GHOST] != "b" {
		t.Errorf("KeysByRole = %v", keys)
	}
}

func TestDeleteKey(t *testing.T) {
	s := openTestStore(t)

	s.PutKey(chain.NEXT, RolePrimary, "x")
	if err := s.DeleteKey(chain.NEXT, RolePrimary); err != nil {
		t.Fatalf("DeleteKey: %v", err)
	}
	if _, err := s.Key(chain.NEXT, RolePrimary); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("key survived delete: %v", err)
	}
	// Deleting again is fine.
	if err := s.DeleteKey(chain.NEXT, RolePrimary); err != nil {
		t.Errorf("second delete: %v", err)
	}
}
