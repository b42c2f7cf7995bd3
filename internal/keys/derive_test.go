package keys

import (
	"errors"
	"strings"
	"testing"

	"github.com/swapdeck/walletd/internal/chain"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func mustParams(t *testing.T, id chain.ID) *chain.Params {
	t.Helper()
	params, ok := chain.Get(id)
	if !ok {
		t.Fatalf("chain %s not registered", id)
	}
	return params
}

func TestDeriveDeterministic(t *testing.T) {
	for _, id := range []chain.ID{chain.ETH, chain.GHOST, chain.NEXT} {
		params := mustParams(t, id)
		first, err := Derive(params, testMnemonic, 0)
		if err != nil {
			t.Fatalf("%s: Derive: %v", id, err)
		}
		second, err := Derive(params, testMnemonic, 0)
		if err != nil {
			t.Fatalf("%s: Derive again: %v", id, err)
		}
		if first.Address != second.Address || first.Material != second.Material {
			t.Errorf("%s: derivation not deterministic", id)
		}
	}
}

func TestDeriveKnownEthAddress(t *testing.T) {
	params := mustParams(t, chain.ETH)
	kp, err := Derive(params, testMnemonic, 0)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	// Reference vector for m/44'/60'/0'/0/0 of the all-abandon mnemonic.
	if kp.Address != "0x9858EfFD232B4033E47d90003D41EC34EcaEda94" {
		t.Errorf("address = %s", kp.Address)
	}
}

func TestDerivePath(t *testing.T) {
	params := mustParams(t, chain.ETH)
	byIndex, err := Derive(params, testMnemonic, 0)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	byPath, err := DerivePath(params, testMnemonic, "m/44'/60'/0'/0/0")
	if err != nil {
		t.Fatalf("DerivePath: %v", err)
	}
	if byPath.Address != byIndex.Address {
		t.Errorf("path derivation address = %s, want %s", byPath.Address, byIndex.Address)
	}

	hStyle, err := DerivePath(params, testMnemonic, "m/44h/60h/0h/0/1")
	if err != nil {
		t.Fatalf("DerivePath h-style: %v", err)
	}
	index1, _ := Derive(params, testMnemonic, 1)
	if hStyle.Address != index1.Address {
		t.Error("h-style hardened markers diverge from '-style")
	}

	for _, bad := range []string{"", "44'/60'/0'/0/0", "m/abc", "m/2147483648"} {
		if _, err := DerivePath(params, testMnemonic, bad); err == nil {
			t.Errorf("DerivePath(%q) succeeded, want error", bad)
		}
	}
}

func TestDeriveNormalizesWhitespaceAndCase(t *testing.T) {
	params := mustParams(t, chain.ETH)
	messy := "  Abandon abandon ABANDON abandon abandon abandon abandon abandon abandon abandon abandon about \n"
	a, err := Derive(params, messy, 0)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	b, _ := Derive(params, testMnemonic, 0)
	if a.Address != b.Address {
		t.Error("whitespace/case normalization changed derivation")
	}
}

func TestDeriveInvalidMnemonic(t *testing.T) {
	params := mustParams(t, chain.ETH)
	for _, bad := range []string{"", "not a mnemonic", "abandon abandon abandon"} {
		if _, err := Derive(params, bad, 0); !errors.Is(err, ErrInvalidMnemonic) {
			t.Errorf("Derive(%q) err = %v, want ErrInvalidMnemonic", bad, err)
		}
	}
}

func TestFromMaterialRoundTrip(t *testing.T) {
	for _, id := range []chain.ID{chain.ETH, chain.GHOST} {
		params := mustParams(t, id)
		derived, err := Derive(params, testMnemonic, 0)
		if err != nil {
			t.Fatalf("%s: Derive: %v", id, err)
		}
		restored, err := FromMaterial(params, derived.Material)
		if err != nil {
			t.Fatalf("%s: FromMaterial: %v", id, err)
		}
		if restored.Address != derived.Address {
			t.Errorf("%s: address changed through material round trip: %s != %s",
				id, restored.Address, derived.Address)
		}
	}
}

func TestFromMaterialInvalid(t *testing.T) {
	eth := mustParams(t, chain.ETH)
	ghost := mustParams(t, chain.GHOST)
	cases := []struct {
		params   *chain.Params
		material string
	}{
		{eth, ""},
		{eth, "0x1234"},
		{eth, "zzzz"},
		{ghost, "not-a-wif"},
	}
	for _, tt := range cases {
		if _, err := FromMaterial(tt.params, tt.material); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("FromMaterial(%s, %q) err = %v, want ErrInvalidKey", tt.params.ID, tt.material, err)
		}
	}
}

func TestGenerateMnemonic(t *testing.T) {
	m, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic: %v", err)
	}
	if len(strings.Fields(m)) != 12 {
		t.Errorf("mnemonic has %d words, want 12", len(strings.Fields(m)))
	}
	if !ValidateMnemonic(m) {
		t.Error("generated mnemonic fails validation")
	}
}
