package helpers

import (
	"math/big"
	"testing"
)

func TestWeiConversions(t *testing.T) {
	wei := CoinsToWei(1.5)
	want := new(big.Int).Mul(big.NewInt(15), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil))
	if wei.Cmp(want) != 0 {
		t.Errorf("CoinsToWei(1.5) = %s, want %s", wei, want)
	}
	if got := WeiToCoins(want); got != 1.5 {
		t.Errorf("WeiToCoins = %v, want 1.5", got)
	}
	if got := WeiToCoins(nil); got != 0 {
		t.Errorf("WeiToCoins(nil) = %v, want 0", got)
	}
}

func TestSatConversions(t *testing.T) {
	if got := CoinsToSats(0.001); got != 100000 {
		t.Errorf("CoinsToSats(0.001) = %d, want 100000", got)
	}
	if got := SatsToCoins(100000); got != 0.001 {
		t.Errorf("SatsToCoins(100000) = %v, want 0.001", got)
	}
}

func TestHex(t *testing.T) {
	if !IsHex("0xdeadbeef") || !IsHex("deadbeef") {
		t.Error("valid hex rejected")
	}
	if IsHex("0xzz") || IsHex("") {
		t.Error("invalid hex accepted")
	}
	b, err := DecodeHex("0x00ff")
	if err != nil || len(b) != 2 || b[1] != 0xff {
		t.Errorf("DecodeHex failed: %v %v", b, err)
	}
	if EncodeHex([]byte{0xab}) != "0xab" {
		t.Error("EncodeHex mismatch")
	}
}

func TestEqualAddress(t *testing.T) {
	if !EqualAddress("0xAbC", "0xabc") {
		t.Error("case-insensitive compare failed")
	}
	if EqualAddress("0xabc", "0xabd") {
		t.Error("different addresses compared equal")
	}
}
