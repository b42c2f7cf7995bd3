// Package helpers provides small conversion utilities shared across packages.
package helpers

import (
	"math"
	"math/big"
)

// WeiPerEth is 10^18 as a big.Int.
var WeiPerEth = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// SatsPerCoin is the number of base units in one UTXO-chain coin.
const SatsPerCoin = 1e8

// WeiToCoins converts a wei amount to display units.
func WeiToCoins(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f := new(big.Float).SetInt(wei)
	f.Quo(f, new(big.Float).SetInt(WeiPerEth))
	out, _ := f.Float64()
	return out
}

// CoinsToWei converts a display-unit amount to wei, truncating any
// precision below 1 wei.
func CoinsToWei(amount float64) *big.Int {
	f := new(big.Float).SetFloat64(amount)
	f.Mul(f, new(big.Float).SetInt(WeiPerEth))
	wei, _ := f.Int(nil)
	return wei
}

// SatsToCoins converts base units to display units.
func SatsToCoins(sats int64) float64 {
	return float64(sats) / SatsPerCoin
}

// CoinsToSats converts display units to base units, rounding to the
// nearest satoshi.
func CoinsToSats(amount float64) int64 {
	return int64(math.Round(amount * SatsPerCoin))
}
