// Package keys derives chain keypairs from mnemonics or raw key
// material and tracks the accounts loaded into the wallet.
package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"

	"github.com/swapdeck/walletd/internal/chain"
	"github.com/swapdeck/walletd/pkg/helpers"
)

var (
	// ErrInvalidMnemonic is returned for mnemonics that fail BIP39
	// checksum or wordlist validation.
	ErrInvalidMnemonic = errors.New("keys: invalid mnemonic")

	// ErrInvalidKey is returned for malformed raw key material.
	ErrInvalidKey = errors.New("keys: invalid private key")
)

// Keypair is a chain-specific signing key with its derived address.
type Keypair struct {
	PrivateKey *btcec.PrivateKey
	// PublicKey is the compressed public key in hex.
	PublicKey string
	Address   string
	// Material is the serialized private key: 0x-prefixed hex for EVM
	// chains, WIF for UTXO chains.
	Material string
}

// netParams maps chain params onto btcd network params for address and
// WIF encoding.
func netParams(p *chain.Params) *chaincfg.Params {
	return &chaincfg.Params{
		Name:             p.ID.Key(),
		PubKeyHashAddrID: p.PubKeyHashAddrID,
		ScriptHashAddrID: p.ScriptHashAddrID,
		PrivateKeyID:     p.WIF,
		HDPrivateKeyID:   p.HDPrivateKeyID,
		HDPublicKeyID:    p.HDPublicKeyID,
	}
}

// GenerateMnemonic returns a fresh 12-word BIP39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// ValidateMnemonic reports whether the mnemonic passes BIP39
// validation.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(normalizeMnemonic(mnemonic))
}

func normalizeMnemonic(mnemonic string) string {
	return strings.Join(strings.Fields(strings.ToLower(mnemonic)), " ")
}

// Derive deterministically derives the keypair at account index for a
// chain from a mnemonic, using the BIP44 path m/44'/coinType'/0'/0/index.
func Derive(params *chain.Params, mnemonic string, index uint32) (*Keypair, error) {
	return derivePath(params, mnemonic, []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + params.CoinType,
		hdkeychain.HardenedKeyStart + 0,
		0,
		index,
	})
}

// DerivePath derives the keypair at an explicit BIP32 path such as
// "m/44'/60'/0'/0/0". Both ' and h mark hardened steps.
func DerivePath(params *chain.Params, mnemonic, path string) (*Keypair, error) {
	steps, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	return derivePath(params, mnemonic, steps)
}

func parsePath(path string) ([]uint32, error) {
	parts := strings.Split(strings.TrimSpace(path), "/")
	if len(parts) == 0 || !strings.EqualFold(parts[0], "m") {
		return nil, fmt.Errorf("invalid derivation path %q", path)
	}
	steps := make([]uint32, 0, len(parts)-1)
	for _, part := range parts[1:] {
		hardened := false
		if strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h") || strings.HasSuffix(part, "H") {
			hardened = true
			part = part[:len(part)-1]
		}
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil || n >= hdkeychain.HardenedKeyStart {
			return nil, fmt.Errorf("invalid derivation path step %q", part)
		}
		step := uint32(n)
		if hardened {
			step += hdkeychain.HardenedKeyStart
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func derivePath(params *chain.Params, mnemonic string, steps []uint32) (*Keypair, error) {
	mnemonic = normalizeMnemonic(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")

	net := &chaincfg.MainNetParams
	if !params.IsEVM() {
		net = netParams(params)
	}
	key, err := hdkeychain.NewMaster(seed, net)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}
	for _, step := range steps {
		key, err = key.Derive(step)
		if err != nil {
			return nil, fmt.Errorf("derive path step %d: %w", step, err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("extract private key: %w", err)
	}
	return fromPrivKey(params, priv)
}

// FromMaterial reconstructs a keypair from serialized key material:
// hex for EVM chains, WIF for UTXO chains. The address is a pure
// function of the key, so equal material always yields equal accounts.
func FromMaterial(params *chain.Params, material string) (*Keypair, error) {
	material = strings.TrimSpace(material)
	if material == "" {
		return nil, ErrInvalidKey
	}

	if params.IsEVM() {
		raw, err := helpers.DecodeHex(material)
		if err != nil || len(raw) != 32 {
			return nil, ErrInvalidKey
		}
		priv, _ := btcec.PrivKeyFromBytes(raw)
		return fromPrivKey(params, priv)
	}

	wif, err := btcutil.DecodeWIF(material)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return fromPrivKey(params, wif.PrivKey)
}

func fromPrivKey(params *chain.Params, priv *btcec.PrivateKey) (*Keypair, error) {
	pub := hex.EncodeToString(priv.PubKey().SerializeCompressed())

	if params.IsEVM() {
		address := crypto.PubkeyToAddress(priv.ToECDSA().PublicKey).Hex()
		return &Keypair{
			PrivateKey: priv,
			PublicKey:  pub,
			Address:    address,
			Material:   helpers.EncodeHex(priv.Serialize()),
		}, nil
	}

	net := netParams(params)
	wif, err := btcutil.NewWIF(priv, net, true)
	if err != nil {
		return nil, fmt.Errorf("encode wif: %w", err)
	}
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(priv.PubKey().SerializeCompressed()), net)
	if err != nil {
		return nil, fmt.Errorf("derive address: %w", err)
	}
	return &Keypair{
		PrivateKey: priv,
		PublicKey:  pub,
		Address:    addr.EncodeAddress(),
		Material:   wif.String(),
	}, nil
}
