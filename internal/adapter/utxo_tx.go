package adapter

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/swapdeck/walletd/internal/chain"
	"github.com/swapdeck/walletd/internal/keys"
)

const (
	// P2PKH size estimates in bytes
	txOverheadSize = 10
	txInputSize    = 148
	txOutputSize   = 34

	// outputs below this are burned into the fee instead
	dustLimit = 546
)

// builtTx is a signed raw transaction plus the unspents it left
// untouched.
type builtTx struct {
	rawHex    string
	txid      string
	feeSats   int64
	remaining []Unspent
}

func estimateTxFee(inputs, outputs int, feeRate int64) int64 {
	size := int64(txOverheadSize + inputs*txInputSize + outputs*txOutputSize)
	return size * feeRate
}

// selectUnspents greedily accumulates outputs until they cover the
// amount plus the miner fee for the inputs chosen so far.
func selectUnspents(unspents []Unspent, amountSats, feeRate int64) (selected, remaining []Unspent, feeSats int64, err error) {
	var total int64
	for i := range unspents {
		selected = append(selected, unspents[i])
		total += unspents[i].Sats()
		feeSats = estimateTxFee(len(selected), 2, feeRate)
		if total >= amountSats+feeSats {
			return selected, unspents[i+1:], feeSats, nil
		}
	}
	return nil, nil, 0, ErrInsufficientFunds
}

func utxoNetParams(p *chain.Params) *chaincfg.Params {
	return &chaincfg.Params{
		Name:             p.ID.Key(),
		PubKeyHashAddrID: p.PubKeyHashAddrID,
		ScriptHashAddrID: p.ScriptHashAddrID,
		PrivateKeyID:     p.WIF,
		HDPrivateKeyID:   p.HDPrivateKeyID,
		HDPublicKeyID:    p.HDPublicKeyID,
	}
}

// buildSignedTx assembles and signs a P2PKH transfer of amountSats to
// the destination address, returning change above the dust limit to
// the signer.
func buildSignedTx(params *chain.Params, kp *keys.Keypair, unspents []Unspent, to string, amountSats, feeRate int64) (*builtTx, error) {
	if amountSats <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount", ErrBroadcastFailed)
	}
	net := utxoNetParams(params)

	selected, remaining, feeSats, err := selectUnspents(unspents, amountSats, feeRate)
	if err != nil {
		return nil, err
	}

	toAddr, err := btcutil.DecodeAddress(to, net)
	if err != nil {
		return nil, fmt.Errorf("%w: destination address: %v", ErrBroadcastFailed, err)
	}
	toScript, err := txscript.PayToAddrScript(toAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: destination script: %v", ErrBroadcastFailed, err)
	}

	fromAddr, err := btcutil.DecodeAddress(kp.Address, net)
	if err != nil {
		return nil, fmt.Errorf("%w: sender address: %v", ErrBroadcastFailed, err)
	}
	fromScript, err := txscript.PayToAddrScript(fromAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: sender script: %v", ErrBroadcastFailed, err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	var total int64
	for i := range selected {
		prevHash, err := chainhash.NewHashFromStr(selected[i].Txid)
		if err != nil {
			return nil, fmt.Errorf("%w: unspent txid: %v", ErrBroadcastFailed, err)
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(prevHash, selected[i].Vout), nil, nil))
		total += selected[i].Sats()
	}

	tx.AddTxOut(wire.NewTxOut(amountSats, toScript))
	if change := total - amountSats - feeSats; change >= dustLimit {
		tx.AddTxOut(wire.NewTxOut(change, fromScript))
	}

	// All inputs belong to the signer, so every previous output script
	// is the sender's P2PKH script.
	for i := range tx.TxIn {
		sigScript, err := txscript.SignatureScript(tx, i, fromScript, txscript.SigHashAll, kp.PrivateKey, true)
		if err != nil {
			return nil, fmt.Errorf("%w: sign input %d: %v", ErrSigningFailed, i, err)
		}
		tx.TxIn[i].SignatureScript = sigScript
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("%w: serialize: %v", ErrBroadcastFailed, err)
	}

	return &builtTx{
		rawHex:    hex.EncodeToString(buf.Bytes()),
		txid:      tx.TxHash().String(),
		feeSats:   feeSats,
		remaining: remaining,
	}, nil
}
