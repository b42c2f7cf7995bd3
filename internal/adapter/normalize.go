package adapter

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/swapdeck/walletd/internal/chain"
	"github.com/swapdeck/walletd/internal/fee"
	"github.com/swapdeck/walletd/pkg/helpers"
)

// InsightAmount decodes insight-style amounts, which arrive either as
// JSON numbers or as decimal strings.
type InsightAmount float64

func (a *InsightAmount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*a = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*a = InsightAmount(v)
	return nil
}

// InsightTx mirrors the insight-API transaction document.
type InsightTx struct {
	Txid          string        `json:"txid"`
	Confirmations int64         `json:"confirmations"`
	Time          int64         `json:"time"`
	Fees          InsightAmount `json:"fees"`
	ValueIn       InsightAmount `json:"valueIn"`
	ValueOut      InsightAmount `json:"valueOut"`
	Vin           []InsightVin  `json:"vin"`
	Vout          []InsightVout `json:"vout"`
}

// InsightVin is one transaction input.
type InsightVin struct {
	Addr  string        `json:"addr"`
	Value InsightAmount `json:"value"`
}

// InsightVout is one transaction output.
type InsightVout struct {
	Value        InsightAmount `json:"value"`
	ScriptPubKey struct {
		Addresses []string `json:"addresses"`
	} `json:"scriptPubKey"`
}

// Address returns the first output address, or "".
func (v *InsightVout) Address() string {
	if len(v.ScriptPubKey.Addresses) == 0 {
		return ""
	}
	return v.ScriptPubKey.Addresses[0]
}

// EVMRawTx carries the node-reported fields of an EVM transaction
// before normalization.
type EVMRawTx struct {
	Hash          string
	From          string
	To            string
	Value         *big.Int // wei
	Gas           uint64
	GasPrice      *big.Int // wei
	Pending       bool
	Confirmations int64
}

// NormalizeEVM converts a raw EVM transaction into the common TxInfo
// shape. The admin fee is recomputed from the displayed amount so the
// view matches what the send path would have charged.
func NormalizeEVM(params *chain.Params, raw *EVMRawTx) *TxInfo {
	amount := helpers.WeiToCoins(raw.Value)

	minerFeeWei := new(big.Int).SetUint64(raw.Gas)
	if raw.GasPrice != nil {
		minerFeeWei.Mul(minerFeeWei, raw.GasPrice)
	} else {
		minerFeeWei.SetUint64(0)
	}

	adminFee, applied := fee.Compute(params.AdminFee, amount, raw.To)

	return &TxInfo{
		Chain:            params.ID,
		Hash:             raw.Hash,
		SenderAddress:    raw.From,
		ReceiverAddress:  raw.To,
		Amount:           amount,
		Confirmed:        !raw.Pending,
		Confirmations:    raw.Confirmations,
		MinerFee:         helpers.WeiToCoins(minerFeeWei),
		MinerFeeCurrency: params.ID.Ticker(),
		AdminFee:         adminFee,
		AdminFeeApplied:  applied,
	}
}

// NormalizeUTXO converts an insight transaction into the common TxInfo
// shape. The sender is the first input address and the primary
// transfer is the first output. Under an admin-fee policy the fee
// output is the one paying the fee address with a value different from
// the primary amount, and the after-balance output is the first output
// belonging to neither the fee address nor the primary receiver (the
// change returned to the sender).
func NormalizeUTXO(params *chain.Params, tx *InsightTx) *TxInfo {
	info := &TxInfo{
		Chain:            params.ID,
		Hash:             tx.Txid,
		Confirmed:        tx.Confirmations > 0,
		Confirmations:    tx.Confirmations,
		MinerFee:         float64(tx.Fees),
		MinerFeeCurrency: params.ID.Ticker(),
	}

	if len(tx.Vin) > 0 {
		info.SenderAddress = tx.Vin[0].Addr
	}
	if len(tx.Vout) == 0 {
		return info
	}

	info.Amount = float64(tx.Vout[0].Value)
	info.ReceiverAddress = tx.Vout[0].Address()
	if len(tx.Vout) > 1 {
		info.AfterBalance = float64(tx.Vout[1].Value)
		info.HasAfterBalance = true
	}

	if policy := params.AdminFee; policy != nil {
		for i := range tx.Vout {
			out := &tx.Vout[i]
			if strings.EqualFold(out.Address(), policy.Address) && float64(out.Value) != info.Amount {
				info.AdminFee = float64(out.Value)
				info.AdminFeeApplied = true
				break
			}
		}
		for i := range tx.Vout {
			out := &tx.Vout[i]
			addr := out.Address()
			if addr == "" {
				continue
			}
			if !strings.EqualFold(addr, policy.Address) && !strings.EqualFold(addr, info.ReceiverAddress) {
				info.AfterBalance = float64(out.Value)
				info.HasAfterBalance = true
				break
			}
		}
	}

	info.Outputs = make([]Output, 0, len(tx.Vout))
	for i := range tx.Vout {
		info.Outputs = append(info.Outputs, Output{
			Address: tx.Vout[i].Address(),
			Amount:  float64(tx.Vout[i].Value),
		})
	}
	return info
}
