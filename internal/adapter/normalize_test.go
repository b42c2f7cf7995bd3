package adapter

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/swapdeck/walletd/internal/chain"
)

func ghostParamsWithFee(feeAddr string) *chain.Params {
	base, _ := chain.Get(chain.GHOST)
	params := *base
	params.AdminFee = &chain.FeePolicy{Percent: 5, Min: 0.1, Address: feeAddr}
	return &params
}

func insightVout(value float64, addr string) InsightVout {
	var v InsightVout
	v.Value = InsightAmount(value)
	if addr != "" {
		v.ScriptPubKey.Addresses = []string{addr}
	}
	return v
}

func TestNormalizeUTXOAdminFeeOutputs(t *testing.T) {
	params := ghostParamsWithFee("GfeeAddr")
	tx := &InsightTx{
		Txid:          "abc",
		Confirmations: 3,
		Fees:          0.001,
		Vin:           []InsightVin{{Addr: "Gsender"}},
		Vout: []InsightVout{
			insightVout(10, "Greceiver"),
			insightVout(2, "GfeeAddr"),
			insightVout(87, "Gsender"),
		},
	}

	info := NormalizeUTXO(params, tx)
	if info.Amount != 10 {
		t.Errorf("Amount = %v, want 10", info.Amount)
	}
	if !info.AdminFeeApplied || info.AdminFee != 2 {
		t.Errorf("AdminFee = %v (applied %v), want 2", info.AdminFee, info.AdminFeeApplied)
	}
	if !info.HasAfterBalance || info.AfterBalance != 87 {
		t.Errorf("AfterBalance = %v (set %v), want 87", info.AfterBalance, info.HasAfterBalance)
	}
	if info.SenderAddress != "Gsender" || info.ReceiverAddress != "Greceiver" {
		t.Errorf("addresses: %s -> %s", info.SenderAddress, info.ReceiverAddress)
	}
	if !info.Confirmed || info.MinerFee != 0.001 {
		t.Errorf("confirmed=%v minerFee=%v", info.Confirmed, info.MinerFee)
	}
	if len(info.Outputs) != 3 {
		t.Errorf("Outputs = %d, want 3", len(info.Outputs))
	}
}

func TestNormalizeUTXOFeeOutputMatchingAmountIgnored(t *testing.T) {
	// An output paying the fee address the exact primary amount is not
	// an admin-fee output.
	params := ghostParamsWithFee("GfeeAddr")
	tx := &InsightTx{
		Vin: []InsightVin{{Addr: "Gsender"}},
		Vout: []InsightVout{
			insightVout(10, "GfeeAddr"),
			insightVout(5, "Gsender"),
		},
	}
	info := NormalizeUTXO(params, tx)
	if info.AdminFeeApplied {
		t.Errorf("AdminFee = %v, want none", info.AdminFee)
	}
}

func TestNormalizeUTXONoPolicy(t *testing.T) {
	params, _ := chain.Get(chain.GHOST)
	tx := &InsightTx{
		Confirmations: 0,
		Vin:           []InsightVin{{Addr: "Gsender"}},
		Vout: []InsightVout{
			insightVout(4, "Greceiver"),
			insightVout(6, "Gsender"),
		},
	}
	info := NormalizeUTXO(params, tx)
	if info.AdminFeeApplied {
		t.Error("fee applied without policy")
	}
	if !info.HasAfterBalance || info.AfterBalance != 6 {
		t.Errorf("AfterBalance = %v, want second output", info.AfterBalance)
	}
	if info.Confirmed {
		t.Error("zero confirmations reported confirmed")
	}
}

func TestNormalizeEVM(t *testing.T) {
	base, _ := chain.Get(chain.ETH)
	params := *base
	params.AdminFee = &chain.FeePolicy{Percent: 1, Min: 0.01, Address: "0xFee"}

	gwei := big.NewInt(1e9)
	raw := &EVMRawTx{
		Hash:     "0xhash",
		From:     "0xSender",
		To:       "0xReceiver",
		Value:    new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18)), // 2 ETH
		Gas:      21000,
		GasPrice: new(big.Int).Mul(big.NewInt(50), gwei),
		Pending:  false,
	}
	info := NormalizeEVM(&params, raw)
	if info.Amount != 2 {
		t.Errorf("Amount = %v, want 2", info.Amount)
	}
	if info.MinerFee != 0.00105 {
		t.Errorf("MinerFee = %v, want 0.00105", info.MinerFee)
	}
	if !info.AdminFeeApplied || info.AdminFee != 0.02 {
		t.Errorf("AdminFee = %v (applied %v), want 0.02", info.AdminFee, info.AdminFeeApplied)
	}
	if !info.Confirmed {
		t.Error("mined tx reported pending")
	}

	// Sending to the fee address itself charges nothing.
	raw.To = "0xfee"
	info = NormalizeEVM(&params, raw)
	if info.AdminFeeApplied {
		t.Error("fee applied on transfer to fee address")
	}

	// Pending txs are unconfirmed.
	raw.Pending = true
	if NormalizeEVM(&params, raw).Confirmed {
		t.Error("pending tx reported confirmed")
	}
}

func TestInsightAmountDecoding(t *testing.T) {
	var doc struct {
		A InsightAmount `json:"a"`
		B InsightAmount `json:"b"`
		C InsightAmount `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":"10.5","b":3,"c":null}`), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.A != 10.5 || doc.B != 3 || doc.C != 0 {
		t.Errorf("decoded %v %v %v", doc.A, doc.B, doc.C)
	}
}
