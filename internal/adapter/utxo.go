package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/swapdeck/walletd/internal/chain"
	"github.com/swapdeck/walletd/internal/explorer"
	"github.com/swapdeck/walletd/internal/fee"
	"github.com/swapdeck/walletd/internal/keys"
	"github.com/swapdeck/walletd/pkg/helpers"
	"github.com/swapdeck/walletd/pkg/logging"
)

const (
	// unspent responses are memoized briefly to absorb UI polling bursts
	unspentsTTL = 5 * time.Second

	// fallback when the explorer gives no fee estimate, in sat/byte
	utxoDefaultFeeRate = 15
)

// Unspent is one spendable output as reported by the explorer.
type Unspent struct {
	Txid          string        `json:"txid"`
	Vout          uint32        `json:"vout"`
	Satoshis      int64         `json:"satoshis"`
	Amount        InsightAmount `json:"amount"`
	Confirmations int64         `json:"confirmations"`
}

// Sats returns the output value in satoshis, deriving it from the
// coin-denominated amount when the explorer omits the satoshi field.
func (u *Unspent) Sats() int64 {
	if u.Satoshis > 0 {
		return u.Satoshis
	}
	return helpers.CoinsToSats(float64(u.Amount))
}

// UTXOAdapter drives a UTXO chain entirely through an insight-style
// explorer REST API; no full node is needed.
type UTXOAdapter struct {
	params   *chain.Params
	explorer *explorer.Client
	accounts *keys.AccountStore
	cache    *explorer.Cache
	feeLog   *FeeLegLog
	log      *logging.Logger
}

// NewUTXOAdapter creates an adapter for a UTXO chain.
func NewUTXOAdapter(params *chain.Params, exp *explorer.Client, accounts *keys.AccountStore, cache *explorer.Cache, feeLog *FeeLegLog, log *logging.Logger) *UTXOAdapter {
	return &UTXOAdapter{
		params:   params,
		explorer: exp,
		accounts: accounts,
		cache:    cache,
		feeLog:   feeLog,
		log:      log.Component("adapter/" + params.ID.Key()),
	}
}

// Chain implements Adapter.
func (a *UTXOAdapter) Chain() chain.ID {
	return a.params.ID
}

// FetchBalance implements Adapter.
func (a *UTXOAdapter) FetchBalance(ctx context.Context, address string) (float64, float64) {
	var resp struct {
		Balance            InsightAmount `json:"balance"`
		UnconfirmedBalance InsightAmount `json:"unconfirmedBalance"`
	}
	err := a.explorer.Get(ctx, a.params.Explorer, "/addr/"+address, &explorer.RequestOptions{
		Validate: func(msg json.RawMessage) bool {
			var probe struct {
				Balance *json.RawMessage `json:"balance"`
			}
			return json.Unmarshal(msg, &probe) == nil && probe.Balance != nil
		},
	}, &resp)
	if err != nil {
		a.log.Debug("balance fetch failed", "address", address, "err", err)
		a.recordBalanceError(address, err)
		return 0, 0
	}
	balance := float64(resp.Balance)
	unconfirmed := float64(resp.UnconfirmedBalance)
	a.recordBalance(address, balance, unconfirmed)
	return balance, unconfirmed
}

// Balance implements Adapter.
func (a *UTXOAdapter) Balance(ctx context.Context) float64 {
	primary, ok := a.accounts.Primary(a.params.ID)
	if !ok {
		return 0
	}
	key := a.params.ID.Key() + "_" + strings.ToLower(primary.Address())
	if cached, ok := a.cache.Get("currencyBalances", key); ok {
		return cached.(float64)
	}
	balance, _ := a.FetchBalance(ctx, primary.Address())
	if acct, ok := a.accounts.Primary(a.params.ID); ok && acct.BalanceError == nil {
		a.cache.Set("currencyBalances", key, balance, explorer.BalanceTTL)
	}
	return balance
}

func (a *UTXOAdapter) recordBalance(address string, balance, unconfirmed float64) {
	if primary, ok := a.accounts.Primary(a.params.ID); ok && strings.EqualFold(primary.Address(), address) {
		a.accounts.SetBalance(a.params.ID, false, balance, unconfirmed)
	}
	if sweep, ok := a.accounts.Sweep(a.params.ID); ok && strings.EqualFold(sweep.Address(), address) {
		a.accounts.SetBalance(a.params.ID, true, balance, unconfirmed)
	}
}

func (a *UTXOAdapter) recordBalanceError(address string, err error) {
	if primary, ok := a.accounts.Primary(a.params.ID); ok && strings.EqualFold(primary.Address(), address) {
		a.accounts.SetBalanceError(a.params.ID, false, err)
	}
	if sweep, ok := a.accounts.Sweep(a.params.ID); ok && strings.EqualFold(sweep.Address(), address) {
		a.accounts.SetBalanceError(a.params.ID, true, err)
	}
}

// FetchUnspents lists spendable outputs for an address.
func (a *UTXOAdapter) FetchUnspents(ctx context.Context, address string) ([]Unspent, error) {
	var unspents []Unspent
	err := a.explorer.Get(ctx, a.params.Explorer, "/addr/"+address+"/utxo", &explorer.RequestOptions{
		CacheTTL: unspentsTTL,
	}, &unspents)
	if err != nil {
		return nil, err
	}
	return unspents, nil
}

// FetchTransactionHistory implements Adapter. Sends where every output
// pays the queried address back are reported as self transfers whose
// value is the miner fee.
func (a *UTXOAdapter) FetchTransactionHistory(ctx context.Context, address string) []HistoryEntry {
	var resp struct {
		Txs []InsightTx `json:"txs"`
	}
	err := a.explorer.Get(ctx, a.params.Explorer, "/txs/?address="+address, &explorer.RequestOptions{
		Validate: func(msg json.RawMessage) bool {
			var probe struct {
				Txs *json.RawMessage `json:"txs"`
			}
			return json.Unmarshal(msg, &probe) == nil && probe.Txs != nil
		},
	}, &resp)
	if err != nil {
		return []HistoryEntry{}
	}
	return shapeUTXOHistory(a.params, address, resp.Txs)
}

func shapeUTXOHistory(params *chain.Params, address string, txs []InsightTx) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(txs))
	for i := range txs {
		tx := &txs[i]

		direction := DirectionIn
		if len(tx.Vin) > 0 && strings.EqualFold(tx.Vin[0].Addr, address) {
			direction = DirectionOut
		}

		isSelf := direction == DirectionOut && len(tx.Vout) > 0
		if isSelf {
			for j := range tx.Vout {
				if !strings.EqualFold(tx.Vout[j].Address(), address) {
					isSelf = false
					break
				}
			}
		}

		var value float64
		switch {
		case isSelf:
			direction = DirectionSelf
			value = float64(tx.Fees)
		default:
			for j := range tx.Vout {
				addr := tx.Vout[j].Address()
				if addr == "" {
					continue
				}
				mine := strings.EqualFold(addr, address)
				if (direction == DirectionIn && mine) || (direction == DirectionOut && !mine) {
					value = float64(tx.Vout[j].Value)
					break
				}
			}
		}
		if value == 0 && direction != DirectionSelf {
			continue
		}

		entries = append(entries, HistoryEntry{
			Chain:         params.ID,
			Hash:          tx.Txid,
			Direction:     direction,
			Value:         value,
			Address:       address,
			Confirmations: tx.Confirmations,
			Confirmed:     tx.Confirmations > 0,
			Time:          time.Unix(tx.Time, 0),
		})
	}
	return entries
}

// FetchTransactionInfo implements Adapter.
func (a *UTXOAdapter) FetchTransactionInfo(ctx context.Context, hash string) (*TxInfo, error) {
	tx, err := a.fetchTx(ctx, hash)
	if err != nil {
		return nil, err
	}
	return NormalizeUTXO(a.params, tx), nil
}

func (a *UTXOAdapter) fetchTx(ctx context.Context, hash string) (*InsightTx, error) {
	var tx InsightTx
	err := a.explorer.Get(ctx, a.params.Explorer, "/tx/"+hash, &explorer.RequestOptions{
		Validate: func(msg json.RawMessage) bool {
			var probe struct {
				Fees *json.RawMessage `json:"fees"`
			}
			return json.Unmarshal(msg, &probe) == nil && probe.Fees != nil
		},
	}, &tx)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// FetchRawTx returns the raw hex of a confirmed transaction.
func (a *UTXOAdapter) FetchRawTx(ctx context.Context, txid string) (string, error) {
	var resp struct {
		RawTx string `json:"rawtx"`
	}
	err := a.explorer.Get(ctx, a.params.Explorer, "/rawtx/"+txid, &explorer.RequestOptions{
		Validate: func(msg json.RawMessage) bool {
			var probe struct {
				RawTx *json.RawMessage `json:"rawtx"`
			}
			return json.Unmarshal(msg, &probe) == nil && probe.RawTx != nil
		},
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.RawTx, nil
}

// EstimateFee implements Adapter, returning sat/byte for the speed
// tier. Estimation failures collapse to zero; the send path then uses
// its default rate.
func (a *UTXOAdapter) EstimateFee(ctx context.Context, speed FeeSpeed) *big.Int {
	blocks := "6"
	switch speed {
	case SpeedFast:
		blocks = "2"
	case SpeedSlow:
		blocks = "12"
	}
	var resp map[string]float64
	err := a.explorer.Get(ctx, a.params.Explorer, "/utils/estimatefee?nbBlocks="+blocks, nil, &resp)
	if err != nil {
		return big.NewInt(0)
	}
	coinsPerKB, ok := resp[blocks]
	if !ok || coinsPerKB <= 0 {
		return big.NewInt(0)
	}
	satPerByte := int64(math.Ceil(coinsPerKB * helpers.SatsPerCoin / 1024))
	return big.NewInt(satPerByte)
}

// BuildAndSend implements Adapter.
func (a *UTXOAdapter) BuildAndSend(ctx context.Context, params *SendParams) (*Submitted, error) {
	kp, err := a.signingKey(params)
	if err != nil {
		return nil, err
	}

	feeRate := params.FeeRate
	if feeRate <= 0 {
		feeRate = a.EstimateFee(ctx, params.Speed).Int64()
		if feeRate <= 0 {
			feeRate = utxoDefaultFeeRate
		}
	}

	unspents, err := a.FetchUnspents(ctx, kp.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: unspents: %v", ErrBroadcastFailed, err)
	}

	amountSats := helpers.CoinsToSats(params.Amount)
	built, err := buildSignedTx(a.params, kp, unspents, params.To, amountSats, feeRate)
	if err != nil {
		return nil, err
	}

	txid, err := a.broadcast(ctx, built.rawHex)
	if err != nil {
		return nil, err
	}
	a.log.Info("transaction sent", "txid", txid, "to", params.To, "amount", params.Amount)

	confirmed := make(chan Confirmation, 1)
	go a.waitForConfirmation(txid, confirmed)

	if feeAmount, ok := fee.Compute(a.params.AdminFee, params.Amount, params.To); ok && params.ExternalKey == "" {
		// The fee leg spends only outputs the main transfer left alone,
		// so the two never conflict.
		go a.sendAdminFee(kp, txid, feeAmount, feeRate, built.remaining)
	}

	return &Submitted{Hash: txid, Confirmed: confirmed}, nil
}

func (a *UTXOAdapter) signingKey(params *SendParams) (*keys.Keypair, error) {
	if params.ExternalKey != "" {
		kp, err := keys.FromMaterial(a.params, params.ExternalKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
		}
		return kp, nil
	}
	from := params.From
	if from == "" {
		primary, ok := a.accounts.Primary(a.params.ID)
		if !ok {
			return nil, ErrSigningFailed
		}
		from = primary.Address()
	}
	kp, ok := a.accounts.FindPrivateKeyByAddress(a.params.ID, from)
	if !ok {
		return nil, ErrSigningFailed
	}
	return kp, nil
}

func (a *UTXOAdapter) broadcast(ctx context.Context, rawHex string) (string, error) {
	var resp struct {
		Txid string `json:"txid"`
	}
	err := a.explorer.Get(ctx, a.params.Explorer, "/tx/send", &explorer.RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"rawtx": rawHex},
	}, &resp)
	if err != nil || resp.Txid == "" {
		return "", fmt.Errorf("%w: %v", ErrBroadcastFailed, err)
	}
	return resp.Txid, nil
}

func (a *UTXOAdapter) waitForConfirmation(txid string, out chan<- Confirmation) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			out <- Confirmation{Hash: txid, Err: ctx.Err()}
			return
		case <-ticker.C:
			tx, err := a.fetchTx(ctx, txid)
			if err == nil && tx.Confirmations > 0 {
				out <- Confirmation{Hash: txid, Confirmations: tx.Confirmations}
				return
			}
		}
	}
}

func (a *UTXOAdapter) sendAdminFee(kp *keys.Keypair, mainTxid string, amount float64, feeRate int64, unspents []Unspent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	built, err := buildSignedTx(a.params, kp, unspents, a.params.AdminFee.Address, helpers.CoinsToSats(amount), feeRate)
	if err != nil {
		a.feeLog.Record(a.params.ID, mainTxid, err)
		return
	}
	txid, err := a.broadcast(ctx, built.rawHex)
	if err != nil {
		a.feeLog.Record(a.params.ID, mainTxid, err)
		return
	}
	a.log.Debug("admin fee sent", "mainTx", mainTxid, "feeTx", txid, "amount", amount)
}
