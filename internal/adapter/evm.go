package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/swapdeck/walletd/internal/chain"
	"github.com/swapdeck/walletd/internal/explorer"
	"github.com/swapdeck/walletd/internal/fee"
	"github.com/swapdeck/walletd/internal/keys"
	"github.com/swapdeck/walletd/pkg/helpers"
	"github.com/swapdeck/walletd/pkg/logging"
)

// EVMNode is the subset of the go-ethereum client the adapter needs.
// *ethclient.Client satisfies it.
type EVMNode interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Gas limit used when the recipient is a contract. Plain transfers use
// the per-chain default.
const evmContractGasLimit = 350000

// EVMAdapter drives an account-based chain through a node RPC endpoint
// plus an etherscan-style explorer for history.
type EVMAdapter struct {
	params   *chain.Params
	node     EVMNode
	explorer *explorer.Client
	accounts *keys.AccountStore
	cache    *explorer.Cache
	feeLog   *FeeLegLog
	log      *logging.Logger

	// contract probe results are stable for a session
	contractMu sync.Mutex
	contracts  map[string]bool
}

// NewEVMAdapter creates an adapter for an EVM chain.
func NewEVMAdapter(params *chain.Params, node EVMNode, exp *explorer.Client, accounts *keys.AccountStore, cache *explorer.Cache, feeLog *FeeLegLog, log *logging.Logger) *EVMAdapter {
	return &EVMAdapter{
		params:    params,
		node:      node,
		explorer:  exp,
		accounts:  accounts,
		cache:     cache,
		feeLog:    feeLog,
		log:       log.Component("adapter/" + params.ID.Key()),
		contracts: make(map[string]bool),
	}
}

// Chain implements Adapter.
func (a *EVMAdapter) Chain() chain.ID {
	return a.params.ID
}

// FetchBalance implements Adapter. EVM nodes report no separate
// unconfirmed balance, so the second return is always zero.
func (a *EVMAdapter) FetchBalance(ctx context.Context, address string) (float64, float64) {
	wei, err := a.node.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		a.log.Debug("balance fetch failed", "address", address, "err", err)
		a.recordBalanceError(address, err)
		return 0, 0
	}
	balance := helpers.WeiToCoins(wei)
	a.recordBalance(address, balance, 0)
	return balance, 0
}

// Balance implements Adapter, serving the primary account balance
// through the shared cache.
func (a *EVMAdapter) Balance(ctx context.Context) float64 {
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

func (a *EVMAdapter) recordBalance(address string, balance, unconfirmed float64) {
	if primary, ok := a.accounts.Primary(a.params.ID); ok && strings.EqualFold(primary.Address(), address) {
		a.accounts.SetBalance(a.params.ID, false, balance, unconfirmed)
	}
	if sweep, ok := a.accounts.Sweep(a.params.ID); ok && strings.EqualFold(sweep.Address(), address) {
		a.accounts.SetBalance(a.params.ID, true, balance, unconfirmed)
	}
}

func (a *EVMAdapter) recordBalanceError(address string, err error) {
	if primary, ok := a.accounts.Primary(a.params.ID); ok && strings.EqualFold(primary.Address(), address) {
		a.accounts.SetBalanceError(a.params.ID, false, err)
	}
	if sweep, ok := a.accounts.Sweep(a.params.ID); ok && strings.EqualFold(sweep.Address(), address) {
		a.accounts.SetBalanceError(a.params.ID, true, err)
	}
}

// etherscanTx mirrors one row of an etherscan account list. Numeric
// fields arrive as decimal strings.
type etherscanTx struct {
	Hash          string `json:"hash"`
	From          string `json:"from"`
	To            string `json:"to"`
	Value         string `json:"value"` // wei
	BlockHash     string `json:"blockHash"`
	Confirmations string `json:"confirmations"`
	TimeStamp     string `json:"timeStamp"`
}

// internalTransfer is the value an internal transaction moved for a
// given hash.
type internalTransfer struct {
	valueWei *big.Int
	to       string
}

// FetchTransactionHistory implements Adapter. The external transaction
// list is merged with internal transfers so contract-mediated value
// shows up, then admin-fee legs are filtered out of outgoing entries.
func (a *EVMAdapter) FetchTransactionHistory(ctx context.Context, address string) []HistoryEntry {
	internals := a.fetchInternalTransfers(ctx, address)
	if internals == nil {
		return []HistoryEntry{}
	}

	txs, err := a.fetchTxList(ctx, "txlist", address)
	if err != nil {
		return []HistoryEntry{}
	}
	return mergeEVMHistory(a.params, address, txs, internals)
}

func (a *EVMAdapter) fetchInternalTransfers(ctx context.Context, address string) map[string]internalTransfer {
	rows, err := a.fetchTxList(ctx, "txlistinternal", address)
	if err != nil {
		return nil
	}
	internals := make(map[string]internalTransfer, len(rows))
	for _, row := range rows {
		value, ok := new(big.Int).SetString(row.Value, 10)
		if !ok {
			continue
		}
		internals[row.Hash] = internalTransfer{valueWei: value, to: row.To}
	}
	return internals
}

func (a *EVMAdapter) fetchTxList(ctx context.Context, action, address string) ([]etherscanTx, error) {
	path := fmt.Sprintf("?module=account&action=%s&address=%s&startblock=0&endblock=99999999&sort=asc", action, address)
	var resp struct {
		Result json.RawMessage `json:"result"`
	}
	err := a.explorer.Get(ctx, a.params.Explorer, path, &explorer.RequestOptions{
		Validate: func(msg json.RawMessage) bool {
			var probe struct {
				Result json.RawMessage `json:"result"`
			}
			if json.Unmarshal(msg, &probe) != nil {
				return false
			}
			trimmed := strings.TrimSpace(string(probe.Result))
			return strings.HasPrefix(trimmed, "[")
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	var rows []etherscanTx
	if err := json.Unmarshal(resp.Result, &rows); err != nil {
		return nil, fmt.Errorf("%w: decode result: %v", explorer.ErrNoData, err)
	}
	return rows, nil
}

// mergeEVMHistory applies the history shaping rules: zero-value
// entries are dropped unless an internal transfer carried value, the
// internal value and direction win when present, and outgoing
// admin-fee legs are hidden from every address except the fee address
// itself.
func mergeEVMHistory(params *chain.Params, address string, txs []etherscanTx, internals map[string]internalTransfer) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(txs))
	for _, tx := range txs {
		valueWei, ok := new(big.Int).SetString(tx.Value, 10)
		if !ok {
			continue
		}
		internal, hasInternal := internals[tx.Hash]
		internalValue := hasInternal && internal.valueWei.Sign() > 0

		if valueWei.Sign() <= 0 && !internalValue {
			continue
		}

		displayWei := valueWei
		if internalValue {
			displayWei = internal.valueWei
		}

		direction := DirectionOut
		switch {
		case hasInternal && strings.EqualFold(internal.to, address):
			direction = DirectionIn
		case strings.EqualFold(tx.To, address):
			direction = DirectionIn
		}

		if direction == DirectionOut && params.AdminFee != nil &&
			!strings.EqualFold(address, params.AdminFee.Address) &&
			strings.EqualFold(tx.To, params.AdminFee.Address) {
			continue
		}

		confirmations, _ := strconv.ParseInt(tx.Confirmations, 10, 64)
		timestamp, _ := strconv.ParseInt(tx.TimeStamp, 10, 64)
		entries = append(entries, HistoryEntry{
			Chain:         params.ID,
			Hash:          tx.Hash,
			Direction:     direction,
			Value:         helpers.WeiToCoins(displayWei),
			Address:       tx.To,
			Confirmations: confirmations,
			Confirmed:     tx.BlockHash != "",
			Time:          time.Unix(timestamp, 0),
		})
	}
	return entries
}

// FetchTransactionInfo implements Adapter.
func (a *EVMAdapter) FetchTransactionInfo(ctx context.Context, hash string) (*TxInfo, error) {
	tx, pending, err := a.node.TransactionByHash(ctx, common.HexToHash(hash))
	if err != nil {
		return nil, fmt.Errorf("fetch transaction %s: %w", hash, err)
	}

	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(a.params.ChainID))
	from, err := types.Sender(signer, tx)
	if err != nil {
		return nil, fmt.Errorf("recover sender of %s: %w", hash, err)
	}

	to := ""
	if tx.To() != nil {
		to = tx.To().Hex()
	}
	raw := &EVMRawTx{
		Hash:     hash,
		From:     from.Hex(),
		To:       to,
		Value:    tx.Value(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Pending:  pending,
	}
	if !pending {
		raw.Confirmations = 1
		if receipt, err := a.node.TransactionReceipt(ctx, common.HexToHash(hash)); err == nil && receipt.GasUsed > 0 {
			raw.Gas = receipt.GasUsed
		}
	}
	return NormalizeEVM(a.params, raw), nil
}

// EstimateFee implements Adapter, returning a gas price in wei scaled
// by the speed tier.
func (a *EVMAdapter) EstimateFee(ctx context.Context, speed FeeSpeed) *big.Int {
	price, err := a.node.SuggestGasPrice(ctx)
	if err != nil || price == nil {
		a.log.Debug("gas price estimation failed", "err", err)
		return big.NewInt(0)
	}
	switch speed {
	case SpeedSlow:
		return new(big.Int).Div(new(big.Int).Mul(price, big.NewInt(9)), big.NewInt(10))
	case SpeedFast:
		return new(big.Int).Mul(price, big.NewInt(2))
	default:
		return price
	}
}

func (a *EVMAdapter) isContract(ctx context.Context, address string) bool {
	key := strings.ToLower(address)
	a.contractMu.Lock()
	cached, ok := a.contracts[key]
	a.contractMu.Unlock()
	if ok {
		return cached
	}
	code, err := a.node.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return false
	}
	result := len(code) > 0
	a.contractMu.Lock()
	a.contracts[key] = result
	a.contractMu.Unlock()
	return result
}

func (a *EVMAdapter) signingKey(params *SendParams) (*keys.Keypair, error) {
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

// BuildAndSend implements Adapter.
func (a *EVMAdapter) BuildAndSend(ctx context.Context, params *SendParams) (*Submitted, error) {
	kp, err := a.signingKey(params)
	if err != nil {
		return nil, err
	}
	from := common.HexToAddress(kp.Address)
	to := common.HexToAddress(params.To)

	gasPrice := params.GasPrice
	if gasPrice == nil || gasPrice.Sign() <= 0 {
		gasPrice = a.EstimateFee(ctx, params.Speed)
		if gasPrice.Sign() <= 0 {
			// last-resort floor of 1 gwei
			gasPrice = big.NewInt(1e9)
		}
	}

	gasLimit := params.GasLimit
	if gasLimit == 0 {
		gasLimit = a.params.GasLimitSend
		if a.isContract(ctx, params.To) && evmContractGasLimit > gasLimit {
			gasLimit = evmContractGasLimit
		}
	}

	nonce, err := a.node.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrBroadcastFailed, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    helpers.CoinsToWei(params.Amount),
		Gas:      gasLimit,
		GasPrice: gasPrice,
	})
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(a.params.ChainID))
	signed, err := types.SignTx(tx, signer, kp.PrivateKey.ToECDSA())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	if err := a.node.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBroadcastFailed, err)
	}
	hash := signed.Hash().Hex()
	a.log.Info("transaction sent", "hash", hash, "to", params.To, "amount", params.Amount)

	confirmed := make(chan Confirmation, 1)
	go a.waitForConfirmation(hash, confirmed)

	// The admin fee rides in a second, detached transfer. The caller
	// already has the main hash; a fee failure is recorded, not raised.
	if feeAmount, ok := fee.Compute(a.params.AdminFee, params.Amount, params.To); ok && params.ExternalKey == "" {
		go a.sendAdminFee(kp, hash, feeAmount, gasPrice)
	}

	return &Submitted{Hash: hash, Confirmed: confirmed}, nil
}

func (a *EVMAdapter) waitForConfirmation(hash string, out chan<- Confirmation) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			out <- Confirmation{Hash: hash, Err: ctx.Err()}
			return
		case <-ticker.C:
			receipt, err := a.node.TransactionReceipt(ctx, common.HexToHash(hash))
			if err == nil && receipt != nil {
				out <- Confirmation{Hash: hash, Confirmations: 1}
				return
			}
		}
	}
}

func (a *EVMAdapter) sendAdminFee(kp *keys.Keypair, mainHash string, amount float64, gasPrice *big.Int) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	from := common.HexToAddress(kp.Address)
	feeAddr := common.HexToAddress(a.params.AdminFee.Address)

	nonce, err := a.node.PendingNonceAt(ctx, from)
	if err != nil {
		a.feeLog.Record(a.params.ID, mainHash, err)
		return
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &feeAddr,
		Value:    helpers.CoinsToWei(amount),
		Gas:      a.params.GasLimitSend,
		GasPrice: gasPrice,
	})
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(a.params.ChainID))
	signed, err := types.SignTx(tx, signer, kp.PrivateKey.ToECDSA())
	if err != nil {
		a.feeLog.Record(a.params.ID, mainHash, err)
		return
	}
	if err := a.node.SendTransaction(ctx, signed); err != nil {
		a.feeLog.Record(a.params.ID, mainHash, err)
		return
	}
	a.log.Debug("admin fee sent", "mainTx", mainHash, "feeTx", signed.Hash().Hex(), "amount", amount)
}
