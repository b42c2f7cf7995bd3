package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/swapdeck/walletd/internal/adapter"
	"github.com/swapdeck/walletd/internal/chain"
	"github.com/swapdeck/walletd/internal/keys"
	"github.com/swapdeck/walletd/internal/sweep"
	"github.com/swapdeck/walletd/pkg/logging"
)

// WalletService wires the wallet engine into RPC methods.
type WalletService struct {
	registry     *adapter.Registry
	coordinators map[chain.ID]*sweep.Coordinator
	accounts     *keys.AccountStore
	feeLog       *adapter.FeeLegLog
	log          *logging.Logger
}

// NewWalletService creates the RPC-facing wallet service.
func NewWalletService(registry *adapter.Registry, coordinators map[chain.ID]*sweep.Coordinator, accounts *keys.AccountStore, feeLog *adapter.FeeLegLog, log *logging.Logger) *WalletService {
	return &WalletService{
		registry:     registry,
		coordinators: coordinators,
		accounts:     accounts,
		feeLog:       feeLog,
		log:          log.Component("wallet"),
	}
}

// RegisterHandlers attaches every wallet method to the server.
func (ws *WalletService) RegisterHandlers(s *Server) {
	s.Handle("wallet_generateMnemonic", ws.handleGenerateMnemonic)
	s.Handle("wallet_login", ws.handleLogin)
	s.Handle("wallet_balance", ws.handleBalance)
	s.Handle("wallet_addresses", ws.handleAddresses)
	s.Handle("wallet_history", ws.handleHistory)
	s.Handle("wallet_txInfo", ws.handleTxInfo)
	s.Handle("wallet_estimateFee", ws.handleEstimateFee)
	s.Handle("wallet_send", ws.handleSend)
	s.Handle("wallet_sweepStatus", ws.handleSweepStatus)
	s.Handle("wallet_sweepToMnemonic", ws.handleSweepToMnemonic)
	s.Handle("wallet_feeFailures", ws.handleFeeFailures)
}

func (ws *WalletService) adapterFor(id chain.ID) (adapter.Adapter, *Error) {
	a, err := ws.registry.Get(id)
	if err != nil {
		return nil, Errorf(CodeInvalidParams, "unsupported chain: "+string(id))
	}
	return a, nil
}

func (ws *WalletService) coordinatorFor(id chain.ID) (*sweep.Coordinator, *Error) {
	c, ok := ws.coordinators[id]
	if !ok {
		return nil, Errorf(CodeInvalidParams, "unsupported chain: "+string(id))
	}
	return c, nil
}

func decodeParams(params json.RawMessage, out interface{}) *Error {
	if len(params) == 0 {
		return Errorf(CodeInvalidParams, "missing params")
	}
	if err := json.Unmarshal(params, out); err != nil {
		return Errorf(CodeInvalidParams, "bad params: "+err.Error())
	}
	return nil
}

func (ws *WalletService) handleGenerateMnemonic(ctx context.Context, _ json.RawMessage) (interface{}, *Error) {
	mnemonic, err := keys.GenerateMnemonic()
	if err != nil {
		return nil, Errorf(CodeInternalError, err.Error())
	}
	return map[string]string{"mnemonic": mnemonic}, nil
}

type loginParams struct {
	Chain        chain.ID          `json:"chain"`
	PrivateKey   string            `json:"privateKey"`
	Mnemonic     string            `json:"mnemonic"`
	MnemonicKeys map[string]string `json:"mnemonicKeys"`
}

func (ws *WalletService) handleLogin(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p loginParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	coordinator, rpcErr := ws.coordinatorFor(p.Chain)
	if rpcErr != nil {
		return nil, rpcErr
	}

	opts := &sweep.LoginOptions{
		PrivateKey: p.PrivateKey,
		Mnemonic:   p.Mnemonic,
	}
	if len(p.MnemonicKeys) > 0 {
		opts.MnemonicKeys = make(map[chain.ID]string, len(p.MnemonicKeys))
		for key, material := range p.MnemonicKeys {
			opts.MnemonicKeys[chain.ID(key)] = material
		}
	}

	acct, err := coordinator.Login(ctx, opts)
	switch {
	case errors.Is(err, sweep.ErrMissingMnemonicKey):
		return nil, Errorf(CodeInvalidParams, "mnemonic key unavailable for "+string(p.Chain))
	case errors.Is(err, keys.ErrInvalidMnemonic):
		return nil, Errorf(CodeInvalidParams, "invalid mnemonic")
	case errors.Is(err, keys.ErrInvalidKey):
		return nil, Errorf(CodeInvalidParams, "invalid private key")
	case err != nil:
		return nil, Errorf(CodeInternalError, err.Error())
	}

	return map[string]interface{}{
		"address":         acct.Address(),
		"mnemonicDerived": acct.MnemonicDerived,
		"sweepState":      coordinator.State(),
		"sweepAddress":    coordinator.SweepAddress(),
	}, nil
}

type chainAddressParams struct {
	Chain   chain.ID `json:"chain"`
	Address string   `json:"address"`
}

func (ws *WalletService) handleBalance(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p chainAddressParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	a, rpcErr := ws.adapterFor(p.Chain)
	if rpcErr != nil {
		return nil, rpcErr
	}

	resp := map[string]interface{}{"chain": p.Chain}
	if p.Address != "" {
		balance, unconfirmed := a.FetchBalance(ctx, p.Address)
		resp["address"] = p.Address
		resp["balance"] = balance
		resp["unconfirmed"] = unconfirmed
		return resp, nil
	}

	primary, ok := ws.accounts.Primary(p.Chain)
	if !ok {
		return nil, Errorf(CodeInvalidParams, "no account loaded for "+string(p.Chain))
	}
	balance := a.Balance(ctx)
	resp["address"] = primary.Address()
	resp["balance"] = balance
	if acct, ok := ws.accounts.Primary(p.Chain); ok {
		resp["unconfirmed"] = acct.Unconfirmed
		if acct.BalanceError != nil {
			resp["balanceError"] = acct.BalanceError.Error()
		}
	}
	return resp, nil
}

func (ws *WalletService) handleAddresses(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p chainAddressParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if _, rpcErr := ws.adapterFor(p.Chain); rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]interface{}{
		"chain":     p.Chain,
		"addresses": ws.accounts.AllAddresses(p.Chain),
	}, nil
}

func (ws *WalletService) handleHistory(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p chainAddressParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	a, rpcErr := ws.adapterFor(p.Chain)
	if rpcErr != nil {
		return nil, rpcErr
	}

	address := p.Address
	if address == "" {
		primary, ok := ws.accounts.Primary(p.Chain)
		if !ok {
			return nil, Errorf(CodeInvalidParams, "no account loaded for "+string(p.Chain))
		}
		address = primary.Address()
	}
	return map[string]interface{}{
		"chain":        p.Chain,
		"address":      address,
		"transactions": a.FetchTransactionHistory(ctx, address),
	}, nil
}

type txInfoParams struct {
	Chain chain.ID `json:"chain"`
	Hash  string   `json:"hash"`
}

func (ws *WalletService) handleTxInfo(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p txInfoParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.Hash == "" {
		return nil, Errorf(CodeInvalidParams, "missing hash")
	}
	a, rpcErr := ws.adapterFor(p.Chain)
	if rpcErr != nil {
		return nil, rpcErr
	}
	info, err := a.FetchTransactionInfo(ctx, p.Hash)
	if err != nil {
		return nil, Errorf(CodeInternalError, err.Error())
	}
	return info, nil
}

type estimateFeeParams struct {
	Chain chain.ID         `json:"chain"`
	Speed adapter.FeeSpeed `json:"speed"`
}

func (ws *WalletService) handleEstimateFee(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p estimateFeeParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	a, rpcErr := ws.adapterFor(p.Chain)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if p.Speed == "" {
		p.Speed = adapter.SpeedNormal
	}
	return map[string]interface{}{
		"chain":   p.Chain,
		"speed":   p.Speed,
		"feeRate": a.EstimateFee(ctx, p.Speed).String(),
	}, nil
}

type sendParams struct {
	Chain       chain.ID         `json:"chain"`
	From        string           `json:"from"`
	To          string           `json:"to"`
	Amount      float64          `json:"amount"`
	Speed       adapter.FeeSpeed `json:"speed"`
	GasLimit    uint64           `json:"gasLimit"`
	FeeRate     int64            `json:"feeRate"`
	ExternalKey string           `json:"externalKey"`
}

func (ws *WalletService) handleSend(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p sendParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.To == "" || p.Amount <= 0 {
		return nil, Errorf(CodeInvalidParams, "missing destination or amount")
	}
	a, rpcErr := ws.adapterFor(p.Chain)
	if rpcErr != nil {
		return nil, rpcErr
	}

	submitted, err := a.BuildAndSend(ctx, &adapter.SendParams{
		From:        p.From,
		To:          p.To,
		Amount:      p.Amount,
		Speed:       p.Speed,
		GasLimit:    p.GasLimit,
		FeeRate:     p.FeeRate,
		ExternalKey: p.ExternalKey,
	})
	switch {
	case errors.Is(err, adapter.ErrInsufficientFunds):
		return nil, Errorf(CodeInvalidParams, "insufficient funds")
	case errors.Is(err, adapter.ErrSigningFailed):
		return nil, Errorf(CodeInvalidParams, "no signing key for sender")
	case err != nil:
		return nil, Errorf(CodeInternalError, err.Error())
	}
	return map[string]string{"hash": submitted.Hash}, nil
}

type chainParams struct {
	Chain chain.ID `json:"chain"`
}

func (ws *WalletService) handleSweepStatus(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p chainParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	coordinator, rpcErr := ws.coordinatorFor(p.Chain)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return map[string]interface{}{
		"chain":        p.Chain,
		"state":        coordinator.State(),
		"complete":     coordinator.IsSweepComplete(),
		"sweepAddress": coordinator.SweepAddress(),
	}, nil
}

type sweepToMnemonicParams struct {
	Chain    chain.ID `json:"chain"`
	Mnemonic string   `json:"mnemonic"`
}

func (ws *WalletService) handleSweepToMnemonic(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p sweepToMnemonicParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	coordinator, rpcErr := ws.coordinatorFor(p.Chain)
	if rpcErr != nil {
		return nil, rpcErr
	}
	material, err := coordinator.SweepToMnemonic(p.Mnemonic)
	if errors.Is(err, keys.ErrInvalidMnemonic) {
		return nil, Errorf(CodeInvalidParams, "invalid mnemonic")
	}
	if err != nil {
		return nil, Errorf(CodeInternalError, err.Error())
	}
	return map[string]string{"privateKey": material}, nil
}

func (ws *WalletService) handleFeeFailures(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p chainParams
	if len(params) > 0 {
		if rpcErr := decodeParams(params, &p); rpcErr != nil {
			return nil, rpcErr
		}
	}
	return map[string]interface{}{
		"failures": ws.feeLog.Failures(p.Chain),
	}, nil
}
