package adapter

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/swapdeck/walletd/internal/chain"
	"github.com/swapdeck/walletd/internal/explorer"
	"github.com/swapdeck/walletd/internal/keys"
	"github.com/swapdeck/walletd/pkg/logging"
)

// fakeNode implements EVMNode in memory.
type fakeNode struct {
	balance      *big.Int
	balanceErr   error
	gasPrice     *big.Int
	nonce        uint64
	balanceCalls int
	sent         chan *types.Transaction
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		balance:  new(big.Int).Mul(big.NewInt(3), big.NewInt(1e18)),
		gasPrice: big.NewInt(2e9),
		sent:     make(chan *types.Transaction, 8),
	}
}

func (n *fakeNode) BalanceAt(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error) {
	n.balanceCalls++
	if n.balanceErr != nil {
		return nil, n.balanceErr
	}
	return n.balance, nil
}

func (n *fakeNode) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	return nil, false, errors.New("not found")
}

func (n *fakeNode) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return nil, errors.New("not found")
}

func (n *fakeNode) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	nonce := n.nonce
	n.nonce++
	return nonce, nil
}

func (n *fakeNode) CodeAt(ctx context.Context, account common.Address, block *big.Int) ([]byte, error) {
	return nil, nil
}

func (n *fakeNode) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return n.gasPrice, nil
}

func (n *fakeNode) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	n.sent <- tx
	return nil
}

func newEVMTestAdapter(t *testing.T, node *fakeNode, feeAddr string) (*EVMAdapter, *keys.AccountStore) {
	t.Helper()
	base, _ := chain.Get(chain.ETH)
	params := *base
	if feeAddr != "" {
		params.AdminFee = &chain.FeePolicy{Percent: 1, Min: 0.01, Address: feeAddr}
	}

	log := logging.New(&logging.Config{Level: "fatal"})
	accounts := keys.NewAccountStore()
	kp, err := keys.Derive(&params, testMnemonic, 0)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	accounts.SetPrimary(&keys.Account{Chain: chain.ETH, Keypair: kp, MnemonicDerived: true})

	exp := explorer.NewClient(nil, explorer.NewCache(), log)
	a := NewEVMAdapter(&params, node, exp, accounts, explorer.NewCache(), NewFeeLegLog(log), log)
	return a, accounts
}

func TestEVMFetchBalance(t *testing.T) {
	node := newFakeNode()
	a, accounts := newEVMTestAdapter(t, node, "")
	primary, _ := accounts.Primary(chain.ETH)

	balance, _ := a.FetchBalance(context.Background(), primary.Address())
	if balance != 3 {
		t.Errorf("balance = %v, want 3", balance)
	}
	acct, _ := accounts.Primary(chain.ETH)
	if acct.Balance != 3 || acct.BalanceError != nil || !acct.BalanceFetched {
		t.Errorf("account after fetch: %+v", acct)
	}
}

func TestEVMFetchBalanceFailure(t *testing.T) {
	node := newFakeNode()
	node.balanceErr = errors.New("node down")
	a, accounts := newEVMTestAdapter(t, node, "")
	primary, _ := accounts.Primary(chain.ETH)

	balance, _ := a.FetchBalance(context.Background(), primary.Address())
	if balance != 0 {
		t.Errorf("balance = %v, want 0 on failure", balance)
	}
	acct, _ := accounts.Primary(chain.ETH)
	if acct.BalanceError == nil {
		t.Error("balance error not recorded")
	}
}

func TestEVMBalanceCached(t *testing.T) {
	node := newFakeNode()
	a, _ := newEVMTestAdapter(t, node, "")

	first := a.Balance(context.Background())
	second := a.Balance(context.Background())
	if first != 3 || second != 3 {
		t.Errorf("balances = %v, %v", first, second)
	}
	if node.balanceCalls != 1 {
		t.Errorf("node hit %d times, want 1 (cached)", node.balanceCalls)
	}
}

func TestEVMBuildAndSendWithFeeLeg(t *testing.T) {
	node := newFakeNode()
	a, _ := newEVMTestAdapter(t, node, "0x00000000000000000000000000000000000000fe")

	sub, err := a.BuildAndSend(context.Background(), &SendParams{
		To:     "0x1111111111111111111111111111111111111111",
		Amount: 2,
	})
	if err != nil {
		t.Fatalf("BuildAndSend: %v", err)
	}
	if sub.Hash == "" {
		t.Fatal("no hash returned")
	}

	main := <-node.sent
	if main.Value().Cmp(new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18))) != 0 {
		t.Errorf("main value = %s", main.Value())
	}

	select {
	case feeTx := <-node.sent:
		if feeTx.To().Hex() != common.HexToAddress("0x00000000000000000000000000000000000000fe").Hex() {
			t.Errorf("fee leg to %s", feeTx.To().Hex())
		}
		// 1% of 2 is 0.02, above the 0.01 minimum
		want := new(big.Int).Mul(big.NewInt(2), big.NewInt(1e16))
		if feeTx.Value().Cmp(want) != 0 {
			t.Errorf("fee value = %s, want %s", feeTx.Value(), want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("admin fee leg never sent")
	}
}

func TestEVMBuildAndSendNoFeeToFeeAddress(t *testing.T) {
	feeAddr := "0x00000000000000000000000000000000000000fe"
	node := newFakeNode()
	a, _ := newEVMTestAdapter(t, node, feeAddr)

	if _, err := a.BuildAndSend(context.Background(), &SendParams{To: feeAddr, Amount: 2}); err != nil {
		t.Fatalf("BuildAndSend: %v", err)
	}
	<-node.sent // main transfer

	select {
	case tx := <-node.sent:
		t.Errorf("unexpected fee leg to %s", tx.To().Hex())
	case <-time.After(200 * time.Millisecond):
	}
}

func TestEVMBuildAndSendUnknownSender(t *testing.T) {
	node := newFakeNode()
	a, _ := newEVMTestAdapter(t, node, "")

	_, err := a.BuildAndSend(context.Background(), &SendParams{
		From:   "0x2222222222222222222222222222222222222222",
		To:     "0x1111111111111111111111111111111111111111",
		Amount: 1,
	})
	if !errors.Is(err, ErrSigningFailed) {
		t.Errorf("err = %v, want ErrSigningFailed", err)
	}
}

func TestEVMEstimateFeeSpeeds(t *testing.T) {
	node := newFakeNode()
	a, _ := newEVMTestAdapter(t, node, "")
	ctx := context.Background()

	normal := a.EstimateFee(ctx, SpeedNormal)
	fast := a.EstimateFee(ctx, SpeedFast)
	slow := a.EstimateFee(ctx, SpeedSlow)
	if normal.Cmp(big.NewInt(2e9)) != 0 {
		t.Errorf("normal = %s", normal)
	}
	if fast.Cmp(big.NewInt(4e9)) != 0 {
		t.Errorf("fast = %s", fast)
	}
	if slow.Cmp(normal) >= 0 {
		t.Errorf("slow %s not below normal %s", slow, normal)
	}
}
