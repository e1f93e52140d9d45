package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// FakeClient is an in-memory chain used by tests and dry runs. Every
// submitted transaction burns GasCost from the native balance.
type FakeClient struct {
	mu sync.Mutex

	Wallet     common.Address
	Native     *big.Int
	Balances   map[common.Address]*big.Int
	Allowances map[common.Address]*big.Int
	GasUsed    uint64
	GasCost    *big.Int

	NativeErr     error
	BalanceErr    error
	AllowanceErr  map[common.Address]error
	ApproveErr    map[common.Address]error
	SwapErr       error
	RevertSwaps   bool
	PingErr       error
	Approvals     []common.Address
	Swaps         []SwapRequest
	NativeQueries int

	txCount uint64
}

func NewFakeClient(wallet common.Address) *FakeClient {
	return &FakeClient{
		Wallet:       wallet,
		Native:       big.NewInt(0),
		Balances:     make(map[common.Address]*big.Int),
		Allowances:   make(map[common.Address]*big.Int),
		AllowanceErr: make(map[common.Address]error),
		ApproveErr:   make(map[common.Address]error),
		GasUsed:      21000,
		GasCost:      big.NewInt(0),
	}
}

func (f *FakeClient) Address() common.Address {
	return f.Wallet
}

func (f *FakeClient) NativeBalance(_ context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NativeQueries++
	if f.NativeErr != nil {
		return nil, f.NativeErr
	}
	return new(big.Int).Set(f.Native), nil
}

func (f *FakeClient) TokenBalance(_ context.Context, token common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BalanceErr != nil {
		return nil, f.BalanceErr
	}
	return copyOrZero(f.Balances[token]), nil
}

func (f *FakeClient) Allowance(_ context.Context, token, _ common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.AllowanceErr[token]; err != nil {
		return nil, err
	}
	return copyOrZero(f.Allowances[token]), nil
}

func (f *FakeClient) Approve(_ context.Context, token, _ common.Address, amount *big.Int) (Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Approvals = append(f.Approvals, token)
	if err := f.ApproveErr[token]; err != nil {
		return Receipt{}, err
	}
	f.Allowances[token] = new(big.Int).Set(amount)
	return f.mine(true), nil
}

func (f *FakeClient) Swap(_ context.Context, req SwapRequest) (Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Swaps = append(f.Swaps, req)
	if f.SwapErr != nil {
		return Receipt{}, f.SwapErr
	}
	if err := validateSwapRequest(req); err != nil {
		return Receipt{}, err
	}
	if f.RevertSwaps {
		receipt := f.mine(false)
		return receipt, fmt.Errorf("swap %s: %w: transaction reverted", receipt.TxHash.Hex(), ErrContractCall)
	}

	in, out := req.Path[0], req.Path[len(req.Path)-1]
	f.Balances[in] = new(big.Int).Sub(copyOrZero(f.Balances[in]), req.AmountIn)
	f.Balances[out] = new(big.Int).Add(copyOrZero(f.Balances[out]), req.AmountOutMin)
	return f.mine(true), nil
}

func (f *FakeClient) Ping(_ context.Context) error {
	return f.PingErr
}

// mine must be called with f.mu held.
func (f *FakeClient) mine(success bool) Receipt {
	f.txCount++
	f.Native = new(big.Int).Sub(f.Native, f.GasCost)
	return Receipt{
		TxHash:      fakeHash(f.Wallet, f.txCount),
		GasUsed:     f.GasUsed,
		BlockNumber: f.txCount,
		Success:     success,
	}
}

func fakeHash(wallet common.Address, n uint64) common.Hash {
	return crypto.Keccak256Hash(wallet.Bytes(), new(big.Int).SetUint64(n).Bytes())
}

func copyOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
