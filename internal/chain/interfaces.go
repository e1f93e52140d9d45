package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Client abstracts the on-chain calls the swap loop makes for one wallet.
type Client interface {
	Address() common.Address
	NativeBalance(ctx context.Context) (*big.Int, error)
	TokenBalance(ctx context.Context, token common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, spender common.Address) (*big.Int, error)
	// Approve submits an approval and blocks until it is mined.
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (Receipt, error)
	// Swap submits swapExactTokensForTokens and blocks until it is mined.
	Swap(ctx context.Context, req SwapRequest) (Receipt, error)
}

// HealthChecker is implemented by clients that can probe the RPC endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type SwapRequest struct {
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Path         []common.Address
	Recipient    common.Address
	Deadline     *big.Int // unix seconds
}

// Receipt is the part of a mined transaction receipt the bot reports on.
type Receipt struct {
	TxHash      common.Hash
	GasUsed     uint64
	BlockNumber uint64
	Success     bool
}

var (
	_ Client        = (*EthClient)(nil)
	_ HealthChecker = (*EthClient)(nil)
	_ Client        = (*FakeClient)(nil)
)
