package swap

import (
	"math/big"
	"strings"
	"time"

	"monadswap/internal/chain"
	"monadswap/internal/token"

	"github.com/ethereum/go-ethereum/common"
)

const BasisPoints = 10_000

var bpsDenominator = big.NewInt(BasisPoints)

// SwapAmount is floor(balance * ratioBps / 10000). Non-positive balances
// give zero.
func SwapAmount(balance *big.Int, ratioBps int64) *big.Int {
	if balance == nil || balance.Sign() <= 0 || ratioBps <= 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(balance, big.NewInt(ratioBps))
	return out.Quo(out, bpsDenominator)
}

// MinAmountOut is floor(amountIn * (10000 - slippageBps) / 10000), never
// more than amountIn.
func MinAmountOut(amountIn *big.Int, slippageBps int64) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return new(big.Int)
	}
	if slippageBps < 0 {
		slippageBps = 0
	}
	if slippageBps > BasisPoints {
		slippageBps = BasisPoints
	}
	out := new(big.Int).Mul(amountIn, big.NewInt(BasisPoints-slippageBps))
	return out.Quo(out, bpsDenominator)
}

// Intent is one swap the loop is about to submit.
type Intent struct {
	TokenIn      token.Token
	TokenOut     token.Token
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Recipient    common.Address
	Deadline     time.Time
}

func NewIntent(in, out token.Token, amountIn *big.Int, recipient common.Address, now time.Time, cfg Config) Intent {
	return Intent{
		TokenIn:      in,
		TokenOut:     out,
		AmountIn:     new(big.Int).Set(amountIn),
		MinAmountOut: MinAmountOut(amountIn, cfg.SlippageBps),
		Recipient:    recipient,
		Deadline:     now.Add(cfg.Deadline),
	}
}

func (i Intent) Path() []common.Address {
	return []common.Address{i.TokenIn.Address, i.TokenOut.Address}
}

func (i Intent) Request() chain.SwapRequest {
	return chain.SwapRequest{
		AmountIn:     new(big.Int).Set(i.AmountIn),
		AmountOutMin: new(big.Int).Set(i.MinAmountOut),
		Path:         i.Path(),
		Recipient:    i.Recipient,
		Deadline:     big.NewInt(i.Deadline.Unix()),
	}
}

// TxURL joins the explorer base with a transaction hash.
func TxURL(explorer string, hash common.Hash) string {
	if explorer == "" {
		return hash.Hex()
	}
	if !strings.HasSuffix(explorer, "/") {
		explorer += "/"
	}
	return explorer + hash.Hex()
}
