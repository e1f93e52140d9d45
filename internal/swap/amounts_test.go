package swap

import (
	"math/big"
	"math/rand"
	"testing"
	"time"

	"monadswap/internal/token"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwapAmountBoundary(t *testing.T) {
	tests := []struct {
		balance int64
		want    int64
	}{
		{0, 0},
		{1, 0},
		{19, 0},
		{20, 1},
		{39, 1},
		{40, 2},
		{1000, 50},
		{-5, 0},
	}
	for _, tt := range tests {
		got := SwapAmount(big.NewInt(tt.balance), 500)
		assert.Equal(t, tt.want, got.Int64(), "balance %d", tt.balance)
	}
	assert.Zero(t, SwapAmount(nil, 500).Sign())
}

func TestSwapAmountLargeBalance(t *testing.T) {
	balance, ok := new(big.Int).SetString("1000000000000000000000000", 10)
	require.True(t, ok)

	want, _ := new(big.Int).SetString("50000000000000000000000", 10)
	assert.Equal(t, 0, want.Cmp(SwapAmount(balance, 500)))
}

func TestMinAmountOutNeverExceedsInput(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		in := big.NewInt(rng.Int63n(1 << 40))
		bps := rng.Int63n(BasisPoints + 1)
		out := MinAmountOut(in, bps)
		assert.LessOrEqual(t, out.Cmp(in), 0, "in=%s bps=%d out=%s", in, bps, out)
		assert.GreaterOrEqual(t, out.Sign(), 0)
	}

	assert.Equal(t, int64(47), MinAmountOut(big.NewInt(50), 500).Int64())
	assert.Equal(t, int64(0), MinAmountOut(big.NewInt(1), 500).Int64())
	assert.Equal(t, int64(50), MinAmountOut(big.NewInt(50), -10).Int64())
}

func TestIntentRequest(t *testing.T) {
	in := token.Token{Symbol: "USDC", Address: common.HexToAddress("0x01"), Decimals: 6}
	out := token.Token{Symbol: "WMON", Address: common.HexToAddress("0x02"), Decimals: 18}
	recipient := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	now := time.Unix(1700000000, 0)

	amount := big.NewInt(1000)
	intent := NewIntent(in, out, amount, recipient, now, DefaultConfig())
	amount.SetInt64(1)

	req := intent.Request()
	assert.Equal(t, int64(1000), req.AmountIn.Int64())
	assert.Equal(t, int64(950), req.AmountOutMin.Int64())
	assert.Equal(t, []common.Address{in.Address, out.Address}, req.Path)
	assert.Equal(t, recipient, req.Recipient)
	assert.Equal(t, int64(1700001200), req.Deadline.Int64())
}

func TestTxURL(t *testing.T) {
	hash := common.HexToHash("0xabc")
	assert.Equal(t, "https://testnet.monadexplorer.com/tx/"+hash.Hex(), TxURL("https://testnet.monadexplorer.com/tx/", hash))
	assert.Equal(t, "https://explorer/tx/"+hash.Hex(), TxURL("https://explorer/tx", hash))
	assert.Equal(t, hash.Hex(), TxURL("", hash))
}

func TestDelayPickWithinRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	d := Seconds(5, 15)
	seen := make(map[time.Duration]bool)
	for i := 0; i < 1000; i++ {
		got := d.Pick(rng)
		require.GreaterOrEqual(t, got, 5*time.Second)
		require.LessOrEqual(t, got, 15*time.Second)
		require.Zero(t, got%time.Second)
		seen[got] = true
	}
	assert.Len(t, seen, 11)

	assert.Equal(t, 2*time.Second, Seconds(2, 2).Pick(rng))
	assert.Error(t, Seconds(3, 1).Validate())
	assert.NoError(t, Seconds(0, 0).Validate())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "APPROVING", StateApproving.String())
	assert.Equal(t, "CHECKING_BALANCE", StateCheckingBalance.String())
	assert.Equal(t, "STOPPED", StateStopped.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}
