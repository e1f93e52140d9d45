package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"testing"
	"time"

	"monadswap/internal/chain"
	"monadswap/internal/ledger"
	"monadswap/internal/metrics"
	"monadswap/internal/token"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testWallet = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	testRouter = common.HexToAddress("0xCa810D095e90Daae6e867c19DF6D9A8C56db2c89")
	tokenA     = common.HexToAddress("0xf817257fed379853cDe0fa4F97AB987181B1E5Ea")
	tokenB     = common.HexToAddress("0x760AfE86e5de5fa0Ee542fc7B7B713e1c5425701")
	fixedNow   = time.Unix(1700000000, 0)
)

type recorder struct {
	events []Event
}

func (r *recorder) Report(e Event) { r.events = append(r.events, e) }

func (r *recorder) kinds() []EventKind {
	out := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func (r *recorder) of(kind EventKind) []Event {
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// stopAfter returns a sleeper that records every pause and cancels the run
// on the n-th call.
type stopAfter struct {
	n      int
	cancel context.CancelFunc
	slept  []time.Duration
}

func (s *stopAfter) Sleep(ctx context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	if len(s.slept) >= s.n {
		s.cancel()
		return ctx.Err()
	}
	return nil
}

type harness struct {
	client  *chain.FakeClient
	events  *recorder
	sleeper *stopAfter
	trades  *ledger.MemoryStore
	metrics *metrics.Registry
	bot     *Bot
	ctx     context.Context
}

func newHarness(t *testing.T, sleeps int) *harness {
	t.Helper()

	registry, err := token.NewRegistry([]token.Entry{
		{Symbol: "USDC", Address: tokenA.Hex(), Decimals: 6},
		{Symbol: "WMON", Address: tokenB.Hex(), Decimals: 18},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	client := chain.NewFakeClient(testWallet)
	client.Native = big.NewInt(1_000_000)
	client.GasCost = big.NewInt(5)

	h := &harness{
		client:  client,
		events:  &recorder{},
		sleeper: &stopAfter{n: sleeps, cancel: cancel},
		trades:  ledger.NewMemoryStore(),
		metrics: metrics.NewRegistry(),
		ctx:     ctx,
	}

	cfg := DefaultConfig()
	cfg.Router = testRouter
	cfg.ExplorerURL = "https://testnet.monadexplorer.com/tx/"

	h.bot, err = NewBot(client, registry, cfg,
		WithReporter(h.events),
		WithTradeRecorder(h.trades),
		WithMetrics(h.metrics),
		WithSleeper(h.sleeper),
		WithClock(func() time.Time { return fixedNow }),
		WithRand(rand.New(rand.NewSource(42))),
	)
	require.NoError(t, err)
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	require.NoError(t, h.bot.Run(h.ctx))
	assert.Equal(t, StateStopped, h.bot.State())
	kinds := h.events.kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, EventStopped, kinds[len(kinds)-1])
}

func counterValue(t *testing.T, m *metrics.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := m.Gatherer().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestNewBotValidates(t *testing.T) {
	client := chain.NewFakeClient(testWallet)

	_, err := NewBot(client, token.Default(), DefaultConfig())
	assert.ErrorContains(t, err, "router")

	cfg := DefaultConfig()
	cfg.Router = testRouter
	cfg.SwapDelay = Seconds(10, 5)
	_, err = NewBot(client, token.Default(), cfg)
	assert.ErrorContains(t, err, "swap delay")

	cfg = DefaultConfig()
	cfg.Router = testRouter
	_, err = NewBot(client, nil, cfg)
	assert.ErrorIs(t, err, token.ErrTooFewTokens)

	bot, err := NewBot(client, token.Default(), cfg)
	require.NoError(t, err)
	assert.Equal(t, StateApproving, bot.State())
}

func TestRunApprovesOnlyTokensWithoutAllowance(t *testing.T) {
	h := newHarness(t, 2)
	h.client.Allowances[tokenA] = big.NewInt(1)

	h.run(t)

	assert.Equal(t, []common.Address{tokenB}, h.client.Approvals)
	require.Len(t, h.events.of(EventApprovalSkipped), 1)
	assert.Equal(t, "USDC", h.events.of(EventApprovalSkipped)[0].Token.Symbol)

	approved := h.events.of(EventApproved)
	require.Len(t, approved, 1)
	assert.Contains(t, approved[0].TxURL, "https://testnet.monadexplorer.com/tx/0x")
	assert.Equal(t, StateApproving, approved[0].State)

	// approval pause is 1-3s
	assert.GreaterOrEqual(t, h.sleeper.slept[0], time.Second)
	assert.LessOrEqual(t, h.sleeper.slept[0], 3*time.Second)
	assert.Equal(t, 0, h.client.Allowances[tokenB].Cmp(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))))
}

func TestRunApprovalFailureDoesNotHaltStartup(t *testing.T) {
	h := newHarness(t, 2)
	h.client.ApproveErr[tokenA] = fmt.Errorf("%w: nonce too low", chain.ErrContractCall)
	h.client.Balances[tokenA] = big.NewInt(1000)
	h.client.Balances[tokenB] = big.NewInt(1000)

	h.run(t)

	assert.Equal(t, []common.Address{tokenA, tokenB}, h.client.Approvals)
	failed := h.events.of(EventApprovalFailed)
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0].Err, chain.ErrContractCall)
	assert.Len(t, h.events.of(EventApproved), 1)
	assert.Len(t, h.events.of(EventPairSelected), 1)
	assert.Equal(t, 1.0, counterValue(t, h.metrics, "monadswap_approvals_total", "status", "failed"))
}

func TestRunZeroBalanceNeverSwaps(t *testing.T) {
	h := newHarness(t, 4)
	h.client.Allowances[tokenA] = big.NewInt(1)
	h.client.Allowances[tokenB] = big.NewInt(1)

	h.run(t)

	assert.Empty(t, h.client.Swaps)
	assert.Len(t, h.events.of(EventInsufficientBalance), 4)
	for _, d := range h.sleeper.slept {
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
	assert.Equal(t, int64(4), h.bot.Status().Iterations)
}

func TestRunDustBalanceNeverSwaps(t *testing.T) {
	h := newHarness(t, 3)
	h.client.Allowances[tokenA] = big.NewInt(1)
	h.client.Allowances[tokenB] = big.NewInt(1)
	h.client.Balances[tokenA] = big.NewInt(19)
	h.client.Balances[tokenB] = big.NewInt(19)

	h.run(t)

	assert.Empty(t, h.client.Swaps)
	tooSmall := h.events.of(EventBalanceTooSmall)
	require.Len(t, tooSmall, 3)
	assert.Equal(t, int64(19), tooSmall[0].Amount.Int64())
}

func TestRunSuccessfulSwap(t *testing.T) {
	h := newHarness(t, 1)
	h.client.Allowances[tokenA] = big.NewInt(1)
	h.client.Allowances[tokenB] = big.NewInt(1)
	h.client.Balances[tokenA] = big.NewInt(1000)
	h.client.Balances[tokenB] = big.NewInt(1000)

	h.run(t)

	require.Len(t, h.client.Swaps, 1)
	req := h.client.Swaps[0]
	assert.Equal(t, int64(50), req.AmountIn.Int64())
	assert.Equal(t, int64(47), req.AmountOutMin.Int64())
	assert.Equal(t, testWallet, req.Recipient)
	assert.Equal(t, fixedNow.Unix()+1200, req.Deadline.Int64())
	require.Len(t, req.Path, 2)
	assert.NotEqual(t, req.Path[0], req.Path[1])

	ok := h.events.of(EventSwapSucceeded)
	require.Len(t, ok, 1)
	assert.Equal(t, int64(5), ok[0].Fee.Int64())
	assert.Equal(t, int64(999_995), ok[0].NativeBalance.Int64())
	assert.Equal(t, StateSwapping, ok[0].State)
	assert.Equal(t, int64(1), ok[0].Iteration)

	require.Len(t, h.sleeper.slept, 1)
	assert.GreaterOrEqual(t, h.sleeper.slept[0], 5*time.Second)
	assert.LessOrEqual(t, h.sleeper.slept[0], 15*time.Second)

	trades, err := h.trades.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, ledger.StatusSuccess, trades[0].Status)
	assert.Equal(t, "50", trades[0].AmountIn)
	assert.Equal(t, "5", trades[0].Fee)
	assert.Equal(t, ok[0].Receipt.TxHash.Hex(), trades[0].TxHash)

	status := h.bot.Status()
	assert.Equal(t, int64(1), status.Succeeded)
	assert.Equal(t, int64(0), status.Failed)
	assert.Equal(t, "STOPPED", status.State)
	assert.Equal(t, 1.0, counterValue(t, h.metrics, "monadswap_swaps_total", "status", ledger.StatusSuccess))
}

func TestRunSwapSucceedsWhenFeeUnavailable(t *testing.T) {
	h := newHarness(t, 1)
	h.client.Allowances[tokenA] = big.NewInt(1)
	h.client.Allowances[tokenB] = big.NewInt(1)
	h.client.Balances[tokenA] = big.NewInt(1000)
	h.client.Balances[tokenB] = big.NewInt(1000)

	fail := &failNativeAfter{FakeClient: h.client, after: 2}
	h.bot.client = fail

	h.run(t)

	ok := h.events.of(EventSwapSucceeded)
	require.Len(t, ok, 1)
	assert.Nil(t, ok[0].Fee)
	assert.Error(t, ok[0].BalanceErr)
	assert.Empty(t, h.events.of(EventIterationFailed))
}

// failNativeAfter lets the first native balance queries through and fails
// the rest.
type failNativeAfter struct {
	*chain.FakeClient
	after int
	calls int
}

func (f *failNativeAfter) NativeBalance(ctx context.Context) (*big.Int, error) {
	f.calls++
	if f.calls > f.after {
		return nil, fmt.Errorf("%w: connection refused", chain.ErrNetwork)
	}
	return f.FakeClient.NativeBalance(ctx)
}

func TestRunSwapNetworkErrorIsRecovered(t *testing.T) {
	h := newHarness(t, 3)
	h.client.Allowances[tokenA] = big.NewInt(1)
	h.client.Allowances[tokenB] = big.NewInt(1)
	h.client.Balances[tokenA] = big.NewInt(1000)
	h.client.Balances[tokenB] = big.NewInt(1000)
	h.client.SwapErr = fmt.Errorf("%w: connection reset by peer", chain.ErrNetwork)

	h.run(t)

	assert.Len(t, h.client.Swaps, 3)
	failures := h.events.of(EventIterationFailed)
	require.Len(t, failures, 3)
	for _, f := range failures {
		assert.ErrorIs(t, f.Err, chain.ErrNetwork)
		require.NotNil(t, f.NativeBalance)
		assert.Equal(t, int64(1_000_000), f.NativeBalance.Int64())
	}
	for _, d := range h.sleeper.slept {
		assert.GreaterOrEqual(t, d, 5*time.Second)
		assert.LessOrEqual(t, d, 15*time.Second)
	}

	trades, _ := h.trades.Recent(context.Background(), 0)
	require.Len(t, trades, 3)
	assert.Equal(t, ledger.StatusFailed, trades[0].Status)
	assert.Empty(t, trades[0].TxHash)
	assert.Contains(t, trades[0].Error, "connection reset")

	assert.Equal(t, int64(3), h.bot.Status().Failed)
	assert.Equal(t, 3.0, counterValue(t, h.metrics, "monadswap_iteration_errors_total", "kind", "network"))
}

func TestRunRevertedSwapIsRecorded(t *testing.T) {
	h := newHarness(t, 1)
	h.client.Allowances[tokenA] = big.NewInt(1)
	h.client.Allowances[tokenB] = big.NewInt(1)
	h.client.Balances[tokenA] = big.NewInt(1000)
	h.client.Balances[tokenB] = big.NewInt(1000)
	h.client.RevertSwaps = true

	h.run(t)

	failures := h.events.of(EventIterationFailed)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0].Err, chain.ErrContractCall)

	trades, _ := h.trades.Recent(context.Background(), 0)
	require.Len(t, trades, 1)
	assert.Equal(t, ledger.StatusReverted, trades[0].Status)
	assert.NotEmpty(t, trades[0].TxHash)
	assert.Equal(t, int64(1000), h.client.Balances[tokenA].Int64())
	assert.Equal(t, 1.0, counterValue(t, h.metrics, "monadswap_iteration_errors_total", "kind", "contract"))
}

func TestRunBalanceErrorUsesErrorCooldown(t *testing.T) {
	h := newHarness(t, 2)
	h.client.Allowances[tokenA] = big.NewInt(1)
	h.client.Allowances[tokenB] = big.NewInt(1)
	h.client.BalanceErr = errors.New("boom")

	h.run(t)

	assert.Empty(t, h.client.Swaps)
	assert.Len(t, h.events.of(EventIterationFailed), 2)
	assert.Equal(t, 2.0, counterValue(t, h.metrics, "monadswap_iteration_errors_total", "kind", "other"))
}

type failingRecorder struct{}

func (failingRecorder) Save(context.Context, ledger.Trade) (ledger.Trade, error) {
	return ledger.Trade{}, errors.New("disk full")
}

func TestRunLedgerFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, 2)
	h.client.Allowances[tokenA] = big.NewInt(1)
	h.client.Allowances[tokenB] = big.NewInt(1)
	h.client.Balances[tokenA] = big.NewInt(1000)
	h.client.Balances[tokenB] = big.NewInt(1000)
	h.bot.trades = failingRecorder{}

	h.run(t)

	assert.Len(t, h.events.of(EventSwapSucceeded), 2)
	assert.Len(t, h.events.of(EventRecordFailed), 2)
}

func TestRunStopsWhenCancelledBeforeStart(t *testing.T) {
	h := newHarness(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, h.bot.Run(ctx))
	assert.Empty(t, h.client.Approvals)
	assert.Equal(t, []EventKind{EventStarted, EventStopped}, h.events.kinds())
	assert.Equal(t, StateStopped, h.bot.State())
}

func TestRunStopsDuringApprovalPause(t *testing.T) {
	h := newHarness(t, 1)

	h.run(t)

	assert.Equal(t, []common.Address{tokenA}, h.client.Approvals)
	assert.Empty(t, h.events.of(EventPairSelected))
}

func TestRunReportsTokenBalancesBeforeApprovals(t *testing.T) {
	h := newHarness(t, 1)
	h.client.Balances[tokenA] = big.NewInt(2_500_000)

	h.run(t)

	kinds := h.events.kinds()
	require.GreaterOrEqual(t, len(kinds), 3)
	assert.Equal(t, []EventKind{EventStarted, EventTokenBalances, EventApprovalSubmitting}, kinds[:3])

	summary := h.events.of(EventTokenBalances)
	require.Len(t, summary, 1)
	balances := summary[0].Balances
	require.Len(t, balances, 2)
	assert.Equal(t, "USDC", balances[0].Token.Symbol)
	assert.Equal(t, int64(2_500_000), balances[0].Balance.Int64())
	assert.Equal(t, "WMON", balances[1].Token.Symbol)
	assert.Equal(t, 0, balances[1].Balance.Sign())
	assert.Equal(t, StateApproving, summary[0].State)
}

func TestRunTokenBalanceSummaryToleratesErrors(t *testing.T) {
	h := newHarness(t, 1)
	h.client.BalanceErr = errors.New("boom")

	h.run(t)

	summary := h.events.of(EventTokenBalances)
	require.Len(t, summary, 1)
	for _, b := range summary[0].Balances {
		assert.Nil(t, b.Balance)
		assert.EqualError(t, b.Err, "boom")
	}
	assert.Equal(t, []common.Address{tokenA}, h.client.Approvals)
	assert.Equal(t, 0.0, counterValue(t, h.metrics, "monadswap_iteration_errors_total", "kind", "other"))
}
