// Package swap runs the approve-then-swap loop for a single wallet.
package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"sync/atomic"
	"time"

	"monadswap/internal/chain"
	"monadswap/internal/ledger"
	"monadswap/internal/metrics"
	"monadswap/internal/token"

	"github.com/ethereum/go-ethereum/common"
	gmath "github.com/ethereum/go-ethereum/common/math"
)

type Config struct {
	Router      common.Address
	ExplorerURL string

	SwapRatioBps int64
	SlippageBps  int64
	Deadline     time.Duration

	ApprovalDelay Delay // after each approval
	IdleDelay     Delay // empty or dust balance
	SwapDelay     Delay // after a mined swap
	ErrorDelay    Delay // after a failed iteration
}

func DefaultConfig() Config {
	return Config{
		SwapRatioBps:  500,
		SlippageBps:   500,
		Deadline:      1200 * time.Second,
		ApprovalDelay: Seconds(1, 3),
		IdleDelay:     Seconds(1, 5),
		SwapDelay:     Seconds(5, 15),
		ErrorDelay:    Seconds(5, 15),
	}
}

func (c Config) Validate() error {
	if c.Router == (common.Address{}) {
		return errors.New("router address is required")
	}
	if c.SwapRatioBps <= 0 || c.SwapRatioBps > BasisPoints {
		return fmt.Errorf("swap ratio %d bps out of range 1-%d", c.SwapRatioBps, BasisPoints)
	}
	if c.SlippageBps < 0 || c.SlippageBps >= BasisPoints {
		return fmt.Errorf("slippage %d bps out of range 0-%d", c.SlippageBps, BasisPoints-1)
	}
	if c.Deadline <= 0 {
		return errors.New("deadline must be positive")
	}
	for name, d := range map[string]Delay{
		"approval": c.ApprovalDelay,
		"idle":     c.IdleDelay,
		"swap":     c.SwapDelay,
		"error":    c.ErrorDelay,
	} {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("%s delay: %w", name, err)
		}
	}
	return nil
}

// TradeRecorder persists swap outcomes.
type TradeRecorder interface {
	Save(ctx context.Context, trade ledger.Trade) (ledger.Trade, error)
}

type Bot struct {
	client   chain.Client
	tokens   *token.Registry
	cfg      Config
	reporter Reporter
	trades   TradeRecorder
	metrics  *metrics.Registry
	sleeper  Sleeper
	now      func() time.Time
	rng      *rand.Rand

	state      atomic.Int32
	iterations atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
}

type Option func(*Bot)

func WithReporter(r Reporter) Option           { return func(b *Bot) { b.reporter = r } }
func WithTradeRecorder(t TradeRecorder) Option { return func(b *Bot) { b.trades = t } }
func WithMetrics(m *metrics.Registry) Option   { return func(b *Bot) { b.metrics = m } }
func WithSleeper(s Sleeper) Option             { return func(b *Bot) { b.sleeper = s } }
func WithClock(now func() time.Time) Option    { return func(b *Bot) { b.now = now } }
func WithRand(rng *rand.Rand) Option           { return func(b *Bot) { b.rng = rng } }

func NewBot(client chain.Client, tokens *token.Registry, cfg Config, opts ...Option) (*Bot, error) {
	if client == nil {
		return nil, errors.New("chain client is required")
	}
	if tokens == nil || tokens.Len() < 2 {
		return nil, token.ErrTooFewTokens
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Bot{
		client:   client,
		tokens:   tokens,
		cfg:      cfg,
		reporter: nopReporter{},
		sleeper:  TimerSleeper,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Status is a point-in-time view of the loop, safe to read from other
// goroutines.
type Status struct {
	Wallet     string `json:"wallet"`
	State      string `json:"state"`
	Iterations int64  `json:"iterations"`
	Succeeded  int64  `json:"succeeded"`
	Failed     int64  `json:"failed"`
}

func (b *Bot) State() State {
	return State(b.state.Load())
}

func (b *Bot) Status() Status {
	return Status{
		Wallet:     b.client.Address().Hex(),
		State:      b.State().String(),
		Iterations: b.iterations.Load(),
		Succeeded:  b.succeeded.Load(),
		Failed:     b.failed.Load(),
	}
}

// cycle carries one iteration's data between states.
type cycle struct {
	in       token.Token
	out      token.Token
	amountIn *big.Int
	pause    Delay
}

// Run approves every token once and then swaps until ctx is cancelled.
// Cancellation is a clean stop and returns nil; only errors the loop
// cannot recover from are returned.
func (b *Bot) Run(ctx context.Context) error {
	b.setState(StateApproving)
	if stopped := b.approveAll(ctx); stopped {
		return b.stop()
	}

	var c cycle
	next := StateSelectingPair
	for {
		if ctx.Err() != nil {
			next = StateStopped
		}
		b.setState(next)

		switch next {
		case StateSelectingPair:
			var err error
			if next, err = b.selectPair(&c); err != nil {
				b.setState(StateStopped)
				return err
			}
		case StateCheckingBalance:
			next = b.checkBalance(ctx, &c)
		case StateSwapping:
			next = b.swap(ctx, &c)
		case StateCooldown:
			next = b.cooldown(ctx, &c)
		default:
			return b.stop()
		}
	}
}

func (b *Bot) approveAll(ctx context.Context) bool {
	native, err := b.client.NativeBalance(ctx)
	if err == nil {
		b.metrics.SetNativeBalance(native)
	}
	b.emit(Event{Kind: EventStarted, NativeBalance: native, BalanceErr: err})
	if ctx.Err() != nil || b.reportBalances(ctx) {
		return true
	}

	for _, t := range b.tokens.All() {
		if ctx.Err() != nil {
			return true
		}

		allowance, err := b.client.Allowance(ctx, t.Address, b.cfg.Router)
		if err != nil {
			if isStop(ctx, err) {
				return true
			}
			b.metrics.IncApproval("failed")
			b.emit(Event{Kind: EventApprovalFailed, Token: t, Err: err})
			continue
		}
		if allowance.Sign() > 0 {
			b.metrics.IncApproval("skipped")
			b.emit(Event{Kind: EventApprovalSkipped, Token: t, Amount: allowance})
			continue
		}

		b.emit(Event{Kind: EventApprovalSubmitting, Token: t})
		receipt, err := b.client.Approve(ctx, t.Address, b.cfg.Router, new(big.Int).Set(gmath.MaxBig256))
		if err != nil {
			if isStop(ctx, err) {
				return true
			}
			b.metrics.IncApproval("failed")
			b.emit(Event{Kind: EventApprovalFailed, Token: t, Err: err})
			continue
		}
		b.metrics.IncApproval("approved")
		b.emit(Event{
			Kind:    EventApproved,
			Token:   t,
			Receipt: &receipt,
			TxURL:   TxURL(b.cfg.ExplorerURL, receipt.TxHash),
		})

		if err := b.sleeper.Sleep(ctx, b.cfg.ApprovalDelay.Pick(b.rng)); err != nil {
			return true
		}
	}
	return false
}

// reportBalances emits one summary of every token balance. Unreadable
// balances are reported per token and never stop the run.
func (b *Bot) reportBalances(ctx context.Context) bool {
	tokens := b.tokens.All()
	balances := make([]TokenBalance, 0, len(tokens))
	for _, t := range tokens {
		bal, err := b.client.TokenBalance(ctx, t.Address)
		if err != nil && isStop(ctx, err) {
			return true
		}
		balances = append(balances, TokenBalance{Token: t, Balance: bal, Err: err})
	}
	b.emit(Event{Kind: EventTokenBalances, Balances: balances})
	return false
}

func (b *Bot) selectPair(c *cycle) (State, error) {
	in, out, err := b.tokens.RandomPair(b.rng)
	if err != nil {
		return StateStopped, fmt.Errorf("select pair: %w", err)
	}
	*c = cycle{in: in, out: out}
	b.iterations.Add(1)
	b.emit(Event{Kind: EventPairSelected, TokenIn: in, TokenOut: out})
	return StateCheckingBalance, nil
}

func (b *Bot) checkBalance(ctx context.Context, c *cycle) State {
	balance, err := b.client.TokenBalance(ctx, c.in.Address)
	if err != nil {
		return b.fail(ctx, c, err)
	}
	if balance.Sign() <= 0 {
		b.emit(Event{Kind: EventInsufficientBalance, Token: c.in, TokenIn: c.in, TokenOut: c.out, Amount: balance})
		c.pause = b.cfg.IdleDelay
		return StateCooldown
	}

	c.amountIn = SwapAmount(balance, b.cfg.SwapRatioBps)
	if c.amountIn.Sign() == 0 {
		b.emit(Event{Kind: EventBalanceTooSmall, Token: c.in, TokenIn: c.in, TokenOut: c.out, Amount: balance})
		c.pause = b.cfg.IdleDelay
		return StateCooldown
	}
	return StateSwapping
}

func (b *Bot) swap(ctx context.Context, c *cycle) State {
	before, err := b.client.NativeBalance(ctx)
	if err != nil {
		return b.fail(ctx, c, err)
	}

	intent := NewIntent(c.in, c.out, c.amountIn, b.client.Address(), b.now(), b.cfg)
	b.emit(Event{
		Kind:         EventSwapSubmitting,
		TokenIn:      intent.TokenIn,
		TokenOut:     intent.TokenOut,
		Amount:       intent.AmountIn,
		MinAmountOut: intent.MinAmountOut,
	})

	receipt, err := b.client.Swap(ctx, intent.Request())
	if err != nil {
		if !isStop(ctx, err) {
			status := ledger.StatusFailed
			if errors.Is(err, chain.ErrContractCall) && receipt.TxHash != (common.Hash{}) {
				status = ledger.StatusReverted
			}
			b.metrics.IncSwap(status)
			b.record(ctx, intent, receipt, nil, status, err)
		}
		return b.fail(ctx, c, err)
	}

	after, balErr := b.client.NativeBalance(ctx)
	var fee *big.Int
	if balErr == nil {
		fee = new(big.Int).Sub(before, after)
		if fee.Sign() < 0 {
			fee.SetInt64(0)
		}
		b.metrics.SetNativeBalance(after)
		b.metrics.AddFee(fee)
	}
	b.succeeded.Add(1)
	b.metrics.IncSwap(ledger.StatusSuccess)
	b.metrics.AddGasUsed(receipt.GasUsed)
	b.record(ctx, intent, receipt, fee, ledger.StatusSuccess, nil)

	b.emit(Event{
		Kind:          EventSwapSucceeded,
		TokenIn:       intent.TokenIn,
		TokenOut:      intent.TokenOut,
		Amount:        intent.AmountIn,
		MinAmountOut:  intent.MinAmountOut,
		Receipt:       &receipt,
		Fee:           fee,
		NativeBalance: after,
		BalanceErr:    balErr,
		TxURL:         TxURL(b.cfg.ExplorerURL, receipt.TxHash),
	})
	c.pause = b.cfg.SwapDelay
	return StateCooldown
}

// fail reports err together with a fresh native balance and schedules the
// longer error cooldown.
func (b *Bot) fail(ctx context.Context, c *cycle, err error) State {
	if isStop(ctx, err) {
		return StateStopped
	}
	b.failed.Add(1)
	b.metrics.IncIterationError(errorKind(err))

	native, balErr := b.client.NativeBalance(ctx)
	if balErr == nil {
		b.metrics.SetNativeBalance(native)
	}
	b.emit(Event{
		Kind:          EventIterationFailed,
		TokenIn:       c.in,
		TokenOut:      c.out,
		Amount:        c.amountIn,
		NativeBalance: native,
		BalanceErr:    balErr,
		Err:           err,
	})
	c.pause = b.cfg.ErrorDelay
	return StateCooldown
}

func (b *Bot) cooldown(ctx context.Context, c *cycle) State {
	d := c.pause.Pick(b.rng)
	b.emit(Event{Kind: EventCooldown, Delay: d})
	b.metrics.ObserveCooldown(d.Seconds())
	if err := b.sleeper.Sleep(ctx, d); err != nil {
		return StateStopped
	}
	return StateSelectingPair
}

func (b *Bot) stop() error {
	b.setState(StateStopped)
	b.emit(Event{Kind: EventStopped})
	return nil
}

func (b *Bot) record(ctx context.Context, intent Intent, receipt chain.Receipt, fee *big.Int, status string, swapErr error) {
	if b.trades == nil {
		return
	}
	trade := ledger.Trade{
		Wallet:       b.client.Address().Hex(),
		TokenIn:      intent.TokenIn.Symbol,
		TokenOut:     intent.TokenOut.Symbol,
		AmountIn:     intent.AmountIn.String(),
		MinAmountOut: intent.MinAmountOut.String(),
		GasUsed:      receipt.GasUsed,
		Status:       status,
		CreatedAt:    b.now().UTC(),
	}
	if receipt.TxHash != (common.Hash{}) {
		trade.TxHash = receipt.TxHash.Hex()
	}
	if fee != nil {
		trade.Fee = fee.String()
	}
	if swapErr != nil {
		trade.Error = swapErr.Error()
	}
	if _, err := b.trades.Save(ctx, trade); err != nil {
		b.emit(Event{Kind: EventRecordFailed, TokenIn: intent.TokenIn, TokenOut: intent.TokenOut, Err: err})
	}
}

func (b *Bot) setState(s State) {
	b.state.Store(int32(s))
	b.metrics.SetState(int(s))
}

func (b *Bot) emit(e Event) {
	e.State = b.State()
	e.Iteration = b.iterations.Load()
	e.Wallet = b.client.Address()
	b.reporter.Report(e)
}

func isStop(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || ctx.Err() != nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, chain.ErrContractCall):
		return "contract"
	case errors.Is(err, chain.ErrNetwork):
		return "network"
	default:
		return "other"
	}
}
