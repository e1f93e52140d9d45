package swap

import (
	"math/big"
	"time"

	"monadswap/internal/chain"
	"monadswap/internal/token"

	"github.com/ethereum/go-ethereum/common"
)

type EventKind string

const (
	EventStarted             EventKind = "started"
	EventTokenBalances       EventKind = "token_balances"
	EventApprovalSkipped     EventKind = "approval_skipped"
	EventApprovalSubmitting  EventKind = "approval_submitting"
	EventApproved            EventKind = "approved"
	EventApprovalFailed      EventKind = "approval_failed"
	EventPairSelected        EventKind = "pair_selected"
	EventInsufficientBalance EventKind = "insufficient_balance"
	EventBalanceTooSmall     EventKind = "balance_too_small"
	EventSwapSubmitting      EventKind = "swap_submitting"
	EventSwapSucceeded       EventKind = "swap_succeeded"
	EventIterationFailed     EventKind = "iteration_failed"
	EventRecordFailed        EventKind = "record_failed"
	EventCooldown            EventKind = "cooldown"
	EventStopped             EventKind = "stopped"
)

// Event is everything the loop has to say about one step. Fields that do
// not apply to a kind are left zero.
type Event struct {
	Kind      EventKind
	State     State
	Iteration int64
	Wallet    common.Address

	Token    token.Token // approvals and balance warnings
	TokenIn  token.Token
	TokenOut token.Token

	Amount        *big.Int
	MinAmountOut  *big.Int
	NativeBalance *big.Int
	Fee           *big.Int
	Receipt       *chain.Receipt
	TxURL         string
	Delay         time.Duration
	Balances      []TokenBalance // token_balances only

	Err        error
	BalanceErr error
}

// TokenBalance is one row of the startup balance summary. Err is set when
// the balance could not be read; Balance is then nil.
type TokenBalance struct {
	Token   token.Token
	Balance *big.Int
	Err     error
}

// Reporter receives loop events. The loop never writes to the console
// itself.
type Reporter interface {
	Report(Event)
}

type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }

type nopReporter struct{}

func (nopReporter) Report(Event) {}
