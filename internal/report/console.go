// Package report turns swap loop events into log lines.
package report

import (
	"math/big"

	"monadswap/internal/swap"
	"monadswap/internal/token"

	"github.com/rs/zerolog"
)

const nativeSymbol = "MON"

// Logger writes each event as one structured log entry. Successes and
// failures keep the wording operators grep for.
type Logger struct {
	log zerolog.Logger
}

func NewLogger(log zerolog.Logger) *Logger {
	return &Logger{log: log}
}

func (l *Logger) Report(e swap.Event) {
	log := l.log.With().
		Str("wallet", e.Wallet.Hex()).
		Str("state", e.State.String()).
		Logger()

	switch e.Kind {
	case swap.EventStarted:
		ev := log.Info()
		if e.BalanceErr != nil {
			ev = log.Warn().AnErr("balance_err", e.BalanceErr)
		}
		ev.Str("native_balance", formatNative(e.NativeBalance)).Msg("starting swap bot")

	case swap.EventTokenBalances:
		balances := zerolog.Dict()
		failed := 0
		for _, b := range e.Balances {
			if b.Err != nil {
				failed++
				balances.Str(b.Token.Symbol, "unavailable: "+b.Err.Error())
				continue
			}
			balances.Str(b.Token.Symbol, b.Token.Format(b.Balance))
		}
		ev := log.Info()
		if failed > 0 {
			ev = log.Warn().Int("unreadable", failed)
		}
		ev.Dict("balances", balances).Msg("token balances")

	case swap.EventApprovalSkipped:
		log.Debug().Str("token", e.Token.Symbol).Msg("allowance already set")

	case swap.EventApprovalSubmitting:
		log.Warn().Str("token", e.Token.Symbol).Msgf("approving %s", e.Token.Symbol)

	case swap.EventApproved:
		log.Info().
			Str("token", e.Token.Symbol).
			Str("tx", e.TxURL).
			Msgf("%s approved", e.Token.Symbol)

	case swap.EventApprovalFailed:
		log.Error().Err(e.Err).Str("token", e.Token.Symbol).Msgf("%s approval failed", e.Token.Symbol)

	case swap.EventPairSelected:
		log.Debug().
			Int64("iteration", e.Iteration).
			Str("in", e.TokenIn.Symbol).
			Str("out", e.TokenOut.Symbol).
			Msg("pair selected")

	case swap.EventInsufficientBalance:
		log.Warn().Str("token", e.Token.Symbol).Msgf("insufficient %s balance", e.Token.Symbol)

	case swap.EventBalanceTooSmall:
		log.Warn().
			Str("token", e.Token.Symbol).
			Str("balance", e.Token.Format(e.Amount)).
			Msgf("%s balance too small", e.Token.Symbol)

	case swap.EventSwapSubmitting:
		log.Info().
			Int64("iteration", e.Iteration).
			Str("amount_in", e.TokenIn.Format(e.Amount)).
			Str("min_out", e.TokenOut.Format(e.MinAmountOut)).
			Msgf("swapping %s %s -> %s", e.TokenIn.Format(e.Amount), e.TokenIn.Symbol, e.TokenOut.Symbol)

	case swap.EventSwapSucceeded:
		ev := log.Info().
			Str("in", e.TokenIn.Symbol).
			Str("out", e.TokenOut.Symbol).
			Str("tx", e.TxURL)
		if e.Receipt != nil {
			ev = ev.Uint64("gas_used", e.Receipt.GasUsed).Uint64("block", e.Receipt.BlockNumber)
		}
		if e.Fee != nil {
			ev = ev.Str("fee", formatNative(e.Fee)).Str("native_balance", formatNative(e.NativeBalance))
		} else if e.BalanceErr != nil {
			ev = ev.AnErr("balance_err", e.BalanceErr)
		}
		ev.Msg("swap success")

	case swap.EventIterationFailed:
		ev := log.Error().
			Err(e.Err).
			Str("in", e.TokenIn.Symbol).
			Str("out", e.TokenOut.Symbol)
		if e.BalanceErr != nil {
			ev = ev.AnErr("balance_err", e.BalanceErr)
		} else {
			ev = ev.Str("native_balance", formatNative(e.NativeBalance))
		}
		ev.Msg("swap failed")

	case swap.EventRecordFailed:
		log.Error().Err(e.Err).Msg("trade not recorded")

	case swap.EventCooldown:
		log.Info().Dur("delay", e.Delay).Msgf("next swap in %d seconds", int(e.Delay.Seconds()))

	case swap.EventStopped:
		log.Info().Msg("bot stopped")

	default:
		log.Debug().Str("kind", string(e.Kind)).Msg("event")
	}
}

func formatNative(wei *big.Int) string {
	return token.FormatUnits(wei, 18, 6) + " " + nativeSymbol
}
