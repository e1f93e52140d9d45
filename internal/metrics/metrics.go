// Package metrics exposes the bot's prometheus collectors on a private
// registry. A nil *Registry is valid and records nothing.
package metrics

import (
	"math/big"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "monadswap"

type Registry struct {
	registry        *prometheus.Registry
	swapsTotal      *prometheus.CounterVec
	approvalsTotal  *prometheus.CounterVec
	iterationErrors *prometheus.CounterVec
	gasUsedTotal    prometheus.Counter
	feesTotal       prometheus.Counter
	nativeBalance   prometheus.Gauge
	state           prometheus.Gauge
	cooldownSeconds prometheus.Histogram
}

func NewRegistry() *Registry {
	swaps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "swaps_total",
		Help:      "Swap attempts by outcome",
	}, []string{"status"})

	approvals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "approvals_total",
		Help:      "Router approvals by outcome",
	}, []string{"status"})

	iterationErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "iteration_errors_total",
		Help:      "Loop iterations that ended in an error, by kind",
	}, []string{"kind"})

	gas := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gas_used_total",
		Help:      "Gas consumed by mined swaps",
	})

	fees := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "swap_fees_native_total",
		Help:      "Native currency spent on swap fees",
	})

	native := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "native_balance",
		Help:      "Last observed native balance of the wallet",
	})

	state := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "state",
		Help:      "Current loop state as its numeric code",
	})

	cooldown := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cooldown_seconds",
		Help:      "Pauses taken between iterations",
		Buckets:   []float64{1, 2, 3, 5, 8, 10, 15, 30},
	})

	r := prometheus.NewRegistry()
	r.MustRegister(swaps, approvals, iterationErrors, gas, fees, native, state, cooldown)

	return &Registry{
		registry:        r,
		swapsTotal:      swaps,
		approvalsTotal:  approvals,
		iterationErrors: iterationErrors,
		gasUsedTotal:    gas,
		feesTotal:       fees,
		nativeBalance:   native,
		state:           state,
		cooldownSeconds: cooldown,
	}
}

func (m *Registry) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (m *Registry) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Registry) IncSwap(status string) {
	if m == nil {
		return
	}
	m.swapsTotal.WithLabelValues(status).Inc()
}

func (m *Registry) IncApproval(status string) {
	if m == nil {
		return
	}
	m.approvalsTotal.WithLabelValues(status).Inc()
}

func (m *Registry) IncIterationError(kind string) {
	if m == nil {
		return
	}
	m.iterationErrors.WithLabelValues(kind).Inc()
}

func (m *Registry) AddGasUsed(gas uint64) {
	if m == nil {
		return
	}
	m.gasUsedTotal.Add(float64(gas))
}

// AddFee records a fee given in wei.
func (m *Registry) AddFee(wei *big.Int) {
	if m == nil || wei == nil || wei.Sign() <= 0 {
		return
	}
	m.feesTotal.Add(toEther(wei))
}

func (m *Registry) SetNativeBalance(wei *big.Int) {
	if m == nil || wei == nil {
		return
	}
	m.nativeBalance.Set(toEther(wei))
}

func (m *Registry) SetState(code int) {
	if m == nil {
		return
	}
	m.state.Set(float64(code))
}

func (m *Registry) ObserveCooldown(seconds float64) {
	if m == nil {
		return
	}
	m.cooldownSeconds.Observe(seconds)
}

func toEther(wei *big.Int) float64 {
	f, _ := decimal.NewFromBigInt(wei, -18).Float64()
	return f
}
