// Package server exposes a read-only status API for a running bot.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"monadswap/internal/chain"
	"monadswap/internal/config"
	"monadswap/internal/hmacauth"
	"monadswap/internal/ledger"
	"monadswap/internal/metrics"
	"monadswap/internal/swap"

	"github.com/rs/zerolog"
)

const (
	defaultTradeLimit = 20
	maxTradeLimit     = 500
	checkTimeout      = 2 * time.Second
)

type StatusSource interface {
	Status() swap.Status
}

type TradeLister interface {
	Recent(ctx context.Context, limit int) ([]ledger.Trade, error)
}

type Server struct {
	bot         StatusSource
	trades      TradeLister
	hmac        *hmacauth.Verifier
	httpServer  *http.Server
	metrics     *metrics.Registry
	log         zerolog.Logger
	dbHealthFn  func(context.Context) error
	rpcHealthFn func(context.Context) error
}

func NewServer(cfg config.ServiceConfig, bot StatusSource, trades TradeLister, rpc chain.HealthChecker, m *metrics.Registry, log zerolog.Logger) *Server {
	s := &Server{
		bot:    bot,
		trades: trades,
		hmac: &hmacauth.Verifier{
			Secret:  cfg.HMACSecret,
			MaxSkew: cfg.HMACClockSkew,
		},
		metrics: m,
		log:     log,
	}

	if checker, ok := trades.(interface{ Ping(context.Context) error }); ok {
		s.dbHealthFn = checker.Ping
	}
	if rpc != nil {
		s.rpcHealthFn = rpc.Ping
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.Handle("/api/v1/metrics", m.Handler())
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.Handle("/api/v1/trades", s.hmac.Middleware(http.HandlerFunc(s.handleTrades)))

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           requestIDMiddleware(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

// Handler is the routed mux, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("status API listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.bot.Status())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultTradeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxTradeLimit)
	}

	trades, err := s.trades.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("list trades")
		http.Error(w, "failed to read trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []ledger.Trade{}
	}
	writeJSON(w, http.StatusOK, struct {
		Trades []ledger.Trade `json:"trades"`
	}{trades})
}

type checkInfo struct {
	Connected bool    `json:"connected"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
	Error     string  `json:"error,omitempty"`
}

func runCheck(ctx context.Context, fn func(context.Context) error) checkInfo {
	if fn == nil {
		return checkInfo{Connected: true}
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	start := time.Now()
	if err := fn(ctx); err != nil {
		return checkInfo{Error: err.Error()}
	}
	return checkInfo{
		Connected: true,
		LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rpcInfo := runCheck(r.Context(), s.rpcHealthFn)
	dbInfo := runCheck(r.Context(), s.dbHealthFn)
	healthy := rpcInfo.Connected && dbInfo.Connected

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, struct {
		Status string    `json:"status"`
		State  string    `json:"state"`
		RPC    checkInfo `json:"rpc"`
		Ledger checkInfo `json:"ledger"`
	}{
		Status: status,
		State:  s.bot.Status().State,
		RPC:    rpcInfo,
		Ledger: dbInfo,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = strconv.FormatInt(time.Now().UnixNano(), 10)
			r.Header.Set("X-Request-Id", id)
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}
