package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speedrun-hq/speedrun-settlement/pkg/circuitbreaker"
	"github.com/speedrun-hq/speedrun-settlement/pkg/ledger"
	"github.com/speedrun-hq/speedrun-settlement/pkg/logger"
	"github.com/speedrun-hq/speedrun-settlement/pkg/models"
	"github.com/speedrun-hq/speedrun-settlement/pkg/orders"
	"github.com/speedrun-hq/speedrun-settlement/pkg/reactor"
	"github.com/speedrun-hq/speedrun-settlement/pkg/settler"
)

// Server represents a health check HTTP server
type Server struct {
	ledger          *ledger.Ledger
	reactor         *reactor.Reactor
	settler         *settler.Settler
	circuitBreakers map[string]*circuitbreaker.CircuitBreaker
	metricsAPIKey   string
	faucet          bool
	httpServer      *http.Server
	logger          logger.Logger
}

// NewServer creates a new health check server. With faucet set it also serves
// routes that mint tokens and set allowances for any account.
func NewServer(
	port string,
	l *ledger.Ledger,
	r *reactor.Reactor,
	s *settler.Settler,
	circuitBreakers map[string]*circuitbreaker.CircuitBreaker,
	metricsAPIKey string,
	faucet bool,
	log logger.Logger,
) *Server {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if circuitBreakers == nil {
		circuitBreakers = map[string]*circuitbreaker.CircuitBreaker{}
	}
	srv := &Server{
		ledger:          l,
		reactor:         r,
		settler:         s,
		circuitBreakers: circuitBreakers,
		metricsAPIKey:   metricsAPIKey,
		faucet:          faucet,
		logger:          log,
	}
	srv.httpServer = &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv
}

// Handler returns the routes served by the health server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /settlements/{hash}", s.handleSettlement)
	mux.HandleFunc("GET /orders/{hash}", s.handleOrder)
	mux.HandleFunc("POST /orders/resolve", s.handleResolve)
	mux.HandleFunc("POST /orders/execute", s.handleExecute)
	mux.HandleFunc("POST /settlements", s.handleInitiate)
	mux.HandleFunc("POST /settlements/{hash}/challenge", s.handleSettlementAction(s.settler.ChallengeSettlement))
	mux.HandleFunc("POST /settlements/{hash}/finalize", s.handleSettlementAction(s.settler.FinalizeSettlement))
	mux.HandleFunc("POST /settlements/{hash}/cancel", s.handleSettlementAction(s.settler.CancelSettlement))
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /tokens/{token}/balances/{owner}", s.handleBalance)
	mux.HandleFunc("POST /circuit/reset", s.handleCircuitReset)
	if s.faucet {
		mux.HandleFunc("POST /tokens/mint", s.handleMint)
		mux.HandleFunc("POST /tokens/approve", s.handleApprove)
	}

	// Expose Prometheus metrics with API key authentication
	mux.Handle("/metrics", s.metricsAuthMiddleware(promhttp.Handler()))
	return mux
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.InfoWithComponent(logger.Health, "Starting health and metrics server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx is done
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.InfoWithComponent(logger.Health, "Shutting down health server")
	return s.httpServer.Shutdown(ctx)
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}
		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleReady fails while any oracle circuit breaker is open
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	for name, cb := range s.circuitBreakers {
		if cb.IsOpen() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("Circuit breaker %s is open", name)))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	counts := map[string]int{}
	for _, st := range []models.SettlementStatus{
		models.StatusPending, models.StatusChallenged, models.StatusCancelled, models.StatusSuccess,
	} {
		counts[st.String()] = 0
	}
	for _, summary := range s.settler.Settlements() {
		counts[summary.Status.String()]++
	}

	breakers := make(map[string]circuitbreaker.State, len(s.circuitBreakers))
	for name, cb := range s.circuitBreakers {
		breakers[name] = cb.State()
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp":        s.ledger.Now(),
		"height":           s.ledger.Height(),
		"events":           len(s.ledger.Events()),
		"reactor":          s.reactor.Address(),
		"settler":          s.settler.Address(),
		"settlements":      counts,
		"circuit_breakers": breakers,
	})
}

func (s *Server) handleSettlement(w http.ResponseWriter, r *http.Request) {
	hash, err := parseHash(r.PathValue("hash"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	record, ok := s.settler.Settlement(hash)
	if !ok {
		http.Error(w, fmt.Sprintf("No settlement for %s", hash.Hex()), http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	hash, err := parseHash(r.PathValue("hash"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"hash":   hash,
		"filled": s.reactor.IsFilled(hash),
	})
}

type resolveResponse struct {
	Type       string                          `json:"type"`
	Timestamp  uint64                          `json:"timestamp"`
	Order      *models.ResolvedOrder           `json:"order,omitempty"`
	CrossChain *models.ResolvedCrossChainOrder `json:"cross_chain_order,omitempty"`
}

// handleResolve evaluates an encoded order at the current block timestamp
// without executing it
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req signedOrderRequest
	if !s.decode(w, r, &req) {
		return
	}
	kind, err := orders.TypeOf(req.Order)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	signed := req.signed()
	resp := resolveResponse{Type: kind.String(), Timestamp: s.ledger.Now()}
	if kind == orders.TypeCrossChainLimit {
		resp.CrossChain, err = orders.ResolveCrossChain(signed, resp.Timestamp)
	} else {
		resp.Order, err = orders.Resolve(signed, resp.Timestamp)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleCircuitReset closes the breaker named by the name query parameter
func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "Missing name parameter", http.StatusBadRequest)
		return
	}
	cb, ok := s.circuitBreakers[name]
	if !ok {
		http.Error(w, fmt.Sprintf("No circuit breaker %s", name), http.StatusNotFound)
		return
	}
	cb.Reset()
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(fmt.Sprintf("Circuit breaker %s reset", name)))
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.ErrorWithComponent(logger.Health, "Error encoding JSON: %v", err)
	}
}

func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid hash %q", s)
	}
	return common.BytesToHash(b), nil
}
