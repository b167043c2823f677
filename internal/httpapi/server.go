package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"jax-backtest-engine/internal/eventbus"
	"jax-backtest-engine/internal/market"
	"jax-backtest-engine/internal/portfolio"
	"jax-backtest-engine/internal/resultstore"
)

// PortfolioView is the read-only JSON shape returned by GET /portfolio.
type PortfolioView struct {
	Balance          float64          `json:"balance"`
	AvailableBalance float64          `json:"available_balance"`
	Equity           float64          `json:"equity"`
	Positions        map[string]int64 `json:"positions"`
	PendingOrders    int              `json:"pending_orders"`
}

// Server exposes a read-only introspection API over one Engine's
// portfolio, gated by TokenManager, plus a websocket feed of live updates.
type Server struct {
	tokens *TokenManager
	port   *portfolio.Portfolio
	runs   *resultstore.Store
	hub    *Hub
	mux    *http.ServeMux
}

// NewServer wires REST handlers and a websocket hub fed by bus events.
// symbols lists the symbols whose 1m bar topics trigger an equity broadcast;
// PortfolioView reports positions for every symbol the portfolio holds.
// runs may be nil, in which case GET /runs/ reports 503 rather than
// panicking on a missing archival backend.
func NewServer(tokens *TokenManager, bus *eventbus.Dispatcher, port *portfolio.Portfolio, symbols []string, runs *resultstore.Store) *Server {
	s := &Server{tokens: tokens, port: port, runs: runs, hub: NewHub(), mux: http.NewServeMux()}

	bus.Subscribe(market.TopicBrokerInterfaceFill, func(sender string, payload any) {
		s.hub.Broadcast(Event{Type: EventFill, Data: payload})
	})
	bus.Subscribe(market.TopicOrderManagerOrder, func(sender string, payload any) {
		s.hub.Broadcast(Event{Type: EventOrder, Data: payload})
	})
	for _, symbol := range symbols {
		sym := symbol
		bus.Subscribe(market.BarTopic(sym, market.Timeframe1Min), s.onBarForEquity)
	}

	s.mux.Handle("/portfolio", tokens.Middleware(http.HandlerFunc(s.handlePortfolio)))
	s.mux.Handle("/stream", tokens.Middleware(http.HandlerFunc(s.hub.ServeWS)))
	s.mux.Handle("/runs/", tokens.Middleware(http.HandlerFunc(s.handleRun)))

	return s
}

func (s *Server) onBarForEquity(sender string, payload any) {
	s.hub.Broadcast(Event{Type: EventEquity, Data: map[string]float64{"equity": s.port.Equity()}})
}

// Hub exposes the underlying websocket hub so callers can start its Run
// loop and broadcast bespoke events (e.g. margin calls) directly.
func (s *Server) Hub() *Hub { return s.hub }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	view := PortfolioView{
		Balance:          s.port.Balance(),
		AvailableBalance: s.port.AvailableBalance(),
		Equity:           s.port.Equity(),
		Positions:        s.port.Positions(),
		PendingOrders:    len(s.port.PendingOrders()),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// handleRun serves GET /runs/{id}, looking up an archived RunSummary from
// the optional resultstore backend.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		http.Error(w, "run archival is not configured", http.StatusServiceUnavailable)
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/runs/")
	if runID == "" {
		http.Error(w, "missing run id", http.StatusBadRequest)
		return
	}

	summary, err := s.runs.LoadRun(r.Context(), runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}
