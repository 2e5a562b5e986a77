package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/eddiefleurent/chainlens/internal/risk"
	"github.com/eddiefleurent/chainlens/internal/strategies"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Server exposes the operation surface over HTTP.
type Server struct {
	service   *Service
	router    *chi.Mux
	server    *http.Server
	port      int
	authToken string
	logger    *logrus.Logger
}

// NewServer creates the HTTP front-end for a service.
func NewServer(service *Service, port int, authToken string, logger *logrus.Logger) *Server {
	s := &Server{
		service:   service,
		router:    chi.NewRouter(),
		port:      port,
		authToken: authToken,
		logger:    logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/analyze", s.handleAnalyze)
		r.Get("/strategies", s.handleStrategies)
		r.Post("/size", s.handleSize)
		r.Post("/project", s.handleProject)
		r.Get("/portfolio", s.handlePortfolio)
		r.Post("/stress", s.handleStress)
		r.Get("/breakers", s.handleBreakers)
		r.Post("/entry", s.handleEntry)
		r.Get("/exit", s.handleExit)
		r.Get("/positions", s.handleListPositions)
		r.Post("/positions", s.handleTrackPosition)
		r.Post("/positions/{id}/close", s.handleClosePosition)
		r.Get("/watchlist", s.handleWatchlist)
		r.Put("/watchlist", s.handleSetWatchlist)
	})
}

// authMiddleware checks the X-Auth-Token header, falling back to a token
// query parameter. The health endpoint stays open for probes.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.authToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}
	if s.logger != nil {
		s.logger.WithField("port", s.port).Info("API server starting")
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && s.logger != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"open_positions": len(s.service.store.OpenPositions()),
		"time":           time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	result, err := s.service.AnalyzeChain(r.Context(), AnalyzeRequest{Symbol: symbol})
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := GenerateRequest{
		Symbol:     q.Get("symbol"),
		Preference: strategies.Preference(q.Get("preference")),
	}
	if raw := q.Get("max_risk"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid max_risk %q", raw))
			return
		}
		req.MaxRiskDollars = v
	}
	result, err := s.service.GenerateStrategies(r.Context(), req)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSize(w http.ResponseWriter, r *http.Request) {
	var req risk.SizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.service.SizePosition(r.Context(), req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.service.ProjectPnL(r.Context(), req)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.PortfolioGreeks(r.Context()))
}

func (s *Server) handleStress(w http.ResponseWriter, r *http.Request) {
	var req StressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.service.RunStressTest(r.Context(), req)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	volIndex := 0.0
	if raw := r.URL.Query().Get("vol_index"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid vol_index %q", raw))
			return
		}
		volIndex = v
	}
	decision, err := s.service.CheckBreakers(r.Context(), volIndex)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	decision, err := s.service.EvaluateEntry(r.Context(), req)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ExitRequest{PositionID: q.Get("position")}
	if raw := q.Get("profit_pct"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid profit_pct %q", raw))
			return
		}
		req.ProfitPct = v
	}
	decision, err := s.service.EvaluateExit(r.Context(), req)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.store.ListPositions())
}

func (s *Server) handleTrackPosition(w http.ResponseWriter, r *http.Request) {
	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	pos, err := s.service.TrackPosition(r.Context(), req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, pos)
}

type closeRequest struct {
	ExitPrice   float64 `json:"exit_price"`
	Reason      string  `json:"reason"`
	RealizedPnL float64 `json:"realized_pnl"`
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.service.ClosePosition(r.Context(), id, req.ExitPrice, req.Reason, req.RealizedPnL); err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "closed", "id": id})
}

func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.store.Watchlist())
}

func (s *Server) handleSetWatchlist(w http.ResponseWriter, r *http.Request) {
	var symbols []string
	if err := json.NewDecoder(r.Body).Decode(&symbols); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.service.store.SetWatchlist(symbols); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, symbols)
}
