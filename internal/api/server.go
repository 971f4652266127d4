// Package api exposes the session engine over HTTP: session start/stop,
// snapshots, and a server-sent-event stream of live trade activity.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradesim/internal/allocation"
	"tradesim/internal/domain"
	"tradesim/internal/observability"
	"tradesim/internal/session"
	"tradesim/internal/strategy"
)

type Server struct {
	controller *session.Controller
	metrics    *observability.Metrics
	logger     *zap.Logger
}

func NewServer(controller *session.Controller, metrics *observability.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		controller: controller,
		metrics:    metrics,
		logger:     logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Get("/instruments", s.handleInstruments)

	r.Post("/sessions", s.handleStartSession)
	r.Get("/sessions/{id}", s.handleGetSession)
	r.Post("/sessions/{id}/stop", s.handleStopSession)
	r.Get("/sessions/{id}/events", s.handleSessionEvents)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"instruments": domain.Instruments(),
	})
}

type startSessionRequest struct {
	AccountMode string   `json:"account_mode"`
	Budget      string   `json:"budget"`
	RiskMode    string   `json:"risk_mode"`
	Instruments []string `json:"instruments"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	budget, err := decimal.NewFromString(req.Budget)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid budget %q", req.Budget))
		return
	}

	h, err := s.controller.Start(r.Context(), session.StartParams{
		AccountMode: domain.AccountMode(req.AccountMode),
		Budget:      budget,
		RiskMode:    domain.RiskMode(req.RiskMode),
		Instruments: req.Instruments,
	})
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, session.ErrInvalidBudget),
			errors.Is(err, domain.ErrInvalidRiskMode),
			errors.Is(err, allocation.ErrBudgetExceeded):
			status = http.StatusBadRequest
		case errors.Is(err, strategy.ErrGeneration):
			status = http.StatusBadGateway
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, h.Snapshot())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	h, ok := s.controller.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, h.Snapshot())
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.controller.Stop(id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h, _ := s.controller.Get(id)
	writeJSON(w, http.StatusOK, h.Snapshot())
}

// handleSessionEvents streams session events as SSE. The stream ends when
// the session completes or the client disconnects.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	h, ok := s.controller.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := h.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(e)
			if err != nil {
				s.logger.Error("event marshal failed", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, payload)
			flusher.Flush()
		}
	}
}

func decodeJSON(r *http.Request, target interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
