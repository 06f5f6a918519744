// Package httpapi is the monitor server: liveness, Prometheus metrics, and a
// JSON status snapshot of queue, providers, and tracking state.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/moonwatch/signalrun/internal/metrics"
)

// StatusSource answers the /status snapshot. Each method is a point-in-time
// read; nothing blocks.
type StatusSource interface {
	QueueDepth() int
	QueueStats() (enqueued, dropped int64)
	BreakerStates() map[string]string
	TrackingCounts() (active, completed int)
	ReputationCount() int
	BlacklistSize() int
}

// Server hosts the monitor endpoints.
type Server struct {
	httpServer *http.Server
	source     StatusSource
	metrics    *metrics.Registry
	startedAt  time.Time
}

// New builds the server on addr.
func New(addr string, source StatusSource, reg *metrics.Registry) *Server {
	s := &Server{
		source:    source,
		metrics:   reg,
		startedAt: time.Now().UTC(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg.Prometheus(), promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown. Errors other than graceful close are logged.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.httpServer.Addr).Msg("monitor server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("monitor server failed")
		}
	}()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	})
}

// statusResponse is the /status document.
type statusResponse struct {
	Uptime           string            `json:"uptime"`
	QueueDepth       int               `json:"queue_depth"`
	QueueEnqueued    int64             `json:"queue_enqueued_total"`
	QueueDropped     int64             `json:"queue_dropped_total"`
	Breakers         map[string]string `json:"provider_breakers"`
	ActiveSignals    int               `json:"active_signals"`
	CompletedSignals int               `json:"completed_signals"`
	KnownChannels    int               `json:"known_channels"`
	BlacklistedTokens int              `json:"blacklisted_tokens"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.source == nil {
		writeJSON(w, http.StatusOK, statusResponse{Uptime: time.Since(s.startedAt).String()})
		return
	}
	enqueued, dropped := s.source.QueueStats()
	active, completed := s.source.TrackingCounts()
	writeJSON(w, http.StatusOK, statusResponse{
		Uptime:            time.Since(s.startedAt).String(),
		QueueDepth:        s.source.QueueDepth(),
		QueueEnqueued:     enqueued,
		QueueDropped:      dropped,
		Breakers:          s.source.BreakerStates(),
		ActiveSignals:     active,
		CompletedSignals:  completed,
		KnownChannels:     s.source.ReputationCount(),
		BlacklistedTokens: s.source.BlacklistSize(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("status encode failed")
	}
}
