// Package server exposes the Prometheus metrics of a running simulation over
// HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RunInfo identifies the simulation being served.
type RunInfo struct {
	RunID   string    `json:"run_id"`
	Started time.Time `json:"started"`
	Nodes   int       `json:"nodes"`
	Edges   int       `json:"edges"`
}

// Server serves /metrics, /healthz and /api/v1/run.
type Server struct {
	http   *http.Server
	logger zerolog.Logger
}

// New builds the router. Nothing listens until Start.
func New(addr string, info RunInfo, logger zerolog.Logger) *Server {
	s := &Server{logger: logger}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/run", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(info); err != nil {
			s.logger.Error().Err(err).Msg("Failed to encode run info")
		}
	}).Methods("GET")

	router.Use(s.loggingMiddleware)
	router.Use(s.recoveryMiddleware)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start listens on the configured address and serves in the background.
// The returned channel receives the terminal serve error, if any.
func (s *Server) Start() (<-chan error, error) {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return nil, err
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", ln.Addr().String()).Msg("Metrics server starting")
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	return errc, nil
}

// Shutdown stops the server, waiting for in-flight scrapes.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
