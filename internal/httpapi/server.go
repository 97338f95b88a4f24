// Package httpapi serves the operational HTTP surface: health, Prometheus
// metrics, runtime configuration, and read-only views over the store.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"solana-pump-tracker/internal/config"
	"solana-pump-tracker/internal/observability"
	"solana-pump-tracker/internal/service"
	"solana-pump-tracker/internal/storage"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000

	readTimeout  = 10 * time.Second
	writeTimeout = 30 * time.Second
)

// Server is the HTTP API. All endpoints are synchronous reads except the two
// config mutators.
type Server struct {
	svc    *service.Service
	cfg    *config.Store
	logger zerolog.Logger
}

// NewServer builds the API around a running service.
func NewServer(svc *service.Service, cfg *config.Store) *Server {
	return &Server{
		svc:    svc,
		cfg:    cfg,
		logger: log.With().Str("component", "httpapi").Logger(),
	}
}

// Router returns the configured route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	r.HandleFunc("/config", s.handleUpdateConfig).Methods(http.MethodPut, http.MethodPost)
	r.HandleFunc("/reload-config", s.handleReloadConfig).Methods(http.MethodPost)

	r.HandleFunc("/database/phases", s.handlePhases).Methods(http.MethodGet)
	r.HandleFunc("/database/streams", s.handleStreams).Methods(http.MethodGet)
	r.HandleFunc("/database/streams/stats", s.handleStreamStats).Methods(http.MethodGet)
	r.HandleFunc("/database/metrics", s.handleMetrics).Methods(http.MethodGet)

	return r
}

// HTTPServer wraps the router in a server with sane timeouts. The caller
// owns ListenAndServe and Shutdown.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.svc.Health()
	status := http.StatusOK
	if h.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// storeStatus maps a store error to the HTTP status it should surface as.
func storeStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
