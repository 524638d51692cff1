// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/raffleworks/raffle-engine/internal/config"
	"github.com/raffleworks/raffle-engine/internal/metrics"
	"github.com/raffleworks/raffle-engine/internal/notification"
	"github.com/raffleworks/raffle-engine/internal/storage"
	"github.com/raffleworks/raffle-engine/internal/watcher"
	"github.com/raffleworks/raffle-engine/pkg/utils"
)

// HTTPServer exposes the engine's read-only API: health, stats, raffle and
// ticket lookups, and the Prometheus scrape endpoint. All mutation happens
// through the event pipeline, never over HTTP.
type HTTPServer struct {
	config         *config.ServerConfig
	server         *http.Server
	router         *mux.Router
	storage        storage.Storage
	watchers       *watcher.Manager
	notifications  *notification.Manager
	metricsManager *metrics.Manager
	logger         *logrus.Logger
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	cfg *config.ServerConfig,
	store storage.Storage,
	watchers *watcher.Manager,
	notifications *notification.Manager,
	metricsManager *metrics.Manager,
) *HTTPServer {

	s := &HTTPServer{
		config:         cfg,
		storage:        store,
		watchers:       watchers,
		notifications:  notifications,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
	}

	s.setupRouter()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// Handler returns the configured router, used directly in tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.healthHandler).Methods("GET")
	api.HandleFunc("/stats", s.statsHandler).Methods("GET")

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	// Raffle endpoints
	api.HandleFunc("/raffles/current", s.currentRaffleHandler).Methods("GET")
	api.HandleFunc("/raffles/{id}", s.getRaffleHandler).Methods("GET")
	api.HandleFunc("/raffles/{id}/tickets", s.ticketTableHandler).Methods("GET")
	api.HandleFunc("/raffles/{id}/tickets/{wallet}", s.ticketCountHandler).Methods("GET")
	api.HandleFunc("/raffles/{id}/winner", s.winnerHandler).Methods("GET")

	// Watcher endpoints
	api.HandleFunc("/watchers/status", s.watcherStatusHandler).Methods("GET")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.metricsManager.UpdateSystemMetrics()
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Catch immediate binding errors before reporting success.
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.metricsManager.UpdateSystemMetrics()

		prom := s.metricsManager.GetPrometheusMetrics()
		if s.storage != nil {
			prom.UpdateComponentHealth("storage", s.storage.Ping() == nil)
		}
		if s.watchers != nil {
			healthy := true
			for _, state := range s.watchers.WatcherStates() {
				if state == watcher.StateStopped {
					healthy = false
				}
			}
			prom.UpdateComponentHealth("watchers", healthy)
		}
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Middleware

// loggingMiddleware logs HTTP requests
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.logger.WithFields(logrus.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"duration":  time.Since(start).String(),
			"remote_ip": r.RemoteAddr,
		}).Debug("HTTP request")
	})
}

// corsMiddleware handles CORS
func (s *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// metricsMiddleware records request counts and latencies
func (s *HTTPServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if template, err := route.GetPathTemplate(); err == nil {
				path = template
			}
		}

		s.metricsManager.GetPrometheusMetrics().RecordHTTPRequest(
			r.Method, path, strconv.Itoa(recorder.status), time.Since(start))
	})
}

// Handlers

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := s.storage.Ping(); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	storageStats, err := s.storage.GetStorageStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
		return
	}

	stats := map[string]interface{}{
		"timestamp": time.Now(),
		"storage":   storageStats,
	}
	if s.watchers != nil {
		stats["watchers"] = s.watchers.WatcherStats()
	}
	if s.notifications != nil {
		stats["notifications"] = s.notifications.GetStats()
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// currentRaffleHandler returns the raffle the engine currently runs
func (s *HTTPServer) currentRaffleHandler(w http.ResponseWriter, r *http.Request) {
	raffle, err := s.storage.GetCurrentRaffle(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve raffle", err)
		return
	}
	if raffle == nil {
		s.writeError(w, http.StatusNotFound, "No raffle configured", nil)
		return
	}

	s.writeJSON(w, http.StatusOK, raffle)
}

// getRaffleHandler returns one raffle by ID
func (s *HTTPServer) getRaffleHandler(w http.ResponseWriter, r *http.Request) {
	raffleID := mux.Vars(r)["id"]

	raffle, err := s.storage.GetRaffle(r.Context(), raffleID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve raffle", err)
		return
	}
	if raffle == nil {
		s.writeError(w, http.StatusNotFound, "Raffle not found", nil)
		return
	}

	s.writeJSON(w, http.StatusOK, raffle)
}

// ticketTableHandler returns a raffle's full ticket table
func (s *HTTPServer) ticketTableHandler(w http.ResponseWriter, r *http.Request) {
	raffleID := mux.Vars(r)["id"]

	table, err := s.storage.GetTicketTable(r.Context(), raffleID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve ticket table", err)
		return
	}

	var total int64
	for _, entry := range table {
		total += entry.Count
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"raffle_id":     raffleID,
		"entries":       table,
		"total_tickets": total,
		"participants":  len(table),
	})
}

// ticketCountHandler returns one wallet's ticket count
func (s *HTTPServer) ticketCountHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	count, err := s.storage.GetTicketCount(r.Context(), vars["id"], vars["wallet"])
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve ticket count", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"raffle_id": vars["id"],
		"wallet":    vars["wallet"],
		"count":     count,
	})
}

// winnerHandler returns a raffle's winner record
func (s *HTTPServer) winnerHandler(w http.ResponseWriter, r *http.Request) {
	raffleID := mux.Vars(r)["id"]

	winner, err := s.storage.GetWinner(r.Context(), raffleID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve winner", err)
		return
	}
	if winner == nil {
		s.writeError(w, http.StatusNotFound, "Raffle not decided", nil)
		return
	}

	s.writeJSON(w, http.StatusOK, winner)
}

// watcherStatusHandler returns the lifecycle state of every watcher
func (s *HTTPServer) watcherStatusHandler(w http.ResponseWriter, r *http.Request) {
	if s.watchers == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Watcher manager not running", nil)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"states":    s.watchers.WatcherStates(),
		"stats":     s.watchers.WatcherStats(),
		"raffle":    s.watchers.CurrentRaffle(),
		"timestamp": time.Now(),
	})
}

// Utility Methods

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.WithError(err).WithFields(logrus.Fields{
			"status":  status,
			"message": message,
		}).Error("HTTP error")
	}

	s.writeJSON(w, status, errorResponse)
}
