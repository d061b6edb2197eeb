package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/lasko44/geosource-sub001/internal/models"
	"github.com/sirupsen/logrus"
)

// CheckRunner starts checks; *orchestrator.Service implements it
type CheckRunner interface {
	CreateCheck(ctx context.Context, queryID string, platform models.Platform) (*models.CitationQuery, *models.CitationCheck, error)
	Execute(ctx context.Context, query *models.CitationQuery, check *models.CitationCheck) error
}

// Store is the read side the handlers need; *storage.Repository implements it
type Store interface {
	LoadQuery(ctx context.Context, id string) (*models.CitationQuery, error)
	ListChecks(ctx context.Context, queryID string, platform models.Platform) ([]models.CitationCheck, error)
	ListAlerts(ctx context.Context, queryID string, unreadOnly bool) ([]models.CitationAlert, error)
	MarkAlertRead(ctx context.Context, queryID, id string, now time.Time) (*models.CitationAlert, error)
}

// Server serves the HTTP surface of the service
type Server struct {
	runner  CheckRunner
	store   Store
	metrics http.Handler
	now     func() time.Time

	// triggered checks still running in the background
	running sync.WaitGroup
}

// NewServer creates the API server. metricsHandler may be nil.
func NewServer(runner CheckRunner, store Store, metricsHandler http.Handler) *Server {
	return &Server{
		runner:  runner,
		store:   store,
		metrics: metricsHandler,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Router builds the route table
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(recoveryMiddleware, loggingMiddleware)

	router.HandleFunc("/health", s.healthCheckHandler).Methods("GET")
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics).Methods("GET")
	}

	router.HandleFunc("/queries/{id}/checks/{platform}", s.triggerCheckHandler).Methods("POST")
	router.HandleFunc("/queries/{id}/checks", s.listChecksHandler).Methods("GET")
	router.HandleFunc("/queries/{id}/alerts", s.listAlertsHandler).Methods("GET")
	router.HandleFunc("/alerts/{query}/{id}/read", s.markAlertReadHandler).Methods("POST")

	return router
}

// Wait blocks until every triggered check has finished
func (s *Server) Wait() {
	s.running.Wait()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		entry := logrus.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		switch {
		case rec.status >= 500:
			entry.Error("HTTP request")
		case rec.status >= 400:
			entry.Warn("HTTP request")
		default:
			entry.Debug("HTTP request")
		}
	})
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logrus.WithFields(logrus.Fields{
					"panic": rec,
					"path":  r.URL.Path,
					"stack": string(debug.Stack()),
				}).Error("Recovered from panic in handler")
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
