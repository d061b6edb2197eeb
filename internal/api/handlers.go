package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/lasko44/geosource-sub001/internal/apperrors"
	"github.com/lasko44/geosource-sub001/internal/models"
	"github.com/lasko44/geosource-sub001/internal/storage"
	"github.com/sirupsen/logrus"
)

// checkTimeout bounds a check started from the API, independent of the request
const checkTimeout = 5 * time.Minute

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": s.now().Format(time.RFC3339),
	})
}

// triggerCheckHandler creates a pending check and runs it in the background.
// The response carries the pending check so callers can poll its progress.
func (s *Server) triggerCheckHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	platform, err := models.ParsePlatform(vars["platform"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	query, check, err := s.runner.CreateCheck(r.Context(), vars["id"], platform)
	switch {
	case err == nil:
	case apperrors.IsConfiguration(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case storage.IsNotFound(err):
		writeError(w, http.StatusNotFound, "query not found")
		return
	default:
		logrus.Errorf("Failed to create check: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create check")
		return
	}

	s.running.Add(1)
	go func() {
		defer s.running.Done()
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		// Failures are persisted on the check itself
		if err := s.runner.Execute(ctx, query, check); err != nil {
			logrus.WithField("check_id", check.ID).Debugf("Triggered check failed: %v", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, check)
}

func (s *Server) listChecksHandler(w http.ResponseWriter, r *http.Request) {
	queryID := mux.Vars(r)["id"]

	var platform models.Platform
	if name := r.URL.Query().Get("platform"); name != "" {
		p, err := models.ParsePlatform(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		platform = p
	}

	if !s.queryExists(w, r, queryID) {
		return
	}

	checks, err := s.store.ListChecks(r.Context(), queryID, platform)
	if err != nil {
		logrus.Errorf("Failed to list checks for %s: %v", queryID, err)
		writeError(w, http.StatusInternalServerError, "failed to list checks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"checks": checks})
}

func (s *Server) listAlertsHandler(w http.ResponseWriter, r *http.Request) {
	queryID := mux.Vars(r)["id"]

	unreadOnly := false
	if v := r.URL.Query().Get("unread"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unread must be a boolean")
			return
		}
		unreadOnly = parsed
	}

	if !s.queryExists(w, r, queryID) {
		return
	}

	alerts, err := s.store.ListAlerts(r.Context(), queryID, unreadOnly)
	if err != nil {
		logrus.Errorf("Failed to list alerts for %s: %v", queryID, err)
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []models.CitationAlert{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

func (s *Server) markAlertReadHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	alert, err := s.store.MarkAlertRead(r.Context(), vars["query"], vars["id"], s.now())
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		logrus.Errorf("Failed to mark alert %s read: %v", vars["id"], err)
		writeError(w, http.StatusInternalServerError, "failed to update alert")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) queryExists(w http.ResponseWriter, r *http.Request, id string) bool {
	if _, err := s.store.LoadQuery(r.Context(), id); err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "query not found")
		} else {
			logrus.Errorf("Failed to load query %s: %v", id, err)
			writeError(w, http.StatusInternalServerError, "failed to load query")
		}
		return false
	}
	return true
}
