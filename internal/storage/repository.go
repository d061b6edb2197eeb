package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/lasko44/geosource-sub001/internal/models"
	"github.com/sirupsen/logrus"
)

// Repository persists queries, checks and alerts as JSON documents in a BlobStore.
//
// Layout:
//
//	queries/<query>.json
//	checks/<query>/<platform>/<check>.json
//	alerts/<query>/<alert>.json
type Repository struct {
	store BlobStore
}

// NewRepository creates a repository over store
func NewRepository(store BlobStore) *Repository {
	return &Repository{store: store}
}

func queryPath(id string) string {
	return path.Join("queries", id+".json")
}

func checkPath(queryID string, platform models.Platform, id string) string {
	return path.Join("checks", queryID, string(platform), id+".json")
}

func alertPath(queryID, id string) string {
	return path.Join("alerts", queryID, id+".json")
}

func (r *Repository) put(ctx context.Context, name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	return r.store.Put(ctx, name, data)
}

func (r *Repository) get(ctx context.Context, name string, v interface{}) error {
	data, err := r.store.Get(ctx, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}
	return nil
}

// SaveQuery creates or replaces a query
func (r *Repository) SaveQuery(ctx context.Context, q *models.CitationQuery) error {
	if !validID(q.ID) {
		return fmt.Errorf("invalid query id %q", q.ID)
	}
	return r.put(ctx, queryPath(q.ID), q)
}

// LoadQuery returns ErrNotFound for unknown ids. Soft-deleted queries are returned.
func (r *Repository) LoadQuery(ctx context.Context, id string) (*models.CitationQuery, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	var q models.CitationQuery
	if err := r.get(ctx, queryPath(id), &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// ListQueries returns every query that has not been soft-deleted
func (r *Repository) ListQueries(ctx context.Context) ([]models.CitationQuery, error) {
	names, err := r.store.List(ctx, "queries/")
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}

	var queries []models.CitationQuery
	for _, name := range names {
		var q models.CitationQuery
		if err := r.get(ctx, name, &q); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			logrus.Warnf("Skipping unreadable query %s: %v", name, err)
			continue
		}
		if q.IsDeleted() {
			continue
		}
		queries = append(queries, q)
	}

	sort.Slice(queries, func(i, j int) bool {
		return queries[i].CreatedAt.Before(queries[j].CreatedAt)
	})
	return queries, nil
}

// DeleteQuery soft-deletes a query. Its checks and alerts are kept.
func (r *Repository) DeleteQuery(ctx context.Context, id string, now time.Time) error {
	q, err := r.LoadQuery(ctx, id)
	if err != nil {
		return err
	}
	q.Active = false
	q.DeletedAt = &now
	q.NextCheckAt = nil
	return r.SaveQuery(ctx, q)
}

// SaveCheck creates or replaces a check
func (r *Repository) SaveCheck(ctx context.Context, c *models.CitationCheck) error {
	if !validID(c.ID) || !validID(c.QueryID) {
		return fmt.Errorf("invalid check id %q for query %q", c.ID, c.QueryID)
	}
	return r.put(ctx, checkPath(c.QueryID, c.Platform, c.ID), c)
}

// LoadCheck returns ErrNotFound for unknown checks
func (r *Repository) LoadCheck(ctx context.Context, queryID string, platform models.Platform, id string) (*models.CitationCheck, error) {
	var c models.CitationCheck
	if err := r.get(ctx, checkPath(queryID, platform, id), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChecks returns the checks of a query, newest first. An empty platform
// lists every platform.
func (r *Repository) ListChecks(ctx context.Context, queryID string, platform models.Platform) ([]models.CitationCheck, error) {
	prefix := "checks/" + queryID + "/"
	if platform != "" {
		prefix += string(platform) + "/"
	}

	names, err := r.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list checks: %w", err)
	}

	checks := make([]models.CitationCheck, 0, len(names))
	for _, name := range names {
		var c models.CitationCheck
		if err := r.get(ctx, name, &c); err != nil {
			if !errors.Is(err, ErrNotFound) {
				logrus.Warnf("Skipping unreadable check %s: %v", name, err)
			}
			continue
		}
		checks = append(checks, c)
	}

	sort.SliceStable(checks, func(i, j int) bool {
		return checks[i].CreatedAt.After(checks[j].CreatedAt)
	})
	return checks, nil
}

// FindLatestCompletedCheck returns the completed check with the greatest
// CompletedAt for (query, platform), ignoring excludeID. It returns nil when
// no completed check exists.
func (r *Repository) FindLatestCompletedCheck(ctx context.Context, queryID string, platform models.Platform, excludeID string) (*models.CitationCheck, error) {
	checks, err := r.ListChecks(ctx, queryID, platform)
	if err != nil {
		return nil, err
	}

	var latest *models.CitationCheck
	for i := range checks {
		c := &checks[i]
		if c.ID == excludeID || c.Status != models.StatusCompleted || c.CompletedAt == nil || c.IsCited == nil {
			continue
		}
		if latest == nil || c.CompletedAt.After(*latest.CompletedAt) {
			latest = c
		}
	}
	return latest, nil
}

// SaveAlert creates or replaces an alert
func (r *Repository) SaveAlert(ctx context.Context, a *models.CitationAlert) error {
	if !validID(a.ID) || !validID(a.QueryID) {
		return fmt.Errorf("invalid alert id %q for query %q", a.ID, a.QueryID)
	}
	return r.put(ctx, alertPath(a.QueryID, a.ID), a)
}

func (r *Repository) listAlerts(ctx context.Context, prefix string) ([]models.CitationAlert, error) {
	names, err := r.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	alerts := make([]models.CitationAlert, 0, len(names))
	for _, name := range names {
		var a models.CitationAlert
		if err := r.get(ctx, name, &a); err != nil {
			if !errors.Is(err, ErrNotFound) {
				logrus.Warnf("Skipping unreadable alert %s: %v", name, err)
			}
			continue
		}
		alerts = append(alerts, a)
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
	return alerts, nil
}

// ListAlerts returns the alerts of a query, newest first
func (r *Repository) ListAlerts(ctx context.Context, queryID string, unreadOnly bool) ([]models.CitationAlert, error) {
	alerts, err := r.listAlerts(ctx, "alerts/"+queryID+"/")
	if err != nil || !unreadOnly {
		return alerts, err
	}

	unread := alerts[:0]
	for _, a := range alerts {
		if !a.IsRead {
			unread = append(unread, a)
		}
	}
	return unread, nil
}

// ListUndeliveredAlerts returns alerts across all queries that have not been
// sent to a notification channel, oldest first.
func (r *Repository) ListUndeliveredAlerts(ctx context.Context) ([]models.CitationAlert, error) {
	alerts, err := r.listAlerts(ctx, "alerts/")
	if err != nil {
		return nil, err
	}

	var pending []models.CitationAlert
	for _, a := range alerts {
		if a.NotifiedAt == nil {
			pending = append(pending, a)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

// MarkAlertRead sets the read flag on an alert
func (r *Repository) MarkAlertRead(ctx context.Context, queryID, id string, now time.Time) (*models.CitationAlert, error) {
	if !validID(queryID) || !validID(id) {
		return nil, ErrNotFound
	}
	var a models.CitationAlert
	if err := r.get(ctx, alertPath(queryID, id), &a); err != nil {
		return nil, err
	}
	a.MarkRead(now)
	if err := r.SaveAlert(ctx, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// MarkAlertNotified records delivery of an alert
func (r *Repository) MarkAlertNotified(ctx context.Context, queryID, id string, now time.Time) error {
	var a models.CitationAlert
	if err := r.get(ctx, alertPath(queryID, id), &a); err != nil {
		return err
	}
	a.NotifiedAt = &now
	return r.SaveAlert(ctx, &a)
}

// IsNotFound reports whether err means the object does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// validID rejects ids that would escape their directory
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "/\\") && id != "." && id != ".."
}
