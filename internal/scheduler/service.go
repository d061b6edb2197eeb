package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/lasko44/geosource-sub001/internal/config"
	"github.com/lasko44/geosource-sub001/internal/models"
	"github.com/lasko44/geosource-sub001/internal/orchestrator"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// QueryStore lists and updates tracked queries
type QueryStore interface {
	ListQueries(ctx context.Context) ([]models.CitationQuery, error)
	SaveQuery(ctx context.Context, q *models.CitationQuery) error
}

// Dispatcher runs checks; *orchestrator.Service implements it
type Dispatcher interface {
	PlatformsFor(query *models.CitationQuery) []models.Platform
	RunAll(ctx context.Context, requests []orchestrator.CheckRequest) []orchestrator.CheckOutcome
}

// Deliverer sends pending alert notifications
type Deliverer interface {
	Deliver(ctx context.Context) error
}

// Gate decides before dispatch whether a due query may run, for example a
// quota or feature flag check. A non-nil error skips the run; the query is
// still marked as run so it is not retried until its next slot.
type Gate func(ctx context.Context, query models.CitationQuery) error

// AllowAll is the default Gate
func AllowAll(context.Context, models.CitationQuery) error {
	return nil
}

// DispatchSummary reports one dispatch run
type DispatchSummary struct {
	Due       int
	Skipped   int
	Checks    int
	Failed    int
	Completed int
}

// Service handles scheduling of citation checks and alert delivery
type Service struct {
	config     *config.Config
	queries    QueryStore
	dispatcher Dispatcher
	notifier   Deliverer
	gate       Gate
	cron       *cron.Cron
	now        func() time.Time
}

// NewService creates a new scheduler service. gate may be nil.
func NewService(cfg *config.Config, queries QueryStore, dispatcher Dispatcher, notifier Deliverer, gate Gate) *Service {
	if gate == nil {
		gate = AllowAll
	}
	logger := cron.PrintfLogger(logrus.StandardLogger())
	return &Service{
		config:     cfg,
		queries:    queries,
		dispatcher: dispatcher,
		notifier:   notifier,
		gate:       gate,
		cron:       cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(logger))),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start registers the dispatch and notification jobs and starts the cron runner
func (s *Service) Start() error {
	_, err := s.cron.AddFunc(s.config.DispatchSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		summary, err := s.DispatchDue(ctx)
		if err != nil {
			logrus.Errorf("Scheduled dispatch failed: %v", err)
			return
		}
		if summary.Due > 0 {
			logrus.WithFields(logrus.Fields{
				"due":       summary.Due,
				"skipped":   summary.Skipped,
				"checks":    summary.Checks,
				"completed": summary.Completed,
				"failed":    summary.Failed,
			}).Info("Scheduled dispatch finished")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid DISPATCH_SCHEDULE %q: %w", s.config.DispatchSchedule, err)
	}

	if s.notifier != nil {
		_, err = s.cron.AddFunc(s.config.NotifySchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := s.notifier.Deliver(ctx); err != nil {
				logrus.Errorf("Alert delivery failed: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid NOTIFY_SCHEDULE %q: %w", s.config.NotifySchedule, err)
		}
	}

	s.cron.Start()
	logrus.Infof("Scheduler started (dispatch %q, notify %q)", s.config.DispatchSchedule, s.config.NotifySchedule)
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}

// DispatchDue runs every due query. Each query's schedule is advanced before
// its checks are handed to the dispatcher.
func (s *Service) DispatchDue(ctx context.Context) (DispatchSummary, error) {
	var summary DispatchSummary
	now := s.now()

	queries, err := s.queries.ListQueries(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list queries: %w", err)
	}

	var requests []orchestrator.CheckRequest
	for i := range queries {
		q := &queries[i]
		if !q.IsDue(now) {
			continue
		}
		summary.Due++

		gateErr := s.gate(ctx, *q)
		q.Schedule(now)
		if err := s.queries.SaveQuery(ctx, q); err != nil {
			logrus.Errorf("Failed to update schedule for query %s: %v", q.ID, err)
			continue
		}

		if gateErr != nil {
			summary.Skipped++
			logrus.WithField("query_id", q.ID).Infof("Skipping scheduled check: %v", gateErr)
			continue
		}

		for _, p := range s.dispatcher.PlatformsFor(q) {
			requests = append(requests, orchestrator.CheckRequest{QueryID: q.ID, Platform: p})
		}
	}

	summary.Checks = len(requests)
	for _, outcome := range s.dispatcher.RunAll(ctx, requests) {
		if outcome.Err != nil {
			summary.Failed++
		} else {
			summary.Completed++
		}
	}
	return summary, nil
}
