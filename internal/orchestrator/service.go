package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lasko44/geosource-sub001/internal/analyzer"
	"github.com/lasko44/geosource-sub001/internal/apperrors"
	"github.com/lasko44/geosource-sub001/internal/metrics"
	"github.com/lasko44/geosource-sub001/internal/models"
	"github.com/lasko44/geosource-sub001/internal/platforms"
	"github.com/lasko44/geosource-sub001/internal/storage"
	"github.com/sirupsen/logrus"
)

// Repository is the persistence the orchestrator needs
type Repository interface {
	LoadQuery(ctx context.Context, id string) (*models.CitationQuery, error)
	SaveCheck(ctx context.Context, c *models.CitationCheck) error
	FindLatestCompletedCheck(ctx context.Context, queryID string, platform models.Platform, excludeID string) (*models.CitationCheck, error)
	SaveAlert(ctx context.Context, a *models.CitationAlert) error
}

// AdapterRegistry resolves platforms to adapters
type AdapterRegistry interface {
	Get(p models.Platform) (platforms.Adapter, bool)
	Enabled() []models.Platform
}

// Options tunes the orchestrator's execution limits
type Options struct {
	WorkerPoolSize        int
	PlatformConcurrency   int
	PlatformRatePerMinute float64
	// Secrets are redacted from every persisted error message
	Secrets []string
	Metrics metrics.Recorder
}

// Service runs citation checks through the pending, processing and terminal
// states and raises alerts when a lineage's citation state flips.
type Service struct {
	repo     Repository
	adapters AdapterRegistry
	gates    *gates
	lineage  *lineageLocks
	metrics  metrics.Recorder
	secrets  []string
	workers  int

	now   func() time.Time
	newID func() string
}

// NewService creates a new orchestrator
func NewService(repo Repository, adapters AdapterRegistry, opts Options) *Service {
	if repo == nil || adapters == nil {
		panic("orchestrator: repository and adapter registry are required")
	}
	if opts.WorkerPoolSize < 1 {
		opts.WorkerPoolSize = 1
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}

	return &Service{
		repo:     repo,
		adapters: adapters,
		gates:    newGates(opts.PlatformConcurrency, opts.PlatformRatePerMinute),
		lineage:  newLineageLocks(),
		metrics:  opts.Metrics,
		secrets:  opts.Secrets,
		workers:  opts.WorkerPoolSize,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// RunCheck creates a check for (queryID, platform) and runs it to a terminal
// state. A ConfigurationError or unknown query is returned before any check is
// created. When the adapter fails, the failed check is persisted and the
// adapter error is returned.
func (s *Service) RunCheck(ctx context.Context, queryID string, platform models.Platform) error {
	query, check, err := s.CreateCheck(ctx, queryID, platform)
	if err != nil {
		return err
	}
	return s.Execute(ctx, query, check)
}

// CreateCheck validates the request and persists a pending check
func (s *Service) CreateCheck(ctx context.Context, queryID string, platform models.Platform) (*models.CitationQuery, *models.CitationCheck, error) {
	adapter, ok := s.adapters.Get(platform)
	if !ok {
		return nil, nil, apperrors.NewConfigurationError(string(platform), "platform is not enabled")
	}
	if !adapter.IsEnabled() {
		return nil, nil, apperrors.NewConfigurationError(string(platform), "platform credentials are not configured")
	}

	query, err := s.repo.LoadQuery(ctx, queryID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load query %s: %w", queryID, err)
	}
	if query.IsDeleted() {
		return nil, nil, fmt.Errorf("query %s was deleted: %w", queryID, storage.ErrNotFound)
	}

	check := models.NewCheck(s.newID(), query.ID, platform, s.now())
	if err := s.repo.SaveCheck(ctx, check); err != nil {
		return nil, nil, fmt.Errorf("failed to save check: %w", err)
	}
	return query, check, nil
}

// Execute runs a pending check created by CreateCheck
func (s *Service) Execute(ctx context.Context, query *models.CitationQuery, check *models.CitationCheck) error {
	log := logrus.WithFields(logrus.Fields{
		"check_id": check.ID,
		"query_id": query.ID,
		"platform": check.Platform,
	})

	adapter, ok := s.adapters.Get(check.Platform)
	if !ok {
		err := apperrors.NewConfigurationError(string(check.Platform), "platform is not enabled")
		return s.fail(ctx, log, check, nil, err)
	}

	if err := check.Start(s.now()); err != nil {
		return err
	}
	if err := s.repo.SaveCheck(ctx, check); err != nil {
		return fmt.Errorf("failed to save check: %w", err)
	}

	gate := s.gates.get(check.Platform)
	if err := gate.acquire(ctx); err != nil {
		return s.fail(ctx, log, check, adapter, fmt.Errorf("waiting for a %s slot: %w", check.Platform, err))
	}

	check.SetProgress("awaiting platform response", 30)
	if err := s.repo.SaveCheck(ctx, check); err != nil {
		log.Warnf("Failed to save progress: %v", err)
	}

	start := time.Now()
	s.metrics.IncInFlight(string(check.Platform))
	checkCtx, cancel := context.WithTimeout(ctx, adapter.Timeout())
	result, err := adapter.Check(checkCtx, *query, *check)
	cancel()
	s.metrics.DecInFlight(string(check.Platform))
	gate.release()

	if err == nil && result == nil {
		err = fmt.Errorf("%s adapter returned no result", check.Platform)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%s check timed out after %s: %w", check.Platform, adapter.Timeout(), err)
		}
		s.metrics.RecordCheck(string(check.Platform), string(models.StatusFailed), time.Since(start))
		return s.fail(ctx, log, check, adapter, err)
	}

	if err := s.complete(ctx, log, query, check, adapter, result); err != nil {
		s.metrics.RecordCheck(string(check.Platform), string(models.StatusFailed), time.Since(start))
		return err
	}
	s.metrics.RecordCheck(string(check.Platform), string(models.StatusCompleted), time.Since(start))
	return nil
}

// complete persists the result and diffs it against the lineage baseline.
// The lineage lock makes the check with the latest CompletedAt the baseline
// for the next completion.
// A check that cannot be stored as completed is stored as failed instead.
func (s *Service) complete(ctx context.Context, log *logrus.Entry, query *models.CitationQuery, check *models.CitationCheck, adapter platforms.Adapter, result *models.CheckResult) error {
	unlock := s.lineage.lock(check.QueryID, check.Platform)
	defer unlock()

	baseline, err := s.repo.FindLatestCompletedCheck(ctx, check.QueryID, check.Platform, check.ID)
	if err != nil {
		return s.fail(ctx, log, check, adapter, fmt.Errorf("failed to load baseline check: %w", err))
	}

	completed := *check
	completed.SetProgress("analyzing response", 90)
	if err := completed.Complete(result, s.now()); err != nil {
		return s.fail(ctx, log, check, adapter, err)
	}
	if err := s.repo.SaveCheck(ctx, &completed); err != nil {
		return s.fail(ctx, log, check, adapter, fmt.Errorf("failed to save completed check: %w", err))
	}
	*check = completed

	log.WithFields(logrus.Fields{
		"is_cited":   result.IsCited,
		"citations":  len(result.Citations),
		"confidence": result.Metadata["confidence"],
	}).Info("Citation check completed")

	if baseline == nil || baseline.IsCited == nil {
		return nil
	}
	if *baseline.IsCited == result.IsCited {
		return nil
	}

	alert := s.newAlert(query, check, result.IsCited)
	if err := s.repo.SaveAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	s.metrics.RecordAlert(string(check.Platform), string(alert.Type))
	log.WithFields(logrus.Fields{
		"alert_id":   alert.ID,
		"alert_type": alert.Type,
		"baseline":   baseline.ID,
	}).Info("Citation state changed")
	return nil
}

func (s *Service) newAlert(query *models.CitationQuery, check *models.CitationCheck, cited bool) *models.CitationAlert {
	target := analyzer.NormalizeDomain(query.Domain)
	if brand := query.BrandName(); brand != "" {
		target = fmt.Sprintf("%s (%s)", brand, target)
	}

	alertType := models.AlertLostCitation
	message := fmt.Sprintf("%s is no longer cited by %s for %q", target, check.Platform, query.Query)
	if cited {
		alertType = models.AlertNewCitation
		message = fmt.Sprintf("%s is now cited by %s for %q", target, check.Platform, query.Query)
	}

	return &models.CitationAlert{
		ID:        s.newID(),
		QueryID:   query.ID,
		CheckID:   check.ID,
		Type:      alertType,
		Platform:  check.Platform,
		Message:   message,
		CreatedAt: s.now(),
	}
}

// fail persists a failed check with a redacted message and returns cause
func (s *Service) fail(ctx context.Context, log *logrus.Entry, check *models.CitationCheck, adapter platforms.Adapter, cause error) error {
	secrets := s.secrets
	if adapter != nil {
		secrets = append(append([]string{}, s.secrets...), adapter.Secrets()...)
	}

	if apperrors.IsUpstream(cause) {
		s.metrics.RecordUpstreamError(string(check.Platform), apperrors.StatusCode(cause))
	}
	log.WithFields(logrus.Fields{
		"status_code": apperrors.StatusCode(cause),
		"error":       apperrors.Sanitize(cause.Error(), secrets...),
	}).Error("Citation check failed")

	if err := check.Fail(apperrors.PublicMessage(cause, secrets...), s.now()); err != nil {
		return err
	}
	// The caller's context may be what failed the check
	saveCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
	}
	if err := s.repo.SaveCheck(saveCtx, check); err != nil {
		return fmt.Errorf("failed to save failed check: %w (check error: %v)", err, cause)
	}
	return cause
}

// PlatformsFor returns the enabled platforms a query should be checked on
func (s *Service) PlatformsFor(query *models.CitationQuery) []models.Platform {
	enabled := s.adapters.Enabled()
	if len(query.Platforms) == 0 {
		return enabled
	}

	wanted := make(map[models.Platform]bool, len(query.Platforms))
	for _, p := range query.Platforms {
		wanted[p] = true
	}
	var selected []models.Platform
	for _, p := range enabled {
		if wanted[p] {
			selected = append(selected, p)
		}
	}
	return selected
}
