package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lasko44/geosource-sub001/internal/apperrors"
	"github.com/lasko44/geosource-sub001/internal/models"
	"github.com/lasko44/geosource-sub001/internal/platforms"
	"github.com/lasko44/geosource-sub001/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAdapter is a mock implementation of platforms.Adapter
type MockAdapter struct {
	mock.Mock
	platform models.Platform
}

func newMockAdapter(p models.Platform) *MockAdapter {
	m := &MockAdapter{platform: p}
	m.On("IsEnabled").Return(true).Maybe()
	m.On("Timeout").Return(5 * time.Second).Maybe()
	m.On("Secrets").Return([]string{"sk-platform-secret"}).Maybe()
	return m
}

func (m *MockAdapter) Platform() models.Platform {
	return m.platform
}

func (m *MockAdapter) IsEnabled() bool {
	return m.Called().Bool(0)
}

func (m *MockAdapter) Timeout() time.Duration {
	return m.Called().Get(0).(time.Duration)
}

func (m *MockAdapter) Secrets() []string {
	return m.Called().Get(0).([]string)
}

func (m *MockAdapter) Check(ctx context.Context, query models.CitationQuery, check models.CitationCheck) (*models.CheckResult, error) {
	args := m.Called(ctx, query, check)
	result, _ := args.Get(0).(*models.CheckResult)
	return result, args.Error(1)
}

// testClock advances one second per call so CompletedAt values are ordered
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestService(t *testing.T, adapters ...platforms.Adapter) (*Service, *storage.Repository) {
	t.Helper()
	repo := storage.NewRepository(storage.NewMemoryStorage())
	service := NewService(repo, platforms.NewRegistry(adapters...), Options{
		WorkerPoolSize:        2,
		PlatformConcurrency:   2,
		PlatformRatePerMinute: 6000,
		Secrets:               []string{"global-secret-value"},
	})
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	service.now = clock.Now
	return service, repo
}

func saveQuery(t *testing.T, repo *storage.Repository, id string) *models.CitationQuery {
	t.Helper()
	brand := "Example Co"
	q := &models.CitationQuery{
		ID:        id,
		Query:     "best project management tools",
		Domain:    "example-co.com",
		Brand:     &brand,
		Active:    true,
		Frequency: models.FrequencyDaily,
		CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.SaveQuery(context.Background(), q))
	return q
}

func saveCompleted(t *testing.T, repo *storage.Repository, id, queryID string, p models.Platform, cited bool, createdAt, completedAt time.Time) {
	t.Helper()
	c := models.NewCheck(id, queryID, p, createdAt)
	require.NoError(t, c.Start(createdAt))
	require.NoError(t, c.Complete(&models.CheckResult{IsCited: cited}, completedAt))
	require.NoError(t, repo.SaveCheck(context.Background(), c))
}

func TestService_RunCheck_AlertDiff(t *testing.T) {
	cited := true
	notCited := false

	tests := []struct {
		name      string
		baseline  *bool
		newResult bool
		expected  []models.AlertType
	}{
		{name: "First check cited", baseline: nil, newResult: true, expected: nil},
		{name: "First check not cited", baseline: nil, newResult: false, expected: nil},
		{name: "Not cited to cited", baseline: &notCited, newResult: true, expected: []models.AlertType{models.AlertNewCitation}},
		{name: "Cited to not cited", baseline: &cited, newResult: false, expected: []models.AlertType{models.AlertLostCitation}},
		{name: "Cited twice", baseline: &cited, newResult: true, expected: nil},
		{name: "Not cited twice", baseline: &notCited, newResult: false, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			adapter := newMockAdapter(models.PlatformOpenAI)
			adapter.On("Check", mock.Anything, mock.Anything, mock.Anything).Return(&models.CheckResult{
				IsCited:    tt.newResult,
				AIResponse: "answer",
				Metadata:   map[string]interface{}{"confidence": 0.6},
			}, nil).Once()

			service, repo := newTestService(t, adapter)
			saveQuery(t, repo, "q1")
			if tt.baseline != nil {
				base := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
				saveCompleted(t, repo, "baseline", "q1", models.PlatformOpenAI, *tt.baseline, base, base)
			}

			require.NoError(t, service.RunCheck(ctx, "q1", models.PlatformOpenAI))

			alerts, err := repo.ListAlerts(ctx, "q1", false)
			require.NoError(t, err)
			var types []models.AlertType
			for _, a := range alerts {
				types = append(types, a.Type)
				assert.Equal(t, models.PlatformOpenAI, a.Platform)
				assert.NotEmpty(t, a.CheckID)
				assert.False(t, a.IsRead)
			}
			assert.Equal(t, tt.expected, types)

			checks, err := repo.ListChecks(ctx, "q1", models.PlatformOpenAI)
			require.NoError(t, err)
			var latest *models.CitationCheck
			for i := range checks {
				if checks[i].ID != "baseline" {
					latest = &checks[i]
				}
			}
			require.NotNil(t, latest)
			assert.Equal(t, models.StatusCompleted, latest.Status)
			require.NotNil(t, latest.IsCited)
			assert.Equal(t, tt.newResult, *latest.IsCited)
			assert.NotNil(t, latest.Citations)
			assert.Equal(t, 100, latest.ProgressPercent)
			adapter.AssertExpectations(t)
		})
	}
}

func TestService_RunCheck_BaselineIsLatestCompleted(t *testing.T) {
	ctx := context.Background()
	adapter := newMockAdapter(models.PlatformGoogle)
	adapter.On("Check", mock.Anything, mock.Anything, mock.Anything).Return(&models.CheckResult{IsCited: true}, nil).Once()

	service, repo := newTestService(t, adapter)
	saveQuery(t, repo, "q1")

	base := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	// Created last but finished first
	saveCompleted(t, repo, "retried", "q1", models.PlatformGoogle, true, base.Add(2*time.Hour), base.Add(3*time.Hour))
	// Created first but finished last, so it is the baseline
	saveCompleted(t, repo, "slow", "q1", models.PlatformGoogle, false, base, base.Add(4*time.Hour))

	require.NoError(t, service.RunCheck(ctx, "q1", models.PlatformGoogle))

	alerts, err := repo.ListAlerts(ctx, "q1", false)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertNewCitation, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "is now cited by google")
}

func TestService_RunCheck_UpstreamFailure(t *testing.T) {
	ctx := context.Background()
	adapter := newMockAdapter(models.PlatformOpenAI)
	upstream := &apperrors.UpstreamError{
		Provider:   "openai",
		StatusCode: 502,
		Message:    "bad gateway for key sk-platform-secret and global-secret-value",
	}
	adapter.On("Check", mock.Anything, mock.Anything, mock.Anything).Return(nil, upstream).Once()

	service, repo := newTestService(t, adapter)
	saveQuery(t, repo, "q1")
	base := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	saveCompleted(t, repo, "baseline", "q1", models.PlatformOpenAI, true, base, base)

	err := service.RunCheck(ctx, "q1", models.PlatformOpenAI)
	require.Error(t, err)
	assert.Equal(t, 502, apperrors.StatusCode(err))

	checks, err := repo.ListChecks(ctx, "q1", models.PlatformOpenAI)
	require.NoError(t, err)
	require.Len(t, checks, 2)

	var failed models.CitationCheck
	for _, c := range checks {
		if c.ID != "baseline" {
			failed = c
		}
	}
	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.Nil(t, failed.IsCited)
	assert.NotNil(t, failed.CompletedAt)
	assert.Contains(t, failed.ErrorMessage, "HTTP 502")
	assert.NotContains(t, failed.ErrorMessage, "sk-platform-secret")
	assert.NotContains(t, failed.ErrorMessage, "global-secret-value")

	alerts, err := repo.ListAlerts(ctx, "q1", false)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestService_RunCheck_ConfigurationError(t *testing.T) {
	ctx := context.Background()

	disabled := &MockAdapter{platform: models.PlatformClaude}
	disabled.On("IsEnabled").Return(false)

	service, repo := newTestService(t, disabled)
	saveQuery(t, repo, "q1")

	tests := []struct {
		name     string
		platform models.Platform
	}{
		{name: "Missing credentials", platform: models.PlatformClaude},
		{name: "Platform not registered", platform: models.PlatformGemini},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.RunCheck(ctx, "q1", tt.platform)
			assert.True(t, apperrors.IsConfiguration(err))

			checks, err := repo.ListChecks(ctx, "q1", "")
			require.NoError(t, err)
			assert.Empty(t, checks)
		})
	}
	disabled.AssertNotCalled(t, "Check", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_RunCheck_UnknownQuery(t *testing.T) {
	ctx := context.Background()
	adapter := newMockAdapter(models.PlatformOpenAI)
	service, repo := newTestService(t, adapter)

	err := service.RunCheck(ctx, "missing", models.PlatformOpenAI)
	assert.True(t, storage.IsNotFound(err))

	deleted := saveQuery(t, repo, "gone")
	require.NoError(t, repo.DeleteQuery(ctx, deleted.ID, time.Now()))
	err = service.RunCheck(ctx, "gone", models.PlatformOpenAI)
	assert.True(t, storage.IsNotFound(err))

	adapter.AssertNotCalled(t, "Check", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_RunCheck_Timeout(t *testing.T) {
	ctx := context.Background()
	adapter := &MockAdapter{platform: models.PlatformPerplexity}
	adapter.On("IsEnabled").Return(true)
	adapter.On("Timeout").Return(20 * time.Millisecond)
	adapter.On("Secrets").Return([]string{})
	adapter.On("Check", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded).Once()

	service, repo := newTestService(t, adapter)
	saveQuery(t, repo, "q1")

	err := service.RunCheck(ctx, "q1", models.PlatformPerplexity)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	checks, err := repo.ListChecks(ctx, "q1", models.PlatformPerplexity)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, models.StatusFailed, checks[0].Status)
	assert.Contains(t, checks[0].ErrorMessage, "timed out")
}

// countingAdapter records the peak number of concurrent calls
type countingAdapter struct {
	platform models.Platform
	active   int32
	peak     int32
	calls    int32
}

func (c *countingAdapter) Platform() models.Platform { return c.platform }

func (c *countingAdapter) IsEnabled() bool { return true }

func (c *countingAdapter) Timeout() time.Duration { return time.Second }

func (c *countingAdapter) Secrets() []string { return nil }

func (c *countingAdapter) Check(ctx context.Context, query models.CitationQuery, check models.CitationCheck) (*models.CheckResult, error) {
	atomic.AddInt32(&c.calls, 1)
	n := atomic.AddInt32(&c.active, 1)
	for {
		peak := atomic.LoadInt32(&c.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&c.peak, peak, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	atomic.AddInt32(&c.active, -1)
	return &models.CheckResult{IsCited: false}, nil
}

func TestService_RunAll_RespectsPlatformConcurrency(t *testing.T) {
	ctx := context.Background()
	adapter := &countingAdapter{platform: models.PlatformDeepSeek}

	repo := storage.NewRepository(storage.NewMemoryStorage())
	service := NewService(repo, platforms.NewRegistry(adapter), Options{
		WorkerPoolSize:        4,
		PlatformConcurrency:   1,
		PlatformRatePerMinute: 60000,
	})

	var requests []CheckRequest
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("q%d", i)
		saveQuery(t, repo, id)
		requests = append(requests, CheckRequest{QueryID: id, Platform: models.PlatformDeepSeek})
	}

	outcomes := service.RunAll(ctx, requests)

	require.Len(t, outcomes, 6)
	for _, o := range outcomes {
		assert.NoError(t, o.Err)
	}
	assert.Equal(t, int32(6), atomic.LoadInt32(&adapter.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&adapter.peak))
}

func TestService_RunQuery(t *testing.T) {
	ctx := context.Background()
	openai := &countingAdapter{platform: models.PlatformOpenAI}
	google := &countingAdapter{platform: models.PlatformGoogle}
	service, repo := newTestService(t, openai, google)

	q := saveQuery(t, repo, "q1")
	outcomes := service.RunQuery(ctx, q)
	assert.Len(t, outcomes, 2)

	q.Platforms = []models.Platform{models.PlatformGoogle, models.PlatformYouTube}
	assert.Equal(t, []models.Platform{models.PlatformGoogle}, service.PlatformsFor(q))
}

func TestService_RunAll_Empty(t *testing.T) {
	service, _ := newTestService(t)
	assert.Nil(t, service.RunAll(context.Background(), nil))
}

// faultyRepository fails the baseline read or the completed write
type faultyRepository struct {
	*storage.Repository
	baselineErr      error
	saveCompletedErr error
}

func (r *faultyRepository) FindLatestCompletedCheck(ctx context.Context, queryID string, platform models.Platform, excludeID string) (*models.CitationCheck, error) {
	if r.baselineErr != nil {
		return nil, r.baselineErr
	}
	return r.Repository.FindLatestCompletedCheck(ctx, queryID, platform, excludeID)
}

func (r *faultyRepository) SaveCheck(ctx context.Context, c *models.CitationCheck) error {
	if r.saveCompletedErr != nil && c.Status == models.StatusCompleted {
		return r.saveCompletedErr
	}
	return r.Repository.SaveCheck(ctx, c)
}

func TestService_RunCheck_CompletionFailureIsTerminal(t *testing.T) {
	tests := []struct {
		name             string
		baselineErr      error
		saveCompletedErr error
		expectedMessage  string
	}{
		{
			name:            "Baseline read fails",
			baselineErr:     errors.New("blob list timeout"),
			expectedMessage: "failed to load baseline check: blob list timeout",
		},
		{
			name:             "Completed write fails",
			saveCompletedErr: errors.New("blob write refused"),
			expectedMessage:  "failed to save completed check: blob write refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			adapter := newMockAdapter(models.PlatformPerplexity)
			adapter.On("Check", mock.Anything, mock.Anything, mock.Anything).Return(&models.CheckResult{
				IsCited:    true,
				AIResponse: "answer",
			}, nil).Once()

			base := storage.NewRepository(storage.NewMemoryStorage())
			repo := &faultyRepository{Repository: base, baselineErr: tt.baselineErr, saveCompletedErr: tt.saveCompletedErr}
			service := NewService(repo, platforms.NewRegistry(adapter), Options{WorkerPoolSize: 1, PlatformConcurrency: 1, PlatformRatePerMinute: 6000})
			saveQuery(t, base, "q1")

			err := service.RunCheck(ctx, "q1", models.PlatformPerplexity)
			require.Error(t, err)

			checks, err := base.ListChecks(ctx, "q1", models.PlatformPerplexity)
			require.NoError(t, err)
			require.Len(t, checks, 1)
			assert.Equal(t, models.StatusFailed, checks[0].Status)
			assert.Nil(t, checks[0].IsCited)
			assert.Nil(t, checks[0].Citations)
			assert.Equal(t, tt.expectedMessage, checks[0].ErrorMessage)

			alerts, err := base.ListAlerts(ctx, "q1", false)
			require.NoError(t, err)
			assert.Empty(t, alerts)
		})
	}
}
