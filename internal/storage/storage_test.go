package storage

import (
	"context"
	"testing"
	"time"

	"github.com/lasko44/geosource-sub001/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()

	require.NoError(t, store.Put(ctx, "a/1.json", []byte("one")))
	require.NoError(t, store.Put(ctx, "a/2.json", []byte("two")))
	require.NoError(t, store.Put(ctx, "b/1.json", []byte("three")))

	data, err := store.Get(ctx, "a/1.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), data)

	names, err := store.List(ctx, "a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1.json", "a/2.json"}, names)

	_, err = store.Get(ctx, "a/3.json")
	assert.ErrorIs(t, err, ErrNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, store.Put(cancelled, "c", nil))
}

func completedCheck(id string, platform models.Platform, cited bool, completedAt time.Time) *models.CitationCheck {
	c := models.NewCheck(id, "q1", platform, completedAt.Add(-time.Minute))
	_ = c.Start(completedAt.Add(-time.Minute))
	_ = c.Complete(&models.CheckResult{IsCited: cited}, completedAt)
	return c
}

func TestRepository_Queries(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(NewMemoryStorage())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := &models.CitationQuery{ID: "q1", Query: "first", Domain: "example.com", Active: true, CreatedAt: now}
	second := &models.CitationQuery{ID: "q2", Query: "second", Domain: "example.com", Active: true, CreatedAt: now.Add(time.Hour)}
	require.NoError(t, repo.SaveQuery(ctx, second))
	require.NoError(t, repo.SaveQuery(ctx, first))

	queries, err := repo.ListQueries(ctx)
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, "q1", queries[0].ID)

	require.NoError(t, repo.DeleteQuery(ctx, "q1", now))
	queries, err = repo.ListQueries(ctx)
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, "q2", queries[0].ID)

	deleted, err := repo.LoadQuery(ctx, "q1")
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted())
	assert.False(t, deleted.Active)

	_, err = repo.LoadQuery(ctx, "missing")
	assert.True(t, IsNotFound(err))
	_, err = repo.LoadQuery(ctx, "../queries/q1")
	assert.True(t, IsNotFound(err))
	assert.Error(t, repo.SaveQuery(ctx, &models.CitationQuery{ID: "a/b"}))
}

func TestRepository_FindLatestCompletedCheck(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(NewMemoryStorage())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Created in one order, completed in another
	older := completedCheck("c-created-late", models.PlatformOpenAI, false, base)
	older.CreatedAt = base.Add(time.Hour)
	newer := completedCheck("c-created-early", models.PlatformOpenAI, true, base.Add(2*time.Hour))
	newer.CreatedAt = base.Add(-time.Hour)
	otherPlatform := completedCheck("c-claude", models.PlatformClaude, false, base.Add(3*time.Hour))

	failed := models.NewCheck("c-failed", "q1", models.PlatformOpenAI, base.Add(4*time.Hour))
	_ = failed.Fail("boom", base.Add(4*time.Hour))

	for _, c := range []*models.CitationCheck{older, newer, otherPlatform, failed} {
		require.NoError(t, repo.SaveCheck(ctx, c))
	}

	latest, err := repo.FindLatestCompletedCheck(ctx, "q1", models.PlatformOpenAI, "")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "c-created-early", latest.ID)

	latest, err = repo.FindLatestCompletedCheck(ctx, "q1", models.PlatformOpenAI, "c-created-early")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "c-created-late", latest.ID)

	latest, err = repo.FindLatestCompletedCheck(ctx, "q1", models.PlatformGemini, "")
	require.NoError(t, err)
	assert.Nil(t, latest)

	all, err := repo.ListChecks(ctx, "q1", "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	loaded, err := repo.LoadCheck(ctx, "q1", models.PlatformOpenAI, "c-failed")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, loaded.Status)
	assert.Nil(t, loaded.IsCited)
	assert.Nil(t, loaded.Citations)
}

func TestRepository_CompletedCheckKeepsEmptyCitations(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(NewMemoryStorage())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	notCited := completedCheck("c-empty", models.PlatformGoogle, false, base)
	require.NoError(t, repo.SaveCheck(ctx, notCited))

	loaded, err := repo.LoadCheck(ctx, "q1", models.PlatformGoogle, "c-empty")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, loaded.Status)
	require.NotNil(t, loaded.IsCited)
	assert.False(t, *loaded.IsCited)
	require.NotNil(t, loaded.Citations)
	assert.Empty(t, loaded.Citations)
}

func TestRepository_Alerts(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(NewMemoryStorage())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	alerts := []*models.CitationAlert{
		{ID: "a1", QueryID: "q1", CheckID: "c1", Type: models.AlertNewCitation, Platform: models.PlatformOpenAI, CreatedAt: base},
		{ID: "a2", QueryID: "q1", CheckID: "c2", Type: models.AlertLostCitation, Platform: models.PlatformOpenAI, CreatedAt: base.Add(time.Hour)},
		{ID: "a3", QueryID: "q2", CheckID: "c3", Type: models.AlertNewCitation, Platform: models.PlatformGoogle, CreatedAt: base.Add(-time.Hour)},
	}
	for _, a := range alerts {
		require.NoError(t, repo.SaveAlert(ctx, a))
	}

	listed, err := repo.ListAlerts(ctx, "q1", false)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "a2", listed[0].ID)

	read, err := repo.MarkAlertRead(ctx, "q1", "a2", base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, read.IsRead)

	unread, err := repo.ListAlerts(ctx, "q1", true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "a1", unread[0].ID)

	require.NoError(t, repo.MarkAlertNotified(ctx, "q1", "a1", base.Add(2*time.Hour)))
	pending, err := repo.ListUndeliveredAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a3", pending[0].ID)
	assert.Equal(t, "a2", pending[1].ID)

	_, err = repo.MarkAlertRead(ctx, "q1", "missing", base)
	assert.True(t, IsNotFound(err))
}
