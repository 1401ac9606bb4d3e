package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSONOmitsZeroMetrics(t *testing.T) {
	data, err := json.Marshal(ScheduledPost{ID: "p1", Status: StatusScheduled})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"metrics"`)

	data, err = json.Marshal(ScheduledPost{ID: "p2", Status: StatusPosted, Metrics: PostMetrics{Model: "gpt-4o-mini"}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"metrics"`)
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(filepath.Join(t.TempDir(), "store.json"))
}

func TestLoadMissingFileReturnsEmptyDocument(t *testing.T) {
	m := newTestManager(t)
	doc, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, StoreVersion, doc.Version)
	assert.Nil(t, doc.Profile)
	assert.Empty(t, doc.Posts)
}

func TestProfileRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	_, ok, err := m.GetProfile(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	err = m.UpsertProfile(ctx, Profile{
		BrandName:      "Acme Advisory",
		Voice:          "direct, practical",
		TargetAudience: "founders",
		CadencePerWeek: 3,
		PostingWindows: []PostingWindow{{Day: "Monday", Time: "09:00"}},
	})
	require.NoError(t, err)

	got, ok, err := m.GetProfile(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Acme Advisory", got.BrandName)
	assert.Len(t, got.PostingWindows, 1)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestUpsertProfileRequiresBrandName(t *testing.T) {
	m := newTestManager(t)
	err := m.UpsertProfile(context.Background(), Profile{Voice: "warm"})
	require.Error(t, err)
}

func TestPillarCRUD(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	created, err := m.UpsertPillar(ctx, Pillar{Title: "Leadership", Active: true})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	created.Description = "stories from the trenches"
	updated, err := m.UpsertPillar(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	got, ok, err := m.GetPillar(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "stories from the trenches", got.Description)

	require.NoError(t, m.DeletePillar(ctx, created.ID))
	_, ok, err = m.GetPillar(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsertPostDefaultsToScheduled(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	post, err := m.UpsertPost(ctx, ScheduledPost{Content: "hello", Autopilot: true})
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, post.Status)
	assert.NotEmpty(t, post.ID)
}

func TestUpdatePostStatusEnforcesTransitions(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	post, err := m.UpsertPost(ctx, ScheduledPost{Content: "hello"})
	require.NoError(t, err)

	urn := "urn:li:share:123"
	require.NoError(t, m.UpdatePostStatus(ctx, post.ID, StatusPosted, PostPatch{ExternalPostID: &urn}))

	// posted is terminal: no way back to scheduled.
	err = m.UpdatePostStatus(ctx, post.ID, StatusScheduled, PostPatch{})
	require.Error(t, err)

	got, ok, err := m.GetPost(ctx, post.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusPosted, got.Status)
	assert.Equal(t, urn, got.ExternalPostID)
}

func TestUpdatePostStatusNotFound(t *testing.T) {
	m := newTestManager(t)
	err := m.UpdatePostStatus(context.Background(), "missing", StatusCancelled, PostPatch{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClaimPost(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	now := time.Now().UTC()

	post, err := m.UpsertPost(ctx, ScheduledPost{Content: "hi", Autopilot: true})
	require.NoError(t, err)

	claimed, ok, err := m.ClaimPost(ctx, post.ID, now, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, claimed.RunningAt.Equal(now))

	// Second claim while the first is live is refused.
	_, ok, err = m.ClaimPost(ctx, post.ID, now.Add(time.Second), time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	// A claim past the stuck-run horizon is taken over.
	_, ok, err = m.ClaimPost(ctx, post.ID, now.Add(2*time.Hour), time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClaimPostRefusedForTerminalStatus(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	post, err := m.UpsertPost(ctx, ScheduledPost{Content: "hi", Status: StatusScheduled})
	require.NoError(t, err)
	urn := "urn:li:share:9"
	require.NoError(t, m.UpdatePostStatus(ctx, post.ID, StatusPosted, PostPatch{ExternalPostID: &urn}))

	_, ok, err := m.ClaimPost(ctx, post.ID, time.Now().UTC(), time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFinishPostAppliesPatchAndReleasesClaim(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	now := time.Now().UTC()

	post, err := m.UpsertPost(ctx, ScheduledPost{Autopilot: true})
	require.NoError(t, err)
	_, ok, err := m.ClaimPost(ctx, post.ID, now, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	content := "generated copy"
	urn := "urn:li:share:42"
	err = m.FinishPost(ctx, post.ID, now, PostPatch{
		Status:         StatusPosted,
		Content:        &content,
		ExternalPostID: &urn,
		Metrics:        &PostMetrics{PublishedAt: now},
	})
	require.NoError(t, err)

	got, okGet, err := m.GetPost(ctx, post.ID)
	require.NoError(t, err)
	require.True(t, okGet)
	assert.Equal(t, StatusPosted, got.Status)
	assert.Equal(t, content, got.Content)
	assert.Equal(t, urn, got.ExternalPostID)
	assert.True(t, got.RunningAt.IsZero())
	assert.False(t, got.Metrics.PublishedAt.IsZero())
}

func TestFinishPostStaleClaim(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	now := time.Now().UTC()

	post, err := m.UpsertPost(ctx, ScheduledPost{Autopilot: true})
	require.NoError(t, err)
	_, ok, err := m.ClaimPost(ctx, post.ID, now, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	failText := "late writer"
	err = m.FinishPost(ctx, post.ID, now.Add(time.Minute), PostPatch{Status: StatusFailed, Error: &failText})
	require.ErrorIs(t, err, ErrStaleClaim)

	got, okGet, err := m.GetPost(ctx, post.ID)
	require.NoError(t, err)
	require.True(t, okGet)
	assert.Equal(t, StatusScheduled, got.Status)
	assert.Empty(t, got.Error)
}

func TestFinishPostClearsErrorOnSuccess(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	now := time.Now().UTC()

	post, err := m.UpsertPost(ctx, ScheduledPost{Autopilot: true, Status: StatusScheduled})
	require.NoError(t, err)
	msg := "generator unavailable"
	claimed, ok, err := m.ClaimPost(ctx, post.ID, now, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, m.FinishPost(ctx, post.ID, claimed.RunningAt, PostPatch{Status: StatusFailed, Error: &msg}))

	// failed -> posted on a later run, error cleared.
	later := now.Add(time.Minute)
	claimed, ok, err = m.ClaimPost(ctx, post.ID, later, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	empty := ""
	urn := "urn:li:share:7"
	require.NoError(t, m.FinishPost(ctx, post.ID, claimed.RunningAt, PostPatch{
		Status:         StatusPosted,
		Error:          &empty,
		ExternalPostID: &urn,
	}))

	got, okGet, err := m.GetPost(ctx, post.ID)
	require.NoError(t, err)
	require.True(t, okGet)
	assert.Equal(t, StatusPosted, got.Status)
	assert.Empty(t, got.Error)
}
