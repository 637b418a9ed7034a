package content_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/orgball2608/content-publisher/internal/domain"
	"github.com/orgball2608/content-publisher/internal/repositories/content"
	"github.com/orgball2608/content-publisher/internal/repositories/pgtest"
	"github.com/orgball2608/content-publisher/pkg/logger"
	"github.com/stretchr/testify/require"
)

func newItem(status domain.Status, scheduledFor *time.Time) domain.ContentItem {
	return domain.ContentItem{
		ID:        uuid.NewString(),
		UserID:    "user-1",
		Title:     "Weekly digest",
		Body:      "Highlights of the week",
		Hashtags:  []string{"digest", "weekly"},
		Platforms: []domain.Platform{domain.PlatformTelegram, domain.PlatformInstagram},
		Media: []domain.Media{
			{URL: "https://cdn.example.com/1.jpg", MimeType: "image/jpeg"},
			{URL: "https://cdn.example.com/2.mp4", Kind: domain.MediaVideo},
			{URL: "https://cdn.example.com/3.pdf", MimeType: "application/pdf"},
		},
		Status:       status,
		ScheduledFor: scheduledFor,
	}
}

func at(t time.Time) *time.Time { return &t }

func TestPgx_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := content.NewPgx(pgtest.Start(t), logger.NewNop())

	item := newItem(domain.StatusScheduled, at(time.Now().Add(time.Hour)))
	require.NoError(t, repo.Create(ctx, item))
	require.ErrorIs(t, repo.Create(ctx, item), content.ErrAlreadyExists)

	got, err := repo.GetByID(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, item.Title, got.Title)
	require.Equal(t, []string{"digest", "weekly"}, got.Hashtags)
	require.ElementsMatch(t, item.Platforms, got.Platforms)
	require.Len(t, got.Media, 3)
	require.Equal(t, domain.MediaImage, got.Media[0].Kind)
	require.Equal(t, domain.MediaVideo, got.Media[1].Kind)
	require.Equal(t, domain.MediaDocument, got.Media[2].Kind)
	require.Nil(t, got.PublishedAt)

	_, err = repo.GetByID(ctx, "missing")
	require.ErrorIs(t, err, content.ErrNotFound)
}

func TestPgx_ClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := content.NewPgx(pgtest.Start(t), logger.NewNop())
	now := time.Now().UTC().Truncate(time.Microsecond)

	due := newItem(domain.StatusScheduled, at(now.Add(-time.Hour)))
	future := newItem(domain.StatusScheduled, at(now.Add(time.Hour)))
	draft := newItem(domain.StatusDraft, at(now.Add(-time.Hour)))
	for _, it := range []domain.ContentItem{due, future, draft} {
		require.NoError(t, repo.Create(ctx, it))
	}

	items, err := repo.ListDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, due.ID, items[0].ID)
	require.Len(t, items[0].Media, 3)

	// only one of two runs wins the claim
	ok, err := repo.Claim(ctx, due.ID, "run-1", now)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.Claim(ctx, due.ID, "run-2", now)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = repo.Claim(ctx, future.ID, "run-1", now)
	require.NoError(t, err)
	require.False(t, ok)

	items, err = repo.ListDue(ctx, now)
	require.NoError(t, err)
	require.Empty(t, items)

	require.ErrorIs(t, repo.MarkPublished(ctx, due.ID, "run-2", now), content.ErrClaimLost)
	require.NoError(t, repo.MarkPublished(ctx, due.ID, "run-1", now))
	require.ErrorIs(t, repo.MarkPublished(ctx, due.ID, "run-1", now), content.ErrClaimLost)

	got, err := repo.GetByID(ctx, due.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPublished, got.Status)
	require.NotNil(t, got.PublishedAt)
	require.True(t, got.PublishedAt.Equal(now))

	got, err = repo.GetByID(ctx, future.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusScheduled, got.Status)
	require.Nil(t, got.PublishedAt)
}

func TestPgx_ReleaseStaleClaims(t *testing.T) {
	ctx := context.Background()
	repo := content.NewPgx(pgtest.Start(t), logger.NewNop())
	now := time.Now().UTC()

	stale := newItem(domain.StatusScheduled, at(now.Add(-3*time.Hour)))
	fresh := newItem(domain.StatusScheduled, at(now.Add(-3*time.Hour)))
	require.NoError(t, repo.Create(ctx, stale))
	require.NoError(t, repo.Create(ctx, fresh))

	ok, err := repo.Claim(ctx, stale.ID, "crashed", now.Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.Claim(ctx, fresh.ID, "live", now)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := repo.ReleaseStaleClaims(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	items, err := repo.ListDue(ctx, now.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, stale.ID, items[0].ID)

	// the crashed run can no longer finish the item
	require.ErrorIs(t, repo.MarkPublished(ctx, stale.ID, "crashed", now), content.ErrClaimLost)
}
