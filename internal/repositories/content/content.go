package content

import (
	"context"
	"errors"
	"time"

	"github.com/orgball2608/content-publisher/internal/domain"
	apperrors "github.com/orgball2608/content-publisher/pkg/errors"
)

var (
	ErrNotFound      = apperrors.Wrap(apperrors.ErrNotFound, "content item")
	ErrAlreadyExists = errors.New("content item already exists")
	// ErrClaimLost means the item is no longer held by the given run.
	ErrClaimLost = errors.New("content claim lost")
)

//go:generate go run go.uber.org/mock/mockgen -source=content.go -destination=mocks/mock.go
type Repository interface {
	// Create stores a new item together with its media.
	Create(ctx context.Context, item domain.ContentItem) error

	// GetByID returns the item with its media in order.
	GetByID(ctx context.Context, id string) (*domain.ContentItem, error)

	// ListDue returns every SCHEDULED item whose scheduled time is before now.
	ListDue(ctx context.Context, now time.Time) ([]domain.ContentItem, error)

	// Claim moves a due item from SCHEDULED to PUBLISHING on behalf of runID.
	// It returns false when the item is no longer SCHEDULED or no longer due.
	Claim(ctx context.Context, id, runID string, now time.Time) (bool, error)

	// MarkPublished moves a claimed item to PUBLISHED and sets published_at.
	MarkPublished(ctx context.Context, id, runID string, publishedAt time.Time) error

	// ReleaseStaleClaims returns items claimed before the cutoff to SCHEDULED.
	ReleaseStaleClaims(ctx context.Context, claimedBefore time.Time) (int64, error)
}
