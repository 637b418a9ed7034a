package analytics

import (
	"context"

	"github.com/orgball2608/content-publisher/internal/domain"
)

//go:generate go run go.uber.org/mock/mockgen -source=analytics.go -destination=mocks/mock.go
type Repository interface {
	// Record stores a per-platform snapshot for a content item.
	Record(ctx context.Context, snapshot domain.AnalyticsSnapshot) error

	// ListByContent returns every snapshot of a content item, oldest first.
	ListByContent(ctx context.Context, contentID string) ([]domain.AnalyticsSnapshot, error)
}
