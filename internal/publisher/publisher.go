package publisher

import (
	"context"

	"github.com/orgball2608/content-publisher/internal/domain"
)

// Payload is what gets delivered to a platform.
type Payload struct {
	Title    string
	Body     string
	Media    []domain.Media
	Hashtags []string
}

func PayloadFrom(item domain.ContentItem) Payload {
	return Payload{
		Title:    item.Title,
		Body:     item.Body,
		Media:    item.Media,
		Hashtags: item.Hashtags,
	}
}

// Outcome describes a successful delivery.
type Outcome struct {
	MessageIDs []string
	Message    string
}

//go:generate go run go.uber.org/mock/mockgen -source=publisher.go -destination=mocks/mock.go
type Publisher interface {
	Platform() domain.Platform

	// ValidateCredential reports whether the account's token is still usable.
	ValidateCredential(ctx context.Context, account domain.ConnectedAccount) (bool, error)

	// Publish delivers payload to channelID. Failures are *Error values.
	Publish(ctx context.Context, account domain.ConnectedAccount, channelID string, payload Payload) (Outcome, error)
}
