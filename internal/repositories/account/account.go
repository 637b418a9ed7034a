package account

import (
	"context"
	"errors"

	"github.com/orgball2608/content-publisher/internal/domain"
	apperrors "github.com/orgball2608/content-publisher/pkg/errors"
)

var (
	ErrNotFound      = apperrors.Wrap(apperrors.ErrNotFound, "connected account")
	ErrAlreadyExists = errors.New("connected account already exists")
)

//go:generate go run go.uber.org/mock/mockgen -source=account.go -destination=mocks/mock.go
type Repository interface {
	Create(ctx context.Context, account domain.ConnectedAccount) error

	// FindActive returns the newest active credential of userID for provider.
	FindActive(ctx context.Context, userID string, provider domain.Platform) (*domain.ConnectedAccount, error)
}
