package publisher

import (
	"errors"
	"fmt"

	"github.com/orgball2608/content-publisher/internal/domain"
	apperrors "github.com/orgball2608/content-publisher/pkg/errors"
)

type Kind string

const (
	KindCredentialInvalid Kind = "credential_invalid"
	KindTargetUnavailable Kind = "target_unavailable"
	KindTransient         Kind = "transient"
	KindNotImplemented    Kind = "not_implemented"
	KindInvalidPayload    Kind = "invalid_payload"
)

// Error is the typed failure returned by every publisher.
type Error struct {
	Platform domain.Platform
	Kind     Kind
	Err      error
}

func NewError(platform domain.Platform, kind Kind, err error) *Error {
	return &Error{Platform: platform, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Platform, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Platform, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets callers match kinds against the shared sentinels in pkg/errors.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindCredentialInvalid:
		return target == apperrors.ErrUnauthorized
	case KindTargetUnavailable:
		return target == apperrors.ErrForbidden
	case KindTransient:
		return target == apperrors.ErrServiceUnavailable
	case KindNotImplemented:
		return target == apperrors.ErrNotImplemented
	case KindInvalidPayload:
		return target == apperrors.ErrInvalidInput
	}
	return false
}

// KindOf returns the failure kind of err, or "" when err is not a publisher error.
func KindOf(err error) Kind {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Kind
	}
	return ""
}

// IsRetryable reports whether a later attempt could succeed.
func IsRetryable(err error) bool {
	return apperrors.IsServiceUnavailable(err)
}
