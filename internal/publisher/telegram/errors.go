package telegram

import (
	"net"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/orgball2608/content-publisher/internal/domain"
	"github.com/orgball2608/content-publisher/internal/publisher"
	apperrors "github.com/orgball2608/content-publisher/pkg/errors"
)

// longer flood waits are left to the next delivery attempt
const maxRetryAfter = 30 * time.Second

// classify maps Bot API and transport failures onto publisher kinds.
// getMe answers 404 for malformed tokens, so auth treats it as a bad credential.
func classify(err error, auth bool) error {
	if err == nil {
		return nil
	}

	var apiErr *tgbotapi.Error
	if !apperrors.As(err, &apiErr) {
		// transport failures, timeouts, undecodable responses
		return publisher.NewError(domain.PlatformTelegram, publisher.KindTransient, err)
	}

	desc := strings.ToLower(apiErr.Message)
	switch {
	case apiErr.Code == http.StatusUnauthorized:
		return publisher.NewError(domain.PlatformTelegram, publisher.KindCredentialInvalid, err)
	case auth && apiErr.Code == http.StatusNotFound:
		return publisher.NewError(domain.PlatformTelegram, publisher.KindCredentialInvalid, err)
	case apiErr.Code == http.StatusForbidden:
		return publisher.NewError(domain.PlatformTelegram, publisher.KindTargetUnavailable, err)
	case apiErr.Code == http.StatusBadRequest && (strings.Contains(desc, "chat not found") ||
		strings.Contains(desc, "not enough rights") ||
		strings.Contains(desc, "chat_write_forbidden")):
		return publisher.NewError(domain.PlatformTelegram, publisher.KindTargetUnavailable, err)
	case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError:
		return publisher.NewError(domain.PlatformTelegram, publisher.KindTransient, err)
	default:
		return publisher.NewError(domain.PlatformTelegram, publisher.KindInvalidPayload, err)
	}
}

// notAccepted reports whether the request certainly produced no message:
// flood control rejections and connections that were never established.
// Timeouts and server errors may come after Telegram already posted.
func notAccepted(err error) bool {
	var apiErr *tgbotapi.Error
	if apperrors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests
	}

	var opErr *net.OpError
	return apperrors.As(err, &opErr) && opErr.Op == "dial"
}

func retryAfter(err error) time.Duration {
	var apiErr *tgbotapi.Error
	if !apperrors.As(err, &apiErr) || apiErr.Code != http.StatusTooManyRequests {
		return 0
	}
	return time.Duration(apiErr.RetryAfter) * time.Second
}
