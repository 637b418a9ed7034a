package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/orgball2608/content-publisher/internal/domain"
	"github.com/orgball2608/content-publisher/internal/publisher"
	"github.com/orgball2608/content-publisher/internal/ratelimit"
	"github.com/orgball2608/content-publisher/pkg/config"
	"github.com/orgball2608/content-publisher/pkg/logger"
	"github.com/orgball2608/content-publisher/pkg/retry"
	"go.uber.org/fx"
)

type Opts struct {
	fx.In

	Config *config.Config
	Logger logger.Logger
	// Retry overrides the default backoff, tests use it to keep retries fast.
	Retry *retry.Config `optional:"true"`
}

// Publisher delivers content through the Telegram Bot API. The bot token is
// the connected account's access token, so one process serves many bots.
type Publisher struct {
	endpoint string
	client   *http.Client
	limiter  ratelimit.Limiter
	retry    retry.Config
	logger   logger.Logger
}

var _ publisher.Publisher = (*Publisher)(nil)

func New(opts Opts) *Publisher {
	cfg := opts.Config.Telegram

	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retryCfg := retry.DefaultConfig()
	if opts.Retry != nil {
		retryCfg = *opts.Retry
	}

	var limiter ratelimit.Limiter = ratelimit.Unlimited{}
	if cfg.ChannelRate > 0 {
		limiter = ratelimit.NewInMemoryLimiter(cfg.ChannelRate, time.Minute, cfg.ChannelBurst)
	}

	return &Publisher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		limiter:  limiter,
		retry:    retryCfg,
		logger:   opts.Logger.WithComponent("TelegramPublisher"),
	}
}

func (p *Publisher) Platform() domain.Platform {
	return domain.PlatformTelegram
}

func (p *Publisher) ValidateCredential(ctx context.Context, account domain.ConnectedAccount) (bool, error) {
	if strings.TrimSpace(account.AccessToken) == "" {
		return false, nil
	}

	if _, err := p.connect(ctx, account.AccessToken); err != nil {
		if publisher.KindOf(err) == publisher.KindCredentialInvalid {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *Publisher) Publish(ctx context.Context, account domain.ConnectedAccount, channelID string, payload publisher.Payload) (publisher.Outcome, error) {
	if strings.TrimSpace(account.AccessToken) == "" {
		return publisher.Outcome{}, publisher.NewError(domain.PlatformTelegram, publisher.KindCredentialInvalid,
			fmt.Errorf("account %s has no bot token", account.ID))
	}

	target, err := parseTarget(channelID)
	if err != nil {
		return publisher.Outcome{}, publisher.NewError(domain.PlatformTelegram, publisher.KindTargetUnavailable, err)
	}

	deliveries, err := plan(target, payload)
	if err != nil {
		return publisher.Outcome{}, publisher.NewError(domain.PlatformTelegram, publisher.KindInvalidPayload, err)
	}

	bot, err := p.connect(ctx, account.AccessToken)
	if err != nil {
		return publisher.Outcome{}, err
	}

	var messageIDs []string
	for i, d := range deliveries {
		if err := p.limiter.Wait(ctx, target.key()); err != nil {
			return publisher.Outcome{MessageIDs: messageIDs}, publisher.NewError(domain.PlatformTelegram, publisher.KindTransient, err)
		}

		ids, err := p.send(ctx, bot, d)
		if err != nil {
			p.logger.Error("Failed to deliver to telegram",
				"channel", channelID,
				"step", i+1,
				"steps", len(deliveries),
				"error", err)
			return publisher.Outcome{MessageIDs: messageIDs}, err
		}
		messageIDs = append(messageIDs, ids...)
	}

	p.logger.Info("Delivered content to telegram", "channel", channelID, "messages", len(messageIDs))

	return publisher.Outcome{
		MessageIDs: messageIDs,
		Message:    fmt.Sprintf("Published to %s (%d message(s))", target, len(messageIDs)),
	}, nil
}

// connect builds a bot bound to ctx; tgbotapi verifies the token with getMe.
func (p *Publisher) connect(ctx context.Context, token string) (*tgbotapi.BotAPI, error) {
	var bot *tgbotapi.BotAPI
	err := p.withRetry(ctx, "telegram.getMe", func() error {
		b, err := tgbotapi.NewBotAPIWithClient(token, p.endpoint, contextClient{ctx: ctx, client: p.client})
		if err != nil {
			return classify(err, true)
		}
		bot = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bot, nil
}

// send posts one delivery. Sends are not idempotent, so only failures where
// Telegram provably did not accept the request are retried.
func (p *Publisher) send(ctx context.Context, bot *tgbotapi.BotAPI, d delivery) ([]string, error) {
	var ids []string
	err := p.withRetry(ctx, "telegram."+d.method(), func() error {
		sent, err := d.deliver(bot)
		if err == nil {
			ids = sent
			return nil
		}

		classified := classify(err, false)
		if !notAccepted(err) {
			return retry.Permanent(classified)
		}

		wait := retryAfter(err)
		if wait > maxRetryAfter {
			return retry.Permanent(classified)
		}
		if wait > 0 {
			p.logger.Warn("Telegram flood control, waiting", "method", d.method(), "retry_after", wait.String())
			if err := sleep(ctx, wait); err != nil {
				return retry.Permanent(classified)
			}
		}
		return classified
	})
	return ids, err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Publisher) withRetry(ctx context.Context, name string, op func() error) error {
	err := retry.Do(ctx, p.logger, name, func() error {
		err := op()
		if err != nil && !publisher.IsRetryable(err) {
			return retry.Permanent(err)
		}
		return err
	}, p.retry)
	if err == nil {
		return nil
	}
	if publisher.KindOf(err) == "" {
		// context expiry surfaces from the backoff loop unclassified
		return publisher.NewError(domain.PlatformTelegram, publisher.KindTransient, err)
	}
	return err
}

// contextClient ties every Bot API request to the caller's context.
type contextClient struct {
	ctx    context.Context
	client *http.Client
}

func (c contextClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}
