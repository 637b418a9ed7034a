package alert

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/orgball2608/content-publisher/internal/domain"
	"github.com/orgball2608/content-publisher/pkg/config"
	"github.com/orgball2608/content-publisher/pkg/formatter"
	"github.com/orgball2608/content-publisher/pkg/logger"
	"go.uber.org/fx"
)

type Opts struct {
	fx.In

	Config *config.Config
	Logger logger.Logger
}

// Telegram posts run digests into a single operator chat.
type Telegram struct {
	token    string
	chatID   int64
	endpoint string
	client   *http.Client
	logger   logger.Logger
}

var _ Notifier = (*Telegram)(nil)

// New returns a Telegram notifier, or Nop when no alert chat is configured.
func New(opts Opts) Notifier {
	cfg := opts.Config.Telegram
	if cfg.AlertToken == "" || cfg.AlertChat == 0 {
		opts.Logger.Info("Run alerts disabled, TELEGRAM_ALERT_TOKEN or TELEGRAM_ALERT_CHAT not set")
		return Nop{}
	}
	return NewTelegram(cfg.AlertToken, cfg.AlertChat, cfg.APIEndpoint, opts.Logger)
}

func NewTelegram(token string, chatID int64, endpoint string, log logger.Logger) *Telegram {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	return &Telegram{
		token:    token,
		chatID:   chatID,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   log.WithComponent("RunAlerts"),
	}
}

func (t *Telegram) NotifyRun(ctx context.Context, report domain.Report) error {
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, ctxClient{ctx: ctx, client: t.client})
	if err != nil {
		return fmt.Errorf("connect alert bot: %w", err)
	}

	// the bot API caps a message at 4096 characters
	text := formatter.SplitRunes(Summary(report), 4096)[0]
	if _, err := bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		return fmt.Errorf("send run alert: %w", err)
	}

	t.logger.Debug("Run alert sent", "chat", t.chatID)
	return nil
}

type ctxClient struct {
	ctx    context.Context
	client *http.Client
}

func (c ctxClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}
