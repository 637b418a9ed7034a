package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/orgball2608/content-publisher/internal/domain"
	"github.com/orgball2608/content-publisher/internal/publisher"
	"github.com/orgball2608/content-publisher/pkg/formatter"
)

// Bot API limits.
const (
	maxMessageRunes = 4096
	maxCaptionRunes = 1024
	maxGroupSize    = 10
)

// target is either a numeric chat id or a public @username.
type target struct {
	chatID   int64
	username string
}

func parseTarget(channelID string) (target, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return target{}, errors.New("no target channel configured")
	}
	if id, err := strconv.ParseInt(channelID, 10, 64); err == nil {
		return target{chatID: id}, nil
	}
	if !strings.HasPrefix(channelID, "@") {
		channelID = "@" + channelID
	}
	return target{username: channelID}, nil
}

func (t target) String() string {
	if t.username != "" {
		return t.username
	}
	return strconv.FormatInt(t.chatID, 10)
}

func (t target) key() string {
	return t.String()
}

func (t target) apply(chat *tgbotapi.BaseChat) {
	chat.ChatID = t.chatID
	chat.ChannelUsername = t.username
}

// delivery is one Bot API call: either a single message or a media group.
type delivery struct {
	single tgbotapi.Chattable
	group  *tgbotapi.MediaGroupConfig
}

func (d delivery) method() string {
	if d.group != nil {
		return "sendMediaGroup"
	}
	return "send"
}

func (d delivery) deliver(bot *tgbotapi.BotAPI) ([]string, error) {
	if d.group != nil {
		msgs, err := bot.SendMediaGroup(*d.group)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(msgs))
		for _, m := range msgs {
			ids = append(ids, strconv.Itoa(m.MessageID))
		}
		return ids, nil
	}

	msg, err := bot.Send(d.single)
	if err != nil {
		return nil, err
	}
	return []string{strconv.Itoa(msg.MessageID)}, nil
}

// text holds the rendered post: a bold title followed by body and hashtags.
type text struct {
	title string
	rest  string
}

func render(p publisher.Payload) text {
	var parts []string
	if body := strings.TrimSpace(p.Body); body != "" {
		parts = append(parts, body)
	}
	if tags := formatter.Hashtags(p.Hashtags); tags != "" {
		parts = append(parts, tags)
	}
	return text{
		title: strings.TrimSpace(p.Title),
		rest:  strings.Join(parts, "\n\n"),
	}
}

func (t text) empty() bool {
	return t.title == "" && t.rest == ""
}

// runes counts visible characters, i.e. what Telegram measures after parsing.
func (t text) runes() int {
	n := utf8.RuneCountInString(t.title) + utf8.RuneCountInString(t.rest)
	if t.title != "" && t.rest != "" {
		n += 2
	}
	return n
}

func (t text) markdown() string {
	return t.join(t.rest)
}

func (t text) join(rest string) string {
	var sb strings.Builder
	if t.title != "" {
		sb.WriteString("*")
		sb.WriteString(formatter.EscapeMarkdownV2(t.title))
		sb.WriteString("*")
		if rest != "" {
			sb.WriteString("\n\n")
		}
	}
	sb.WriteString(formatter.EscapeMarkdownV2(rest))
	return sb.String()
}

// messages splits the text over as many messages as needed; the title only
// leads the first one.
func (t text) messages() []string {
	if t.runes() <= maxMessageRunes {
		return []string{t.markdown()}
	}

	first := maxMessageRunes
	if t.title != "" {
		first -= utf8.RuneCountInString(t.title) + 2
	}
	if first < maxMessageRunes/2 {
		first = maxMessageRunes / 2
	}

	chunks := formatter.SplitRunes(t.rest, first)
	out := []string{t.join(chunks[0])}
	for _, c := range chunks[1:] {
		for _, part := range formatter.SplitRunes(c, maxMessageRunes) {
			out = append(out, formatter.EscapeMarkdownV2(part))
		}
	}
	return out
}

// plan turns a payload into the ordered list of Bot API calls. Media keep
// their order: consecutive photos/videos are grouped together, documents
// are grouped separately (Telegram rejects mixed albums), one-item groups
// become single sends. The text rides as caption of the first media when it
// fits, otherwise it follows as separate messages.
func plan(t target, p publisher.Payload) ([]delivery, error) {
	txt := render(p)
	if len(p.Media) == 0 {
		if txt.empty() {
			return nil, errors.New("nothing to publish: no text and no media")
		}
		var out []delivery
		for _, m := range txt.messages() {
			msg := tgbotapi.NewMessage(t.chatID, m)
			msg.ChannelUsername = t.username
			msg.ParseMode = tgbotapi.ModeMarkdownV2
			out = append(out, delivery{single: msg})
		}
		return out, nil
	}

	for i, m := range p.Media {
		if strings.TrimSpace(m.URL) == "" {
			return nil, fmt.Errorf("media %d has no url", i)
		}
	}

	caption := ""
	captionFits := !txt.empty() && txt.runes() <= maxCaptionRunes
	if captionFits {
		caption = txt.markdown()
	}

	var out []delivery
	for i, batch := range batches(p.Media) {
		c := ""
		if i == 0 {
			c = caption
		}
		if len(batch) == 1 {
			out = append(out, delivery{single: single(t, batch[0], c)})
			continue
		}
		out = append(out, delivery{group: group(t, batch, c)})
	}

	if !captionFits && !txt.empty() {
		for _, m := range txt.messages() {
			msg := tgbotapi.NewMessage(t.chatID, m)
			msg.ChannelUsername = t.username
			msg.ParseMode = tgbotapi.ModeMarkdownV2
			out = append(out, delivery{single: msg})
		}
	}

	return out, nil
}

func batches(media []domain.Media) [][]domain.Media {
	var (
		out     [][]domain.Media
		current []domain.Media
		docs    bool
	)
	for _, m := range media {
		isDoc := m.ResolvedKind() == domain.MediaDocument
		if len(current) > 0 && (isDoc != docs || len(current) == maxGroupSize) {
			out = append(out, current)
			current = nil
		}
		docs = isDoc
		current = append(current, m)
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	return out
}

func single(t target, m domain.Media, caption string) tgbotapi.Chattable {
	file := tgbotapi.FileURL(m.URL)
	switch m.ResolvedKind() {
	case domain.MediaImage:
		cfg := tgbotapi.NewPhoto(0, file)
		t.apply(&cfg.BaseChat)
		cfg.Caption = caption
		cfg.ParseMode = parseMode(caption)
		return cfg
	case domain.MediaVideo:
		cfg := tgbotapi.NewVideo(0, file)
		t.apply(&cfg.BaseChat)
		cfg.Caption = caption
		cfg.ParseMode = parseMode(caption)
		return cfg
	default:
		cfg := tgbotapi.NewDocument(0, file)
		t.apply(&cfg.BaseChat)
		cfg.Caption = caption
		cfg.ParseMode = parseMode(caption)
		return cfg
	}
}

func group(t target, media []domain.Media, caption string) *tgbotapi.MediaGroupConfig {
	items := make([]interface{}, 0, len(media))
	for i, m := range media {
		c := ""
		if i == 0 {
			c = caption
		}
		file := tgbotapi.FileURL(m.URL)
		switch m.ResolvedKind() {
		case domain.MediaImage:
			in := tgbotapi.NewInputMediaPhoto(file)
			in.Caption = c
			in.ParseMode = parseMode(c)
			items = append(items, in)
		case domain.MediaVideo:
			in := tgbotapi.NewInputMediaVideo(file)
			in.Caption = c
			in.ParseMode = parseMode(c)
			items = append(items, in)
		default:
			in := tgbotapi.NewInputMediaDocument(file)
			in.Caption = c
			in.ParseMode = parseMode(c)
			items = append(items, in)
		}
	}

	cfg := tgbotapi.NewMediaGroup(t.chatID, items)
	cfg.ChannelUsername = t.username
	return &cfg
}

func parseMode(caption string) string {
	if caption == "" {
		return ""
	}
	return tgbotapi.ModeMarkdownV2
}
