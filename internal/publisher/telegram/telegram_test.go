package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/orgball2608/content-publisher/internal/domain"
	"github.com/orgball2608/content-publisher/internal/publisher"
	"github.com/orgball2608/content-publisher/pkg/config"
	"github.com/orgball2608/content-publisher/pkg/logger"
	"github.com/orgball2608/content-publisher/pkg/retry"
	"github.com/stretchr/testify/require"
)

type call struct {
	token  string
	method string
	form   map[string]string
}

// fakeBotAPI answers Bot API requests; handlers are keyed by method name.
type fakeBotAPI struct {
	mu       sync.Mutex
	calls    []call
	handlers map[string]func(n int) (int, string)
	nextID   int
	// retry_after sent with 429 answers
	retryAfter int
}

func newFakeBotAPI(t *testing.T) (*fakeBotAPI, *httptest.Server) {
	f := &fakeBotAPI{handlers: map[string]func(int) (int, string){}, nextID: 100}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeBotAPI) serve(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/bot"), "/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}

	form := map[string]string{}
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}

	f.mu.Lock()
	f.calls = append(f.calls, call{token: parts[0], method: parts[1], form: form})
	n := 0
	for _, c := range f.calls {
		if c.method == parts[1] {
			n++
		}
	}
	handler := f.handlers[parts[1]]
	retryAfter := f.retryAfter
	f.mu.Unlock()

	if handler != nil {
		if code, desc := handler(n); code != 0 {
			resp := map[string]any{"ok": false, "error_code": code, "description": desc}
			if code == http.StatusTooManyRequests && retryAfter > 0 {
				resp["parameters"] = map[string]any{"retry_after": retryAfter}
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)
			return
		}
	}

	var result any
	switch parts[1] {
	case "getMe":
		result = map[string]any{"id": 1, "is_bot": true, "first_name": "publisher", "username": "publisher_bot"}
	case "sendMediaGroup":
		var media []map[string]any
		_ = json.Unmarshal([]byte(form["media"]), &media)
		msgs := make([]map[string]any, 0, len(media))
		for range media {
			msgs = append(msgs, f.message())
		}
		result = msgs
	default:
		result = f.message()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func (f *fakeBotAPI) message() map[string]any {
	f.nextID++
	return map[string]any{"message_id": f.nextID, "date": 0, "chat": map[string]any{"id": -100, "type": "channel"}}
}

func (f *fakeBotAPI) on(method string, h func(n int) (int, string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
}

func (f *fakeBotAPI) sent(method string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func newTestPublisher(t *testing.T, srv *httptest.Server) *Publisher {
	return newTestPublisherWithTimeout(t, srv, 5*time.Second)
}

func newTestPublisherWithTimeout(t *testing.T, srv *httptest.Server, timeout time.Duration) *Publisher {
	t.Helper()

	cfg := &config.Config{}
	cfg.Telegram.APIEndpoint = srv.URL + "/bot%s/%s"
	cfg.Telegram.RequestTimeout = timeout

	return New(Opts{
		Config: cfg,
		Logger: logger.NewNop(),
		Retry: &retry.Config{
			MaxRetries:      2,
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
			Multiplier:      1,
		},
	})
}

var account = domain.ConnectedAccount{
	ID:          "acc-1",
	UserID:      "user-1",
	Provider:    domain.PlatformTelegram,
	AccessToken: "123:secret",
	Active:      true,
}

func TestPublish_TextOnly(t *testing.T) {
	api, srv := newFakeBotAPI(t)
	p := newTestPublisher(t, srv)

	out, err := p.Publish(context.Background(), account, "news", publisher.Payload{
		Title:    "Launch day",
		Body:     "We are live.",
		Hashtags: []string{"launch", "#go"},
	})
	require.NoError(t, err)
	require.Len(t, out.MessageIDs, 1)
	require.Equal(t, "Published to @news (1 message(s))", out.Message)

	msgs := api.sent("sendMessage")
	require.Len(t, msgs, 1)
	require.Equal(t, "123:secret", msgs[0].token)
	require.Equal(t, "@news", msgs[0].form["chat_id"])
	require.Equal(t, "MarkdownV2", msgs[0].form["parse_mode"])
	require.Equal(t, "*Launch day*\n\nWe are live\\.\n\n\\#launch \\#go", msgs[0].form["text"])
}

func TestPublish_NumericChatID(t *testing.T) {
	api, srv := newFakeBotAPI(t)
	p := newTestPublisher(t, srv)

	_, err := p.Publish(context.Background(), account, "-1001234", publisher.Payload{Body: "hi"})
	require.NoError(t, err)

	msgs := api.sent("sendMessage")
	require.Len(t, msgs, 1)
	require.Equal(t, "-1001234", msgs[0].form["chat_id"])
}

func TestPublish_MediaGroupCarriesCaption(t *testing.T) {
	api, srv := newFakeBotAPI(t)
	p := newTestPublisher(t, srv)

	out, err := p.Publish(context.Background(), account, "@news", publisher.Payload{
		Title: "Gallery",
		Media: []domain.Media{
			{URL: "https://cdn.example.com/a.jpg", MimeType: "image/jpeg"},
			{URL: "https://cdn.example.com/b.mp4", MimeType: "video/mp4"},
		},
	})
	require.NoError(t, err)
	require.Len(t, out.MessageIDs, 2)
	require.Empty(t, api.sent("sendMessage"))

	groups := api.sent("sendMediaGroup")
	require.Len(t, groups, 1)

	var media []map[string]any
	require.NoError(t, json.Unmarshal([]byte(groups[0].form["media"]), &media))
	require.Len(t, media, 2)
	require.Equal(t, "photo", media[0]["type"])
	require.Equal(t, "*Gallery*", media[0]["caption"])
	require.Equal(t, "video", media[1]["type"])
	require.Nil(t, media[1]["caption"])
}

func TestPublish_SingleImageUsesSendPhoto(t *testing.T) {
	api, srv := newFakeBotAPI(t)
	p := newTestPublisher(t, srv)

	_, err := p.Publish(context.Background(), account, "@news", publisher.Payload{
		Body:  "caption",
		Media: []domain.Media{{URL: "https://cdn.example.com/a.png", Kind: domain.MediaImage}},
	})
	require.NoError(t, err)

	photos := api.sent("sendPhoto")
	require.Len(t, photos, 1)
	require.Equal(t, "https://cdn.example.com/a.png", photos[0].form["photo"])
	require.Equal(t, "caption", photos[0].form["caption"])
}

func TestPublish_ForbiddenIsTargetUnavailable(t *testing.T) {
	api, srv := newFakeBotAPI(t)
	api.on("sendMessage", func(int) (int, string) {
		return http.StatusForbidden, "Forbidden: bot is not a member of the channel chat"
	})
	p := newTestPublisher(t, srv)

	_, err := p.Publish(context.Background(), account, "@news", publisher.Payload{Body: "hi"})
	require.Error(t, err)
	require.Equal(t, publisher.KindTargetUnavailable, publisher.KindOf(err))
	require.Len(t, api.sent("sendMessage"), 1, "permanent failures are not retried")
}

func TestPublish_ChatNotFound(t *testing.T) {
	api, srv := newFakeBotAPI(t)
	api.on("sendMessage", func(int) (int, string) {
		return http.StatusBadRequest, "Bad Request: chat not found"
	})
	p := newTestPublisher(t, srv)

	_, err := p.Publish(context.Background(), account, "@missing", publisher.Payload{Body: "hi"})
	require.Equal(t, publisher.KindTargetUnavailable, publisher.KindOf(err))
}

func TestPublish_ServerErrorIsNotResent(t *testing.T) {
	api, srv := newFakeBotAPI(t)
	api.on("sendMessage", func(int) (int, string) {
		return http.StatusBadGateway, "Bad Gateway"
	})
	p := newTestPublisher(t, srv)

	_, err := p.Publish(context.Background(), account, "@news", publisher.Payload{Body: "hi"})
	require.Equal(t, publisher.KindTransient, publisher.KindOf(err))
	require.Len(t, api.sent("sendMessage"), 1)
}

func TestPublish_SlowAnswerIsNotResent(t *testing.T) {
	api, srv := newFakeBotAPI(t)
	api.on("sendMessage", func(int) (int, string) {
		// accepted, but the answer arrives after the client gave up
		time.Sleep(300 * time.Millisecond)
		return 0, ""
	})
	p := newTestPublisherWithTimeout(t, srv, 100*time.Millisecond)

	_, err := p.Publish(context.Background(), account, "@news", publisher.Payload{Body: "hi"})
	require.Equal(t, publisher.KindTransient, publisher.KindOf(err))
	require.Len(t, api.sent("sendMessage"), 1)
}

func TestPublish_HonoursRetryAfter(t *testing.T) {
	api, srv := newFakeBotAPI(t)
	api.retryAfter = 1
	api.on("sendMessage", func(n int) (int, string) {
		if n == 1 {
			return http.StatusTooManyRequests, "Too Many Requests: retry after 1"
		}
		return 0, ""
	})
	p := newTestPublisher(t, srv)

	start := time.Now()
	out, err := p.Publish(context.Background(), account, "@news", publisher.Payload{Body: "hi"})
	require.NoError(t, err)
	require.Len(t, out.MessageIDs, 1)
	require.Len(t, api.sent("sendMessage"), 2)
	require.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestPublish_PartialDeliveryKeepsMessageIDs(t *testing.T) {
	api, srv := newFakeBotAPI(t)
	api.on("sendMessage", func(int) (int, string) {
		return http.StatusBadGateway, "Bad Gateway"
	})
	p := newTestPublisher(t, srv)

	payload := publisher.Payload{
		Title: "Launch",
		Body:  strings.Repeat("long text ", 200),
		Media: []domain.Media{
			{URL: "https://cdn.example.com/a.jpg", Kind: domain.MediaImage},
			{URL: "https://cdn.example.com/b.jpg", Kind: domain.MediaImage},
		},
	}

	out, err := p.Publish(context.Background(), account, "@news", payload)
	require.Error(t, err)
	require.Len(t, out.MessageIDs, 2)
	require.Len(t, api.sent("sendMediaGroup"), 1)
}

func TestPublish_GivesUpAfterRetries(t *testing.T) {
	api, srv := newFakeBotAPI(t)
	api.on("sendMessage", func(int) (int, string) {
		return http.StatusTooManyRequests, "Too Many Requests: retry after 1"
	})
	p := newTestPublisher(t, srv)

	_, err := p.Publish(context.Background(), account, "@news", publisher.Payload{Body: "hi"})
	require.Equal(t, publisher.KindTransient, publisher.KindOf(err))
	require.Len(t, api.sent("sendMessage"), 3)
}

func TestPublish_InvalidToken(t *testing.T) {
	api, srv := newFakeBotAPI(t)
	api.on("getMe", func(int) (int, string) {
		return http.StatusUnauthorized, "Unauthorized"
	})
	p := newTestPublisher(t, srv)

	_, err := p.Publish(context.Background(), account, "@news", publisher.Payload{Body: "hi"})
	require.Equal(t, publisher.KindCredentialInvalid, publisher.KindOf(err))
	require.Empty(t, api.sent("sendMessage"))
}

func TestPublish_RejectsBeforeCallingAPI(t *testing.T) {
	api, srv := newFakeBotAPI(t)
	p := newTestPublisher(t, srv)

	_, err := p.Publish(context.Background(), domain.ConnectedAccount{ID: "acc-2"}, "@news", publisher.Payload{Body: "hi"})
	require.Equal(t, publisher.KindCredentialInvalid, publisher.KindOf(err))

	_, err = p.Publish(context.Background(), account, "  ", publisher.Payload{Body: "hi"})
	require.Equal(t, publisher.KindTargetUnavailable, publisher.KindOf(err))

	_, err = p.Publish(context.Background(), account, "@news", publisher.Payload{})
	require.Equal(t, publisher.KindInvalidPayload, publisher.KindOf(err))

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Empty(t, api.calls)
}

func TestValidateCredential(t *testing.T) {
	api, srv := newFakeBotAPI(t)
	p := newTestPublisher(t, srv)

	ok, err := p.ValidateCredential(context.Background(), account)
	require.NoError(t, err)
	require.True(t, ok)

	api.on("getMe", func(int) (int, string) {
		return http.StatusNotFound, "Not Found"
	})
	ok, err = p.ValidateCredential(context.Background(), account)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = p.ValidateCredential(context.Background(), domain.ConnectedAccount{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPlan_Batches(t *testing.T) {
	var media []domain.Media
	for i := 0; i < 12; i++ {
		media = append(media, domain.Media{URL: fmt.Sprintf("https://cdn.example.com/%d.jpg", i), Kind: domain.MediaImage})
	}
	media = append(media, domain.Media{URL: "https://cdn.example.com/report.pdf", MimeType: "application/pdf"})

	deliveries, err := plan(target{username: "@news"}, publisher.Payload{Title: "t", Media: media})
	require.NoError(t, err)
	require.Len(t, deliveries, 3)
	require.Len(t, deliveries[0].group.Media, 10)
	require.Len(t, deliveries[1].group.Media, 2)
	require.Nil(t, deliveries[2].group)
	require.Equal(t, "send", deliveries[2].method())
}

func TestPlan_LongTextFollowsMedia(t *testing.T) {
	body := strings.Repeat("word ", 1500)

	deliveries, err := plan(target{chatID: 42}, publisher.Payload{
		Title: "Long read",
		Body:  body,
		Media: []domain.Media{{URL: "https://cdn.example.com/a.jpg", Kind: domain.MediaImage}},
	})
	require.NoError(t, err)
	// photo without caption, then the text split over two messages
	require.Len(t, deliveries, 3)
}

func TestPlan_MissingMediaURL(t *testing.T) {
	_, err := plan(target{chatID: 42}, publisher.Payload{Media: []domain.Media{{Kind: domain.MediaImage}}})
	require.Error(t, err)
}

func TestClassify(t *testing.T) {
	require.Nil(t, classify(nil, false))
	require.Equal(t, publisher.KindTransient, publisher.KindOf(classify(context.DeadlineExceeded, false)))
}

func TestNotAccepted(t *testing.T) {
	refused := &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}}
	timedOut := &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: context.DeadlineExceeded}
	reset := &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}}

	require.True(t, notAccepted(refused))
	require.True(t, notAccepted(&tgbotapi.Error{Code: http.StatusTooManyRequests}))
	require.False(t, notAccepted(timedOut))
	require.False(t, notAccepted(reset))
	require.False(t, notAccepted(&tgbotapi.Error{Code: http.StatusBadGateway}))

	flood := &tgbotapi.Error{Code: http.StatusTooManyRequests, ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7}}
	require.Equal(t, 7*time.Second, retryAfter(flood))
	require.Zero(t, retryAfter(refused))
}
