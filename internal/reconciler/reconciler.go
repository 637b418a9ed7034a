package reconciler

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/content-publisher/internal/alert"
	"github.com/orgball2608/content-publisher/internal/domain"
	"github.com/orgball2608/content-publisher/internal/metrics"
	"github.com/orgball2608/content-publisher/internal/publisher"
	"github.com/orgball2608/content-publisher/internal/repositories/account"
	"github.com/orgball2608/content-publisher/internal/repositories/analytics"
	"github.com/orgball2608/content-publisher/internal/repositories/content"
	"github.com/orgball2608/content-publisher/pkg/config"
	apperrors "github.com/orgball2608/content-publisher/pkg/errors"
	"github.com/orgball2608/content-publisher/pkg/logger"
	"github.com/samber/lo"
	"go.uber.org/fx"
	"golang.org/x/sync/singleflight"
)

const (
	FatalRunError  = "Failed to publish scheduled content"
	NothingDueText = "No scheduled content due for publishing"

	// bookkeeping writes after delivery get their own budget
	writeTimeout  = 10 * time.Second
	notifyTimeout = 15 * time.Second
)

type Opts struct {
	fx.In

	Content   content.Repository
	Accounts  account.Repository
	Analytics analytics.Repository
	Registry  *publisher.Registry
	Notifier  alert.Notifier
	Config    *config.Config
	Logger    logger.Logger
	Clock     clockwork.Clock `optional:"true"`
}

// Reconciler publishes every overdue SCHEDULED item to its platforms.
type Reconciler struct {
	content   content.Repository
	accounts  account.Repository
	analytics analytics.Repository
	registry  *publisher.Registry
	notifier  alert.Notifier
	clock     clockwork.Clock
	logger    logger.Logger

	runTimeout      time.Duration
	platformTimeout time.Duration
	claimLease      time.Duration

	group singleflight.Group

	// cancelled by Shutdown; runs stop claiming new items once it is done
	ctx    context.Context
	cancel context.CancelFunc
}

func New(opts Opts) *Reconciler {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = alert.Nop{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Reconciler{
		content:         opts.Content,
		accounts:        opts.Accounts,
		analytics:       opts.Analytics,
		registry:        opts.Registry,
		notifier:        notifier,
		clock:           clock,
		logger:          opts.Logger.WithComponent("Reconciler"),
		runTimeout:      opts.Config.Publisher.RunTimeout,
		platformTimeout: opts.Config.Publisher.PlatformTimeout,
		claimLease:      opts.Config.Publisher.ClaimLease,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Run performs one reconciliation. Calls that overlap inside this process
// share a single execution and receive the same report.
//
// The run is not tied to the caller: it keeps going when the caller's
// context is cancelled and is bounded only by the run timeout and Shutdown.
func (r *Reconciler) Run(ctx context.Context) domain.Report {
	v, _, _ := r.group.Do("run", func() (interface{}, error) {
		runCtx, cancel := r.runContext(ctx)
		defer cancel()
		return r.run(runCtx), nil
	})
	return v.(domain.Report)
}

// Shutdown stops in-flight and future runs from claiming more items. Items
// already claimed are still finished.
func (r *Reconciler) Shutdown() {
	r.cancel()
}

func (r *Reconciler) stopped(ctx context.Context) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

func (r *Reconciler) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(r.ctx, cancel)

	if r.runTimeout <= 0 {
		return ctx, func() {
			stop()
			cancel()
		}
	}

	ctx, cancelTimeout := context.WithTimeout(ctx, r.runTimeout)
	return ctx, func() {
		stop()
		cancelTimeout()
		cancel()
	}
}

type itemState int

const (
	stageClaim   = "claim"
	stagePublish = "publish"
	stageMark    = "mark"
)

const (
	itemProcessed itemState = iota
	itemFailed
	itemSkipped
)

func (r *Reconciler) run(ctx context.Context) domain.Report {
	start := r.clock.Now()
	runID := uuid.NewString()
	now := start.UTC()

	report := r.reconcile(ctx, runID, now)

	elapsed := r.clock.Since(start)
	metrics.RunDuration.Observe(elapsed.Seconds())
	metrics.RunTotal.WithLabelValues(outcome(report)).Inc()

	r.logger.Info("Reconciliation finished",
		"run_id", runID,
		"success", report.Success,
		"published", report.Published,
		"results", len(report.Results),
		"duration", elapsed.String())

	if report.HasFailures() {
		r.notify(ctx, report)
	}

	return report
}

func (r *Reconciler) reconcile(ctx context.Context, runID string, now time.Time) domain.Report {
	items, err := r.content.ListDue(ctx, now)
	if err != nil {
		r.logger.Error("Failed to list due content", "run_id", runID, "error", err)
		return domain.Report{
			Success: false,
			Error:   FatalRunError,
			Details: err.Error(),
		}
	}

	if len(items) == 0 {
		r.logger.Debug("No due content", "run_id", runID)
		return domain.Report{
			Success: true,
			Results: []domain.ItemResult{},
			Message: NothingDueText,
		}
	}

	r.logger.Info("Publishing due content", "run_id", runID, "items", len(items))

	report := domain.Report{Success: true, Results: make([]domain.ItemResult, 0, len(items))}
	for _, item := range items {
		if err := r.stopped(ctx); err != nil {
			// unclaimed items stay SCHEDULED for the next run
			r.logger.Warn("Run cancelled, leaving remaining items for the next run",
				"run_id", runID, "error", err)
			break
		}

		res, state := r.process(ctx, runID, now, item)
		switch state {
		case itemSkipped:
			continue
		case itemProcessed:
			report.Published++
			metrics.ItemsProcessed.Inc()
		}
		report.Results = append(report.Results, res)
	}

	return report
}

func (r *Reconciler) process(ctx context.Context, runID string, now time.Time, item domain.ContentItem) (res domain.ItemResult, state itemState) {
	res = domain.ItemResult{ContentID: item.ID, Title: item.Title}

	defer func() {
		if p := recover(); p != nil {
			res, state = r.itemError(res, runID, apperrors.WrapWithCode(fmt.Errorf("%v", p), stagePublish, "unexpected error"))
		}
	}()

	if !item.IsDue(now) {
		r.logger.Warn("Listed content is not due, skipping", "run_id", runID, "content_id", item.ID, "status", item.Status)
		return res, itemSkipped
	}

	claimed, err := r.content.Claim(ctx, item.ID, runID, now)
	if err != nil {
		return r.itemError(res, runID, apperrors.WrapWithCode(err, stageClaim, "failed to claim content"))
	}
	if !claimed {
		r.logger.Info("Content already claimed by another run", "run_id", runID, "content_id", item.ID)
		metrics.ClaimConflicts.Inc()
		return res, itemSkipped
	}

	// a claimed item is delivered to all of its platforms even if the run is
	// cancelled meanwhile; each platform call has its own timeout
	itemCtx := context.WithoutCancel(ctx)

	payload := publisher.PayloadFrom(item)
	for _, platform := range platformsOf(item) {
		msg, err := r.publishTo(itemCtx, item, platform, payload)
		if err != nil {
			res.Errors = append(res.Errors, domain.PlatformError{Platform: platform, Error: err.Error()})
			continue
		}
		res.PlatformResults = append(res.PlatformResults, domain.PlatformResult{
			Platform: platform,
			Success:  true,
			Message:  msg,
		})
	}

	markCtx, cancel := context.WithTimeout(itemCtx, writeTimeout)
	defer cancel()

	if err := r.content.MarkPublished(markCtx, item.ID, runID, now); err != nil {
		if apperrors.Is(err, content.ErrClaimLost) {
			return r.itemError(res, runID, apperrors.WrapWithCode(err, stageMark, "content claim expired before it could be marked published"))
		}
		return r.itemError(res, runID, apperrors.WrapWithCode(err, stageMark, "failed to mark content published"))
	}

	r.logger.Info("Content published",
		"run_id", runID,
		"content_id", item.ID,
		"delivered", len(res.PlatformResults),
		"failed", len(res.Errors))

	return res, itemProcessed
}

// itemError records a failure of the item as a whole. The error code names
// the stage that failed.
func (r *Reconciler) itemError(res domain.ItemResult, runID string, err error) (domain.ItemResult, itemState) {
	stage := apperrors.GetCode(err)
	r.logger.Error("Failed to process content",
		"run_id", runID,
		"content_id", res.ContentID,
		"stage", stage,
		"error", err)
	metrics.ItemErrors.WithLabelValues(stage).Inc()

	res.Error = err.Error()
	return res, itemFailed
}

// publishTo delivers one item to one platform. Every failure comes back as
// an error whose text goes into the report.
func (r *Reconciler) publishTo(ctx context.Context, item domain.ContentItem, platform domain.Platform, payload publisher.Payload) (msg string, err error) {
	start := r.clock.Now()
	outcomeLabel := "ok"
	defer func() {
		metrics.PlatformPublish.WithLabelValues(string(platform), outcomeLabel).Inc()
		metrics.PlatformDuration.WithLabelValues(string(platform)).Observe(r.clock.Since(start).Seconds())
	}()

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Publisher panicked", "content_id", item.ID, "platform", platform, "panic", p)
			outcomeLabel = "panic"
			msg, err = "", fmt.Errorf("%s publisher failed unexpectedly: %v", platform, p)
		}
	}()

	if r.platformTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.platformTimeout)
		defer cancel()
	}

	pub := r.registry.Lookup(platform)
	if !publisher.Implemented(pub) {
		_, err := pub.Publish(ctx, domain.ConnectedAccount{UserID: item.UserID, Provider: platform}, "", payload)
		outcomeLabel = string(publisher.KindNotImplemented)
		return "", err
	}

	acc, err := r.accounts.FindActive(ctx, item.UserID, platform)
	if err != nil {
		if apperrors.IsNotFound(err) {
			outcomeLabel = "no_account"
			return "", fmt.Errorf("No active %s account connected", platform)
		}
		outcomeLabel = "error"
		r.logger.Error("Failed to load connected account", "content_id", item.ID, "platform", platform, "error", err)
		return "", fmt.Errorf("failed to load %s account: %w", platform, err)
	}

	if acc.DefaultChannelID == "" {
		outcomeLabel = "no_channel"
		return "", fmt.Errorf("No %s channel configured for account %s", platform, acc.ID)
	}

	out, err := pub.Publish(ctx, *acc, acc.DefaultChannelID, payload)
	if err != nil {
		outcomeLabel = string(publisher.KindOf(err))
		if outcomeLabel == "" {
			outcomeLabel = "error"
		}
		r.logger.Warn("Platform delivery failed",
			"content_id", item.ID,
			"platform", platform,
			"kind", outcomeLabel,
			"delivered_messages", len(out.MessageIDs),
			"error", err)
		if n := len(out.MessageIDs); n > 0 {
			outcomeLabel = "partial"
			return "", fmt.Errorf("%w (partially delivered: %d message(s) sent)", err, n)
		}
		return "", err
	}

	r.recordSnapshot(ctx, item.ID, platform)

	return out.Message, nil
}

// recordSnapshot starts the analytics series of a delivered item.
func (r *Reconciler) recordSnapshot(ctx context.Context, contentID string, platform domain.Platform) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	err := r.analytics.Record(ctx, domain.AnalyticsSnapshot{
		ContentID:  contentID,
		Platform:   platform,
		RecordedAt: r.clock.Now().UTC(),
	})
	if err != nil {
		r.logger.Warn("Failed to record analytics snapshot", "content_id", contentID, "platform", platform, "error", err)
	}
}

func (r *Reconciler) notify(ctx context.Context, report domain.Report) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := r.notifier.NotifyRun(ctx, report); err != nil {
		r.logger.Warn("Failed to send run alert", "error", err)
	}
}

// ReleaseStaleClaims hands items whose claim outlived the lease back to
// SCHEDULED so a later run retries them.
func (r *Reconciler) ReleaseStaleClaims(ctx context.Context) (int64, error) {
	if r.claimLease <= 0 {
		return 0, nil
	}

	n, err := r.content.ReleaseStaleClaims(ctx, r.clock.Now().UTC().Add(-r.claimLease))
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	metrics.ClaimsReleased.Add(float64(n))
	return n, nil
}

func platformsOf(item domain.ContentItem) []domain.Platform {
	platforms := lo.Uniq(item.Platforms)
	slices.Sort(platforms)
	return platforms
}

func outcome(report domain.Report) string {
	switch {
	case !report.Success:
		return "failed"
	case len(report.Results) == 0:
		return "empty"
	case report.HasFailures():
		return "partial"
	default:
		return "ok"
	}
}
