package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/content-publisher/pkg/config"
	"github.com/orgball2608/content-publisher/pkg/logger"
	"go.uber.org/fx"
)

const (
	publishJobName = "publish-scheduled-content"
	releaseJobName = "release-stale-claims"
)

type ScheduleOpts struct {
	fx.In

	Reconciler *Reconciler
	Config     *config.Config
	Logger     logger.Logger
	Clock      clockwork.Clock `optional:"true"`
}

// Schedule owns the process-wide recurring jobs: the publication run and
// the recovery of stale claims.
type Schedule struct {
	scheduler  gocron.Scheduler
	reconciler *Reconciler
	logger     logger.Logger

	interval time.Duration
	lease    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

func NewSchedule(opts ScheduleOpts) (*Schedule, error) {
	cfg := opts.Config.Publisher
	log := opts.Logger.WithComponent("Schedule")

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
		log.Warn("Failed to load publisher timezone, using UTC", "timezone", cfg.Timezone, "error", err)
	}

	options := []gocron.SchedulerOption{gocron.WithLocation(loc)}
	if opts.Clock != nil {
		options = append(options, gocron.WithClock(opts.Clock))
	}

	scheduler, err := gocron.NewScheduler(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create publication scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Schedule{
		scheduler:  scheduler,
		reconciler: opts.Reconciler,
		logger:     log,
		interval:   cfg.Interval,
		lease:      cfg.ClaimLease,
		ctx:        ctx,
		cancel:     cancel,
	}

	if err := s.register(); err != nil {
		cancel()
		_ = scheduler.Shutdown()
		return nil, err
	}

	return s, nil
}

func (s *Schedule) register() error {
	if s.interval <= 0 {
		return fmt.Errorf("publisher interval must be positive, got %s", s.interval)
	}

	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.publish),
		gocron.WithName(publishJobName),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule publication job: %w", err)
	}

	if s.lease <= 0 {
		s.logger.Warn("Claim lease disabled, stale claims will not be released")
		return nil
	}

	_, err = s.scheduler.NewJob(
		gocron.DurationJob(s.lease/2),
		gocron.NewTask(s.releaseStale),
		gocron.WithName(releaseJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule claim recovery job: %w", err)
	}

	return nil
}

func (s *Schedule) publish() {
	if s.ctx.Err() != nil {
		s.logger.Info("Context cancelled, skipping publication run")
		return
	}

	// Run applies the run timeout itself
	report := s.reconciler.Run(s.ctx)
	if !report.Success {
		s.logger.Error("Scheduled publication run failed", "error", report.Error, "details", report.Details)
	}
}

func (s *Schedule) releaseStale() {
	if s.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, time.Minute)
	defer cancel()

	n, err := s.reconciler.ReleaseStaleClaims(ctx)
	if err != nil {
		s.logger.Error("Failed to release stale claims", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("Released stale claims", "count", n)
	}
}

func (s *Schedule) Start() {
	s.logger.Info("Starting publication scheduler", "interval", s.interval.String(), "claim_lease", s.lease.String())
	s.scheduler.Start()
}

// Stop keeps in-flight runs from claiming more items and waits for the jobs
// to return.
func (s *Schedule) Stop() error {
	s.cancel()
	s.reconciler.Shutdown()
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down publication scheduler: %w", err)
	}
	s.logger.Info("Publication scheduler stopped")
	return nil
}

// RegisterLifecycle ties the schedule to the fx application lifecycle.
func RegisterLifecycle(lc fx.Lifecycle, s *Schedule) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			return s.Stop()
		},
	})
}
