package app

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/orgball2608/content-publisher/internal/alert"
	"github.com/orgball2608/content-publisher/internal/domain"
	"github.com/orgball2608/content-publisher/internal/httpapi"
	"github.com/orgball2608/content-publisher/internal/metrics"
	"github.com/orgball2608/content-publisher/internal/migrations"
	"github.com/orgball2608/content-publisher/internal/publisher"
	"github.com/orgball2608/content-publisher/internal/publisher/telegram"
	"github.com/orgball2608/content-publisher/internal/reconciler"
	repositories "github.com/orgball2608/content-publisher/internal/repositories/fx"
	"github.com/orgball2608/content-publisher/pkg/config"
	"github.com/orgball2608/content-publisher/pkg/logger"
	"github.com/orgball2608/content-publisher/pkg/pgx"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(
		config.New,
		logger.FxOption,
		pgx.New,
		clockwork.NewRealClock,
	),
	fx.Invoke(migrate),
	repositories.Module,
	fx.Provide(
		telegram.New,
		newRegistry,
		alert.New,
	),
	reconciler.Module,
	fx.Provide(
		func(r *reconciler.Reconciler) httpapi.Runner { return r },
		func(pool *pgxpool.Pool) httpapi.Pinger { return pool },
	),
	httpapi.Module,
	metrics.Module,
)

// newRegistry wires every known platform; only Telegram has a real integration.
func newRegistry(tg *telegram.Publisher, log logger.Logger) *publisher.Registry {
	registry := publisher.NewRegistry(
		tg,
		publisher.NotImplemented(domain.PlatformInstagram),
		publisher.NotImplemented(domain.PlatformFacebook),
		publisher.NotImplemented(domain.PlatformTwitter),
		publisher.NotImplemented(domain.PlatformLinkedIn),
	)

	var live, stubs []domain.Platform
	for _, platform := range registry.Platforms() {
		if publisher.Implemented(registry.Lookup(platform)) {
			live = append(live, platform)
		} else {
			stubs = append(stubs, platform)
		}
	}
	slices.Sort(live)
	slices.Sort(stubs)
	log.Info("Registered platform publishers", "implemented", live, "not_implemented", stubs)

	return registry
}

func migrate(cfg *config.Config, log logger.Logger) error {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	if err := migrations.Up(context.Background(), db); err != nil {
		return err
	}

	log.Info("Database migrations applied")
	return nil
}
