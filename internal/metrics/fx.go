package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

const poolStatsInterval = 15 * time.Second

var Module = fx.Module("metrics",
	fx.Invoke(registerPoolStats),
)

func registerPoolStats(lc fx.Lifecycle, pool *pgxpool.Pool) {
	stats := NewPGXPoolStats(pool, prometheus.DefaultRegisterer)
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			MustRegister()
			go stats.Start(ctx, poolStatsInterval)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
