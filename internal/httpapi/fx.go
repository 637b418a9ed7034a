package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/orgball2608/content-publisher/pkg/config"
	"github.com/orgball2608/content-publisher/pkg/logger"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewServer),
	fx.Invoke(RegisterLifecycle),
)

// RegisterLifecycle serves the router on APP_PORT between fx start and stop.
func RegisterLifecycle(lc fx.Lifecycle, s *Server, cfg *config.Config, log logger.Logger) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		// a manual run may take as long as a scheduled one
		WriteTimeout: cfg.Publisher.RunTimeout + 30*time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
			}

			log.Info("Starting HTTP server", "addr", srv.Addr)
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("HTTP server stopped unexpectedly", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Stopping HTTP server")
			return srv.Shutdown(ctx)
		},
	})
}
