package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/orgball2608/content-publisher/internal/domain"
	"github.com/orgball2608/content-publisher/pkg/config"
	"github.com/orgball2608/content-publisher/pkg/logger"
	"go.uber.org/fx"
)

// Runner performs one reconciliation and reports on it.
type Runner interface {
	Run(ctx context.Context) domain.Report
}

// Pinger checks that the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Opts struct {
	fx.In

	Runner Runner
	DB     Pinger
	Config *config.Config
	Logger logger.Logger
}

type Server struct {
	runner     Runner
	db         Pinger
	cronSecret string
	runTimeout time.Duration
	logger     logger.Logger
}

func NewServer(opts Opts) *Server {
	return &Server{
		runner:     opts.Runner,
		db:         opts.DB,
		cronSecret: opts.Config.Cron.Secret,
		runTimeout: opts.Config.Publisher.RunTimeout,
		logger:     opts.Logger.WithComponent("HTTP"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(s.logger), middleware.Recoverer)

	s.mountHealth(r)
	s.mountMetrics(r)

	r.Group(func(r chi.Router) {
		r.Use(instrument)
		r.Get("/api/content/publish-scheduled", s.publishScheduled)
		r.With(s.requireCronSecret).Get("/api/cron/publish-content", s.publishScheduled)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) publishScheduled(w http.ResponseWriter, r *http.Request) {
	// a client hanging up must not abort deliveries in flight
	ctx := context.WithoutCancel(r.Context())
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	report := s.runner.Run(ctx)

	status := http.StatusOK
	if !report.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, report)
}

// requireCronSecret enforces "Authorization: Bearer <CRON_SECRET>" when a
// secret is configured.
func (s *Server) requireCronSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cronSecret == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cronSecret)) != 1 {
			s.logger.Warn("Rejected cron trigger", "remote_addr", r.RemoteAddr, "request_id", middleware.GetReqID(r.Context()))
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Unauthorized"})
			return
		}

		next.ServeHTTP(w, r)
	})
}
