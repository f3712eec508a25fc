package server

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"chipvault/internal/observability"
	"chipvault/internal/query"
	"chipvault/internal/vault"
)

// Server exposes the vault over HTTP/JSON. Commands (deposits,
// withdrawals, settlements, authorization changes) go to the vault;
// history and integrity queries read the Postgres projections. Point
// queries (balance, owner, server status, totals) are served from the
// vault's in-memory state for strong consistency.
type Server struct {
	vault   *vault.Vault
	queries *query.QueryService
	health  *observability.HealthChecker
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func New(v *vault.Vault, db *sql.DB, health *observability.HealthChecker, metrics *observability.Metrics, logger zerolog.Logger) *Server {
	return &Server{
		vault:   v,
		queries: query.NewQueryService(db),
		health:  health,
		metrics: metrics,
		logger:  logger,
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.observeDuration)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/v1", func(api chi.Router) {
		api.Post("/deposit", s.handleDeposit)
		api.Post("/withdraw", s.handleWithdraw)

		api.Post("/settlement/credit", s.handleCredit)
		api.Post("/settlement/debit", s.handleDebit)

		api.Post("/admin/servers", s.handleAuthorizeServer)
		api.Delete("/admin/servers/{address}", s.handleRevokeServer)
		api.Post("/admin/transfer-ownership", s.handleTransferOwnership)

		api.Get("/balances/{address}", s.handleGetBalance)
		api.Get("/servers", s.handleListServers)
		api.Get("/servers/{address}", s.handleGetServerStatus)
		api.Get("/owner", s.handleGetOwner)
		api.Get("/vault", s.handleGetVault)
		api.Get("/events", s.handleGetEvents)
		api.Get("/journal/{address}", s.handleGetJournal)
		api.Get("/integrity", s.handleVerifyIntegrity)
	})

	return r
}

// observeDuration records request latency per route pattern.
func (s *Server) observeDuration(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		next.ServeHTTP(w, r)
		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = r.URL.Path
		}
		s.metrics.QueryDuration.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
	})
}
