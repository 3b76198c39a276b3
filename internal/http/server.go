// Package http provides the JSON API of the finance tracker.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
)

// timeNow is swapped in tests that pin the derived transaction status.
var timeNow = time.Now

const (
	overviewCacheSize = 500
	calendarCacheSize = 500
	cacheTTL          = time.Minute
)

// Server wires the mux, middleware and caches around the ledger and
// dashboard services.
type Server struct {
	http.Server

	ledger     *services.LedgerService
	users      services.UserStore
	reader     services.TransactionReader
	dashboards *services.DashboardService

	limiter  *ratelimit.Limiter
	resolver *security.Resolver

	overviewCache *cache.LRUCache[services.Overview]
	calendarCache *cache.LRUCache[[]core.DayActivity]
	cacheManager  *cache.Manager

	shutdownOnce sync.Once
}

// Dependencies collects everything the server serves from.
type Dependencies struct {
	Ledger     *services.LedgerService
	Users      services.UserStore
	Reader     services.TransactionReader
	Dashboards *services.DashboardService
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, logger *log.Logger, deps Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		ledger:     deps.Ledger,
		users:      deps.Users,
		reader:     deps.Reader,
		dashboards: deps.Dashboards,

		limiter:  ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		resolver: security.NewResolver(),

		overviewCache: cache.NewLRUCache[services.Overview](overviewCacheSize, cacheTTL),
		calendarCache: cache.NewLRUCache[[]core.DayActivity](calendarCacheSize, cacheTTL),
		cacheManager:  cache.NewManager(),
	}

	s.cacheManager.Register(s.overviewCache)
	s.cacheManager.Register(s.calendarCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /users", s.handleCreateUser)
	mux.HandleFunc("GET /users/{id}", s.handleGetUser)

	mux.HandleFunc("POST /users/{id}/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /users/{id}/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /users/{id}/transactions/{txID}", s.handleGetTransaction)
	mux.HandleFunc("PUT /users/{id}/transactions/{txID}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /users/{id}/transactions/{txID}", s.handleDeleteTransaction)
	mux.HandleFunc("POST /users/{id}/transactions/{txID}/complete", s.handleCompleteTransaction)
	mux.HandleFunc("POST /users/{id}/balance/recompute", s.handleRecomputeBalance)

	mux.HandleFunc("GET /users/{id}/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /users/{id}/calendar", s.handleCalendar)

	traceMw := trace.NewMiddleware(s.resolver.ExtractClientIP)
	headersMw := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	var handler http.Handler = mux
	handler = s.rateLimitMutations(handler)
	handler = headersMw.Middleware(handler)
	handler = log.RequestIDMiddleware(trace.RequestIDFromRequest)(handler)
	handler = traceMw.Middleware(handler)
	if logger != nil {
		handler = log.Middleware(logger)(handler)
	}

	s.Server = http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// rateLimitMutations applies the limiter to write requests only; reads are
// served from caches and stay cheap.
func (s *Server) rateLimitMutations(next http.Handler) http.Handler {
	limited := s.limiter.Middleware(s.resolver.ExtractClientIP, nil)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete:
			limited.ServeHTTP(w, r)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) userCachePrefix(userID int64) string {
	return fmt.Sprintf("user:%d:", userID)
}

// invalidateUser drops every cached aggregate for one user. Called after
// each write so dashboards never serve stale balances beyond the TTL.
func (s *Server) invalidateUser(userID int64) {
	prefix := s.userCachePrefix(userID)
	s.overviewCache.DeletePrefix(prefix)
	s.calendarCache.DeletePrefix(prefix)
}
