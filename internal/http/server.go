package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"kharcha/internal/auth"
	"kharcha/internal/insight"
	"kharcha/internal/log"
	"kharcha/internal/services"
	appweb "kharcha/web"
)

const (
	sessionCookieName = "kharcha_session"

	// Write endpoints share a per-IP budget of 60 requests per minute.
	writeRateLimit = 60
)

type Server struct {
	http.Server
	logger       *slog.Logger
	templates    *template.Template
	auth         *auth.Service
	expenses     *services.ExpenseService
	insights     *insight.Service
	secureCookie bool

	rateLimiter *rateLimiter
	metrics     securityMetrics

	// Rendered dashboard partials keyed by user, path and query. Any expense
	// write purges the whole cache since every aggregate view is affected.
	partialCache *lruCache[[]byte]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, authSvc *auth.Service, expSvc *services.ExpenseService, insightSvc *insight.Service, secureCookie bool, logger *slog.Logger) (*Server, error) {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger:           logger,
		auth:             authSvc,
		expenses:         expSvc,
		insights:         insightSvc,
		secureCookie:     secureCookie,
		rateLimiter:      newRateLimiter(writeRateLimit),
		partialCache:     newLRUCache[[]byte](200, 5*time.Minute),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	sub, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static fs: %w", err)
	}
	static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
	mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
		static.ServeHTTP(w, r)
	}))

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	mux.HandleFunc("/login", s.trace(s.handleLogin))
	mux.HandleFunc("/logout", s.trace(s.withUser(s.handleLogout)))
	mux.HandleFunc("/password", s.trace(s.requireUser(s.handleChangePassword)))

	mux.HandleFunc("/", s.trace(s.requireUser(s.handleDashboard)))
	mux.HandleFunc("/expenses", s.trace(s.requireUser(s.handleExpenses)))
	mux.HandleFunc("/expenses/update", s.trace(s.requireUser(s.handleUpdateExpense)))
	mux.HandleFunc("/expenses/delete", s.trace(s.requireUser(s.handleDeleteExpense)))

	// Dashboard partials
	mux.HandleFunc("/ui/summary", s.trace(s.requireUser(s.handleSummaryPartial)))
	mux.HandleFunc("/ui/breakdown", s.trace(s.requireUser(s.handleBreakdownPartial)))
	mux.HandleFunc("/ui/daily", s.trace(s.requireUser(s.handleDailyPartial)))
	mux.HandleFunc("/ui/monthly", s.trace(s.requireUser(s.handleMonthlyPartial)))
	mux.HandleFunc("/ui/comparison", s.trace(s.requireUser(s.handleComparisonPartial)))

	mux.HandleFunc("/insights", s.trace(s.requireUser(s.handleInsights)))

	mux.HandleFunc("/users", s.trace(s.requireAdmin(s.handleUsers)))
	mux.HandleFunc("/users/update", s.trace(s.requireAdmin(s.handleUpdateUser)))
	mux.HandleFunc("/users/delete", s.trace(s.requireAdmin(s.handleDeleteUser)))

	mux.HandleFunc("/export/csv", s.trace(s.requireUser(s.handleExportCSV)))
	mux.HandleFunc("/export/xlsx", s.trace(s.requireUser(s.handleExportXLSX)))
	mux.HandleFunc("/import/csv", s.trace(s.requireUser(s.handleImportCSV)))

	return s, nil
}

// startCacheCleanup periodically drops expired partials.
func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if cleaned := s.partialCache.CleanExpired(); cleaned > 0 {
				s.logger.Debug("Cache cleanup completed", "entries_removed", cleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		close(s.stopCacheCleanup)
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		http.Error(w, "templates not loaded", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, err := s.expenses.ListAll(ctx, nil); err != nil {
		s.logger.ErrorContext(ctx, "Readiness storage check failed",
			log.FieldError, err,
			log.FieldComponent, log.ComponentHTTP)
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}

	s.logger.DebugContext(ctx, "Readiness check passed",
		"cache_entries", s.partialCache.Size(),
		"rate_limit_clients", s.rateLimiter.activeClients(),
		"rate_limit_hits", atomic.LoadInt64(&s.metrics.rateLimitHits))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
