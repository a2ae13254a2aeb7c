package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"tally/internal/cache"
	"tally/internal/core"
	"tally/internal/services"
	"tally/internal/storage"
	appweb "tally/web"
)

type Server struct {
	http.Server
	svc         *services.LedgerService
	repo        *storage.Repository
	templates   *template.Template
	rateLimiter *rateLimiter

	// Rendered-data cache for the dashboard, keyed per user and month.
	// Mutations invalidate the affected keys; entries also age out by TTL.
	overviewCache *cache.LRU[core.MonthOverview]

	sessionTTL   time.Duration
	secureCookie bool

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

type Options struct {
	SessionTTL   time.Duration
	SecureCookie bool
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(addr string, svc *services.LedgerService, opts Options) *Server {
	mux := http.NewServeMux()

	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * 24 * time.Hour
	}

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		svc:              svc,
		repo:             svc.Repo(),
		rateLimiter:      newRateLimiter(),
		overviewCache:    cache.New[core.MonthOverview](200, 5*time.Minute),
		sessionTTL:       opts.SessionTTL,
		secureCookie:     opts.SecureCookie,
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	t, err := template.New("").Funcs(template.FuncMap{
		"money": core.FormatCents,
	}).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("failed parsing templates", "error", err)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		slog.Warn("failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /login", s.withSecurity(s.handleLoginPage))
	mux.HandleFunc("POST /login", s.withSecurity(s.handleLogin))
	mux.HandleFunc("POST /logout", s.withSecurity(s.handleLogout))

	protected := func(h http.HandlerFunc) http.HandlerFunc {
		return s.withSecurity(s.requireUser(h))
	}

	mux.HandleFunc("GET /{$}", protected(s.handleDashboard))
	mux.HandleFunc("GET /ui/month-overview", protected(s.handleMonthOverviewPartial))

	mux.HandleFunc("GET /expenses", protected(s.handleListExpenses))
	mux.HandleFunc("POST /expenses", protected(s.handleCreateExpense))
	mux.HandleFunc("POST /expenses/bulk-delete", protected(s.handleBulkDeleteExpenses))
	mux.HandleFunc("POST /expenses/{id}", protected(s.handleUpdateExpense))
	mux.HandleFunc("POST /expenses/{id}/delete", protected(s.handleDeleteExpense))

	mux.HandleFunc("GET /categories", protected(s.handleListCategories))
	mux.HandleFunc("POST /categories", protected(s.handleCreateCategory))
	mux.HandleFunc("POST /categories/{id}", protected(s.handleUpdateCategory))
	mux.HandleFunc("POST /categories/{id}/delete", protected(s.handleDeleteCategory))

	mux.HandleFunc("POST /budget", protected(s.handleSetBudget))
	mux.HandleFunc("POST /budget/delete", protected(s.handleDeleteBudget))

	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.repo.UserCount(r.Context()); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if cleaned := s.overviewCache.CleanExpired(); cleaned > 0 {
				slog.Debug("cache cleanup completed", "entries_removed", cleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown stops the cleanup goroutines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		close(s.stopCacheCleanup)
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func overviewKey(userID int64, month core.MonthKey) string {
	return strconv.FormatInt(userID, 10) + ":" + month.String()
}

// getOverview returns the user's month overview, cached.
func (s *Server) getOverview(ctx context.Context, userID int64, month core.MonthKey) (core.MonthOverview, error) {
	key := overviewKey(userID, month)
	if ov, found := s.overviewCache.Get(key); found {
		slog.DebugContext(ctx, "overview cache hit", "user_id", userID, "month", month.String())
		return ov, nil
	}

	cctx, cancel := context.WithTimeout(ctx, 7*time.Second)
	defer cancel()
	ov, err := s.svc.MonthOverview(cctx, userID, month)
	if err != nil {
		return core.MonthOverview{}, fmt.Errorf("month overview %s: %w", month, err)
	}

	s.overviewCache.Set(key, ov)
	return ov, nil
}

// invalidateOverview drops the cached overview for one user-month so the next
// render sees fresh data.
func (s *Server) invalidateOverview(userID int64, month core.MonthKey) {
	s.overviewCache.Delete(overviewKey(userID, month))
}
