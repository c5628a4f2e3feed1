// Package http serves the web UI: an HTMX front end with server-rendered
// partials for the month overview and the todo list.
package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tally/internal/cache"
	"tally/internal/core"
	"tally/internal/currency"
	"tally/internal/store"
	appweb "tally/web"
)

const datasetCacheKey = "dataset"

// Options configures the UI server.
type Options struct {
	Addr         string
	AppTitle     string
	BaseCurrency string
	Store        store.Store
	Converter    *currency.Converter
}

type Server struct {
	http.Server
	templates *template.Template
	store     store.Store
	converter *currency.Converter

	appTitle     string
	baseCurrency string

	rateLimiter *rateLimiter
	metrics     *securityMetrics

	// The whole dataset is cached under one key; every mutation purges it.
	dataCache    *cache.LRUCache[core.Dataset]
	cacheManager *cache.Manager
	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(opts Options) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    opts.Addr,
			Handler: mux,
		},
		store:        opts.Store,
		converter:    opts.Converter,
		appTitle:     opts.AppTitle,
		baseCurrency: opts.BaseCurrency,
		rateLimiter:  newRateLimiter(),
		metrics:      &securityMetrics{},
		dataCache:    cache.NewLRUCache[core.Dataset](1, 30*time.Second),
		cacheManager: cache.NewManager(),
	}

	s.cacheManager.Register(s.dataCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	// Parse embedded templates at startup.
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("failed parsing templates", "error", err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		slog.Warn("failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("/", s.withSecurityHeaders(s.handleIndex))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	mux.HandleFunc("/transactions", s.withSecurityHeaders(s.handleCreateTransaction))
	mux.HandleFunc("/transactions/delete", s.withSecurityHeaders(s.handleDeleteTransaction))

	mux.HandleFunc("/categories", s.withSecurityHeaders(s.handleSaveCategories))

	mux.HandleFunc("/todos", s.withSecurityHeaders(s.handleCreateTodo))
	mux.HandleFunc("/todos/toggle", s.withSecurityHeaders(s.handleToggleTodo))
	mux.HandleFunc("/todos/delete", s.withSecurityHeaders(s.handleDeleteTodo))
	mux.HandleFunc("/todos/due", s.withSecurityHeaders(s.handleTodoDue))
	mux.HandleFunc("/todos/move", s.withSecurityHeaders(s.handleMoveTodo))
	mux.HandleFunc("/todos/reorder", s.withSecurityHeaders(s.handleReorderTodos))

	// UI partials
	mux.HandleFunc("/ui/month-overview", s.withSecurityHeaders(s.handleMonthOverview))
	mux.HandleFunc("/ui/todos", s.withSecurityHeaders(s.handleTodoList))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting, and request
// logging to responses.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		// Rate limit mutations only; partial refreshes stay cheap.
		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP, s.metrics) {
			slog.WarnContext(ctx, "rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' https://unpkg.com 'unsafe-eval'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
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
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "templates not loaded", "url", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	// The page renders even when the store is unreachable; the category
	// picker falls back to the defaults and partials report their own errors.
	categories := core.DefaultCategories()
	if ds, err := s.getDataset(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "dataset fetch failed for index", "error", err)
	} else if len(ds.Categories) > 0 {
		categories = ds.Categories
	}

	now := time.Now()
	data := struct {
		Title      string
		Today      string
		Year       int
		Month      int
		Currency   string
		Currencies []string
		Categories []core.Category
	}{
		Title:      s.appTitle,
		Today:      now.Format(core.DateLayout),
		Year:       now.Year(),
		Month:      int(now.Month()),
		Currency:   s.baseCurrency,
		Currencies: currencyChoices(s.baseCurrency),
		Categories: categories,
	}

	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		slog.ErrorContext(r.Context(), "index template execution failed", "error", err, "template", "index.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// getDataset returns the dataset, consulting the cache first.
func (s *Server) getDataset(ctx context.Context) (core.Dataset, error) {
	if ds, found := s.dataCache.Get(datasetCacheKey); found {
		slog.DebugContext(ctx, "dataset cache hit")
		return ds, nil
	}

	// Small timeout so partials never hang on a slow endpoint.
	cctx, cancel := context.WithTimeout(ctx, 7*time.Second)
	defer cancel()
	ds, err := s.store.Fetch(cctx)
	if err != nil {
		return core.Dataset{}, fmt.Errorf("fetch dataset: %w", err)
	}

	s.dataCache.Set(datasetCacheKey, ds)
	slog.DebugContext(ctx, "dataset cached",
		"transactions", len(ds.Transactions),
		"todos", len(ds.Todos))
	return ds, nil
}

// invalidateData purges the dataset cache after a mutation so the next
// partial refresh sees the new state.
func (s *Server) invalidateData() {
	s.dataCache.Purge()
}
