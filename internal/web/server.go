// Package web serves the read-only status dashboard and JSON API.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chirag127/chirag127.github.io-sub000/internal/db"
	"github.com/chirag127/chirag127.github.io-sub000/internal/dispatch"
	"github.com/chirag127/chirag127.github.io-sub000/internal/orchestrator"
	"github.com/chirag127/chirag127.github.io-sub000/internal/quota"
)

//go:embed templates
var templateFS embed.FS

var funcMap = template.FuncMap{
	"badgeClass": func(state orchestrator.State) string {
		return "badge badge-" + strings.ToLower(string(state))
	},
	"relTime":     relTime,
	"fmtDuration": fmtDuration,
}

// Sessions is the live orchestrator view.
type Sessions interface {
	Sessions() []orchestrator.Session
	Session(id string) (orchestrator.Session, bool)
	Stats() orchestrator.Stats
	Queue() []orchestrator.WorkItem
}

// QuotaSource reports the daily budget.
type QuotaSource interface {
	Status() quota.Status
}

// ChainSource reports model availability and cooldowns.
type ChainSource interface {
	Status() dispatch.Status
}

// History is the persisted event log and work queue.
type History interface {
	SessionHistory(sessionID string) ([]db.SessionEvent, error)
	RecentSessionEvents(limit int) ([]db.SessionEvent, error)
	QueueList() ([]db.QueueItem, error)
}

// Options wires the server's data sources. Any of them may be nil; the
// matching endpoints then answer 503.
type Options struct {
	Sessions       Sessions
	Quota          QuotaSource
	Chain          ChainSource
	History        History
	Logger         *zerolog.Logger
	StreamInterval time.Duration
}

// Server is the read-only web UI server.
type Server struct {
	sessions Sessions
	quota    QuotaSource
	chain    ChainSource
	history  History
	interval time.Duration
	log      zerolog.Logger

	router        chi.Router
	dashboardTmpl *template.Template
}

// NewServer creates a Server with parsed templates and routes.
func NewServer(opts Options) *Server {
	s := &Server{
		sessions:      opts.Sessions,
		quota:         opts.Quota,
		chain:         opts.Chain,
		history:       opts.History,
		interval:      opts.StreamInterval,
		dashboardTmpl: mustParseTmpl("dashboard.html"),
	}
	if s.interval <= 0 {
		s.interval = 2 * time.Second
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	s.log = logger.With().Str("component", "web").Logger()
	s.setupRoutes()
	return s
}

func mustParseTmpl(names ...string) *template.Template {
	patterns := make([]string, len(names))
	for i, n := range names {
		patterns[i] = "templates/" + n
	}
	return template.Must(template.New("").Funcs(funcMap).ParseFS(templateFS, patterns...))
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/", s.handleDashboard)
	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions", s.handleSessions)
		r.Get("/sessions/{id}", s.handleSession)
		r.Get("/stats", s.handleStats)
		r.Get("/quota", s.handleQuota)
		r.Get("/models", s.handleModels)
		r.Get("/queue", s.handleQueue)
		r.Get("/events", s.handleEvents)
		r.Get("/stream", s.handleStream)
	})
	s.router = r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.log.Info().Str("addr", "http://"+ln.Addr().String()).Msg("status server listening")
	return s.serve(ctx, ln)
}

// serve runs on ln until ctx is cancelled. Request contexts derive from ctx,
// so open event streams end as soon as shutdown begins.
func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", ln.Addr(), err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		<-errc
		return nil
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
