package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"zenith-tasker/internal/auth"
	"zenith-tasker/internal/logging"
	"zenith-tasker/pkg/page"
	"zenith-tasker/pkg/task"
	"zenith-tasker/pkg/user"
)

// Clock reports the database time. *db.DB satisfies it.
type Clock interface {
	Now(ctx context.Context) (string, error)
}

// Options toggles the optional middleware.
type Options struct {
	Metrics        bool
	RateLimit      bool
	RPS            float64
	Burst          int
	AllowedOrigins []string
}

// Deps are the collaborators a Server routes to.
type Deps struct {
	Tasks *task.Service
	Pages page.Store
	Users user.Store
	Auth  *auth.Authenticator
	DB    Clock
	Log   *zap.Logger
}

// Server is the HTTP API server.
type Server struct {
	tasks *task.Service
	pages page.Store
	users user.Store
	auth  *auth.Authenticator
	db    Clock
	log   *zap.Logger

	registry *prometheus.Registry
	metrics  *metrics
	limiter  *ipLimiter
	origins  map[string]bool

	mux     *http.ServeMux
	handler http.Handler
}

// New creates a Server.
func New(d Deps, opts Options) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	s := &Server{
		tasks: d.Tasks,
		pages: d.Pages,
		users: d.Users,
		auth:  d.Auth,
		db:    d.DB,
		log:   d.Log,
		mux:   http.NewServeMux(),
	}
	if opts.Metrics {
		s.registry = prometheus.NewRegistry()
		s.metrics = newMetrics(s.registry)
	}
	if opts.RateLimit {
		s.limiter = newIPLimiter(opts.RPS, opts.Burst)
	}
	if len(opts.AllowedOrigins) > 0 {
		s.origins = make(map[string]bool, len(opts.AllowedOrigins))
		for _, o := range opts.AllowedOrigins {
			s.origins[o] = true
		}
	}

	s.routes()
	s.handler = s.requestID(s.observe(s.recoverer(s.rateLimit(s.cors(s.mux)))))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	// Tasks
	s.mux.HandleFunc("GET /tasks", s.authed(s.handleTaskList))
	s.mux.HandleFunc("POST /tasks", s.authed(s.handleTaskCreate))
	s.mux.HandleFunc("PUT /tasks/batch/reorder", s.authed(s.handleTaskReorder))
	s.mux.HandleFunc("GET /tasks/{id}", s.authed(s.handleTaskGet))
	s.mux.HandleFunc("PUT /tasks/{id}", s.authed(s.handleTaskUpdate))
	s.mux.HandleFunc("DELETE /tasks/{id}", s.authed(s.handleTaskDelete))
	// /tasks/page/{pageId} and /tasks/{taskId}/subtasks overlap as mux
	// patterns, so one route serves both.
	s.mux.HandleFunc("GET /tasks/{first}/{second}", s.authed(s.handleTaskCollection))

	// Subtasks
	s.mux.HandleFunc("POST /tasks/{taskId}/subtasks", s.authed(s.handleSubtaskCreate))
	s.mux.HandleFunc("PUT /tasks/{taskId}/subtasks/{subtaskId}", s.authed(s.handleSubtaskUpdate))
	s.mux.HandleFunc("PATCH /tasks/{taskId}/subtasks/{subtaskId}/toggle", s.authed(s.handleSubtaskToggle))
	s.mux.HandleFunc("DELETE /tasks/{taskId}/subtasks/{subtaskId}", s.authed(s.handleSubtaskDelete))

	// Pages
	s.mux.HandleFunc("GET /pages", s.authed(s.handlePageList))
	s.mux.HandleFunc("POST /pages", s.authed(s.handlePageCreate))
	s.mux.HandleFunc("PUT /pages/reorder", s.authed(s.handlePageReorder))
	s.mux.HandleFunc("GET /pages/{id}", s.authed(s.handlePageGet))
	s.mux.HandleFunc("PUT /pages/{id}", s.authed(s.handlePageUpdate))
	s.mux.HandleFunc("PATCH /pages/{id}/favorite", s.authed(s.handlePageFavorite))
	s.mux.HandleFunc("DELETE /pages/{id}", s.authed(s.handlePageDelete))

	// Admin
	s.mux.HandleFunc("GET /admin/users", s.admin(s.handleAdminUsers))
	s.mux.HandleFunc("GET /admin/users/{id}", s.admin(s.handleAdminUserGet))
	s.mux.HandleFunc("POST /admin/users/{id}/allow-reset", s.admin(s.handleAllowReset))
	s.mux.HandleFunc("DELETE /admin/users/{id}/allow-reset", s.admin(s.handleRevokeReset))

	// System
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /{$}", s.handleBanner)
	if s.registry != nil {
		s.mux.Handle("GET /metrics", s.metricsHandler())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("write json", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeMessage(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// fail maps a domain error to a response. what names the missing resource
// for 404s. Anything unrecognized is logged and answered with a generic 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, task.ErrNotFound), errors.Is(err, page.ErrNotFound), errors.Is(err, user.ErrNotFound):
		s.writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, task.ErrIncompleteSubtasks):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, task.ErrValidation), errors.Is(err, page.ErrValidation), errors.Is(err, user.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, user.ErrUsernameTaken):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		fields := append(logging.ContextFields(r.Context()),
			zap.String("route", r.Pattern), zap.Error(err))
		s.log.Error("request failed", fields...)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

// decode reads a JSON body of at most maxBodyBytes into v. An empty body
// leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// pathID parses a positive integer path parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
