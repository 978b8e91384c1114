package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	validator "gopkg.in/go-playground/validator.v9"

	"github.com/JakeFAU/assignment-webapp/internal/auth"
	"github.com/JakeFAU/assignment-webapp/internal/domain"
	"github.com/JakeFAU/assignment-webapp/internal/metrics"
)

// AssignmentService is the assignment CRUD surface used by the handlers.
type AssignmentService interface {
	List(ctx context.Context) ([]domain.Assignment, error)
	Get(ctx context.Context, rawID string) (domain.Assignment, error)
	Create(ctx context.Context, caller auth.Principal, in domain.AssignmentInput) (domain.Assignment, error)
	Update(ctx context.Context, caller auth.Principal, rawID string, in domain.AssignmentInput) error
	Delete(ctx context.Context, caller auth.Principal, rawID string) error
}

// SubmissionService accepts and lists submission attempts.
type SubmissionService interface {
	Submit(ctx context.Context, rawAssignmentID string, caller auth.Principal, submissionURL string) (domain.Submission, error)
	List(ctx context.Context, rawAssignmentID string, caller auth.Principal) ([]domain.Submission, error)
}

// Authenticator resolves Basic credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (auth.Principal, error)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps bundles the collaborators the server routes to.
type Deps struct {
	Assignments   AssignmentService
	Submissions   SubmissionService
	Authenticator Authenticator
	Database      Pinger
}

// Options tune server behavior.
type Options struct {
	Realm          string
	RequestTimeout time.Duration
	PingTimeout    time.Duration
}

// Server wires HTTP handlers to the services.
type Server struct {
	router   chi.Router
	deps     Deps
	opts     Options
	validate *validator.Validate
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Realm == "" {
		opts.Realm = "webapp"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 2 * time.Second
	}
	s := &Server{
		deps:     deps,
		opts:     opts,
		validate: validator.New(),
		logger:   logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(headersMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(opts.RequestTimeout))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", s.healthz)
	r.Head("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(basicAuthMiddleware(deps.Authenticator, opts.Realm, s.logger))
		r.Route("/assignments", func(r chi.Router) {
			r.Get("/", s.listAssignments)
			r.Post("/", s.createAssignment)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getAssignment)
				r.Put("/", s.updateAssignment)
				r.Delete("/", s.deleteAssignment)
				r.Get("/submission", s.listSubmissions)
				r.Post("/submission", s.submit)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// healthz answers 200 when the database responds. Probes must not carry a
// query string or body.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if r.URL.RawQuery != "" || hasBody(r) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.PingTimeout)
	defer cancel()
	if err := s.deps.Database.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
