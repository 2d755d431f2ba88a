// Package http serves the AetherFlow JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"aetherflow/internal/challenges"
	"aetherflow/internal/core"
	"aetherflow/internal/log"
	"aetherflow/internal/middleware/ratelimit"
	"aetherflow/internal/middleware/security"
	"aetherflow/internal/middleware/trace"
	"aetherflow/internal/services"
	"aetherflow/internal/telemetry"
	"aetherflow/internal/widget"
)

// TransactionAPI is the transaction surface the handlers need.
type TransactionAPI interface {
	Submit(ctx context.Context, ownerID string, sub core.Submission) (core.Transaction, error)
	Delete(ctx context.Context, ownerID, id string) error
	List(ctx context.Context, ownerID string) ([]core.Transaction, error)
}

// MetricsAPI serves monthly summaries and the widget.
type MetricsAPI interface {
	Reload(ctx context.Context, ownerID string, force bool) (services.ReloadResult, error)
	Summaries(ctx context.Context, ownerID string) ([]core.MonthlySummary, error)
	Trend(ctx context.Context, ownerID string, n int) ([]core.MonthlySummary, error)
	Widget(ctx context.Context, ownerID string) (widget.Snapshot, error)
	ResetWidget(ctx context.Context, ownerID string) error
}

// DietAPI manages challenges.
type DietAPI interface {
	Catalog(category string) ([]core.Challenge, error)
	Start(ctx context.Context, ownerID, challenge string) (core.Diet, error)
	Complete(ctx context.Context, ownerID, dietID string) (core.Diet, error)
	List(ctx context.Context, ownerID string) ([]core.Diet, error)
	Counts(ctx context.Context, ownerID string) ([]challenges.ChallengeCount, error)
}

// Pinger reports whether a dependency is ready to serve.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the API. Metrics and Ready may be nil.
type Deps struct {
	Transactions TransactionAPI
	Metrics      MetricsAPI
	Diets        DietAPI
	Ready        Pinger
	Telemetry    *telemetry.Metrics
	Logger       *log.Logger
}

// Options tunes the middleware stack.
type Options struct {
	RequestsPerMinute int
	// TrustedProxies are extra CIDRs allowed to set forwarding headers.
	TrustedProxies []string
}

type Server struct {
	http.Server
	deps     Deps
	logger   *log.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	now      func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default(log.ComponentHTTP)
	}

	s := &Server{
		deps:     deps,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RequestsPerMinute}),
		detector: security.NewDetector(logger.WithComponent(log.ComponentSecurity)),
		now:      time.Now,
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, log.FieldError, err.Error())
		}
	}
	s.tracer = trace.NewMiddleware(s.detector.ClientIP, logger.WithComponent(log.ComponentTrace))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusNotFound, CodeNotFound, "no such endpoint")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", s.deps.Telemetry.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.deps.Telemetry.Middleware(routeName))
	api.Use(s.limiter.Middleware(s.detector.ClientIP, s.onRateLimited))

	api.HandleFunc("/challenges", s.handleChallenges).Methods(http.MethodGet)
	api.HandleFunc("/equivalents/classify", s.handleClassify).Methods(http.MethodGet)

	owner := api.PathPrefix("/owners/{owner}").Subrouter()
	owner.HandleFunc("/transactions", s.handleListTransactions).Methods(http.MethodGet)
	owner.HandleFunc("/transactions", s.handleCreateTransaction).Methods(http.MethodPost)
	owner.HandleFunc("/transactions/{id}", s.handleDeleteTransaction).Methods(http.MethodDelete)
	owner.HandleFunc("/metrics", s.handleSummaries).Methods(http.MethodGet)
	owner.HandleFunc("/metrics/trend", s.handleTrend).Methods(http.MethodGet)
	owner.HandleFunc("/metrics/reload", s.handleReload).Methods(http.MethodPost)
	owner.HandleFunc("/widget", s.handleWidget).Methods(http.MethodGet)
	owner.HandleFunc("/widget", s.handleResetWidget).Methods(http.MethodDelete)
	owner.HandleFunc("/diets", s.handleListDiets).Methods(http.MethodGet)
	owner.HandleFunc("/diets", s.handleStartDiet).Methods(http.MethodPost)
	owner.HandleFunc("/diets/counts", s.handleDietCounts).Methods(http.MethodGet)
	owner.HandleFunc("/diets/{id}/complete", s.handleCompleteDiet).Methods(http.MethodPost)

	var h http.Handler = r
	h = handlers.CompressHandler(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.detector.Middleware(h)
	h = s.tracer.Middleware(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
		handlers.PrintRecoveryStack(false),
	)(h)
	return h
}

// routeName labels metrics with the route template rather than the raw path.
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeError(w, r, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, try again later")
}

// Shutdown gracefully shuts down the server and the limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

type recoveryLogger struct{ logger *log.Logger }

func (l recoveryLogger) Println(v ...any) {
	l.logger.Error("Recovered from panic", "panic", v)
}
