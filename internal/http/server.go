package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"operadoras/internal/core"
	applog "operadoras/internal/log"
	"operadoras/internal/middleware/metrics"
	"operadoras/internal/middleware/ratelimit"
	"operadoras/internal/middleware/security"
	"operadoras/internal/middleware/trace"
	"operadoras/internal/query"
)

// DataService is what the API serves. *service.Service implements it.
type DataService interface {
	ListCompanies(ctx context.Context, p query.Params) (core.CompanyPage, error)
	GetCompany(ctx context.Context, id string) (core.Company, error)
	GetCompanyByTaxID(ctx context.Context, cnpj string) (core.Company, error)
	ListExpenses(ctx context.Context, companyID string) ([]core.Expense, error)
	ListAggregates(ctx context.Context) ([]core.AggregatedRecord, error)
	Ping(ctx context.Context) error
}

// Options configures NewServer. Zero values fall back to defaults.
type Options struct {
	Addr            string
	RequestTimeout  time.Duration
	RateLimitPerMin int
	MaxPageSize     int
	Logger          *applog.Logger
	Metrics         *metrics.Metrics
}

const defaultRequestTimeout = 7 * time.Second

type Server struct {
	http.Server
	svc         DataService
	logger      *applog.Logger
	metrics     *metrics.Metrics
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	timeout     time.Duration
	maxPageSize int

	shutdownOnce sync.Once
}

// NewServer configures the API routes and middleware, returning a ready-to-run http.Server.
func NewServer(svc DataService, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = query.DefaultMaxPageSize
	}

	s := &Server{
		svc:         svc,
		logger:      opts.Logger.WithComponent(applog.ComponentHTTP),
		metrics:     opts.Metrics,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMin}),
		detector:    security.NewDetector(),
		timeout:     opts.RequestTimeout,
		maxPageSize: opts.MaxPageSize,
	}

	mux := http.NewServeMux()
	s.handle(mux, "GET /api/operadoras", s.handleListCompanies)
	s.handle(mux, "GET /api/operadoras/{id}", s.handleGetCompany)
	// cnpj/{cnpj} and {id}/despesas overlap without either being more
	// specific, so two-segment paths share one dispatcher.
	s.handle(mux, "GET /api/operadoras/{first}/{second}", s.handleCompanySubresource)
	s.handle(mux, "GET /api/estatisticas", s.handleListAggregates)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(opts.Logger, s.detector.ExtractClientIP)
	limit := s.rateLimiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)

	var handler http.Handler = mux
	handler = s.withTimeout(handler)
	handler = s.withSuspiciousLogging(handler)
	handler = limit(handler)
	handler = tracer.Middleware(handler)
	handler = headers.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.metrics.Instrument(pattern, h))
}

// withTimeout bounds every request by the configured timeout. Handlers see the
// deadline through the request context and report it as a Timeout error.
func (s *Server) withTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) withSuspiciousLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				applog.FieldPath, r.URL.Path,
				applog.FieldUserAgent, r.UserAgent(),
				applog.FieldClientIP, s.detector.ExtractClientIP(r))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.metrics.RateLimited.Inc()
	NewJSONResponse().
		Status(http.StatusTooManyRequests).
		Body(errorBody{Detail: "rate limit exceeded, try again later", Kind: "rate_limited"}).
		Write(w)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
