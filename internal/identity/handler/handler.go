package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Resolver,HealthChecker

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mfrid/internal/identity"
	"mfrid/internal/platform/metrics"
	"mfrid/internal/platform/middleware"
	"mfrid/pkg/platform/httputil"
	"mfrid/pkg/platform/middleware/metadata"
	"mfrid/pkg/platform/middleware/requesttime"
)

// DefaultRequestTimeout covers two card tool invocations plus three
// directory attempts.
const DefaultRequestTimeout = 45 * time.Second

// Resolver runs one identity resolution.
type Resolver interface {
	Resolve(ctx context.Context) identity.Resolution
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler serves the identity endpoints consumed by the memorandum form.
type Handler struct {
	resolver  Resolver
	logger    *slog.Logger
	metrics   *metrics.Metrics
	rateLimit func(http.Handler) http.Handler
	checks    map[string]HealthChecker
	timeout   time.Duration
	proxies   metadata.TrustedProxies
}

type Option func(*Handler)

// WithRateLimit guards the card endpoints.
func WithRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.rateLimit = mw
	}
}

// WithReadinessCheck adds a named dependency to /api/ready.
func WithReadinessCheck(name string, c HealthChecker) Option {
	return func(h *Handler) {
		if c != nil {
			h.checks[name] = c
		}
	}
}

// WithTrustedProxies lets the listed peers supply the client address through
// forwarding headers.
func WithTrustedProxies(p metadata.TrustedProxies) Option {
	return func(h *Handler) {
		h.proxies = p
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// New creates a new identity Handler.
func New(resolver Resolver, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Handler {
	h := &Handler{
		resolver: resolver,
		logger:   logger,
		metrics:  m,
		checks:   make(map[string]HealthChecker),
		timeout:  DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the identity routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	apiRouter := chi.NewRouter()
	apiRouter.Use(middleware.Recovery(h.logger))
	apiRouter.Use(middleware.RequestID)
	apiRouter.Use(h.proxies.Middleware)
	apiRouter.Use(requesttime.Middleware)
	apiRouter.Use(middleware.Logger(h.logger))
	apiRouter.Use(middleware.Timeout(h.timeout))
	apiRouter.Use(middleware.ContentTypeJSON)
	apiRouter.Use(middleware.LatencyMiddleware(h.metrics))

	apiRouter.Get("/api/health", h.handleHealth)
	apiRouter.Get("/api/test", h.handleTest)
	apiRouter.Get("/api/ready", h.handleReady)
	apiRouter.Group(func(card chi.Router) {
		if h.rateLimit != nil {
			card.Use(h.rateLimit)
		}
		card.Get("/api/cac-data", h.handleCACData)
		card.Get("/api/cac-debug", h.handleCACDebug)
	})

	r.Mount("/", apiRouter)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "OK",
		"message": "MFR Backend running",
	})
}

func (h *Handler) handleTest(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Backend is working correctly",
	})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, c := range h.checks {
		if err := c.Health(ctx); err != nil {
			h.logger.WarnContext(ctx, "readiness check failed",
				"check", name,
				"error", err,
				"request_id", middleware.GetRequestID(ctx),
			)
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	httputil.WriteJSON(w, status, map[string]any{
		"ready":  status == http.StatusOK,
		"checks": results,
	})
}

func (h *Handler) handleCACData(w http.ResponseWriter, r *http.Request) {
	res := h.resolver.Resolve(r.Context())
	env := identity.NewEnvelope(res)
	if !env.Success {
		httputil.WriteJSON(w, http.StatusBadRequest, env)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, env)
}

// handleCACDebug always answers 200; the failure, if any, is in the body.
func (h *Handler) handleCACDebug(w http.ResponseWriter, r *http.Request) {
	res := h.resolver.Resolve(r.Context())
	httputil.WriteJSON(w, http.StatusOK, identity.NewDebugEnvelope(res))
}
