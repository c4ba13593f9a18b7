package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"mfrid/internal/platform/metrics"
	"mfrid/internal/ratelimit/models"
	"mfrid/pkg/platform/audit"
	"mfrid/pkg/platform/httputil"
	"mfrid/pkg/requestcontext"
)

// RateLimiter takes one token for key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (*models.RateLimitResult, error)
}

// AuditPublisher records rejected requests.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Middleware struct {
	limiter  RateLimiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	auditor  AuditPublisher
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

func WithAuditor(p AuditPublisher) Option {
	return func(m *Middleware) {
		m.auditor = p
	}
}

func New(limiter RateLimiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit limits by client address. It must run after the metadata middleware.
// A limiter error fails open.
func (m *Middleware) RateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)

			result, err := m.limiter.Allow(ctx, models.NewIPKey(ip))
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check rate limit", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)

			if !result.Allowed {
				m.metrics.IncrementRateLimited()
				m.logger.WarnContext(ctx, "rate limit exceeded",
					"path", r.URL.Path,
					"retry_after", result.RetryAfter,
					"request_id", requestcontext.RequestID(ctx),
				)
				m.emitAudit(ctx, r.URL.Path)
				writeRateLimitExceeded(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) emitAudit(ctx context.Context, path string) {
	if m.auditor == nil {
		return
	}
	err := m.auditor.Emit(ctx, audit.Event{
		Action:    audit.EventRateLimitExceeded,
		Timestamp: requestcontext.Now(ctx).UTC(),
		RequestID: requestcontext.RequestID(ctx),
		ClientIP:  requestcontext.ClientIP(ctx),
		Decision:  "denied",
		Reason:    path,
	})
	if err != nil {
		m.logger.WarnContext(ctx, "failed to emit audit event", "error", err)
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    "Too many card reads from this client. Please try again later.",
		RetryAfter: result.RetryAfter,
	})
}
