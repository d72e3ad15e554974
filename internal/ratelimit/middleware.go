package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/circuit"
	"civicdesk/pkg/platform/httputil"
	request "civicdesk/pkg/platform/middleware/request"
	"civicdesk/pkg/requestcontext"
)

// Class groups endpoints that share a budget.
type Class string

const (
	ClassRead  Class = "read"
	ClassWrite Class = "write"
)

func classOf(r *http.Request) Class {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ClassRead
	default:
		return ClassWrite
	}
}

type Metrics struct {
	Rejected *prometheus.CounterVec
	Degraded prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		Rejected: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_rejected_total",
			Help: "Requests rejected by the API rate limiter",
		}, []string{"class"}),
		Degraded: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "ratelimit_degraded",
			Help: "1 while the shared limiter store is failing and limits are process-local",
		}),
	}
}

// Middleware enforces per-caller limits. When the primary store keeps failing
// the breaker opens and a process-local store takes over until it recovers.
type Middleware struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	limits   map[Class]Limit
	logger   *slog.Logger
	metrics  *Metrics
	disabled bool
}

type Option func(*Middleware)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		m.logger = logger
	}
}

func WithMetrics(mt *Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

// WithDisabled turns the limiter into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(m *Middleware) {
		if b != nil {
			m.breaker = b
		}
	}
}

func New(primary Store, read, write Limit, opts ...Option) *Middleware {
	m := &Middleware{
		primary:  primary,
		fallback: NewInMemoryStore(),
		breaker:  circuit.New("ratelimit"),
		limits:   map[Class]Limit{ClassRead: read, ClassWrite: write},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		m.logger.Info("rate limiting disabled")
	}
	return m
}

// Handler limits each caller by principal ID when authenticated, otherwise
// by client IP. Mount it after the principal middleware.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		class := classOf(r)
		limit := m.limits[class]
		key := string(class) + ":ip:" + requestcontext.ClientIP(ctx)
		if p, ok := requestcontext.Principal(ctx); ok {
			key = string(class) + ":user:" + p.ID.String()
		}
		now := requestcontext.Now(ctx)

		result, err := m.allow(r, key, limit)
		if err != nil {
			// Both stores failed. Fail open.
			m.logger.ErrorContext(ctx, "rate limit check failed",
				"error", err,
				"request_id", request.GetRequestID(ctx),
			)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
		if !result.Allowed {
			if m.metrics != nil {
				m.metrics.Rejected.WithLabelValues(string(class)).Inc()
			}
			m.logger.WarnContext(ctx, "rate limit exceeded",
				"class", string(class),
				"request_id", request.GetRequestID(ctx),
			)
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter(now)))
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, try again later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allow consults the primary store on every call and answers from the local
// store when it errors. The breaker tracks whether the limiter is degraded.
func (m *Middleware) allow(r *http.Request, key string, limit Limit) (*Result, error) {
	ctx := r.Context()
	now := requestcontext.Now(ctx)
	result, err := m.primary.Allow(ctx, key, limit.Requests, limit.Window, now)
	if err == nil {
		if _, change := m.breaker.RecordSuccess(); change.Closed {
			m.setDegraded(false)
		}
		return result, nil
	}

	if !m.breaker.IsOpen() {
		m.logger.WarnContext(ctx, "rate limit store failed, using local fallback", "error", err)
	}
	if _, change := m.breaker.RecordFailure(); change.Opened {
		m.setDegraded(true)
	}
	return m.fallback.Allow(ctx, key, limit.Requests, limit.Window, now)
}

func (m *Middleware) setDegraded(degraded bool) {
	if degraded {
		m.logger.Error("rate limit store circuit opened")
	} else {
		m.logger.Info("rate limit store circuit closed")
	}
	if m.metrics == nil {
		return
	}
	if degraded {
		m.metrics.Degraded.Set(1)
	} else {
		m.metrics.Degraded.Set(0)
	}
}
