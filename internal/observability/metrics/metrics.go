package metrics

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Config carries the constant labels attached to every series.
type Config struct {
	ServiceName string
	Environment string
}

const (
	ReasonDeadlineExceeded     = "deadline_exceeded"
	ReasonLockTimeout          = "db_lock_timeout"
	ReasonSerializationFailure = "serialization_failure"
	ReasonUniqueViolation      = "unique_violation"
	ReasonUnknown              = "unknown"
)

const (
	PoolExtension   = "extension"
	PoolPhoneNumber = "phone_number"
)

// Metrics holds the provisioning and apply instruments.
type Metrics struct {
	allocationAttempts *prometheus.CounterVec
	allocationRetries  *prometheus.CounterVec
	allocationFailures *prometheus.CounterVec
	applyJobs          *prometheus.CounterVec
	applyDuration      prometheus.Observer
	applyRollbacks     *prometheus.CounterVec
	reloadResults      *prometheus.CounterVec
	reloadDuration     *prometheus.HistogramVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// WithConfig returns the singleton, labelled with cfg on first use.
func WithConfig(cfg Config) *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = newMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return defaultMetrics
}

// NewWithRegisterer builds an isolated instance; used by tests.
func NewWithRegisterer(registerer prometheus.Registerer, cfg Config) *Metrics {
	return newMetrics(registerer, cfg)
}

func newMetrics(registerer prometheus.Registerer, cfg Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "switchboard"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &Metrics{
		allocationAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "switchboard_allocation_attempts_total",
			Help:        "Allocation transactions started per pool.",
			ConstLabels: constLabels,
		}, []string{"pool"}),
		allocationRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "switchboard_allocation_retries_total",
			Help:        "Allocation attempts that lost a uniqueness race and retried.",
			ConstLabels: constLabels,
		}, []string{"pool"}),
		allocationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "switchboard_allocation_failures_total",
			Help:        "Allocations that gave up, by reason.",
			ConstLabels: constLabels,
		}, []string{"pool", "reason"}),
		applyJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "switchboard_apply_jobs_total",
			Help:        "Apply jobs by terminal status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		applyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "switchboard_apply_duration_seconds",
			Help:        "Wall time of an apply job from lock to terminal status.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			ConstLabels: constLabels,
		}),
		applyRollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "switchboard_apply_rollbacks_total",
			Help:        "Rollbacks by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		reloadResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "switchboard_reload_results_total",
			Help:        "Reload commands by target and outcome.",
			ConstLabels: constLabels,
		}, []string{"target", "outcome"}),
		reloadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "switchboard_reload_duration_seconds",
			Help:        "Latency of reload commands sent to the telephony engine.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			ConstLabels: constLabels,
		}, []string{"target"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "switchboard_http_requests_total",
			Help:        "HTTP requests by route and status.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "switchboard_http_request_duration_seconds",
			Help:        "HTTP request latency by route.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "route"}),
	}

	m.allocationAttempts = registerCounterVec(registerer, m.allocationAttempts)
	m.allocationRetries = registerCounterVec(registerer, m.allocationRetries)
	m.allocationFailures = registerCounterVec(registerer, m.allocationFailures)
	m.applyJobs = registerCounterVec(registerer, m.applyJobs)
	m.applyRollbacks = registerCounterVec(registerer, m.applyRollbacks)
	m.reloadResults = registerCounterVec(registerer, m.reloadResults)
	m.httpRequests = registerCounterVec(registerer, m.httpRequests)
	m.reloadDuration = registerHistogramVec(registerer, m.reloadDuration)
	m.httpDuration = registerHistogramVec(registerer, m.httpDuration)
	if hist, ok := m.applyDuration.(prometheus.Histogram); ok {
		if err := registerer.Register(hist); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				if existing, ok := already.ExistingCollector.(prometheus.Histogram); ok {
					m.applyDuration = existing
				}
			}
		}
	}
	return m
}

func registerCounterVec(registerer prometheus.Registerer, vec *prometheus.CounterVec) *prometheus.CounterVec {
	if err := registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return vec
}

func registerHistogramVec(registerer prometheus.Registerer, vec *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
	}
	return vec
}

func (m *Metrics) IncAllocationAttempt(pool string) {
	if m == nil {
		return
	}
	m.allocationAttempts.WithLabelValues(pool).Inc()
}

func (m *Metrics) IncAllocationRetry(pool string) {
	if m == nil {
		return
	}
	m.allocationRetries.WithLabelValues(pool).Inc()
}

func (m *Metrics) IncAllocationFailure(pool, reason string) {
	if m == nil {
		return
	}
	m.allocationFailures.WithLabelValues(pool, reason).Inc()
}

func (m *Metrics) ObserveApplyJob(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.applyJobs.WithLabelValues(status).Inc()
	m.applyDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) IncRollback(outcome string) {
	if m == nil {
		return
	}
	m.applyRollbacks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveReload(target string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.reloadResults.WithLabelValues(target, outcome).Inc()
	m.reloadDuration.WithLabelValues(target).Observe(elapsed.Seconds())
}

// GinMiddleware records request counts and latency per matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// ClassifyReason maps a store error to a low-cardinality reason label.
func ClassifyReason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return ReasonLockTimeout
		case "40001", "40P01":
			return ReasonSerializationFailure
		case "23505":
			return ReasonUniqueViolation
		}
	}
	return ReasonUnknown
}
