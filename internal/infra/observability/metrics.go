package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/twofly/client-portal-go/internal/domain"
)

// Metrics holds all Prometheus metrics for the portal API.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration  *prometheus.HistogramVec
	logins           *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec
	portalLoads      prometheus.Counter
	portalMigrations prometheus.Counter
	externalErrors   *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. A private registry lets tests build as many
// Metrics as they like.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portal_request_duration_seconds",
				Help:    "Duration of HTTP requests by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "status"},
		),
		logins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_logins_total",
				Help: "Login attempts by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		),
		rateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_rate_limited_total",
				Help: "Requests rejected by the rate limiter.",
			},
			[]string{"action"},
		),
		portalLoads: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_state_loads_total",
				Help: "Portal documents loaded from storage.",
			},
		),
		portalMigrations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_state_migrations_total",
				Help: "Portal documents upgraded and rewritten on load.",
			},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordRequestDuration records the duration of an HTTP request.
func (m *Metrics) RecordRequestDuration(route, status string, d time.Duration) {
	m.requestDuration.WithLabelValues(route, status).Observe(d.Seconds())
}

// IncrLogin counts a login attempt. outcome is "success" or "failure".
func (m *Metrics) IncrLogin(strategy, outcome string) {
	m.logins.WithLabelValues(strategy, outcome).Inc()
}

// IncrRateLimited counts a rejected attempt.
func (m *Metrics) IncrRateLimited(action string) {
	m.rateLimited.WithLabelValues(action).Inc()
}

// IncrPortalLoad counts a portal document read from storage.
func (m *Metrics) IncrPortalLoad() {
	m.portalLoads.Inc()
}

// IncrPortalMigration counts a document rewritten by the migration chain.
func (m *Metrics) IncrPortalMigration() {
	m.portalMigrations.Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// CacheStats adapts one named cache's counters to the cache.Stats interface.
func (m *Metrics) CacheStats(cache string) *CacheStats {
	return &CacheStats{m: m, cache: cache}
}

// CacheStats records hits and misses of one cache.
type CacheStats struct {
	m     *Metrics
	cache string
}

func (s *CacheStats) Hit()  { s.m.IncrCacheHit(s.cache) }
func (s *CacheStats) Miss() { s.m.IncrCacheMiss(s.cache) }

// Snapshot returns the counters behind GET /api/agency/metrics.
func (m *Metrics) Snapshot() *domain.PortalMetrics {
	success := sumCounterVec(m.logins, func(labels map[string]string) bool { return labels["outcome"] == "success" })
	failure := sumCounterVec(m.logins, func(labels map[string]string) bool { return labels["outcome"] == "failure" })
	hits := getCounterValue(m.cacheHits.WithLabelValues("portal"))
	misses := getCounterValue(m.cacheMisses.WithLabelValues("portal"))

	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.PortalMetrics{
		LoginSuccess:     int64(success),
		LoginFailure:     int64(failure),
		RateLimited:      int64(sumCounterVec(m.rateLimited, nil)),
		PortalLoads:      int64(getCounterValue(m.portalLoads)),
		PortalMigrations: int64(getCounterValue(m.portalMigrations)),
		CacheHitRate:     hitRate,
		ExternalErrors:   int64(sumCounterVec(m.externalErrors, nil)),
		Period:           "since_start",
	}
}

// getCounterValue extracts the current value of a single counter.
func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

// sumCounterVec adds up every child of cv whose labels pass keep (all when nil).
func sumCounterVec(cv *prometheus.CounterVec, keep func(labels map[string]string) bool) float64 {
	ch := make(chan prometheus.Metric, 64)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	total := float64(0)
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil || m.Counter == nil {
			continue
		}
		if keep != nil {
			labels := make(map[string]string, len(m.Label))
			for _, lp := range m.Label {
				labels[lp.GetName()] = lp.GetValue()
			}
			if !keep(labels) {
				continue
			}
		}
		total += m.Counter.GetValue()
	}
	return total
}
