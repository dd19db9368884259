package observability

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics are exposed in the Prometheus text format without pulling in
// the client library. The service only needs unlabeled counters, gauges,
// and latency histograms behind a single /metrics handler, and scrapers
// cannot tell the difference.

// metric is anything the registry can render on a scrape.
type metric interface {
	metricName() string
	expose(w io.Writer)
}

// Registry holds the metrics in a stable, name-sorted scrape order.
type Registry struct {
	mu      sync.Mutex
	metrics []metric
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) register(m metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, m)
	sort.Slice(r.metrics, func(i, j int) bool {
		return r.metrics[i].metricName() < r.metrics[j].metricName()
	})
}

// Handler serves the scrape endpoint.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.mu.Lock()
		metrics := make([]metric, len(r.metrics))
		copy(metrics, r.metrics)
		r.mu.Unlock()
		for _, m := range metrics {
			m.expose(w)
		}
	})
}

// Counter only goes up. The value lives in an atomic as float64 bits so
// hot paths never contend on a mutex.
type Counter struct {
	name string
	help string
	bits atomic.Uint64
}

func (r *Registry) NewCounter(name, help string) *Counter {
	c := &Counter{name: name, help: help}
	r.register(c)
	return c
}

func (c *Counter) Inc() { c.Add(1) }

func (c *Counter) Add(v float64) {
	for {
		old := c.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + v)
		if c.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

func (c *Counter) Value() float64 {
	return math.Float64frombits(c.bits.Load())
}

func (c *Counter) metricName() string { return c.name }

func (c *Counter) expose(w io.Writer) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %s\n",
		c.name, c.help, c.name, c.name, formatSample(c.Value()))
}

// Gauge goes up and down.
type Gauge struct {
	name string
	help string
	bits atomic.Uint64
}

func (r *Registry) NewGauge(name, help string) *Gauge {
	g := &Gauge{name: name, help: help}
	r.register(g)
	return g
}

func (g *Gauge) Set(v float64) {
	g.bits.Store(math.Float64bits(v))
}

func (g *Gauge) Inc() { g.Add(1) }
func (g *Gauge) Dec() { g.Add(-1) }

func (g *Gauge) Add(v float64) {
	for {
		old := g.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + v)
		if g.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

func (g *Gauge) Value() float64 {
	return math.Float64frombits(g.bits.Load())
}

func (g *Gauge) metricName() string { return g.name }

func (g *Gauge) expose(w io.Writer) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %s\n",
		g.name, g.help, g.name, g.name, formatSample(g.Value()))
}

// Histogram tracks a distribution over fixed bucket bounds. Each
// observation lands in the first bucket whose bound covers it; the
// cumulative counts Prometheus expects are summed at scrape time.
type Histogram struct {
	name      string
	help      string
	bounds    []float64
	mu        sync.Mutex
	perBucket []uint64 // one slot per bound, plus a final +Inf slot
	sum       float64
}

// latencyBounds covers the span from local lookups to slow LLM calls.
var latencyBounds = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

func (r *Registry) NewHistogram(name, help string, bounds []float64) *Histogram {
	if bounds == nil {
		bounds = latencyBounds
	}
	h := &Histogram{
		name:      name,
		help:      help,
		bounds:    bounds,
		perBucket: make([]uint64, len(bounds)+1),
	}
	r.register(h)
	return h
}

func (h *Histogram) Observe(v float64) {
	i := sort.SearchFloat64s(h.bounds, v)
	h.mu.Lock()
	h.perBucket[i]++
	h.sum += v
	h.mu.Unlock()
}

func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

func (h *Histogram) metricName() string { return h.name }

func (h *Histogram) expose(w io.Writer) {
	h.mu.Lock()
	buckets := make([]uint64, len(h.perBucket))
	copy(buckets, h.perBucket)
	sum := h.sum
	h.mu.Unlock()

	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
	var cumulative uint64
	for i, bound := range h.bounds {
		cumulative += buckets[i]
		fmt.Fprintf(w, "%s_bucket{le=%q} %d\n", h.name, formatSample(bound), cumulative)
	}
	cumulative += buckets[len(h.bounds)]
	fmt.Fprintf(w, "%s_bucket{le=\"+Inf\"} %d\n", h.name, cumulative)
	fmt.Fprintf(w, "%s_sum %s\n", h.name, formatSample(sum))
	fmt.Fprintf(w, "%s_count %d\n", h.name, cumulative)
}

func formatSample(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// LoomMetrics contains the service's domain metrics.
type LoomMetrics struct {
	Registry *Registry

	// LLM metrics
	LLMRequestsTotal   *Counter
	LLMRequestDuration *Histogram
	LLMTokensTotal     *Counter
	LLMErrorsTotal     *Counter

	// Retrieval metrics
	RetrievalsTotal   *Counter
	RetrievalDuration *Histogram
	RetrievedTokens   *Counter
	RetrievalErrors   *Counter

	// Migration metrics
	MigrationsTotal    *Counter
	MigrationsMigrated *Counter
	MigrationsFailed   *Counter
	MigrationDuration  *Histogram
	MigrationAttempts  *Histogram

	// Ingestion metrics
	IngestedRecords *Counter

	// Active migrations gauge
	ActiveMigrations *Gauge
}

// NewLoomMetrics creates the service metrics set.
func NewLoomMetrics() *LoomMetrics {
	r := NewRegistry()

	return &LoomMetrics{
		Registry: r,

		// LLM
		LLMRequestsTotal:   r.NewCounter("loom_llm_requests_total", "Total LLM API requests"),
		LLMRequestDuration: r.NewHistogram("loom_llm_request_duration_seconds", "LLM request duration", nil),
		LLMTokensTotal:     r.NewCounter("loom_llm_tokens_total", "Total tokens used"),
		LLMErrorsTotal:     r.NewCounter("loom_llm_errors_total", "Total LLM errors"),

		// Retrieval
		RetrievalsTotal:   r.NewCounter("loom_retrievals_total", "Total retrieval requests"),
		RetrievalDuration: r.NewHistogram("loom_retrieval_duration_seconds", "Retrieval request duration", nil),
		RetrievedTokens:   r.NewCounter("loom_retrieved_tokens_total", "Total context tokens returned"),
		RetrievalErrors:   r.NewCounter("loom_retrieval_errors_total", "Total retrieval errors"),

		// Migration
		MigrationsTotal:    r.NewCounter("loom_migrations_total", "Total migration runs"),
		MigrationsMigrated: r.NewCounter("loom_migrations_migrated_total", "Migrations that produced a valid candidate"),
		MigrationsFailed:   r.NewCounter("loom_migrations_failed_total", "Migrations that exhausted their budget"),
		MigrationDuration:  r.NewHistogram("loom_migration_duration_seconds", "Migration run duration", nil),
		MigrationAttempts:  r.NewHistogram("loom_migration_attempts", "Validation rounds per migration", []float64{1, 2, 3, 4, 5}),

		// Ingestion
		IngestedRecords: r.NewCounter("loom_ingested_records_total", "Total records ingested"),

		// Workers
		ActiveMigrations: r.NewGauge("loom_active_migrations", "Number of in-flight migrations"),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *LoomMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

// RecordLLMRequest records an LLM request.
func (m *LoomMetrics) RecordLLMRequest(duration time.Duration, tokens int, err error) {
	m.LLMRequestsTotal.Inc()
	m.LLMRequestDuration.Observe(duration.Seconds())
	m.LLMTokensTotal.Add(float64(tokens))
	if err != nil {
		m.LLMErrorsTotal.Inc()
	}
}

// RecordRetrieval records a retrieval request.
func (m *LoomMetrics) RecordRetrieval(duration time.Duration, tokens int, err error) {
	m.RetrievalsTotal.Inc()
	m.RetrievalDuration.Observe(duration.Seconds())
	m.RetrievedTokens.Add(float64(tokens))
	if err != nil {
		m.RetrievalErrors.Inc()
	}
}

// RecordMigration records a migration run.
func (m *LoomMetrics) RecordMigration(duration time.Duration, attempts int, migrated bool) {
	m.MigrationsTotal.Inc()
	m.MigrationDuration.Observe(duration.Seconds())
	m.MigrationAttempts.Observe(float64(attempts))
	if migrated {
		m.MigrationsMigrated.Inc()
	} else {
		m.MigrationsFailed.Inc()
	}
}

// RecordIngest records an ingestion batch.
func (m *LoomMetrics) RecordIngest(records int) {
	m.IngestedRecords.Add(float64(records))
}

// Global metrics instance
var globalMetrics *LoomMetrics
var metricsOnce sync.Once

// Metrics returns the global metrics instance.
func Metrics() *LoomMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewLoomMetrics()
	})
	return globalMetrics
}
