package observability

import (
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func scrape(t *testing.T, r *Registry) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Fatalf("want text/plain content type, got %q", ct)
	}
	return w.Body.String()
}

func TestCounterAccumulates(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("requests_total", "Total requests")

	c.Inc()
	c.Inc()
	c.Add(2.5)

	if got := c.Value(); got != 4.5 {
		t.Fatalf("want 4.5, got %v", got)
	}
}

func TestCounterConcurrentAdds(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("requests_total", "Total requests")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				c.Inc()
			}
		}()
	}
	wg.Wait()

	if got := c.Value(); got != 8000 {
		t.Fatalf("want 8000, got %v", got)
	}
}

func TestGauge(t *testing.T) {
	r := NewRegistry()
	g := r.NewGauge("in_flight", "In-flight work")

	g.Set(42)
	if got := g.Value(); got != 42 {
		t.Fatalf("after Set: want 42, got %v", got)
	}

	g.Inc()
	g.Inc()
	g.Dec()
	if got := g.Value(); got != 43 {
		t.Fatalf("after Inc/Dec: want 43, got %v", got)
	}

	g.Add(-43)
	if got := g.Value(); got != 0 {
		t.Fatalf("after Add: want 0, got %v", got)
	}
}

func TestHistogramBucketBoundaries(t *testing.T) {
	r := NewRegistry()
	h := r.NewHistogram("latency_seconds", "Latency", []float64{0.1, 0.5, 1.0})

	h.Observe(0.05) // first bucket
	h.Observe(0.1)  // boundary lands in its own bucket
	h.Observe(0.3)  // second bucket
	h.Observe(2.0)  // past every bound

	body := scrape(t, r)
	for _, line := range []string{
		`latency_seconds_bucket{le="0.1"} 2`,
		`latency_seconds_bucket{le="0.5"} 3`,
		`latency_seconds_bucket{le="1"} 3`,
		`latency_seconds_bucket{le="+Inf"} 4`,
		`latency_seconds_count 4`,
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("missing %q in:\n%s", line, body)
		}
	}
}

func TestHistogramObserveDuration(t *testing.T) {
	r := NewRegistry()
	h := r.NewHistogram("latency_seconds", "Latency", nil)

	h.ObserveDuration(time.Now().Add(-100 * time.Millisecond))

	body := scrape(t, r)
	if !strings.Contains(body, `latency_seconds_count 1`) {
		t.Fatalf("observation not counted:\n%s", body)
	}
}

func TestHistogramDefaultBounds(t *testing.T) {
	r := NewRegistry()
	h := r.NewHistogram("latency_seconds", "Latency", nil)
	if len(h.bounds) == 0 {
		t.Fatal("want default bounds")
	}
	for i := 1; i < len(h.bounds); i++ {
		if h.bounds[i] <= h.bounds[i-1] {
			t.Fatalf("bounds not ascending at %d: %v", i, h.bounds)
		}
	}
}

func TestScrapeFormat(t *testing.T) {
	r := NewRegistry()
	r.NewCounter("requests_total", "Total requests").Inc()
	r.NewGauge("in_flight", "In-flight work").Set(3)

	body := scrape(t, r)
	for _, line := range []string{
		"# HELP requests_total Total requests",
		"# TYPE requests_total counter",
		"requests_total 1",
		"# TYPE in_flight gauge",
		"in_flight 3",
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("missing %q in:\n%s", line, body)
		}
	}
}

func TestScrapeOrderIsSorted(t *testing.T) {
	r := NewRegistry()
	r.NewCounter("zebra_total", "Z")
	r.NewCounter("alpha_total", "A")
	r.NewGauge("mid_gauge", "M")

	body := scrape(t, r)
	alpha := strings.Index(body, "alpha_total")
	mid := strings.Index(body, "mid_gauge")
	zebra := strings.Index(body, "zebra_total")
	if alpha < 0 || mid < 0 || zebra < 0 {
		t.Fatalf("missing metrics:\n%s", body)
	}
	if !(alpha < mid && mid < zebra) {
		t.Fatalf("scrape not name-sorted: alpha=%d mid=%d zebra=%d", alpha, mid, zebra)
	}
}

func TestRecordLLMRequest(t *testing.T) {
	m := NewLoomMetrics()

	m.RecordLLMRequest(100*time.Millisecond, 500, nil)
	m.RecordLLMRequest(200*time.Millisecond, 300, errors.New("rate limited"))

	if got := m.LLMRequestsTotal.Value(); got != 2 {
		t.Fatalf("want 2 requests, got %v", got)
	}
	if got := m.LLMTokensTotal.Value(); got != 800 {
		t.Fatalf("want 800 tokens, got %v", got)
	}
	if got := m.LLMErrorsTotal.Value(); got != 1 {
		t.Fatalf("want 1 error, got %v", got)
	}
}

func TestRecordRetrieval(t *testing.T) {
	m := NewLoomMetrics()

	m.RecordRetrieval(50*time.Millisecond, 1200, nil)
	m.RecordRetrieval(80*time.Millisecond, 0, errors.New("index unavailable"))

	if got := m.RetrievalsTotal.Value(); got != 2 {
		t.Fatalf("want 2 retrievals, got %v", got)
	}
	if got := m.RetrievedTokens.Value(); got != 1200 {
		t.Fatalf("want 1200 tokens, got %v", got)
	}
	if got := m.RetrievalErrors.Value(); got != 1 {
		t.Fatalf("want 1 error, got %v", got)
	}
}

func TestRecordMigration(t *testing.T) {
	m := NewLoomMetrics()

	m.RecordMigration(2*time.Second, 1, true)
	m.RecordMigration(5*time.Second, 4, false)

	if got := m.MigrationsTotal.Value(); got != 2 {
		t.Fatalf("want 2 migrations, got %v", got)
	}
	if got := m.MigrationsMigrated.Value(); got != 1 {
		t.Fatalf("want 1 migrated, got %v", got)
	}
	if got := m.MigrationsFailed.Value(); got != 1 {
		t.Fatalf("want 1 failed, got %v", got)
	}
}

func TestRecordIngest(t *testing.T) {
	m := NewLoomMetrics()

	m.RecordIngest(10)
	m.RecordIngest(5)

	if got := m.IngestedRecords.Value(); got != 15 {
		t.Fatalf("want 15 records, got %v", got)
	}
}

func TestLoomMetricsScrape(t *testing.T) {
	m := NewLoomMetrics()
	m.RecordMigration(time.Second, 2, true)

	body := scrape(t, m.Registry)
	for _, line := range []string{
		"loom_migrations_total 1",
		"loom_migrations_migrated_total 1",
		"loom_migration_attempts_count 1",
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("missing %q in:\n%s", line, body)
		}
	}
}

func TestGlobalMetricsSingleton(t *testing.T) {
	if Metrics() != Metrics() {
		t.Fatal("global metrics not a singleton")
	}
}
