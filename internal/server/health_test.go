package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveHealth(t *testing.T, h *Health, path string) (*httptest.ResponseRecorder, healthReport) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	var report healthReport
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("decoding %s response: %v", path, err)
	}
	return w, report
}

func TestHealthReportAllOK(t *testing.T) {
	h := NewHealth("1.2.3")
	h.AddProbe("store", func(ctx context.Context) ProbeReport {
		return ProbeReport{Status: ProbeOK}
	})
	h.AddProbe("index", func(ctx context.Context) ProbeReport {
		return ProbeReport{Status: ProbeOK, Detail: "42 entries"}
	})

	w, report := serveHealth(t, h, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if report.Status != ProbeOK {
		t.Fatalf("want overall ok, got %q", report.Status)
	}
	if report.Version != "1.2.3" {
		t.Fatalf("want version 1.2.3, got %q", report.Version)
	}
	if len(report.Components) != 2 {
		t.Fatalf("want 2 components, got %d", len(report.Components))
	}
}

func TestHealthReportKeepsRegistrationOrder(t *testing.T) {
	h := NewHealth("")
	for _, name := range []string{"store", "index", "llm", "temporal"} {
		h.AddProbe(name, func(ctx context.Context) ProbeReport {
			return ProbeReport{Status: ProbeOK}
		})
	}

	_, report := serveHealth(t, h, "/health")
	want := []string{"store", "index", "llm", "temporal"}
	for i, comp := range report.Components {
		if comp.Component != want[i] {
			t.Fatalf("component %d: want %q, got %q", i, want[i], comp.Component)
		}
	}
}

func TestHealthReportDownComponent(t *testing.T) {
	h := NewHealth("")
	h.AddProbe("store", func(ctx context.Context) ProbeReport {
		return ProbeReport{Status: ProbeDown, Detail: "context store: connection refused"}
	})

	w, report := serveHealth(t, h, "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d", w.Code)
	}
	if report.Status != ProbeDown {
		t.Fatalf("want overall down, got %q", report.Status)
	}
}

func TestHealthReportDegradedStaysOK(t *testing.T) {
	h := NewHealth("")
	h.AddProbe("store", func(ctx context.Context) ProbeReport {
		return ProbeReport{Status: ProbeOK}
	})
	h.AddProbe("index", func(ctx context.Context) ProbeReport {
		return ProbeReport{Status: ProbeDegraded, Detail: "vector index empty"}
	})

	w, report := serveHealth(t, h, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("degraded should still answer 200, got %d", w.Code)
	}
	if report.Status != ProbeDegraded {
		t.Fatalf("want overall degraded, got %q", report.Status)
	}
}

func TestHealthProbeGetsDeadline(t *testing.T) {
	h := NewHealth("")
	h.AddProbe("store", func(ctx context.Context) ProbeReport {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("probe context has no deadline")
		}
		return ProbeReport{Status: ProbeOK}
	})
	serveHealth(t, h, "/health")
}

func TestReadyGate(t *testing.T) {
	h := NewHealth("")

	w, _ := serveHealth(t, h, "/ready")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503 before SetReady, got %d", w.Code)
	}

	h.SetReady(true)
	w, report := serveHealth(t, h, "/ready")
	if w.Code != http.StatusOK {
		t.Fatalf("want 200 after SetReady, got %d", w.Code)
	}
	if report.Status != ProbeOK {
		t.Fatalf("want ok, got %q", report.Status)
	}

	h.SetReady(false)
	w, _ = serveHealth(t, h, "/ready")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503 after draining, got %d", w.Code)
	}
}

func TestLiveAlwaysAnswers(t *testing.T) {
	h := NewHealth("")
	h.AddProbe("store", func(ctx context.Context) ProbeReport {
		return ProbeReport{Status: ProbeDown}
	})

	w, report := serveHealth(t, h, "/live")
	if w.Code != http.StatusOK {
		t.Fatalf("want 200 from /live, got %d", w.Code)
	}
	if report.Status != ProbeOK {
		t.Fatalf("want ok from /live, got %q", report.Status)
	}
}

func TestHealthKubernetesAliases(t *testing.T) {
	h := NewHealth("")
	h.SetReady(true)
	for _, path := range []string{"/healthz", "/readyz", "/livez"} {
		w, _ := serveHealth(t, h, path)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: want 200, got %d", path, w.Code)
		}
	}
}

func TestHealthContentType(t *testing.T) {
	h := NewHealth("")
	w, _ := serveHealth(t, h, "/live")
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("want application/json, got %q", got)
	}
}

func TestWorseOf(t *testing.T) {
	cases := []struct {
		a, b, want ProbeStatus
	}{
		{ProbeOK, ProbeOK, ProbeOK},
		{ProbeOK, ProbeDegraded, ProbeDegraded},
		{ProbeDegraded, ProbeOK, ProbeDegraded},
		{ProbeDegraded, ProbeDown, ProbeDown},
		{ProbeDown, ProbeOK, ProbeDown},
	}
	for _, tc := range cases {
		if got := worseOf(tc.a, tc.b); got != tc.want {
			t.Fatalf("worseOf(%q, %q): want %q, got %q", tc.a, tc.b, tc.want, got)
		}
	}
}

func TestStoreProbe(t *testing.T) {
	ok := StoreProbe(func(ctx context.Context) error { return nil })
	if rep := ok(context.Background()); rep.Status != ProbeOK {
		t.Fatalf("want ok, got %q", rep.Status)
	}

	down := StoreProbe(func(ctx context.Context) error {
		return errors.New("connection refused")
	})
	rep := down(context.Background())
	if rep.Status != ProbeDown {
		t.Fatalf("want down, got %q", rep.Status)
	}
	if rep.Detail == "" {
		t.Fatal("want failure detail")
	}
}

func TestIndexProbe(t *testing.T) {
	if rep := IndexProbe(func() int { return 0 })(context.Background()); rep.Status != ProbeDegraded {
		t.Fatalf("empty index: want degraded, got %q", rep.Status)
	}
	rep := IndexProbe(func() int { return 42 })(context.Background())
	if rep.Status != ProbeOK {
		t.Fatalf("populated index: want ok, got %q", rep.Status)
	}
	if rep.Detail != "42 entries" {
		t.Fatalf("want entry count in detail, got %q", rep.Detail)
	}
}

func TestProviderProbe(t *testing.T) {
	rep := ProviderProbe("anthropic")(context.Background())
	if rep.Status != ProbeOK {
		t.Fatalf("want ok, got %q", rep.Status)
	}
	if rep.Detail != "provider anthropic configured" {
		t.Fatalf("unexpected detail %q", rep.Detail)
	}
}

func TestTemporalProbe(t *testing.T) {
	if rep := TemporalProbe(func(ctx context.Context) error { return nil })(context.Background()); rep.Status != ProbeOK {
		t.Fatalf("want ok, got %q", rep.Status)
	}
	rep := TemporalProbe(func(ctx context.Context) error {
		return errors.New("frontend unreachable")
	})(context.Background())
	if rep.Status != ProbeDown {
		t.Fatalf("want down, got %q", rep.Status)
	}
}
