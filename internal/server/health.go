// Package server provides the HTTP API, health checks, and graceful
// shutdown plumbing.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// ProbeStatus classifies the outcome of a single component probe.
type ProbeStatus string

const (
	ProbeOK       ProbeStatus = "ok"
	ProbeDegraded ProbeStatus = "degraded"
	ProbeDown     ProbeStatus = "down"
)

// ProbeReport is one component's entry in the /health response.
type ProbeReport struct {
	Component string      `json:"component"`
	Status    ProbeStatus `json:"status"`
	Detail    string      `json:"detail,omitempty"`
}

// Probe inspects one dependency. Each probe gets its own deadline so a
// hung dependency cannot stall the whole report.
type Probe func(ctx context.Context) ProbeReport

const probeTimeout = 2 * time.Second

// Health tracks readiness and a set of component probes. Probes run in
// registration order on every /health request, so the JSON output is
// stable across calls.
type Health struct {
	version string

	mu     sync.RWMutex
	probes []namedProbe
	ready  bool
}

type namedProbe struct {
	name  string
	probe Probe
}

func NewHealth(version string) *Health {
	return &Health{version: version}
}

// AddProbe registers a component probe under the given name.
func (h *Health) AddProbe(name string, p Probe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, namedProbe{name: name, probe: p})
}

// SetReady flips the readiness gate. Flipped off first thing during
// teardown so load balancers drain before the listener closes.
func (h *Health) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// Register mounts the health endpoints on an existing mux. The z-suffixed
// aliases match what Kubernetes manifests tend to reference.
func (h *Health) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /ready", h.handleReady)
	mux.HandleFunc("GET /readyz", h.handleReady)
	mux.HandleFunc("GET /live", h.handleLive)
	mux.HandleFunc("GET /livez", h.handleLive)
}

type healthReport struct {
	Status     ProbeStatus   `json:"status"`
	Version    string        `json:"version,omitempty"`
	CheckedAt  time.Time     `json:"checked_at"`
	Components []ProbeReport `json:"components,omitempty"`
}

func (h *Health) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	probes := make([]namedProbe, len(h.probes))
	copy(probes, h.probes)
	h.mu.RUnlock()

	report := healthReport{
		Status:    ProbeOK,
		Version:   h.version,
		CheckedAt: time.Now().UTC(),
	}
	for _, np := range probes {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		res := np.probe(ctx)
		cancel()
		res.Component = np.name
		report.Components = append(report.Components, res)
		report.Status = worseOf(report.Status, res.Status)
	}

	code := http.StatusOK
	if report.Status == ProbeDown {
		code = http.StatusServiceUnavailable
	}
	writeHealthJSON(w, code, report)
}

func (h *Health) handleReady(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	ready := h.ready
	h.mu.RUnlock()

	if !ready {
		writeHealthJSON(w, http.StatusServiceUnavailable, healthReport{
			Status:    ProbeDown,
			CheckedAt: time.Now().UTC(),
		})
		return
	}
	writeHealthJSON(w, http.StatusOK, healthReport{
		Status:    ProbeOK,
		CheckedAt: time.Now().UTC(),
	})
}

// handleLive answers 200 unconditionally. If the process can serve the
// request it is alive; anything finer belongs in /health.
func (h *Health) handleLive(w http.ResponseWriter, r *http.Request) {
	writeHealthJSON(w, http.StatusOK, healthReport{
		Status:    ProbeOK,
		CheckedAt: time.Now().UTC(),
	})
}

// worseOf keeps the overall status at the worst component status seen,
// with down outranking degraded outranking ok.
func worseOf(a, b ProbeStatus) ProbeStatus {
	if a == ProbeDown || b == ProbeDown {
		return ProbeDown
	}
	if a == ProbeDegraded || b == ProbeDegraded {
		return ProbeDegraded
	}
	return ProbeOK
}

func writeHealthJSON(w http.ResponseWriter, code int, report healthReport) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(report)
}

// StoreProbe pings the context store. A failing store takes migration
// and retrieval down with it, so any error reports down.
func StoreProbe(ping func(ctx context.Context) error) Probe {
	return func(ctx context.Context) ProbeReport {
		if err := ping(ctx); err != nil {
			return ProbeReport{Status: ProbeDown, Detail: "context store: " + err.Error()}
		}
		return ProbeReport{Status: ProbeOK}
	}
}

// IndexProbe reports on the vector index. An empty index is degraded
// rather than down: retrieval still answers, just with nothing.
func IndexProbe(size func() int) Probe {
	return func(ctx context.Context) ProbeReport {
		n := size()
		if n == 0 {
			return ProbeReport{Status: ProbeDegraded, Detail: "vector index empty; run ingestion"}
		}
		return ProbeReport{Status: ProbeOK, Detail: strconv.Itoa(n) + " entries"}
	}
}

// ProviderProbe records which LLM provider is wired. Providers expose no
// cheap ping, so presence is the best signal available without spending
// tokens on a canary completion.
func ProviderProbe(name string) Probe {
	return func(ctx context.Context) ProbeReport {
		return ProbeReport{Status: ProbeOK, Detail: "provider " + name + " configured"}
	}
}

// TemporalProbe pings the Temporal frontend. Without it migrations queue
// nowhere, so any error reports down.
func TemporalProbe(ping func(ctx context.Context) error) Probe {
	return func(ctx context.Context) ProbeReport {
		if err := ping(ctx); err != nil {
			return ProbeReport{Status: ProbeDown, Detail: "temporal: " + err.Error()}
		}
		return ProbeReport{Status: ProbeOK}
	}
}
