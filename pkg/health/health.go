// Package health implements Kubernetes-style liveness and readiness probes.
//
// Probes are registered before Start and then evaluated by a single
// supervisor goroutine on a fixed interval. A probe flips to failing only
// after three consecutive errors, and recovers on the first success, so a
// transient blip (a dropped database connection, a slow ping) does not
// bounce the service out of the load balancer.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// CheckFunc reports the state of one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

const failuresBeforeUnhealthy = 3

// probe is one registered check plus its evaluation state. All state is
// written by the supervisor goroutine and read by HTTP handlers under the
// owning Health mutex.
type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	failing bool
	streak  int
	lastErr error
}

// evaluate runs the check once and updates the failure streak.
func (p *probe) evaluate(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr = err

	if err == nil {
		p.streak = 0
		p.failing = false
		return
	}
	p.streak++
	if p.streak >= failuresBeforeUnhealthy {
		p.failing = true
	}
}

// Health owns the registered probes and the manual readiness flag.
type Health struct {
	mu        sync.Mutex
	ready     bool
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New returns a Health with no probes and readiness unset. Call
// SetReady(true) once initialization is complete.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a probe that decides whether the process is
// functioning at all (goroutine leaks, deadlocks). A failing liveness probe
// normally gets the process restarted.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, &probe{name: name, timeout: timeout, check: check})
}

// AddReadinessCheck registers a probe that decides whether the service can
// take traffic (database reachable, cache warm).
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, &probe{name: name, timeout: timeout, check: check})
}

// Start launches the supervisor goroutine. Probes registered after Start
// are not evaluated.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()

	go h.supervise(ctx, interval)
}

func (h *Health) supervise(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.evaluateAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.evaluateAll(ctx)
		}
	}
}

// evaluateAll runs every probe once. The mutex is held across the sweep;
// probe timeouts bound how long handlers can be blocked.
func (h *Health) evaluateAll(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, p := range h.liveness {
		p.evaluate(ctx)
	}
	for _, p := range h.readiness {
		p.evaluate(ctx)
	}
}

// SetReady flips the manual readiness flag. Set false during graceful
// shutdown to drain traffic before the listener closes.
func (h *Health) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// IsReady reports whether the service has been marked ready and every
// readiness probe is passing.
func (h *Health) IsReady() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.ready {
		return false
	}
	for _, p := range h.readiness {
		if p.failing {
			return false
		}
	}
	return true
}

// Stop cancels the supervisor goroutine. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// statusResponse is the body served by both endpoints.
type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 {"status":"ok"} while liveness probes
// pass, 503 with per-check errors otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	failures := failuresOf(h.liveness)
	h.mu.Unlock()

	serveStatus(w, failures)
}

// ReadyEndpoint serves /readyz: 200 {"status":"ok"} once SetReady(true)
// has been called and all readiness probes pass.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	failures := failuresOf(h.readiness)
	if !h.ready {
		failures["_readiness"] = "service is not ready"
	}
	h.mu.Unlock()

	serveStatus(w, failures)
}

// failuresOf maps each failing probe to its last error text. Caller holds
// the mutex.
func failuresOf(probes []*probe) map[string]string {
	failures := make(map[string]string)
	for _, p := range probes {
		if !p.failing {
			continue
		}
		if p.lastErr != nil {
			failures[p.name] = p.lastErr.Error()
		} else {
			failures[p.name] = "check is unhealthy"
		}
	}
	return failures
}

func serveStatus(w http.ResponseWriter, failures map[string]string) {
	resp := statusResponse{Status: "ok"}
	code := http.StatusOK
	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
