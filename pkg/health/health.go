// Package health implements Kubernetes-style liveness and readiness
// probes. Every registered probe runs on its own goroutine at a fixed
// interval and flips state only after a streak of consecutive results, so
// a single slow database ping does not bounce the service out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one component. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// Probe state transitions happen after failAfter consecutive failures or
// passAfter consecutive successes.
const (
	failAfter = 3
	passAfter = 1
)

// probe is a single registered check plus its runtime state.
//
// streak is only touched by the tick goroutine: positive values count
// consecutive successes, negative values consecutive failures. healthy and
// lastErr are shared with the HTTP endpoints and use atomics.
type probe struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[error]
	streak  int
}

func newProbe(name string, timeout time.Duration, fn CheckFunc) *probe {
	p := &probe{name: name, timeout: timeout, fn: fn}
	// Healthy until a failure streak proves otherwise.
	p.healthy.Store(true)
	return p
}

// tick runs the probe once and applies the streak thresholds. Called from
// a single goroutine per probe.
func (p *probe) tick(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.fn(probeCtx)
	cancel()

	p.lastErr.Store(&err)

	if err != nil {
		if p.streak > 0 {
			p.streak = 0
		}
		p.streak--
		if p.streak <= -failAfter {
			p.healthy.Store(false)
		}
		return
	}

	if p.streak < 0 {
		p.streak = 0
	}
	p.streak++
	if p.streak >= passAfter {
		p.healthy.Store(true)
	}
}

func (p *probe) failure() (string, bool) {
	if p.healthy.Load() {
		return "", false
	}
	if errp := p.lastErr.Load(); errp != nil && *errp != nil {
		return (*errp).Error(), true
	}
	return "check is unhealthy", true
}

// Health aggregates liveness and readiness probes for one service.
type Health struct {
	ready atomic.Bool

	// mu guards the probe slices and cancel. Registration happens before
	// Start; the HTTP endpoints copy the slice under RLock and work on the
	// copy.
	mu        sync.RWMutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New creates a Health service. It reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a probe for /livez. Liveness answers "is this
// process still functioning", for example a goroutine leak check.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	h.liveness = append(h.liveness, newProbe(name, timeout, fn))
	h.mu.Unlock()
}

// AddReadinessCheck registers a probe for /readyz. Readiness answers "may
// this process receive traffic", for example database connectivity.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	h.readiness = append(h.readiness, newProbe(name, timeout, fn))
	h.mu.Unlock()
}

// Start launches one goroutine per registered probe, each ticking at the
// given interval. Register all probes before calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := make([]*probe, 0, len(h.liveness)+len(h.readiness))
	probes = append(probes, h.liveness...)
	probes = append(probes, h.readiness...)
	h.mu.Unlock()

	for _, p := range probes {
		go func(p *probe) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			// First tick immediately so /readyz is accurate at boot.
			p.tick(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.tick(ctx)
				}
			}
		}(p)
	}
}

// SetReady flips the manual readiness gate. Graceful shutdown sets it to
// false first so load balancers drain the instance before the listener
// closes.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the manual gate is open and every readiness
// probe currently passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}

	h.mu.RLock()
	probes := h.readiness
	h.mu.RUnlock()

	for _, p := range probes {
		if !p.healthy.Load() {
			return false
		}
	}
	return true
}

// Stop cancels all probe goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

type statusBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 {"status":"ok"} while every liveness
// probe passes, 503 with the failing probes otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	probes := make([]*probe, len(h.liveness))
	copy(probes, h.liveness)
	h.mu.RUnlock()

	writeStatus(w, failuresOf(probes))
}

// ReadyEndpoint serves /readyz: 200 only when the manual gate is open and
// every readiness probe passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	probes := make([]*probe, len(h.readiness))
	copy(probes, h.readiness)
	h.mu.RUnlock()

	failures := failuresOf(probes)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeStatus(w, failures)
}

func failuresOf(probes []*probe) map[string]string {
	failures := make(map[string]string)
	for _, p := range probes {
		if msg, failed := p.failure(); failed {
			failures[p.name] = msg
		}
	}
	return failures
}

func writeStatus(w http.ResponseWriter, failures map[string]string) {
	body := statusBody{Status: "ok"}
	status := http.StatusOK
	if len(failures) > 0 {
		body = statusBody{Status: "unhealthy", Checks: failures}
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Best effort: the status code is already written.
	_ = json.NewEncoder(w).Encode(body)
}
