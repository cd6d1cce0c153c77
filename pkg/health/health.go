// Package health serves liveness and readiness probes backed by periodic
// checks. A check is reported failing only after a configurable number of
// consecutive failures so that a single slow ping does not flap the probe.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// Kind selects the probe a check contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

type probe struct {
	kind    Kind
	name    string
	timeout time.Duration
	check   Check

	// streak is only touched by the Run loop.
	streak int
	failed atomic.Pointer[string]
}

// Registry holds the registered checks and the manual readiness switch.
type Registry struct {
	threshold int
	ready     atomic.Bool

	mu     sync.RWMutex
	probes []*probe
}

// New creates a Registry that marks a check failing after threshold
// consecutive errors. The service starts not ready.
func New(threshold int) *Registry {
	if threshold < 1 {
		threshold = 1
	}
	return &Registry{threshold: threshold}
}

// Add registers a check. Register everything before calling Run.
func (r *Registry) Add(kind Kind, name string, timeout time.Duration, check Check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes = append(r.probes, &probe{kind: kind, name: name, timeout: timeout, check: check})
}

// SetReady flips the manual readiness switch. It is turned off first during
// graceful shutdown.
func (r *Registry) SetReady(ready bool) {
	r.ready.Store(ready)
}

// Run evaluates every check once immediately and then on each tick until ctx
// is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.evaluate(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Registry) evaluate(ctx context.Context) {
	r.mu.RLock()
	probes := slices.Clone(r.probes)
	r.mu.RUnlock()

	for _, p := range probes {
		checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.check(checkCtx)
		cancel()

		if err == nil {
			p.streak = 0
			p.failed.Store(nil)
			continue
		}
		p.streak++
		if p.streak >= r.threshold {
			msg := err.Error()
			p.failed.Store(&msg)
		}
	}
}

func (r *Registry) failures(kind Kind) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string)
	for _, p := range r.probes {
		if p.kind != kind {
			continue
		}
		if msg := p.failed.Load(); msg != nil {
			out[p.name] = *msg
		}
	}
	return out
}

// Live serves the liveness probe.
func (r *Registry) Live(w http.ResponseWriter, _ *http.Request) {
	write(w, r.failures(Liveness))
}

// Ready serves the readiness probe. It fails while the manual switch is off.
func (r *Registry) Ready(w http.ResponseWriter, _ *http.Request) {
	failures := r.failures(Readiness)
	if !r.ready.Load() {
		failures["service"] = "not ready"
	}
	write(w, failures)
}

func write(w http.ResponseWriter, failures map[string]string) {
	status, code := "ok", http.StatusOK
	if len(failures) > 0 {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(status) })
		if len(failures) == 0 {
			return
		}
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		slices.Sort(names)
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(failures[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
