// Package health serves liveness and readiness probes.
//
// Every probe runs on its own ticker. A probe turns unhealthy only after
// FailureThreshold consecutive failures and healthy again after
// SuccessThreshold consecutive successes, so a single slow ping does not
// flip the pod out of rotation.
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

// Check reports a component problem as an error.
type Check func(ctx context.Context) error

type kind uint8

const (
	liveness kind = iota
	readiness
)

// Option tunes a single probe.
type Option func(*probe)

// Timeout bounds one run of the check. Default 1s.
func Timeout(d time.Duration) Option {
	return func(p *probe) { p.timeout = d }
}

// FailureThreshold sets how many consecutive failures mark the probe
// unhealthy. Default 3.
func FailureThreshold(n int) Option {
	return func(p *probe) { p.failAfter = max(n, 1) }
}

// SuccessThreshold sets how many consecutive successes mark the probe
// healthy again. Default 1.
func SuccessThreshold(n int) Option {
	return func(p *probe) { p.okAfter = max(n, 1) }
}

type probe struct {
	name      string
	kind      kind
	check     Check
	timeout   time.Duration
	failAfter int
	okAfter   int

	healthy atomic.Bool
	reason  atomic.Pointer[string]

	// owned by the probe goroutine
	fails, oks int
}

func (p *probe) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.check(ctx); err != nil {
		msg := err.Error()
		p.reason.Store(&msg)
		p.oks = 0
		if p.fails++; p.fails >= p.failAfter {
			p.healthy.Store(false)
		}
		return
	}
	p.reason.Store(nil)
	p.fails = 0
	if p.oks++; p.oks >= p.okAfter {
		p.healthy.Store(true)
	}
}

func (p *probe) failure() (string, bool) {
	if p.healthy.Load() {
		return "", false
	}
	if r := p.reason.Load(); r != nil {
		return *r, true
	}
	return "check is unhealthy", true
}

// Monitor owns the probes of one process. The zero value is not usable; call
// New.
type Monitor struct {
	ready atomic.Bool

	mu     sync.Mutex
	probes []*probe
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Monitor that reports not ready until SetReady(true).
func New() *Monitor {
	return &Monitor{}
}

// Liveness registers a check that decides whether the process should be
// restarted.
func (m *Monitor) Liveness(name string, check Check, opts ...Option) {
	m.add(name, liveness, check, opts)
}

// Readiness registers a check that decides whether the process should receive
// traffic.
func (m *Monitor) Readiness(name string, check Check, opts ...Option) {
	m.add(name, readiness, check, opts)
}

func (m *Monitor) add(name string, k kind, check Check, opts []Option) {
	p := &probe{
		name:      name,
		kind:      k,
		check:     check,
		timeout:   time.Second,
		failAfter: 3,
		okAfter:   1,
	}
	for _, o := range opts {
		o(p)
	}
	p.healthy.Store(true)

	m.mu.Lock()
	m.probes = append(m.probes, p)
	m.mu.Unlock()
}

// Start runs every registered probe immediately and then once per interval
// until Stop or ctx cancellation.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	for _, p := range m.probes {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			t := time.NewTicker(interval)
			defer t.Stop()
			for {
				p.tick(ctx)
				select {
				case <-ctx.Done():
					return
				case <-t.C:
				}
			}
		}()
	}
}

// Stop cancels the probe goroutines and waits for them to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// SetReady flips the manual readiness gate.
func (m *Monitor) SetReady(ready bool) {
	m.ready.Store(ready)
}

// Ready reports whether the gate is open and all readiness probes pass.
func (m *Monitor) Ready() bool {
	if !m.ready.Load() {
		return false
	}
	return len(m.failures(readiness)) == 0
}

func (m *Monitor) failures(k kind) map[string]string {
	m.mu.Lock()
	probes := slices.Clone(m.probes)
	m.mu.Unlock()

	out := map[string]string{}
	for _, p := range probes {
		if p.kind != k {
			continue
		}
		if reason, failed := p.failure(); failed {
			out[p.name] = reason
		}
	}
	return out
}

// LiveHandler serves /livez.
func (m *Monitor) LiveHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, m.failures(liveness))
	})
}

// ReadyHandler serves /readyz. The manual gate is reported as "_readiness".
func (m *Monitor) ReadyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		failures := m.failures(readiness)
		if !m.ready.Load() {
			failures["_readiness"] = "service is not ready"
		}
		writeStatus(w, failures)
	})
}

// writeStatus renders {"status":"ok"} or
// {"status":"unhealthy","checks":{"name":"reason"}}.
func writeStatus(w http.ResponseWriter, failures map[string]string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	status := http.StatusOK
	if len(failures) == 0 {
		e.Str("ok")
	} else {
		status = http.StatusServiceUnavailable
		e.Str("unhealthy")
		e.FieldStart("checks")
		e.ObjStart()
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			e.FieldStart(name)
			e.Str(failures[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
