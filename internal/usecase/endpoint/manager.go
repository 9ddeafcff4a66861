// Package endpoint tracks the liveness of scale-to-zero dependencies and
// wraps calls to them with a cold-start retry schedule. The inference and
// embedding endpoints sleep after idle periods; the first request after a
// pause fails with a "sleeping" response and has to be retried while the
// endpoint boots.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clinevid/clinevid/internal/config"
	"github.com/clinevid/clinevid/internal/domain"
	"github.com/clinevid/clinevid/internal/metrics"
)

// clock abstracts time for tests.
type clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Manager tracks endpoint state and runs probe, wake and retrying calls.
type Manager struct {
	probeTimeout   time.Duration
	attemptTimeout time.Duration
	retryDelays    []time.Duration

	mu        sync.RWMutex
	endpoints map[string]domain.Probeable
	states    map[string]domain.EndpointState

	clk    clock
	logger *zap.Logger
}

// New creates a resilience manager from config.
func New(cfg config.ResilienceConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	delays := make([]time.Duration, len(cfg.RetryDelaysSec))
	for i, s := range cfg.RetryDelaysSec {
		delays[i] = time.Duration(s) * time.Second
	}
	return &Manager{
		probeTimeout:   time.Duration(cfg.ProbeTimeoutSec) * time.Second,
		attemptTimeout: time.Duration(cfg.AttemptTimeout) * time.Second,
		retryDelays:    delays,
		endpoints:      make(map[string]domain.Probeable),
		states:         make(map[string]domain.EndpointState),
		clk:            realClock{},
		logger:         logger,
	}
}

// Register adds a named endpoint. Registration happens once at startup,
// before the manager is shared across request goroutines.
func (m *Manager) Register(name string, p domain.Probeable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints[name] = p
	m.states[name] = domain.EndpointState{Name: name, Status: domain.EndpointUnknown}
	metrics.EndpointState.WithLabelValues(name).Set(stateValue(domain.EndpointUnknown))
}

// Names returns the registered endpoint names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.endpoints))
	for name := range m.endpoints {
		names = append(names, name)
	}
	return names
}

// State returns the last recorded state of one endpoint.
func (m *Manager) State(name string) (domain.EndpointState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[name]
	return st, ok
}

// Probe checks one endpoint within the probe timeout and records the result.
// A probe never retries and never waits out a cold start: its job is to
// answer "is it up right now", not to bring it up.
func (m *Manager) Probe(ctx context.Context, name string) domain.EndpointState {
	ep, ok := m.endpoint(name)
	if !ok {
		return domain.EndpointState{Name: name, Status: domain.EndpointUnknown, Detail: "not registered"}
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	err := ep.Probe(probeCtx)
	return m.record(name, err)
}

// Wake fires one wake-up request at the endpoint without waiting for it.
func (m *Manager) Wake(ctx context.Context, name string) {
	if ep, ok := m.endpoint(name); ok {
		ep.Wake(ctx)
	}
}

// WakeAll fires wake-up requests at every registered endpoint.
func (m *Manager) WakeAll(ctx context.Context) {
	for _, name := range m.Names() {
		m.Wake(ctx, name)
	}
}

// Call runs fn against the named endpoint, retrying on cold starts. Each
// sleeping failure waits the next delay in the schedule and tries again;
// exhausting the schedule marks the endpoint errored and returns
// ErrEndpointUnavailable. Non-sleeping errors fail immediately, and context
// cancellation aborts between attempts.
func (m *Manager) Call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	attempts := len(m.retryDelays) + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			metrics.EndpointRetriesTotal.WithLabelValues(name).Inc()
			m.logger.Info("Endpoint sleeping, waiting for cold start",
				zap.String("endpoint", name),
				zap.Int("attempt", attempt),
				zap.Duration("delay", m.retryDelays[attempt-1]))
			if err := m.clk.Sleep(ctx, m.retryDelays[attempt-1]); err != nil {
				return err
			}
		}

		err := m.attempt(ctx, fn)
		m.record(name, err)

		switch {
		case err == nil:
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case errors.Is(err, domain.ErrEndpointSleeping):
			continue
		default:
			return err
		}
	}

	m.logger.Warn("Endpoint did not wake within the retry schedule", zap.String("endpoint", name))
	err := fmt.Errorf("%w: %s did not wake after %d attempts", domain.ErrEndpointUnavailable, name, attempts)
	m.record(name, err)
	return err
}

func (m *Manager) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.attemptTimeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, m.attemptTimeout)
	defer cancel()
	return fn(attemptCtx)
}

func (m *Manager) endpoint(name string) (domain.Probeable, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ep, ok := m.endpoints[name]
	return ep, ok
}

// record updates the stored state from a call or probe outcome.
func (m *Manager) record(name string, err error) domain.EndpointState {
	st := domain.EndpointState{Name: name, LastChecked: m.clk.Now()}
	switch {
	case err == nil:
		st.Status = domain.EndpointReady
	case errors.Is(err, domain.ErrEndpointSleeping):
		st.Status = domain.EndpointSleeping
		st.Detail = err.Error()
	case errors.Is(err, context.Canceled):
		// The caller went away; that says nothing about the endpoint.
		m.mu.RLock()
		prev := m.states[name]
		m.mu.RUnlock()
		return prev
	case errors.Is(err, context.DeadlineExceeded):
		st.Status = domain.EndpointSleeping
		st.Detail = "probe timed out"
	default:
		st.Status = domain.EndpointError
		st.Detail = err.Error()
	}

	m.mu.Lock()
	m.states[name] = st
	m.mu.Unlock()
	metrics.EndpointState.WithLabelValues(name).Set(stateValue(st.Status))
	return st
}

func stateValue(s domain.EndpointStatus) float64 {
	switch s {
	case domain.EndpointReady:
		return 1
	case domain.EndpointSleeping:
		return 2
	case domain.EndpointError:
		return 3
	default:
		return 0
	}
}
