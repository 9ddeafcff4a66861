// Package status answers "are the model endpoints up" without waking
// anything. Probes run concurrently so a status check costs one probe
// timeout, not one per endpoint.
package status

import (
	"context"
	"sort"
	"sync"

	"github.com/clinevid/clinevid/internal/domain"
)

// Prober runs bounded liveness checks against registered endpoints.
type Prober interface {
	Names() []string
	Probe(ctx context.Context, name string) domain.EndpointState
	WakeAll(ctx context.Context)
}

// Report is the outcome of one status sweep.
type Report struct {
	Endpoints []domain.EndpointState
}

// Ready reports whether every endpoint answered its probe.
func (r Report) Ready() bool {
	for _, st := range r.Endpoints {
		if st.Status != domain.EndpointReady {
			return false
		}
	}
	return len(r.Endpoints) > 0
}

// Service exposes endpoint status sweeps and wake requests.
type Service struct {
	prober Prober
}

// New creates a status service.
func New(prober Prober) *Service {
	return &Service{prober: prober}
}

// Check probes every registered endpoint concurrently and returns the
// per-endpoint states ordered by name. A status check never retries and
// never waits out a cold start.
func (s *Service) Check(ctx context.Context) Report {
	names := s.prober.Names()
	states := make([]domain.EndpointState, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			states[i] = s.prober.Probe(ctx, name)
		}(i, name)
	}
	wg.Wait()

	sort.Slice(states, func(i, j int) bool { return states[i].Name < states[j].Name })
	return Report{Endpoints: states}
}

// Wake fires wake-up requests at every endpoint and returns immediately.
func (s *Service) Wake(ctx context.Context) {
	s.prober.WakeAll(ctx)
}
