package domain

import (
	"context"
	"time"
)

// EndpointStatus is the observed liveness of a cold-start-capable endpoint.
type EndpointStatus string

const (
	// EndpointUnknown means the endpoint has never been probed.
	EndpointUnknown EndpointStatus = "unknown"
	// EndpointReady means the endpoint answered its last probe or call.
	EndpointReady EndpointStatus = "ready"
	// EndpointSleeping means the endpoint is scaled to zero and cold-starting.
	EndpointSleeping EndpointStatus = "sleeping"
	// EndpointError means the endpoint failed for a reason other than sleeping.
	EndpointError EndpointStatus = "error"
)

// EndpointState is the per-dependency record kept by the resilience manager.
// Never persisted beyond the process lifetime; recomputed on every probe.
type EndpointState struct {
	Name        string
	Status      EndpointStatus
	Detail      string
	LastChecked time.Time
}

// Probeable is implemented by transports whose backing endpoint can be
// probed and woken. Probe must answer within its context deadline and never
// wait out a cold start; Wake fires one request and returns immediately.
type Probeable interface {
	Probe(ctx context.Context) error
	Wake(ctx context.Context)
}
