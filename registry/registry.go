package registry

import "context"

// Endpoint describes one dialable server endpoint for a provider: the full
// WebSocket URL (including the upgrade path that selects the provider),
// plus the metadata the balancers act on.
type Endpoint struct {
	// URL is the dial target, e.g. "ws://10.0.0.5:8080/calc".
	URL string

	// Weight is the relative dial capacity. Zero marks a draining
	// endpoint: it keeps serving the connections it already has, but
	// balancers send no new dials its way.
	Weight int

	// Version is the provider's schema revision. A client whose typed
	// driver matches only one generation of the provider can pin on it
	// (see loadbalance.Versioned).
	Version string
}

// Dialable reports whether new connections should be sent here.
func (e Endpoint) Dialable() bool {
	return e.Weight > 0
}

// Registry is the discovery surface between servers and dialing clients.
//
// A server does not register endpoints one by one: it advertises everything
// it hosts in a single step, tied to a single liveness lease. That shape
// matches how WebSocket servers actually live and die — all the upgrade
// paths of one process share one fate, so they should appear and disappear
// together.
type Registry interface {
	// Advertise publishes one server's endpoints, keyed by provider name,
	// under one lease with the given TTL in seconds. The returned
	// Advertisement keeps the lease alive until Close; if the process
	// dies without closing, every endpoint lapses together once the TTL
	// runs out.
	Advertise(ctx context.Context, endpoints map[string]Endpoint, ttl int64) (Advertisement, error)

	// Discover returns the endpoints currently advertised for a provider.
	Discover(ctx context.Context, provider string) ([]Endpoint, error)

	// Watch emits the provider's full endpoint set whenever it changes,
	// until ctx is cancelled. Only the most recent set is retained for a
	// slow consumer.
	Watch(ctx context.Context, provider string) <-chan []Endpoint
}

// Advertisement is a live registration. Close withdraws every endpoint it
// covers in one step — graceful shutdown makes the server undiscoverable
// immediately instead of waiting out the TTL.
type Advertisement interface {
	Close(ctx context.Context) error
}
