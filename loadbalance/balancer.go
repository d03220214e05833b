// Package loadbalance decides which advertised endpoint a client dials for
// a provider. The endpoint metadata drives every strategy: Weight is
// relative dial capacity and zero marks a draining endpoint (it keeps its
// existing connections but receives no new dials), Version is the
// provider's schema revision a client can pin on.
package loadbalance

import (
	"fmt"

	"remote-call/registry"
)

// Balancer is the interface for endpoint selection strategies.
// A client calls Pick() before dialing to choose a target endpoint.
type Balancer interface {
	// Pick selects one endpoint from the discovered list.
	// Called on every dial — must be goroutine-safe.
	Pick(endpoints []registry.Endpoint) (*registry.Endpoint, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// dialable filters the endpoints open for new connections. Every strategy
// applies this first, so a draining server disappears from rotation the
// moment its weight drops to zero.
func dialable(endpoints []registry.Endpoint) []registry.Endpoint {
	open := make([]registry.Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if ep.Dialable() {
			open = append(open, ep)
		}
	}
	return open
}

var errNoDialable = fmt.Errorf("no dialable endpoints (all absent or draining)")

// Versioned restricts another balancer to endpoints advertising one schema
// revision. A client whose typed driver matches a single provider
// generation wraps its strategy:
//
//	bal := &loadbalance.Versioned{Want: "2.1", Next: &loadbalance.RoundRobinBalancer{}}
type Versioned struct {
	Want string
	Next Balancer
}

func (v *Versioned) Pick(endpoints []registry.Endpoint) (*registry.Endpoint, error) {
	matching := make([]registry.Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if ep.Version == v.Want {
			matching = append(matching, ep)
		}
	}
	if len(matching) == 0 {
		return nil, fmt.Errorf("no endpoints advertising version %s", v.Want)
	}
	return v.Next.Pick(matching)
}

func (v *Versioned) Name() string {
	return v.Next.Name() + "@" + v.Want
}
