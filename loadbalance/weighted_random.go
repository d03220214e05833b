package loadbalance

import (
	"math/rand"

	"remote-call/registry"
)

// WeightedRandomBalancer draws an endpoint with probability proportional to
// its weight. Draining endpoints (weight zero) never enter the draw, so the
// total is always positive and a server can be taken out of rotation by
// re-advertising itself at weight zero without touching its live
// connections.
//
// Best for: heterogeneous servers, where weight mirrors real capacity.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(endpoints []registry.Endpoint) (*registry.Endpoint, error) {
	open := dialable(endpoints)
	if len(open) == 0 {
		return nil, errNoDialable
	}

	totalWeight := 0
	for _, ep := range open {
		totalWeight += ep.Weight
	}

	r := rand.Intn(totalWeight)
	for i := range open {
		r -= open[i].Weight
		if r < 0 {
			return &open[i], nil
		}
	}
	return &open[len(open)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
