package loadbalance

import (
	"sort"
	"sync"

	"remote-call/registry"
)

// RoundRobinBalancer rotates across the dialable endpoints.
//
// Discovery gives no stable ordering — etcd returns keys sorted, a watch
// snapshot or another registry may not — so a bare counter modulo the list
// length would skip or repeat endpoints whenever the list shifts. The
// rotation is instead anchored to the previously picked URL: endpoints are
// ordered by URL and the pick advances to the first one strictly past the
// anchor, wrapping to the front. Endpoints joining or draining mid-rotation
// slot in without derailing it.
//
// Best for: stateless providers where all servers have similar capacity.
type RoundRobinBalancer struct {
	mu   sync.Mutex
	last string // URL of the previous pick, the rotation anchor
}

func (b *RoundRobinBalancer) Pick(endpoints []registry.Endpoint) (*registry.Endpoint, error) {
	open := dialable(endpoints)
	if len(open) == 0 {
		return nil, errNoDialable
	}
	sort.Slice(open, func(i, j int) bool { return open[i].URL < open[j].URL })

	b.mu.Lock()
	defer b.mu.Unlock()

	idx := sort.Search(len(open), func(i int) bool { return open[i].URL > b.last })
	if idx == len(open) {
		idx = 0
	}
	b.last = open[idx].URL
	return &open[idx], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
