package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"remote-call/registry"
)

// ConsistentHashBalancer keeps repeated calls for the same listener path on
// the same server, so a provider that caches per-member state (memoized
// results, warmed compilation) keeps getting hit where it is warm.
//
// Unlike the rotation and random strategies, the ring is derived from whatever endpoint
// set discovery hands to PickListener: the set is fingerprinted, and the
// ring is rebuilt only when the fingerprint changes. Virtual-node count
// scales with endpoint weight, so a weight-10 server owns twice the key
// space of a weight-5 one, and a draining endpoint (weight zero) simply
// contributes no nodes. When one endpoint leaves, only the listeners it
// owned move — everything else keeps its affinity.
type ConsistentHashBalancer struct {
	mu          sync.Mutex
	replicas    int                          // Virtual nodes per unit of weight
	fingerprint string                       // Identity of the set the ring was built from
	ring        []uint32                     // Sorted hash values on the ring
	nodes       map[uint32]registry.Endpoint // Hash value → endpoint mapping
}

// NewConsistentHashBalancer creates a balancer with 16 virtual nodes per
// unit of weight — enough for statistical uniformity at typical weights
// without making rebuilds expensive.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 16,
		nodes:    make(map[uint32]registry.Endpoint),
	}
}

// PickListener finds the endpoint responsible for a listener path (e.g.
// "math.vector.add") within the given endpoint set.
//
// Note: this is keyed selection, not list rotation, so it does not
// implement the Balancer interface — callers that want affinity pass the
// listener explicitly.
func (b *ConsistentHashBalancer) PickListener(listener string, endpoints []registry.Endpoint) (*registry.Endpoint, error) {
	open := dialable(endpoints)
	if len(open) == 0 {
		return nil, errNoDialable
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.rebuild(open)

	hash := crc32.ChecksumIEEE([]byte(listener))

	// Binary search: first node with hash >= the listener's hash; wrap
	// around to the first node past the top of the ring.
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}

	ep := b.nodes[b.ring[idx]]
	return &ep, nil
}

// rebuild regenerates the ring iff the endpoint set changed since the last
// pick. The fingerprint covers URL and weight: a weight change moves key
// space and must rebuild, a reordered discovery result must not.
func (b *ConsistentHashBalancer) rebuild(open []registry.Endpoint) {
	parts := make([]string, 0, len(open))
	for _, ep := range open {
		parts = append(parts, fmt.Sprintf("%s#%d", ep.URL, ep.Weight))
	}
	sort.Strings(parts)
	fp := strings.Join(parts, ";")
	if fp == b.fingerprint {
		return
	}
	b.fingerprint = fp

	b.ring = b.ring[:0]
	b.nodes = make(map[uint32]registry.Endpoint)
	for _, ep := range open {
		n := b.replicas * ep.Weight
		if n > 1024 {
			n = 1024
		}
		for i := 0; i < n; i++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", ep.URL, i)))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = ep
		}
	}
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
