// Package registry provides the etcd-backed Registry.
//
// Layout in etcd:
//
//	Key:   /remote-call/{provider}/{url}
//	Value: JSON-encoded Endpoint
//
// Every key of one advertisement hangs off the same lease, and the keys are
// written in one transaction: a half-advertised server is never visible.
// Graceful shutdown revokes the lease — one round trip removes every
// endpoint — while a crash lets the TTL expire and takes them down
// together.
package registry

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/remote-call/"

func endpointKey(provider, url string) string {
	return keyPrefix + provider + "/" + url
}

// EtcdRegistry implements the Registry interface using etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // etcd client connection (thread-safe, shared across goroutines)
}

// NewEtcdRegistry creates a new registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

// Advertise publishes the endpoints atomically under one fresh lease and
// starts the background KeepAlive that renews it until Close.
func (r *EtcdRegistry) Advertise(ctx context.Context, endpoints map[string]Endpoint, ttl int64) (Advertisement, error) {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return nil, err
	}

	ops := make([]clientv3.Op, 0, len(endpoints))
	for provider, ep := range endpoints {
		val, err := json.Marshal(ep)
		if err != nil {
			r.client.Revoke(ctx, lease.ID)
			return nil, err
		}
		ops = append(ops, clientv3.OpPut(endpointKey(provider, ep.URL), string(val), clientv3.WithLease(lease.ID)))
	}

	// One transaction: clients either see the whole server or none of it.
	if _, err := r.client.Txn(ctx).Then(ops...).Commit(); err != nil {
		r.client.Revoke(ctx, lease.ID)
		return nil, err
	}

	// KeepAlive renews the lease until the advertisement is closed. The
	// renewal context is detached from ctx: the advertisement outlives the
	// call that created it.
	keepCtx, cancel := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(keepCtx, lease.ID)
	if err != nil {
		cancel()
		r.client.Revoke(ctx, lease.ID)
		return nil, err
	}
	// Consume KeepAlive responses to prevent the channel from filling up
	go func() {
		for range ch {
		}
	}()

	return &etcdAdvertisement{
		client:  r.client,
		leaseID: lease.ID,
		cancel:  cancel,
	}, nil
}

// etcdAdvertisement keeps one server's lease alive until closed.
type etcdAdvertisement struct {
	client  *clientv3.Client
	leaseID clientv3.LeaseID
	cancel  context.CancelFunc
	once    sync.Once
}

// Close stops the renewal and revokes the lease; etcd drops every endpoint
// bound to it in the same step. Closing twice is a no-op.
func (a *etcdAdvertisement) Close(ctx context.Context) error {
	var err error
	a.once.Do(func() {
		a.cancel()
		_, err = a.client.Revoke(ctx, a.leaseID)
	})
	return err
}

// Discover returns all currently advertised endpoints for a provider.
func (r *EtcdRegistry) Discover(ctx context.Context, provider string) ([]Endpoint, error) {
	resp, err := r.client.Get(ctx, keyPrefix+provider+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	endpoints := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var endpoint Endpoint
		if err := json.Unmarshal(kv.Value, &endpoint); err != nil {
			continue // Skip malformed entries
		}
		endpoints = append(endpoints, endpoint)
	}

	return endpoints, nil
}

// Watch tracks a provider's endpoint set incrementally: one initial read
// pins a revision, then watch events from the next revision mutate a local
// copy of the set. Each change emits the full set; a slow consumer only
// ever sees the most recent one.
func (r *EtcdRegistry) Watch(ctx context.Context, provider string) <-chan []Endpoint {
	out := make(chan []Endpoint, 1)
	prefix := keyPrefix + provider + "/"

	go func() {
		defer close(out)

		resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix())
		if err != nil {
			return
		}
		current := make(map[string]Endpoint)
		for _, kv := range resp.Kvs {
			var ep Endpoint
			if err := json.Unmarshal(kv.Value, &ep); err == nil {
				current[string(kv.Key)] = ep
			}
		}
		emitLatest(out, current)

		// Resume exactly where the read left off — no gap, no replay.
		watchChan := r.client.Watch(ctx, prefix,
			clientv3.WithPrefix(), clientv3.WithRev(resp.Header.Revision+1))
		for wresp := range watchChan {
			changed := false
			for _, ev := range wresp.Events {
				switch ev.Type {
				case clientv3.EventTypePut:
					var ep Endpoint
					if err := json.Unmarshal(ev.Kv.Value, &ep); err != nil {
						continue
					}
					current[string(ev.Kv.Key)] = ep
					changed = true
				case clientv3.EventTypeDelete:
					delete(current, string(ev.Kv.Key))
					changed = true
				}
			}
			if changed {
				emitLatest(out, current)
			}
		}
	}()

	return out
}

// emitLatest replaces whatever snapshot is still sitting unread in the
// channel, so the consumer always wakes up to the newest set.
func emitLatest(out chan []Endpoint, current map[string]Endpoint) {
	snapshot := make([]Endpoint, 0, len(current))
	for _, ep := range current {
		snapshot = append(snapshot, ep)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].URL < snapshot[j].URL })

	select {
	case <-out:
	default:
	}
	out <- snapshot
}
