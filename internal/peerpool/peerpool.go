// Package peerpool maintains live gRPC connections to every other
// cluster member, fed by the Placement Watcher's PeerSet broadcasts.
// It is the concrete internal/raftnode.PeerDialer used by cmd/loom,
// and the source of the peer client list internal/remote.Handle fans
// its reads and writes out over.
//
// One *grpc.ClientConn per remote node, redialed on membership change,
// keyed by node ID instead of held as a single connection.
package peerpool

import (
	"context"
	"sync"

	"google.golang.org/grpc"

	"github.com/cuemby/loom/internal/clusterpb"
	"github.com/cuemby/loom/internal/placement"
	"github.com/cuemby/loom/pkg/log"
)

// Pool dials and caches one connection per peer node ID.
type Pool struct {
	mu      sync.RWMutex
	conns   map[uint64]*grpc.ClientConn
	clients map[uint64]clusterpb.ClusterClient
}

// New returns an empty Pool.
func New() *Pool {
	return &Pool{
		conns:   make(map[uint64]*grpc.ClientConn),
		clients: make(map[uint64]clusterpb.ClusterClient),
	}
}

// ClientFor satisfies internal/raftnode.PeerDialer.
func (p *Pool) ClientFor(nodeID uint64) (clusterpb.ClusterClient, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.clients[nodeID]
	return c, ok
}

// Clients returns every currently dialed peer client, the form
// internal/remote.Handle.SetPeers consumes.
func (p *Pool) Clients() []clusterpb.ClusterClient {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]clusterpb.ClusterClient, 0, len(p.clients))
	for _, c := range p.clients {
		out = append(out, c)
	}
	return out
}

// Update reconciles the pool against set, dialing new members and
// closing connections for members no longer present. selfID is never
// dialed even if present in set.
func (p *Pool) Update(set placement.PeerSet, selfID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id := range p.conns {
		if _, ok := set[id]; !ok || id == selfID {
			p.conns[id].Close()
			delete(p.conns, id)
			delete(p.clients, id)
		}
	}

	for id, addr := range set {
		if id == selfID {
			continue
		}
		if _, ok := p.conns[id]; ok {
			continue
		}
		conn, client, err := clusterpb.Dial(addr)
		if err != nil {
			log.Logger.Warn().Err(err).Uint64("node_id", id).Str("addr", addr).Msg("peerpool: dial failed")
			continue
		}
		p.conns[id] = conn
		p.clients[id] = client
	}
}

// Run subscribes to watcher and applies every PeerSet it publishes
// until ctx is cancelled.
func (p *Pool) Run(ctx context.Context, watcher *placement.Watcher, selfID uint64) {
	ch := watcher.Subscribe()
	defer watcher.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case set, ok := <-ch:
			if !ok {
				return
			}
			p.Update(set, selfID)
		}
	}
}

// Close closes every held connection.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns {
		c.Close()
	}
	p.conns = make(map[uint64]*grpc.ClientConn)
	p.clients = make(map[uint64]clusterpb.ClusterClient)
}
