// Package placement implements the Placement Watcher: a poller over a
// pluggable peer Directory that fans the current peer set out to
// subscribers, publishing once per poll and broadcasting to every
// subscriber's own buffered channel.
package placement

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cuemby/loom/pkg/log"
)

// PeerAddr is one cluster member as reported by a Directory: a raft
// node ID and its dialable address.
type PeerAddr struct {
	NodeID  uint64
	Address string
}

// PeerSet maps node ID to its resolved "host:port" address — the form
// internal/raftnode.PeerDialer and the remote Handle's peer list
// consume.
type PeerSet map[uint64]string

// Directory resolves the current cluster membership. StaticDirectory
// is the one concrete implementation Loom ships; a production
// deployment backed by Consul, DNS SRV, or similar is the documented
// extension point (Non-goal: not implemented here).
type Directory interface {
	ListPeers(ctx context.Context) ([]PeerAddr, error)
}

// StaticDirectory is a fixed peer list, the common case for a
// symmetric cluster started with repeated CLI --peer flags.
type StaticDirectory struct {
	Peers []PeerAddr
}

func (d StaticDirectory) ListPeers(ctx context.Context) ([]PeerAddr, error) {
	return d.Peers, nil
}

// Watcher polls a Directory on a fixed interval and broadcasts the
// resolved PeerSet to every current subscriber, using a "buffer per
// subscriber, drop on a full buffer" policy rather than blocking the
// poll loop on a slow subscriber.
type Watcher struct {
	dir      Directory
	interval time.Duration

	mu          sync.RWMutex
	subscribers map[chan PeerSet]struct{}

	stopCh chan struct{}
	once   sync.Once
}

// New creates a Watcher polling dir every interval.
func New(dir Directory, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Watcher{
		dir:         dir,
		interval:    interval,
		subscribers: make(map[chan PeerSet]struct{}),
		stopCh:      make(chan struct{}),
	}
}

// Subscribe returns a channel that receives the resolved PeerSet after
// every successful poll. The channel is buffered; a subscriber that
// falls behind has stale broadcasts dropped rather than blocking the
// watcher.
func (w *Watcher) Subscribe() <-chan PeerSet {
	ch := make(chan PeerSet, 4)
	w.mu.Lock()
	w.subscribers[ch] = struct{}{}
	w.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel obtained from Subscribe.
func (w *Watcher) Unsubscribe(ch <-chan PeerSet) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for sub := range w.subscribers {
		if sub == ch {
			delete(w.subscribers, sub)
			close(sub)
			return
		}
	}
}

// Run polls on Watcher's interval until ctx is done or Stop is called.
// It performs one poll immediately before entering the ticker loop so
// subscribers created before the first tick don't wait a full interval.
func (w *Watcher) Run(ctx context.Context) {
	w.poll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// Stop ends Run's loop.
func (w *Watcher) Stop() {
	w.once.Do(func() { close(w.stopCh) })
}

func (w *Watcher) poll(ctx context.Context) {
	peers, err := w.dir.ListPeers(ctx)
	if err != nil {
		log.Logger.Error().Err(err).Msg("placement: directory lookup failed, retrying next tick")
		return
	}

	set := make(PeerSet, len(peers))
	for _, p := range peers {
		addr, err := resolveAddr(p.Address)
		if err != nil {
			log.Logger.Error().Str("address", p.Address).Err(err).Msg("placement: failed to resolve peer address")
			continue
		}
		set[p.NodeID] = addr
	}

	w.broadcast(set)
}

func resolveAddr(address string) (string, error) {
	addr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", address, err)
	}
	return addr.String(), nil
}

func (w *Watcher) broadcast(set PeerSet) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for sub := range w.subscribers {
		select {
		case sub <- set:
		default:
			// subscriber buffer full: drop its oldest queued set so the
			// newest one is kept
			select {
			case <-sub:
			default:
			}
			select {
			case sub <- set:
			default:
			}
		}
	}
}
