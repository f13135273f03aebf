// Package raftnode implements the Raft Node Driver: a
// Driver wrapping go.etcd.io/raft/v3's raw raft.Node, grounded on
// Dgraph's tick/Step/Ready/Advance loop shape (worker/draft.go) — the
// idiomatic Go translation of a manual Ready-handling contract, as
// opposed to a higher-level FSM library.
package raftnode

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"

	"github.com/cuemby/loom/internal/catalog"
	"github.com/cuemby/loom/internal/clusterpb"
	"github.com/cuemby/loom/internal/document"
	"github.com/cuemby/loom/internal/errs"
	"github.com/cuemby/loom/internal/raftstore"
	"github.com/cuemby/loom/pkg/log"
	"github.com/cuemby/loom/pkg/metrics"
)

// Envelope is the JSON payload of one normal (non-conf-change) raft
// entry: the target index name plus the document write to apply.
type Envelope struct {
	Index string                 `json:"index"`
	Doc   document.AddDocument   `json:"doc"`
}

// Proposal is one caller-submitted write awaiting commit.
type Proposal struct {
	Data []byte
	Done chan error
}

// PeerDialer resolves a node ID to its ClusterClient, backed by the
// Placement Watcher's current address map.
type PeerDialer interface {
	ClientFor(nodeID uint64) (clusterpb.ClusterClient, bool)
}

// Driver wraps raft.Node with the Ready-handling loop.
type Driver struct {
	id      uint64
	node    raft.Node
	storage *raftstore.Store
	catalog *catalog.Catalog
	peers   PeerDialer

	heartbeatInterval time.Duration
	lastTick          time.Time

	recvCh    chan raftpb.Message
	proposeCh chan *Proposal

	mu            sync.Mutex
	pending       map[uint64]*Proposal
	termStartIdx  uint64
	peerCount     int

	stopCh chan struct{}
}

// Config bundles Driver construction parameters.
type Config struct {
	ID                uint64
	Peers             []raft.Peer
	Storage           *raftstore.Store
	Catalog           *catalog.Catalog
	PeerDialer        PeerDialer
	HeartbeatInterval time.Duration
	ElectionTick      int
	HeartbeatTick     int
	Restart           bool
}

// New starts (or restarts) a raft.Node and returns a ready Driver.
func New(cfg Config) *Driver {
	rc := &raft.Config{
		ID:              cfg.ID,
		ElectionTick:    cfg.ElectionTick,
		HeartbeatTick:   cfg.HeartbeatTick,
		Storage:         cfg.Storage,
		MaxSizePerMsg:   1024 * 1024,
		MaxInflightMsgs: 256,
	}

	var node raft.Node
	if cfg.Restart {
		node = raft.RestartNode(rc)
	} else {
		node = raft.StartNode(rc, cfg.Peers)
	}

	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}

	return &Driver{
		id:                cfg.ID,
		node:              node,
		storage:           cfg.Storage,
		catalog:           cfg.Catalog,
		peers:             cfg.PeerDialer,
		heartbeatInterval: interval,
		lastTick:          time.Now(),
		recvCh:            make(chan raftpb.Message, 256),
		proposeCh:         make(chan *Proposal, 256),
		pending:           make(map[uint64]*Proposal),
		peerCount:         len(cfg.Peers),
		stopCh:            make(chan struct{}),
	}
}

// Step enqueues an inbound message received over the Cluster RPC
// service (internal/clusterrpc.Server.RaftRequest).
func (d *Driver) Step(ctx context.Context, msg raftpb.Message) error {
	select {
	case d.recvCh <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Propose submits data for replication, returning once the
// corresponding entry is either applied or the Driver stops.
func (d *Driver) Propose(ctx context.Context, data []byte) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftProposeDuration)

	p := &Proposal{Data: data, Done: make(chan error, 1)}
	select {
	case d.proposeCh <- p:
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopCh:
		return errDriverStopped
	}
	select {
	case err := <-p.Done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopCh:
		return errDriverStopped
	}
}

var errDriverStopped = driverStoppedError{}

type driverStoppedError struct{}

func (driverStoppedError) Error() string { return "raft driver stopped" }

// Stop ends Run's loop.
func (d *Driver) Stop() { close(d.stopCh) }

// Run is the six-step Ready loop. Intended to be
// launched in its own goroutine.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			d.node.Stop()
			return
		case <-ctx.Done():
			d.node.Stop()
			return

		case msg := <-d.recvCh: // step 1
			if err := d.node.Step(ctx, msg); err != nil {
				log.Logger.Error().Err(err).Msg("raft: step failed")
			}

		case <-ticker.C: // step 2
			d.node.Tick()

		case p := <-d.proposeCh: // step 3 (only meaningful when leader; Propose is a no-op cost otherwise)
			if d.node.Status().RaftState != raft.StateLeader {
				p.Done <- errNotLeader
				continue
			}
			if err := d.node.Propose(ctx, p.Data); err != nil {
				p.Done <- err
				continue
			}
			d.trackPending(p)

		case rd := <-d.node.Ready(): // step 4
			d.handleReady(ctx, rd)
		}
	}
}

var errNotLeader = notLeaderError{}

type notLeaderError struct{}

func (notLeaderError) Error() string { return "not leader" }

// trackPending records p under the index it will be committed at,
// inferred as one past the current last index — a Propose call only
// appends exactly one entry.
func (d *Driver) trackPending(p *Proposal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, _ := d.storage.LastIndex()
	d.pending[last+1] = p
}

func (d *Driver) handleReady(ctx context.Context, rd raft.Ready) {
	if rd.SoftState != nil && rd.SoftState.RaftState == raft.StateLeader {
		if last, err := d.storage.LastIndex(); err == nil {
			d.termStartIdx = last + 1
		}
	}

	for _, msg := range rd.Messages {
		d.sendMessage(ctx, msg)
	}

	if !raft.IsEmptySnap(rd.Snapshot) {
		if err := d.storage.ApplySnapshot(rd.Snapshot); err != nil {
			log.Logger.Error().Err(err).Msg("raft: apply snapshot failed")
		}
	}

	if len(rd.Entries) > 0 {
		if err := d.storage.AppendEntries(rd.Entries); err != nil {
			log.Logger.Error().Err(err).Msg("raft: append entries failed")
		}
	}

	if !raft.IsEmptyHardState(rd.HardState) {
		if err := d.storage.SetHardState(rd.HardState); err != nil {
			log.Logger.Error().Err(err).Msg("raft: persist hard state failed")
		}
	}

	for _, entry := range rd.CommittedEntries {
		d.applyEntry(entry)
	}

	d.node.Advance()
}

func (d *Driver) sendMessage(ctx context.Context, msg raftpb.Message) {
	if d.peers == nil {
		return
	}
	client, ok := d.peers.ClientFor(msg.To)
	if !ok {
		log.Logger.Warn().Uint64("to", msg.To).Msg("raft: no peer address for message target")
		return
	}
	data, err := msg.Marshal()
	if err != nil {
		log.Logger.Error().Err(err).Msg("raft: marshal message failed")
		return
	}
	if _, err := client.RaftRequest(ctx, &clusterpb.RaftRequestMessage{Data: data}); err != nil {
		log.Logger.Error().Err(err).Uint64("to", msg.To).Msg("raft: send to peer failed")
	}
}

func (d *Driver) applyEntry(entry raftpb.Entry) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftApplyDuration)

	switch entry.Type {
	case raftpb.EntryConfChange:
		var cc raftpb.ConfChange
		if err := cc.Unmarshal(entry.Data); err != nil {
			log.Logger.Error().Err(err).Msg("raft: unmarshal conf change failed")
			return
		}
		cs := d.node.ApplyConfChange(cc)
		if err := d.storage.SetConfState(*cs); err != nil {
			log.Logger.Error().Err(err).Msg("raft: persist conf state failed")
		}
		d.mu.Lock()
		switch cc.Type {
		case raftpb.ConfChangeAddNode, raftpb.ConfChangeAddLearnerNode:
			d.peerCount++
		case raftpb.ConfChangeRemoveNode:
			d.peerCount--
		}
		d.mu.Unlock()
		d.resolve(entry.Index, nil)

	default:
		if len(entry.Data) == 0 {
			d.resolve(entry.Index, nil)
			return
		}
		var env Envelope
		if err := json.Unmarshal(entry.Data, &env); err != nil {
			log.Logger.Error().Err(err).Msg("raft: decode envelope failed")
			d.resolve(entry.Index, err)
			return
		}
		err := d.applyToLocalHandle(env)
		if err != nil {
			log.Logger.Error().Str("index", env.Index).Err(err).Msg("raft: apply committed write failed")
		}
		d.resolve(entry.Index, err)
	}
}

// applyToLocalHandle applies a committed entry directly to this
// node's own local Handle, bypassing Catalog.AddDocument's
// local/remote placement coin: a Raft-committed write is already
// ordered by consensus and must land on this replica, never be
// forwarded over RPC to a different node.
func (d *Driver) applyToLocalHandle(env Envelope) error {
	h, local, err := d.catalog.GetIndex(env.Index)
	if err != nil {
		return err
	}
	if !local {
		return errs.UnknownIndex(env.Index)
	}
	return h.AddDocument(env.Doc)
}

func (d *Driver) resolve(index uint64, err error) {
	d.mu.Lock()
	p, ok := d.pending[index]
	if ok {
		delete(d.pending, index)
	}
	d.mu.Unlock()
	if ok {
		p.Done <- err
	}
}

// ReadIndex special-cases a leader responding to its own committed
// term: it returns the queried index's current
// opstamp directly instead of going through the normal Ready path.
func (d *Driver) ReadIndex(indexName string) (uint64, bool) {
	st := d.node.Status()
	if st.RaftState != raft.StateLeader || st.Lead != d.id {
		return 0, false
	}
	if st.Commit < d.termStartIdx {
		return 0, false
	}
	h, local, err := d.catalog.GetIndex(indexName)
	if err != nil || !local {
		return 0, false
	}
	return h.GetOpstamp(), true
}

// TransferLeadership initiates a leadership transfer to target
// (leader side).
func (d *Driver) TransferLeadership(ctx context.Context, target uint64) {
	d.node.TransferLeadership(ctx, d.id, target)
}

// ProposeConfChange submits a membership change (new node joining, or
// an existing node leaving) to the raft log. Only the leader's
// proposal is ever actually committed; followers forward it through
// the usual message-routing path.
func (d *Driver) ProposeConfChange(ctx context.Context, cc raftpb.ConfChange) error {
	return d.node.ProposeConfChange(ctx, cc)
}

// Status exposes the underlying raft.Node's status for metrics
// collection and diagnostics.
func (d *Driver) Status() raft.Status {
	return d.node.Status()
}

// LastIndex returns the last index durably appended to the raft log.
func (d *Driver) LastIndex() (uint64, error) {
	return d.storage.LastIndex()
}

// PeerCount returns the current number of voters/learners tracked by
// this node's conf state.
func (d *Driver) PeerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peerCount
}
