package raftnode

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"

	"github.com/cuemby/loom/internal/catalog"
	"github.com/cuemby/loom/internal/document"
	"github.com/cuemby/loom/internal/raftstore"
	"github.com/cuemby/loom/internal/remote"
	"github.com/cuemby/loom/internal/schema"
)

func booksSchema() *schema.Schema {
	return schema.New([]schema.Field{
		{Name: "title", Type: schema.FieldText, Options: schema.FieldOptions{Indexed: true, Stored: true}},
	})
}

func newSingleNodeDriver(t *testing.T, cat *catalog.Catalog, electionTick int) (*Driver, *raftstore.Store) {
	t.Helper()
	store, err := raftstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	d := New(Config{
		ID:                1,
		Peers:             []raft.Peer{{ID: 1}},
		Storage:           store,
		Catalog:           cat,
		ElectionTick:      electionTick,
		HeartbeatTick:     1,
		HeartbeatInterval: 5 * time.Millisecond,
	})
	return d, store
}

func TestSingleNodeElectsLeaderAndAppliesProposal(t *testing.T) {
	cat := catalog.New("", 0)
	_, err := cat.AddIndex("books", booksSchema(), true)
	require.NoError(t, err)

	d, _ := newSingleNodeDriver(t, cat, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	require.Eventually(t, func() bool {
		return d.node.Status().RaftState == raft.StateLeader
	}, time.Second, 5*time.Millisecond, "single node never became leader")

	env := Envelope{Index: "books", Doc: document.AddDocument{Document: json.RawMessage(`{"title":"moby dick"}`)}}
	data, err := json.Marshal(env)
	require.NoError(t, err)

	proposeCtx, proposeCancel := context.WithTimeout(context.Background(), time.Second)
	defer proposeCancel()
	require.NoError(t, d.Propose(proposeCtx, data))

	h, local, err := cat.GetIndex("books")
	require.NoError(t, err)
	require.True(t, local)
	assert.Equal(t, uint64(1), h.GetOpstamp())
}

func TestProposeRejectedWhenNotLeader(t *testing.T) {
	cat := catalog.New("", 0)
	d, _ := newSingleNodeDriver(t, cat, 10_000)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	proposeCtx, proposeCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer proposeCancel()
	err := d.Propose(proposeCtx, []byte("x"))
	assert.Equal(t, errNotLeader, err)
}

func TestReadIndexFalseWhenNotLeader(t *testing.T) {
	cat := catalog.New("", 0)
	d, _ := newSingleNodeDriver(t, cat, 10_000)

	_, ok := d.ReadIndex("books")
	assert.False(t, ok)
}

func TestStepEnqueuesMessageOnRecvCh(t *testing.T) {
	cat := catalog.New("", 0)
	d, _ := newSingleNodeDriver(t, cat, 10_000)

	msg := raftpb.Message{Type: raftpb.MsgHeartbeat, To: 1, From: 2}
	require.NoError(t, d.Step(context.Background(), msg))

	select {
	case got := <-d.recvCh:
		assert.Equal(t, msg.From, got.From)
	case <-time.After(time.Second):
		t.Fatal("message never reached recvCh")
	}
}

func TestApplyEntryIndexesCommittedWrite(t *testing.T) {
	cat := catalog.New("", 0)
	_, err := cat.AddIndex("books", booksSchema(), true)
	require.NoError(t, err)

	d, _ := newSingleNodeDriver(t, cat, 10_000)

	env := Envelope{Index: "books", Doc: document.AddDocument{Document: json.RawMessage(`{"title":"dune"}`)}}
	data, err := json.Marshal(env)
	require.NoError(t, err)

	done := make(chan error, 1)
	d.mu.Lock()
	d.pending[7] = &Proposal{Data: data, Done: done}
	d.mu.Unlock()

	d.applyEntry(raftpb.Entry{Index: 7, Type: raftpb.EntryNormal, Data: data})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("resolve never fired")
	}

	h, local, err := cat.GetIndex("books")
	require.NoError(t, err)
	require.True(t, local)
	assert.Equal(t, uint64(1), h.GetOpstamp())
}

func TestApplyEntryAppliesLocallyEvenWithRemoteShadowRegistered(t *testing.T) {
	cat := catalog.New("", 0)
	_, err := cat.AddIndex("books", booksSchema(), true)
	require.NoError(t, err)
	// A remote shadow for the same name, as a Placement Watcher update
	// would register once this index is also hosted elsewhere.
	cat.AddRemoteIndex("books", remote.New("books", booksSchema(), nil))

	d, _ := newSingleNodeDriver(t, cat, 10_000)

	env := Envelope{Index: "books", Doc: document.AddDocument{Document: json.RawMessage(`{"title":"dune"}`)}}
	data, err := json.Marshal(env)
	require.NoError(t, err)

	done := make(chan error, 1)
	d.mu.Lock()
	d.pending[9] = &Proposal{Data: data, Done: done}
	d.mu.Unlock()

	// Run this many times: Catalog.AddDocument's coin flip is random, so
	// a single pass could pass by chance even through the remote path.
	for i := 0; i < 20; i++ {
		d.applyEntry(raftpb.Entry{Index: 9, Type: raftpb.EntryNormal, Data: data})
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("resolve never fired")
		}
		done = make(chan error, 1)
		d.mu.Lock()
		d.pending[9] = &Proposal{Data: data, Done: done}
		d.mu.Unlock()
	}

	h, local, err := cat.GetIndex("books")
	require.NoError(t, err)
	require.True(t, local)
	// Every one of the 20 applies must have landed on the local handle,
	// never forwarded to the (peerless, would-error) remote shadow.
	assert.Equal(t, uint64(20), h.GetOpstamp())
}

func TestApplyEntryResolvesErrorOnBadEnvelope(t *testing.T) {
	cat := catalog.New("", 0)
	d, _ := newSingleNodeDriver(t, cat, 10_000)

	done := make(chan error, 1)
	d.mu.Lock()
	d.pending[3] = &Proposal{Data: []byte("not json"), Done: done}
	d.mu.Unlock()

	d.applyEntry(raftpb.Entry{Index: 3, Type: raftpb.EntryNormal, Data: []byte("not json")})

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("resolve never fired")
	}
}

func TestResolveIsNoOpWithoutPendingEntry(t *testing.T) {
	cat := catalog.New("", 0)
	d, _ := newSingleNodeDriver(t, cat, 10_000)

	assert.NotPanics(t, func() { d.resolve(42, nil) })
}
