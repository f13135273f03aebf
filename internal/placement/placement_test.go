package placement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	peers []PeerAddr
	err   error
}

func (f fakeDirectory) ListPeers(ctx context.Context) ([]PeerAddr, error) {
	return f.peers, f.err
}

func TestSubscribeReceivesResolvedPeerSetOnRun(t *testing.T) {
	dir := fakeDirectory{peers: []PeerAddr{
		{NodeID: 1, Address: "127.0.0.1:7070"},
		{NodeID: 2, Address: "127.0.0.1:7071"},
	}}
	w := New(dir, time.Hour)
	sub := w.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	select {
	case set := <-sub:
		require.Len(t, set, 2)
		assert.Equal(t, "127.0.0.1:7070", set[1])
		assert.Equal(t, "127.0.0.1:7071", set[2])
	case <-time.After(time.Second):
		t.Fatal("watcher never broadcast a peer set")
	}
}

func TestDirectoryErrorIsRetriedNotFatal(t *testing.T) {
	dir := fakeDirectory{err: assert.AnError}
	w := New(dir, time.Hour)
	sub := w.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	select {
	case <-sub:
		t.Fatal("expected no broadcast after a failed poll")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnresolvableAddressIsSkippedNotFatal(t *testing.T) {
	dir := fakeDirectory{peers: []PeerAddr{
		{NodeID: 1, Address: "not a valid address"},
		{NodeID: 2, Address: "127.0.0.1:9090"},
	}}
	w := New(dir, time.Hour)
	sub := w.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	select {
	case set := <-sub:
		assert.Len(t, set, 1)
		assert.Equal(t, "127.0.0.1:9090", set[2])
	case <-time.After(time.Second):
		t.Fatal("watcher never broadcast a peer set")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	w := New(StaticDirectory{}, time.Hour)
	sub := w.Subscribe()
	w.Unsubscribe(sub)

	_, ok := <-sub
	assert.False(t, ok)
}

func TestStopEndsRunLoop(t *testing.T) {
	w := New(StaticDirectory{Peers: []PeerAddr{{NodeID: 1, Address: "127.0.0.1:7070"}}}, 5*time.Millisecond)
	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	w.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
