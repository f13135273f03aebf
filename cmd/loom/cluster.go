package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"
	"google.golang.org/grpc"

	"github.com/cuemby/loom/internal/bulk"
	"github.com/cuemby/loom/internal/catalog"
	"github.com/cuemby/loom/internal/clusterpb"
	"github.com/cuemby/loom/internal/clusterrpc"
	"github.com/cuemby/loom/internal/httpapi"
	"github.com/cuemby/loom/internal/metricscollector"
	"github.com/cuemby/loom/internal/peerpool"
	"github.com/cuemby/loom/internal/placement"
	"github.com/cuemby/loom/internal/raftnode"
	"github.com/cuemby/loom/internal/raftstore"
	"github.com/cuemby/loom/internal/schema"
	"github.com/cuemby/loom/pkg/log"
	"github.com/cuemby/loom/pkg/metrics"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Start or join a Loom cluster node",
}

var clusterInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap a new Loom cluster with this node as its only member",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := nodeConfigFromFlags(cmd)
		if err != nil {
			return err
		}
		return runNode(cfg, nil)
	},
}

var clusterJoinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join an existing Loom cluster through a seed member",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := nodeConfigFromFlags(cmd)
		if err != nil {
			return err
		}
		seed, _ := cmd.Flags().GetString("seed")
		if seed == "" {
			return fmt.Errorf("--seed is required to join a cluster")
		}
		return runNode(cfg, &seed)
	},
}

func init() {
	clusterCmd.AddCommand(clusterInitCmd)
	clusterCmd.AddCommand(clusterJoinCmd)

	for _, c := range []*cobra.Command{clusterInitCmd, clusterJoinCmd} {
		c.Flags().String("node-id", "1", "This node's raft ID (a positive integer, unique within the cluster)")
		c.Flags().String("raft-addr", "127.0.0.1:7380", "Address the Cluster RPC service (gRPC) listens on")
		c.Flags().String("http-addr", "127.0.0.1:8080", "Address the HTTP search API listens on")
		c.Flags().String("metrics-addr", "127.0.0.1:9090", "Address the Prometheus/health endpoints listen on")
		c.Flags().String("data-dir", "./loom-data", "Data directory for the catalog and raft log")
		c.Flags().Int("writer-mem-mb", 0, "Per-index writer memory budget in MB, recorded on each index handle (not passed to bleve)")
	}
	clusterJoinCmd.Flags().String("seed", "", "Cluster RPC address (host:port) of an existing member")
}

// nodeConfig bundles the flags common to both cluster init and cluster join.
type nodeConfig struct {
	nodeID      uint64
	raftAddr    string
	httpAddr    string
	metricsAddr string
	dataDir     string
	writerMemMB int
}

func nodeConfigFromFlags(cmd *cobra.Command) (nodeConfig, error) {
	idStr, _ := cmd.Flags().GetString("node-id")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil || id == 0 {
		return nodeConfig{}, fmt.Errorf("--node-id must be a positive integer, got %q", idStr)
	}
	raftAddr, _ := cmd.Flags().GetString("raft-addr")
	httpAddr, _ := cmd.Flags().GetString("http-addr")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	writerMemMB, _ := cmd.Flags().GetInt("writer-mem-mb")
	return nodeConfig{
		nodeID:      id,
		raftAddr:    raftAddr,
		httpAddr:    httpAddr,
		metricsAddr: metricsAddr,
		dataDir:     dataDir,
		writerMemMB: writerMemMB,
	}, nil
}

// memberDirectory is the mutable placement.Directory backing a single
// node's view of cluster membership: seeded with itself, and grown
// either by a leader's Join handler or by the peer list a joining node
// receives back from its seed.
type memberDirectory struct {
	mu    sync.RWMutex
	peers map[uint64]string
}

func newMemberDirectory(selfID uint64, selfAddr string) *memberDirectory {
	return &memberDirectory{peers: map[uint64]string{selfID: selfAddr}}
}

func (d *memberDirectory) Add(id uint64, addr string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers[id] = addr
}

func (d *memberDirectory) ListPeers(ctx context.Context) ([]placement.PeerAddr, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]placement.PeerAddr, 0, len(d.peers))
	for id, addr := range d.peers {
		out = append(out, placement.PeerAddr{NodeID: id, Address: addr})
	}
	return out, nil
}

// runNode wires together every component of a Loom cluster member and
// blocks until it receives SIGINT/SIGTERM. seed is nil for "cluster
// init" (single-node bootstrap) and non-nil for "cluster join".
func runNode(cfg nodeConfig, seed *string) error {
	nodeLog := log.WithNodeID(strconv.FormatUint(cfg.nodeID, 10))

	cat := catalog.New(cfg.dataDir, cfg.writerMemMB)

	store, err := raftstore.Open(cfg.dataDir)
	if err != nil {
		return fmt.Errorf("open raft storage: %w", err)
	}

	dir := newMemberDirectory(cfg.nodeID, cfg.raftAddr)
	pool := peerpool.New()
	defer pool.Close()

	var initialPeers []raft.Peer
	restart := false

	if seed != nil {
		conn, seedClient, err := clusterpb.Dial(*seed)
		if err != nil {
			return fmt.Errorf("dial seed %s: %w", *seed, err)
		}
		defer conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		resp, err := seedClient.Join(ctx, &clusterpb.JoinRequest{
			NodeID:  strconv.FormatUint(cfg.nodeID, 10),
			Address: cfg.raftAddr,
		})
		cancel()
		if err != nil {
			return fmt.Errorf("join via seed %s: %w", *seed, err)
		}
		for _, p := range resp.Peers {
			id, err := strconv.ParseUint(p.NodeID, 10, 64)
			if err != nil {
				continue
			}
			dir.Add(id, p.Address)
		}
		// This node starts with no voters of its own; it learns the
		// group's configuration from the Ready loop once the leader's
		// ProposeConfChange for this join commits.
		initialPeers = nil
	} else {
		initialPeers = []raft.Peer{{ID: cfg.nodeID}}
	}

	driver := raftnode.New(raftnode.Config{
		ID:                cfg.nodeID,
		Peers:             initialPeers,
		Storage:           store,
		Catalog:           cat,
		PeerDialer:        pool,
		HeartbeatInterval: 20 * time.Millisecond,
		ElectionTick:      10,
		HeartbeatTick:     1,
		Restart:           restart,
	})

	addPeer := func(info clusterpb.PeerInfo) {
		id, err := strconv.ParseUint(info.NodeID, 10, 64)
		if err != nil {
			nodeLog.Warn().Str("node_id", info.NodeID).Msg("join: non-numeric node id")
			return
		}
		dir.Add(id, info.Address)
		if err := driver.ProposeConfChange(context.Background(), raftpb.ConfChange{
			Type:   raftpb.ConfChangeAddNode,
			NodeID: id,
		}); err != nil {
			nodeLog.Warn().Err(err).Uint64("node_id", id).Msg("join: propose conf change failed")
		}
	}

	listPeers := func() []clusterpb.PeerInfo {
		addrs, _ := dir.ListPeers(context.Background())
		out := make([]clusterpb.PeerInfo, 0, len(addrs))
		for _, a := range addrs {
			out = append(out, clusterpb.PeerInfo{NodeID: strconv.FormatUint(a.NodeID, 10), Address: a.Address})
		}
		return out
	}

	rpcServer := clusterrpc.New(strconv.FormatUint(cfg.nodeID, 10), cat, driver, schema.Parse, listPeers, addPeer)

	gs := grpc.NewServer()
	clusterrpc.Register(gs, rpcServer)
	lis, err := net.Listen("tcp", cfg.raftAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.raftAddr, err)
	}
	go func() {
		if err := gs.Serve(lis); err != nil {
			nodeLog.Error().Err(err).Msg("cluster rpc server stopped")
		}
	}()
	nodeLog.Info().Str("addr", cfg.raftAddr).Msg("cluster rpc listening")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go driver.Run(ctx)

	watcher := placement.New(dir, 5*time.Second)
	go watcher.Run(ctx)
	defer watcher.Stop()
	go pool.Run(ctx, watcher, cfg.nodeID)

	collector := metricscollector.New(cat, driver)
	collector.Start()
	defer collector.Stop()
	metrics.SetVersion(Version)
	metrics.RegisterComponent("raft", true, "started")

	httpServer := httpapi.New(cat, bulk.Config{})
	go func() {
		if err := httpServer.Start(cfg.httpAddr); err != nil && err != http.ErrServerClosed {
			nodeLog.Error().Err(err).Msg("http api server stopped")
		}
	}()
	nodeLog.Info().Str("addr", cfg.httpAddr).Msg("http api listening")
	metrics.RegisterComponent("http", true, "ready")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	metricsServer := &http.Server{Addr: cfg.metricsAddr, Handler: mux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			nodeLog.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	nodeLog.Info().Str("addr", cfg.metricsAddr).Msg("metrics endpoint listening")

	<-ctx.Done()
	nodeLog.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	gs.GracefulStop()
	driver.Stop()

	return nil
}
