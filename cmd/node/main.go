// Package main implements the Quorum node daemon. Every node is a
// symmetric cluster member running the full coordination core:
//   - Membership registry + failure detector
//   - Leader election (Follower/Candidate/Leader)
//   - Task scheduler with capacity-based placement
//   - Lease lock service
//   - Replicated pull-through cache
//
// Architecture:
//
//	┌──────────────────────────────────────────┐
//	│                 Node                      │
//	├──────────────────────────────────────────┤
//	│  HTTP API:                               │
//	│    /health            - Liveness probe   │
//	│    /cluster/heartbeat - Leader beacon    │
//	│    /cluster/vote      - Vote requests    │
//	│    /cluster/state     - Observability    │
//	│    /tasks             - Submit/status    │
//	│    /tasks/execute     - Peer execution   │
//	│    /locks/*           - Lease locks      │
//	│    /cache/*           - Cached values    │
//	├──────────────────────────────────────────┤
//	│  Periodic loops (one goroutine each):    │
//	│    failure sweep, election tick,         │
//	│    dispatch tick, lease renewal,         │
//	│    cache janitor                         │
//	└──────────────────────────────────────────┘
//
// Configuration: an optional YAML file (-config), overridden by flags.
//
//	quorum-node -id node-1 -listen :8081 -addr http://10.0.0.1:8081 \
//	    -peers node-2=http://10.0.0.2:8081,node-3=http://10.0.0.3:8081
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dreamware/quorum/internal/cache"
	"github.com/dreamware/quorum/internal/cluster"
	"github.com/dreamware/quorum/internal/config"
	"github.com/dreamware/quorum/internal/election"
	"github.com/dreamware/quorum/internal/lease"
	"github.com/dreamware/quorum/internal/membership"
	"github.com/dreamware/quorum/internal/scheduler"
)

// logFatal is a variable to allow mocking log.Fatalf in tests.
var logFatal = log.Fatalf

var (
	configPath = flag.String("config", "", "Path to configuration file")
	nodeID     = flag.String("id", "", "Unique node ID")
	listen     = flag.String("listen", "", "Listen address")
	addr       = flag.String("addr", "", "Advertised address for peers")
	peers      = flag.String("peers", "", "Comma-separated id=addr peer list")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logFatal("Failed to load configuration: %v", err)
		return
	}

	// Flags override the file.
	if *nodeID != "" {
		cfg.Node.ID = *nodeID
	}
	if *listen != "" {
		cfg.Node.Listen = *listen
	}
	if *addr != "" {
		cfg.Node.Addr = *addr
	}
	if *peers != "" {
		cfg.Node.Peers = strings.Split(*peers, ",")
	}

	if cfg.Node.ID == "" {
		logFatal("node id is required (-id or node.id)")
		return
	}

	node, err := newNode(cfg)
	if err != nil {
		logFatal("Failed to build node: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
	}()

	log.Printf("Starting quorum node %s on %s", cfg.Node.ID, cfg.Node.Listen)
	if err := node.run(ctx); err != nil {
		logFatal("Node error: %v", err)
	}
	log.Printf("quorum node %s stopped", cfg.Node.ID)
}

// node bundles the coordination core's components with their HTTP surface.
type node struct {
	cfg       *config.Config
	self      cluster.NodeInfo
	registry  *membership.Registry
	detector  *membership.Detector
	elector   *election.Elector
	scheduler *scheduler.Scheduler
	locks     *lease.Service
	cache     *cache.Cache
	transport cluster.Transport
}

// newNode wires the coordination core from configuration. The cluster
// view (self + peers) is fixed here.
func newNode(cfg *config.Config) (*node, error) {
	self := cluster.NodeInfo{ID: cluster.NodeID(cfg.Node.ID), Addr: cfg.Node.Addr}

	view := []cluster.NodeInfo{self}
	for _, pair := range config.ParsePeers(cfg.Node.Peers) {
		view = append(view, cluster.NodeInfo{ID: cluster.NodeID(pair[0]), Addr: pair[1]})
	}

	registry := membership.NewRegistry(self.ID, view,
		time.Duration(cfg.Membership.LivenessTimeoutMS)*time.Millisecond)
	transport := cluster.NewHTTPTransport(2 * time.Second)

	elector := election.NewElector(self.ID, registry, transport, election.Options{
		ElectionTimeoutMin: time.Duration(cfg.Election.TimeoutMinMS) * time.Millisecond,
		ElectionTimeoutMax: time.Duration(cfg.Election.TimeoutMaxMS) * time.Millisecond,
		HeartbeatInterval:  time.Duration(cfg.Election.HeartbeatIntervalMS) * time.Millisecond,
	})

	n := &node{
		cfg:       cfg,
		self:      self,
		registry:  registry,
		elector:   elector,
		transport: transport,
	}

	capacity := make(map[cluster.NodeID]int, len(view))
	for _, member := range view {
		capacity[member.ID] = cfg.Scheduler.NodeCapacity
	}
	n.scheduler = scheduler.NewScheduler(registry, n.executeTask, capacity,
		time.Duration(cfg.Scheduler.DispatchIntervalMS)*time.Millisecond,
		cfg.Scheduler.Workers)

	// nil check: the detector probes a quiet node's /health before
	// declaring it dead. In a stable cluster only the leader talks, so
	// followers age out on each other without ever having failed.
	n.detector = membership.NewDetector(registry,
		time.Duration(cfg.Membership.SweepIntervalMS)*time.Millisecond, nil)
	n.detector.SetOnDead(n.scheduler.OnNodeDead)

	n.locks = lease.NewService(self.ID, lease.Options{
		LeaseDuration: time.Duration(cfg.Lease.DurationMS) * time.Millisecond,
		PollInterval:  time.Duration(cfg.Lease.PollIntervalMS) * time.Millisecond,
		RenewInterval: time.Duration(cfg.Lease.RenewIntervalMS) * time.Millisecond,
		RenewWindow:   time.Duration(cfg.Lease.RenewWindowMS) * time.Millisecond,
	})

	n.cache = cache.New(cache.Options{
		Capacity:      cfg.Cache.Capacity,
		RefreshTTL:    time.Duration(cfg.Cache.RefreshTTLMS) * time.Millisecond,
		SweepInterval: time.Duration(cfg.Cache.SweepIntervalMS) * time.Millisecond,
		Peers:         n.alivePeers,
		Fetch:         n.fetchFromPeer,
	})

	return n, nil
}

// run starts every periodic loop and serves the HTTP API until ctx is
// canceled.
func (n *node) run(ctx context.Context) error {
	go n.detector.Start(ctx)
	go n.elector.Start(ctx)
	n.scheduler.Start(ctx)
	go n.locks.Start(ctx)
	go n.cache.Start(ctx)

	server := &http.Server{
		Addr:    n.cfg.Node.Listen,
		Handler: n.routes(),
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}

	n.detector.Stop()
	n.elector.Stop()
	n.scheduler.Stop()
	n.locks.Stop()
	n.cache.Stop()
	return nil
}

// alivePeers lists the live remote members, the cache's pull-through
// candidates.
func (n *node) alivePeers() []cluster.NodeInfo {
	var out []cluster.NodeInfo
	for _, peer := range n.registry.Peers() {
		if n.registry.IsAlive(peer.ID) {
			out = append(out, peer)
		}
	}
	return out
}

// fetchFromPeer asks one peer's local store for a key.
func (n *node) fetchFromPeer(ctx context.Context, peer cluster.NodeInfo, key string) ([]byte, bool, error) {
	payload, err := cluster.EncodePayload(cluster.CacheFetchPayload{Key: key})
	if err != nil {
		return nil, false, err
	}
	resp, err := n.transport.Send(ctx, peer.Addr, cluster.Message{
		Kind:    cluster.KindCacheFetch,
		From:    n.self.ID,
		Payload: payload,
	})
	if err != nil {
		return nil, false, err
	}
	var value cluster.CacheValuePayload
	if err := cluster.DecodePayload(resp.Payload, &value); err != nil {
		return nil, false, err
	}
	return value.Value, value.Found, nil
}

// executeTask is the scheduler's execution sink. Work placed on the
// local node runs in-process; work placed on a peer is posted to its
// /tasks/execute endpoint.
func (n *node) executeTask(ctx context.Context, target cluster.NodeID, payload []byte) ([]byte, error) {
	if target == n.self.ID {
		return runPayload(payload), nil
	}

	addr, ok := n.registry.Addr(target)
	if !ok {
		// The node vanished between dispatch and execution; the failure
		// path returns the task to the queue via the detector.
		return nil, errExecNodeGone
	}

	var resp executeResponse
	err := cluster.PostJSON(ctx, cluster.BaseURL(addr)+"/tasks/execute",
		executeRequest{Payload: payload}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// runPayload is the built-in task body: an echo executor. Real
// deployments replace this with a domain-specific sink; the scheduler
// only cares about the success/failure contract.
func runPayload(payload []byte) []byte {
	out := make([]byte, len(payload))
	copy(out, payload)
	return out
}
