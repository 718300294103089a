package membership

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dreamware/quorum/internal/cluster"
)

// DefaultSweepInterval is how often the detector evaluates liveness.
const DefaultSweepInterval = 5 * time.Second

// DefaultProbeTimeout bounds one direct health check of a stale node.
const DefaultProbeTimeout = 2 * time.Second

// CheckFunc directly probes one node and reports whether it responded.
type CheckFunc func(ctx context.Context, node cluster.NodeInfo) bool

// Detector periodically sweeps a Registry for nodes that have fallen
// outside the liveness timeout. Staleness alone is not a death sentence:
// in a stable cluster only the leader generates traffic, so a follower
// hears nothing from the other followers and their timestamps age out
// while the nodes are perfectly healthy. A stale node is therefore probed
// directly; only a stale node that also fails the probe is removed.
//
// Thread-safe: Start runs the sweep loop until its context is canceled or
// Stop is called.
type Detector struct {
	registry *Registry
	interval time.Duration
	check    CheckFunc
	onDead   func(cluster.NodeID)
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewDetector creates a detector sweeping registry every interval. A nil
// check defaults to an HTTP GET of the node's /health endpoint.
func NewDetector(registry *Registry, interval time.Duration, check CheckFunc) *Detector {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if check == nil {
		check = healthCheck
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Detector{
		registry: registry,
		interval: interval,
		check:    check,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// healthCheck is the default probe: the node is up if its /health
// endpoint answers.
func healthCheck(ctx context.Context, node cluster.NodeInfo) bool {
	var resp struct {
		Status string `json:"status"`
	}
	return cluster.GetJSON(ctx, cluster.BaseURL(node.Addr)+"/health", &resp) == nil
}

// SetOnDead sets the callback invoked when a node is removed as dead.
// The task scheduler registers here so the dead node's in-flight tasks
// return to the pending queue. Must be set before Start.
func (d *Detector) SetOnDead(callback func(cluster.NodeID)) {
	d.onDead = callback
}

// Start runs the sweep loop in the current goroutine until ctx (or the
// detector's internal context) is canceled. Callers typically run it as
// `go detector.Start(ctx)`.
func (d *Detector) Start(ctx context.Context) {
	d.wg.Add(1)
	defer d.wg.Done()

	if ctx == nil {
		ctx = d.ctx
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	log.Printf("failure detector started with interval %v", d.interval)

	for {
		select {
		case <-ticker.C:
			d.Sweep()
		case <-ctx.Done():
			return
		case <-d.ctx.Done():
			return
		}
	}
}

// Stop cancels the sweep loop and waits for it to finish.
func (d *Detector) Stop() {
	d.cancel()
	d.wg.Wait()
}

// Sweep performs one liveness evaluation: every stale node is probed, a
// responsive one gets its timestamp refreshed, an unresponsive one is
// removed and onDead fires for it. Exported so tests and callers can
// force a deterministic sweep without waiting for the ticker.
//
// Probes and callbacks run outside the registry lock; a slow peer cannot
// stall heartbeat receipt.
func (d *Detector) Sweep() {
	for _, id := range d.registry.stale() {
		addr, ok := d.registry.Addr(id)
		if ok && d.probe(cluster.NodeInfo{ID: id, Addr: addr}) {
			d.registry.RecordHeartbeat(id, time.Now())
			continue
		}
		if !d.registry.Remove(id) {
			continue
		}
		log.Printf("node %s marked dead and removed from cluster view", id)
		if d.onDead != nil {
			d.onDead(id)
		}
	}
}

func (d *Detector) probe(node cluster.NodeInfo) bool {
	ctx, cancel := context.WithTimeout(d.ctx, DefaultProbeTimeout)
	defer cancel()
	return d.check(ctx, node)
}
