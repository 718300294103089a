package membership

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/quorum/internal/cluster"
)

// nodeDown is a probe for tests where every stale node is truly gone.
func nodeDown(context.Context, cluster.NodeInfo) bool { return false }

// TestDetectorSweepRemovesDeadNodes verifies that a sweep removes every
// stale node failing its probe, fires onDead exactly once per removal,
// and never touches the local node.
func TestDetectorSweepRemovesDeadNodes(t *testing.T) {
	now := time.Now()
	reg := NewRegistry("node-a", threeNodes(), 30*time.Second)

	var mu sync.Mutex
	var dead []cluster.NodeID

	detector := NewDetector(reg, time.Second, nodeDown)
	detector.SetOnDead(func(id cluster.NodeID) {
		mu.Lock()
		dead = append(dead, id)
		mu.Unlock()
	})

	// Keep node-b fresh, let node-c go stale.
	reg.SetClock(func() time.Time { return now.Add(31 * time.Second) })
	reg.RecordHeartbeat("node-b", now.Add(31*time.Second))

	detector.Sweep()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, dead, 1)
	assert.Equal(t, cluster.NodeID("node-c"), dead[0])
	assert.Equal(t, 2, reg.Len())
	assert.True(t, reg.IsAlive("node-b"))

	// Sweeping again must not re-report the already removed node.
	detector.Sweep()
	assert.Len(t, dead, 1)
}

// TestDetectorProbeRescuesQuietNode covers the stable-cluster case: a
// node whose timestamp aged out only because nothing addressed it. The
// probe answers, so the sweep refreshes it instead of removing it.
func TestDetectorProbeRescuesQuietNode(t *testing.T) {
	reg := NewRegistry("node-a", threeNodes(), 50*time.Millisecond)

	var mu sync.Mutex
	probed := make(map[cluster.NodeID]int)
	alive := func(_ context.Context, node cluster.NodeInfo) bool {
		mu.Lock()
		probed[node.ID]++
		mu.Unlock()
		return true
	}

	detector := NewDetector(reg, time.Second, alive)
	detector.SetOnDead(func(id cluster.NodeID) {
		t.Errorf("healthy node %s reported dead", id)
	})

	// Both peers go quiet past the liveness timeout; neither has failed.
	time.Sleep(60 * time.Millisecond)
	detector.Sweep()

	mu.Lock()
	assert.Equal(t, 1, probed["node-b"])
	assert.Equal(t, 1, probed["node-c"])
	mu.Unlock()

	assert.Equal(t, 3, reg.Len())
	assert.True(t, reg.IsAlive("node-b"))
	assert.True(t, reg.IsAlive("node-c"))
}

// TestDetectorProbesOnlyStaleNodes verifies fresh nodes are never probed.
func TestDetectorProbesOnlyStaleNodes(t *testing.T) {
	now := time.Now()
	reg := NewRegistry("node-a", threeNodes(), 30*time.Second)

	var mu sync.Mutex
	var probed []cluster.NodeID
	alive := func(_ context.Context, node cluster.NodeInfo) bool {
		mu.Lock()
		probed = append(probed, node.ID)
		mu.Unlock()
		return true
	}

	detector := NewDetector(reg, time.Second, alive)

	reg.SetClock(func() time.Time { return now.Add(31 * time.Second) })
	reg.RecordHeartbeat("node-b", now.Add(31*time.Second))

	detector.Sweep()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, probed, 1)
	assert.Equal(t, cluster.NodeID("node-c"), probed[0])
}

// TestDetectorStartStop verifies the periodic loop runs sweeps on its own
// and shuts down cleanly.
func TestDetectorStartStop(t *testing.T) {
	now := time.Now()
	reg := NewRegistry("node-a", threeNodes(), 30*time.Second)
	reg.SetClock(func() time.Time { return now.Add(31 * time.Second) })
	reg.RecordHeartbeat("node-b", now.Add(31*time.Second))

	removed := make(chan cluster.NodeID, 4)
	detector := NewDetector(reg, 20*time.Millisecond, nodeDown)
	detector.SetOnDead(func(id cluster.NodeID) { removed <- id })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go detector.Start(ctx)

	select {
	case id := <-removed:
		assert.Equal(t, cluster.NodeID("node-c"), id)
	case <-time.After(time.Second):
		t.Fatal("detector never swept the stale node")
	}

	detector.Stop()
	assert.Equal(t, 2, reg.Len())
}
