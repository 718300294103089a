package membership

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/quorum/internal/cluster"
)

func threeNodes() []cluster.NodeInfo {
	return []cluster.NodeInfo{
		{ID: "node-a", Addr: "http://localhost:8081"},
		{ID: "node-b", Addr: "http://localhost:8082"},
		{ID: "node-c", Addr: "http://localhost:8083"},
	}
}

// TestRegistryInitialView verifies the fixed cluster view at construction.
func TestRegistryInitialView(t *testing.T) {
	reg := NewRegistry("node-a", threeNodes(), 30*time.Second)

	assert.Equal(t, cluster.NodeID("node-a"), reg.Self())
	assert.Equal(t, 3, reg.Len())

	nodes := reg.Nodes()
	require.Len(t, nodes, 3)
	assert.Equal(t, cluster.NodeID("node-a"), nodes[0].ID)
	assert.Equal(t, cluster.NodeID("node-c"), nodes[2].ID)

	peers := reg.Peers()
	require.Len(t, peers, 2)
	assert.Equal(t, cluster.NodeID("node-b"), peers[0].ID)

	addr, ok := reg.Addr("node-b")
	require.True(t, ok)
	assert.Equal(t, "http://localhost:8082", addr)

	_, ok = reg.Addr("node-x")
	assert.False(t, ok)

	// Everyone starts alive: initial timestamps are fresh.
	for _, n := range nodes {
		assert.True(t, reg.IsAlive(n.ID), "node %s should start alive", n.ID)
	}
}

// TestRegistryHeartbeatMonotonic verifies that last-seen timestamps never
// move backward, even when a delayed heartbeat arrives out of order.
func TestRegistryHeartbeatMonotonic(t *testing.T) {
	reg := NewRegistry("node-a", threeNodes(), 30*time.Second)

	base := time.Now()
	reg.RecordHeartbeat("node-b", base.Add(10*time.Second))

	seen, ok := reg.LastSeen("node-b")
	require.True(t, ok)
	assert.Equal(t, base.Add(10*time.Second), seen)

	// A heartbeat with an older timestamp must not rewind.
	reg.RecordHeartbeat("node-b", base.Add(5*time.Second))
	seen, _ = reg.LastSeen("node-b")
	assert.Equal(t, base.Add(10*time.Second), seen)

	// Heartbeats from outside the cluster view are ignored.
	reg.RecordHeartbeat("node-x", base)
	_, ok = reg.LastSeen("node-x")
	assert.False(t, ok)
}

// TestRegistryLiveness verifies the liveness timeout boundary.
func TestRegistryLiveness(t *testing.T) {
	now := time.Now()
	reg := NewRegistry("node-a", threeNodes(), 30*time.Second)

	// Advance the clock past the liveness timeout so the construction-time
	// timestamps go stale.
	reg.SetClock(func() time.Time { return now.Add(31 * time.Second) })

	assert.False(t, reg.IsAlive("node-b"), "stale node should not be alive")
	assert.False(t, reg.IsAlive("node-c"))
	assert.False(t, reg.IsAlive("node-x"), "unknown node is never alive")

	reg.RecordHeartbeat("node-b", now.Add(31*time.Second))
	assert.True(t, reg.IsAlive("node-b"))

	alive := reg.Alive()
	assert.Contains(t, alive, cluster.NodeID("node-a"), "self is always alive")
	assert.Contains(t, alive, cluster.NodeID("node-b"))
	assert.NotContains(t, alive, cluster.NodeID("node-c"))
}

// TestRegistryRemove verifies removal semantics, including that the local
// node can never be removed.
func TestRegistryRemove(t *testing.T) {
	reg := NewRegistry("node-a", threeNodes(), 30*time.Second)

	assert.True(t, reg.Remove("node-b"))
	assert.False(t, reg.Remove("node-b"), "second removal is a no-op")
	assert.False(t, reg.Remove("node-a"), "self is never removed")
	assert.Equal(t, 2, reg.Len())
	assert.False(t, reg.IsAlive("node-b"))

	// The configured view is unaffected by removals.
	assert.Equal(t, 3, reg.ViewSize())
}

// TestRegistryRejoinAfterRemoval verifies that a removed view node whose
// traffic reappears is re-admitted with its address intact, while traffic
// from nodes never in the view stays ignored.
func TestRegistryRejoinAfterRemoval(t *testing.T) {
	reg := NewRegistry("node-a", threeNodes(), 30*time.Second)

	require.True(t, reg.Remove("node-b"))
	assert.False(t, reg.IsAlive("node-b"))
	assert.Equal(t, 2, reg.Len())

	// A heartbeat (or vote request) from the removed node brings it back.
	reg.RecordHeartbeat("node-b", time.Now())
	assert.True(t, reg.IsAlive("node-b"))
	assert.Equal(t, 3, reg.Len())

	addr, ok := reg.Addr("node-b")
	require.True(t, ok)
	assert.Equal(t, "http://localhost:8082", addr)

	// Strangers still cannot join.
	reg.RecordHeartbeat("node-x", time.Now())
	_, ok = reg.LastSeen("node-x")
	assert.False(t, ok)
	assert.Equal(t, 3, reg.ViewSize())
}
