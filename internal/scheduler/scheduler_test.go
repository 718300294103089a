package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/quorum/internal/cluster"
	"github.com/dreamware/quorum/internal/membership"
)

func twoNodeRegistry() *membership.Registry {
	return membership.NewRegistry("node-a", []cluster.NodeInfo{
		{ID: "node-a", Addr: "addr-a"},
		{ID: "node-b", Addr: "addr-b"},
	}, 30*time.Second)
}

// blockingExec returns an ExecFunc that parks every invocation until
// release is closed, recording which node each task ran on.
func blockingExec() (ExecFunc, chan struct{}, *sync.Map) {
	release := make(chan struct{})
	var ran sync.Map
	exec := func(ctx context.Context, node cluster.NodeID, payload []byte) ([]byte, error) {
		ran.Store(string(payload), node)
		select {
		case <-release:
			return []byte("done"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return exec, release, &ran
}

// TestDispatchRespectsCapacity: two nodes with
// one slot each, three submitted tasks; exactly two dispatch immediately
// and the third stays Pending until a slot frees.
func TestDispatchRespectsCapacity(t *testing.T) {
	reg := twoNodeRegistry()
	exec, release, _ := blockingExec()
	s := NewScheduler(reg, exec, map[cluster.NodeID]int{"node-a": 1, "node-b": 1}, 10*time.Millisecond, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	ids := []string{s.Submit([]byte("t1")), s.Submit([]byte("t2")), s.Submit([]byte("t3"))}
	s.Dispatch()

	st := s.Stats()
	assert.Equal(t, 2, st.Running)
	assert.Equal(t, 1, st.Pending)

	// No capacity anywhere: another pass must not over-assign.
	s.Dispatch()
	assert.Equal(t, 2, s.Stats().Running)

	// Free the slots; the third task gets dispatched and everything
	// completes.
	close(release)
	assert.Eventually(t, func() bool {
		return s.Stats().Completed == 3
	}, 2*time.Second, 10*time.Millisecond)

	for _, id := range ids {
		task, ok := s.Get(id)
		require.True(t, ok)
		assert.Equal(t, StatusCompleted, task.Status)
		assert.Equal(t, []byte("done"), task.Result)
		assert.False(t, task.CompletedAt.IsZero())
	}
}

// TestDispatchTieBreak verifies deterministic placement: most free
// capacity first, lowest NodeID on ties.
func TestDispatchTieBreak(t *testing.T) {
	reg := twoNodeRegistry()
	exec, release, ran := blockingExec()
	defer close(release)
	s := NewScheduler(reg, exec, map[cluster.NodeID]int{"node-a": 2, "node-b": 2}, time.Minute, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	s.Submit([]byte("t1"))
	s.Dispatch()
	s.Submit([]byte("t2"))
	s.Dispatch()

	assert.Eventually(t, func() bool {
		_, ok1 := ran.Load("t1")
		_, ok2 := ran.Load("t2")
		return ok1 && ok2
	}, time.Second, 5*time.Millisecond)

	// Equal free capacity: t1 goes to the lowest ID. Then node-b has more
	// free slots, so t2 goes there.
	n1, _ := ran.Load("t1")
	n2, _ := ran.Load("t2")
	assert.Equal(t, cluster.NodeID("node-a"), n1)
	assert.Equal(t, cluster.NodeID("node-b"), n2)
}

// TestExecutionFailureRecorded verifies a failing task body is recorded
// on the task and releases the node's slot.
func TestExecutionFailureRecorded(t *testing.T) {
	reg := twoNodeRegistry()
	exec := func(ctx context.Context, node cluster.NodeID, payload []byte) ([]byte, error) {
		return nil, errors.New("boom")
	}
	s := NewScheduler(reg, exec, map[cluster.NodeID]int{"node-a": 1}, 10*time.Millisecond, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	id := s.Submit([]byte("t1"))

	assert.Eventually(t, func() bool {
		status, _ := s.Status(id)
		return status == StatusFailed
	}, time.Second, 10*time.Millisecond)

	task, _ := s.Get(id)
	assert.Equal(t, "boom", task.Err)

	// The slot freed up: a second task still dispatches.
	id2 := s.Submit([]byte("t2"))
	assert.Eventually(t, func() bool {
		status, _ := s.Status(id2)
		return status.Terminal()
	}, time.Second, 10*time.Millisecond)
}

// TestReassignOnNodeDeath covers at-least-once semantics: a task running
// on a node that dies is re-enqueued exactly once and eventually runs on
// a surviving node; the abandoned attempt's outcome is discarded.
func TestReassignOnNodeDeath(t *testing.T) {
	reg := membership.NewRegistry("node-a", []cluster.NodeInfo{
		{ID: "node-a", Addr: "addr-a"},
		{ID: "node-b", Addr: "addr-b"},
	}, 30*time.Second)

	// node-b's attempt parks until released; node-a completes instantly.
	releaseB := make(chan struct{})
	var mu sync.Mutex
	runs := map[cluster.NodeID]int{}
	exec := func(ctx context.Context, node cluster.NodeID, payload []byte) ([]byte, error) {
		mu.Lock()
		runs[node]++
		mu.Unlock()
		if node == "node-b" {
			<-releaseB
			return []byte("from-b"), nil
		}
		return []byte("from-a"), nil
	}

	// Only node-b has capacity at first, forcing placement there.
	s := NewScheduler(reg, exec, map[cluster.NodeID]int{"node-b": 1}, time.Minute, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	id := s.Submit([]byte("t1"))
	s.Dispatch()

	task, _ := s.Get(id)
	require.Equal(t, StatusRunning, task.Status)
	require.Equal(t, cluster.NodeID("node-b"), task.AssignedNode)

	// node-b dies. The task returns to pending; its capacity is gone.
	reg.Remove("node-b")
	s.OnNodeDead("node-b")

	task, _ = s.Get(id)
	assert.Equal(t, StatusPending, task.Status)
	assert.Empty(t, task.AssignedNode)

	// A second death report must not re-enqueue again.
	s.OnNodeDead("node-b")
	assert.Equal(t, 1, s.Stats().Pending)

	// Give node-a capacity; the task runs there.
	s.SetCapacity("node-a", 1)
	s.Dispatch()

	assert.Eventually(t, func() bool {
		status, _ := s.Status(id)
		return status == StatusCompleted
	}, time.Second, 5*time.Millisecond)

	task, _ = s.Get(id)
	assert.Equal(t, []byte("from-a"), task.Result)

	// Let the abandoned node-b attempt finish: its outcome is discarded.
	close(releaseB)
	time.Sleep(20 * time.Millisecond)
	task, _ = s.Get(id)
	assert.Equal(t, []byte("from-a"), task.Result, "stale attempt must not overwrite")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, runs["node-b"])
	assert.Equal(t, 1, runs["node-a"])
}

// TestDispatchSkipsDeadNodes verifies tasks are never placed on nodes
// failing the liveness check even if they still hold capacity entries.
func TestDispatchSkipsDeadNodes(t *testing.T) {
	reg := twoNodeRegistry()
	now := time.Now()
	reg.SetClock(func() time.Time { return now.Add(31 * time.Second) })
	reg.RecordHeartbeat("node-a", now.Add(31*time.Second)) // only node-a alive

	exec, release, ran := blockingExec()
	defer close(release)
	s := NewScheduler(reg, exec, map[cluster.NodeID]int{"node-a": 1, "node-b": 5}, time.Minute, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	s.Submit([]byte("t1"))
	s.Dispatch()

	assert.Eventually(t, func() bool {
		_, ok := ran.Load("t1")
		return ok
	}, time.Second, 5*time.Millisecond)
	node, _ := ran.Load("t1")
	assert.Equal(t, cluster.NodeID("node-a"), node)
}
