package lease

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/quorum/internal/cluster"
)

// clock is a controllable time source for lease tests.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Now()} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(self cluster.NodeID) (*Service, *clock) {
	c := newClock()
	s := NewService(self, Options{LeaseDuration: 30 * time.Second})
	s.SetClock(c.Now)
	return s, c
}

// TestLeaseExclusivity: A acquires, B is denied
// immediately, and after expiry without renewal B's next attempt wins.
func TestLeaseExclusivity(t *testing.T) {
	s, c := newTestService("node-a")

	require.True(t, s.TryAcquire("db-migration", "node-a"))

	holder, held := s.Holder("db-migration")
	require.True(t, held)
	assert.Equal(t, cluster.NodeID("node-a"), holder)

	// Denied while the lease is live; B joins the waiters once.
	assert.False(t, s.TryAcquire("db-migration", "node-b"))
	assert.False(t, s.TryAcquire("db-migration", "node-b"))
	assert.Equal(t, []cluster.NodeID{"node-b"}, s.Waiters("db-migration"))

	// Past expiry the lease is reclaimable.
	c.Advance(31 * time.Second)
	assert.True(t, s.TryAcquire("db-migration", "node-b"))

	holder, held = s.Holder("db-migration")
	require.True(t, held)
	assert.Equal(t, cluster.NodeID("node-b"), holder)
}

// TestReacquireExtends verifies self-acquisition is a renewal: the expiry
// moves forward and the holder does not change.
func TestReacquireExtends(t *testing.T) {
	s, c := newTestService("node-a")

	require.True(t, s.TryAcquire("res", "node-a"))
	c.Advance(20 * time.Second)
	require.True(t, s.TryAcquire("res", "node-a"), "holder renewal always succeeds")

	// 20s + another 25s exceeds the original 30s lease, but not the
	// renewed one.
	c.Advance(25 * time.Second)
	holder, held := s.Holder("res")
	require.True(t, held)
	assert.Equal(t, cluster.NodeID("node-a"), holder)
}

// TestReleaseOnlyByHolder verifies release ownership checks.
func TestReleaseOnlyByHolder(t *testing.T) {
	s, _ := newTestService("node-a")

	require.True(t, s.TryAcquire("res", "node-a"))

	s.Release("res", "node-b") // not the holder: no-op
	holder, held := s.Holder("res")
	require.True(t, held)
	assert.Equal(t, cluster.NodeID("node-a"), holder)

	s.Release("res", "node-a")
	_, held = s.Holder("res")
	assert.False(t, held)

	// Releasing a free lock is harmless.
	s.Release("res", "node-a")
}

// TestBackgroundRenewal verifies the renewal tick keeps a continuously
// held lease from expiring, and that it only touches leases inside the
// renewal window and held by the local node.
func TestBackgroundRenewal(t *testing.T) {
	s, c := newTestService("node-a")

	require.True(t, s.TryAcquire("mine", "node-a"))
	require.True(t, s.TryAcquire("theirs", "node-b"))

	// 25s in: both leases have 5s left, inside the 10s renewal window.
	c.Advance(25 * time.Second)
	s.Renew()

	// 10 more seconds: the renewed local lease survives, the foreign one
	// has expired.
	c.Advance(10 * time.Second)

	holder, held := s.Holder("mine")
	require.True(t, held, "renewed lease must still be held")
	assert.Equal(t, cluster.NodeID("node-a"), holder)

	_, held = s.Holder("theirs")
	assert.False(t, held, "renewal must not extend other holders' leases")

	// A competing acquirer is still shut out by the renewed lease.
	assert.False(t, s.TryAcquire("mine", "node-b"))
}

// TestRenewSkipsLapsedLease verifies the tick never resurrects a lease
// that already expired.
func TestRenewSkipsLapsedLease(t *testing.T) {
	s, c := newTestService("node-a")

	require.True(t, s.TryAcquire("res", "node-a"))
	c.Advance(31 * time.Second)
	s.Renew()

	_, held := s.Holder("res")
	assert.False(t, held)
	assert.True(t, s.TryAcquire("res", "node-b"))
}

// TestAcquireBlocksUntilRelease verifies the polling acquire wakes on
// release rather than waiting out its timeout.
func TestAcquireBlocksUntilRelease(t *testing.T) {
	s := NewService("node-a", Options{
		LeaseDuration: 30 * time.Second,
		PollInterval:  20 * time.Millisecond,
	})

	require.True(t, s.TryAcquire("res", "node-a"))

	acquired := make(chan bool, 1)
	go func() {
		acquired <- s.Acquire(context.Background(), "res", "node-b", 5*time.Second)
	}()

	// Give the acquirer time to block, then release.
	time.Sleep(50 * time.Millisecond)
	s.Release("res", "node-a")

	select {
	case ok := <-acquired:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("acquire did not complete after release")
	}

	holder, held := s.Holder("res")
	require.True(t, held)
	assert.Equal(t, cluster.NodeID("node-b"), holder)
}

// TestAcquireTimesOut verifies acquire returns false, not an error, when
// the lock never frees.
func TestAcquireTimesOut(t *testing.T) {
	s := NewService("node-a", Options{
		LeaseDuration: 30 * time.Second,
		PollInterval:  10 * time.Millisecond,
	})

	require.True(t, s.TryAcquire("res", "node-a"))

	start := time.Now()
	ok := s.Acquire(context.Background(), "res", "node-b", 100*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

// TestAcquireHonorsContext verifies context cancellation unblocks acquire.
func TestAcquireHonorsContext(t *testing.T) {
	s := NewService("node-a", Options{
		LeaseDuration: 30 * time.Second,
		PollInterval:  10 * time.Millisecond,
	})

	require.True(t, s.TryAcquire("res", "node-a"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	assert.False(t, s.Acquire(ctx, "res", "node-b", time.Minute))
}

// TestConcurrentAcquirersSingleWinner verifies lease exclusivity under
// contention: many goroutines race for a free lock, exactly one wins.
func TestConcurrentAcquirersSingleWinner(t *testing.T) {
	s, _ := newTestService("node-a")

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := []cluster.NodeID{}

	for i := 0; i < 16; i++ {
		holder := cluster.NodeID(fmt.Sprintf("holder-%d", i))
		wg.Add(1)
		go func(h cluster.NodeID) {
			defer wg.Done()
			if s.TryAcquire("contended", h) {
				mu.Lock()
				winners = append(winners, h)
				mu.Unlock()
			}
		}(holder)
	}
	wg.Wait()

	assert.Len(t, winners, 1, "exactly one acquirer may win a free lock")
}
