package lease

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dreamware/quorum/internal/cluster"
)

// Defaults, matched to the coordination core's other timers.
const (
	DefaultLeaseDuration = 30 * time.Second
	DefaultPollInterval  = 100 * time.Millisecond
	DefaultRenewInterval = 1 * time.Second
	DefaultRenewWindow   = 10 * time.Second
)

// Options tunes the lock service. Zero values take the defaults.
type Options struct {
	// LeaseDuration is how long an acquisition or renewal holds.
	LeaseDuration time.Duration
	// PollInterval is how often Acquire retries TryAcquire.
	PollInterval time.Duration
	// RenewInterval is how often the background tick runs.
	RenewInterval time.Duration
	// RenewWindow: leases held by the local node expiring within this
	// window are extended by the background tick.
	RenewWindow time.Duration
}

func (o Options) withDefaults() Options {
	if o.LeaseDuration <= 0 {
		o.LeaseDuration = DefaultLeaseDuration
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.RenewInterval <= 0 {
		o.RenewInterval = DefaultRenewInterval
	}
	if o.RenewWindow <= 0 {
		o.RenewWindow = DefaultRenewWindow
	}
	return o
}

// lease is the record for one named resource.
type lease struct {
	holder    cluster.NodeID
	expiresAt time.Time
	waiters   []cluster.NodeID
	// released is closed when the lease is released or reclaimed, waking
	// blocked acquirers ahead of their poll interval.
	released chan struct{}
}

// Service is the lease lock table for one node.
// Thread-safe: all methods may be called concurrently; the renewal tick
// holds the same lock as acquisitions, never network I/O.
type Service struct {
	mu    sync.Mutex
	self  cluster.NodeID
	locks map[string]*lease
	opts  Options
	now   func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a lock service whose background renewal acts on
// leases held by self.
func NewService(self cluster.NodeID, opts Options) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		self:   self,
		locks:  make(map[string]*lease),
		opts:   opts.withDefaults(),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetClock overrides the service's time source. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// TryAcquire attempts to take resource for holder without blocking.
//
//   - free, or held-but-expired: granted for a fresh lease duration
//   - already held by holder: granted, lease extended (renewal)
//   - held by another, unexpired: denied; holder joins the waiter queue
//     at most once
func (s *Service) TryAcquire(resource string, holder cluster.NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	l, ok := s.locks[resource]
	if !ok {
		s.locks[resource] = &lease{
			holder:    holder,
			expiresAt: now.Add(s.opts.LeaseDuration),
			released:  make(chan struct{}),
		}
		return true
	}

	switch {
	case l.holder == holder:
		// Renewal, not a new acquisition: only the expiry moves.
		l.expiresAt = now.Add(s.opts.LeaseDuration)
		return true
	case now.After(l.expiresAt):
		// Expired: reclaimed as if free. Wake waiters of the old holder.
		close(l.released)
		s.locks[resource] = &lease{
			holder:    holder,
			expiresAt: now.Add(s.opts.LeaseDuration),
			waiters:   removeWaiter(l.waiters, holder),
			released:  make(chan struct{}),
		}
		return true
	default:
		for _, w := range l.waiters {
			if w == holder {
				return false
			}
		}
		l.waiters = append(l.waiters, holder)
		return false
	}
}

// Acquire blocks up to timeout for the lock, polling TryAcquire and also
// waking early when the current lease is released. Returns false on
// timeout or context cancellation; never an error.
func (s *Service) Acquire(ctx context.Context, resource string, holder cluster.NodeID, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if s.TryAcquire(resource, holder) {
			return true
		}
		released := s.releaseSignal(resource)

		poll := time.NewTimer(s.opts.PollInterval)
		select {
		case <-poll.C:
		case <-released:
			poll.Stop()
		case <-deadline.C:
			poll.Stop()
			return false
		case <-ctx.Done():
			poll.Stop()
			return false
		}
	}
}

// releaseSignal returns a channel closed when the resource's current
// lease goes away. A nil-safe always-open channel is returned when the
// resource is currently free (the next TryAcquire will just succeed).
func (s *Service) releaseSignal(resource string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[resource]; ok {
		return l.released
	}
	return make(chan struct{})
}

// Release removes the lease if holder owns it; anything else is a no-op.
// Waiters are woken so they can retry ahead of their poll interval.
func (s *Service) Release(resource string, holder cluster.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[resource]
	if !ok || l.holder != holder {
		return
	}
	close(l.released)
	delete(s.locks, resource)
}

// Holder returns the current unexpired holder of resource, if any.
func (s *Service) Holder(resource string) (cluster.NodeID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[resource]
	if !ok || s.now().After(l.expiresAt) {
		return "", false
	}
	return l.holder, true
}

// Waiters returns a snapshot of the waiter queue for resource.
func (s *Service) Waiters(resource string) []cluster.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[resource]
	if !ok {
		return nil
	}
	out := make([]cluster.NodeID, len(l.waiters))
	copy(out, l.waiters)
	return out
}

// Start runs the background renewal tick until ctx (or Stop) cancels it.
// Run as `go service.Start(ctx)`.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()

	if ctx == nil {
		ctx = s.ctx
	}

	ticker := time.NewTicker(s.opts.RenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Renew()
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		}
	}
}

// Stop cancels the renewal tick and waits for it.
func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Renew extends every unexpired lease held by the local node that falls
// within the renewal window. Exported so tests can force a deterministic
// tick.
func (s *Service) Renew() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for resource, l := range s.locks {
		if l.holder != s.self {
			continue
		}
		if now.After(l.expiresAt) {
			// Too late: the lease lapsed and may already belong to
			// someone else's next TryAcquire.
			continue
		}
		if l.expiresAt.Sub(now) <= s.opts.RenewWindow {
			l.expiresAt = now.Add(s.opts.LeaseDuration)
			log.Printf("renewed lease on %q held by %s", resource, s.self)
		}
	}
}

// removeWaiter returns waiters without id, preserving order.
func removeWaiter(waiters []cluster.NodeID, id cluster.NodeID) []cluster.NodeID {
	out := waiters[:0]
	for _, w := range waiters {
		if w != id {
			out = append(out, w)
		}
	}
	return out
}
