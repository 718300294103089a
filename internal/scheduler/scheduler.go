package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/quorum/internal/cluster"
	"github.com/dreamware/quorum/internal/membership"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether a status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is one unit of work tracked by the scheduler.
type Task struct {
	ID           string
	Payload      []byte
	Status       Status
	AssignedNode cluster.NodeID
	CreatedAt    time.Time
	StartedAt    time.Time
	CompletedAt  time.Time
	Result       []byte
	Err          string

	// attempt counts dispatches of this task. A worker's completion only
	// lands if the attempt it executed is still the current one, so a
	// reassigned task cannot be finished by its abandoned first run.
	attempt int
}

// ExecFunc is the execution sink: it runs a task's payload on behalf of
// the assigned node and returns the result or the task's failure.
type ExecFunc func(ctx context.Context, node cluster.NodeID, payload []byte) ([]byte, error)

// Stats summarizes the scheduler's task population.
type Stats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Defaults.
const (
	DefaultDispatchInterval = 100 * time.Millisecond
	DefaultWorkers          = 8
)

// Scheduler owns the work queue and the per-node capacity map.
// Thread-safe: Submit, status queries, dispatch and the death callback
// may run concurrently.
type Scheduler struct {
	mu       sync.Mutex
	registry *membership.Registry
	exec     ExecFunc
	tasks    map[string]*Task
	queue    []string // pending task IDs, FIFO
	capacity map[cluster.NodeID]int
	inUse    map[cluster.NodeID]int

	interval time.Duration
	workers  int
	work     chan string
	now      func() time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler. capacity maps each node to its task
// slots; nodes absent from the map receive no work.
func NewScheduler(registry *membership.Registry, exec ExecFunc, capacity map[cluster.NodeID]int, interval time.Duration, workers int) *Scheduler {
	if interval <= 0 {
		interval = DefaultDispatchInterval
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		registry: registry,
		exec:     exec,
		tasks:    make(map[string]*Task),
		capacity: make(map[cluster.NodeID]int, len(capacity)),
		inUse:    make(map[cluster.NodeID]int, len(capacity)),
		interval: interval,
		workers:  workers,
		work:     make(chan string, 1024),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	for id, n := range capacity {
		s.capacity[id] = n
	}
	return s
}

// SetClock overrides the scheduler's time source. Tests only.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Submit enqueues a new pending task and returns its ID.
func (s *Scheduler) Submit(payload []byte) string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id] = &Task{
		ID:        id,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: s.now(),
	}
	s.queue = append(s.queue, id)
	return id
}

// Get returns a snapshot of a task.
func (s *Scheduler) Get(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Status returns a task's current status.
func (s *Scheduler) Status(id string) (Status, bool) {
	t, ok := s.Get(id)
	return t.Status, ok
}

// Stats counts tasks by status.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Stats
	for _, t := range s.tasks {
		switch t.Status {
		case StatusPending:
			st.Pending++
		case StatusRunning:
			st.Running++
		case StatusCompleted:
			st.Completed++
		case StatusFailed:
			st.Failed++
		}
	}
	return st
}

// SetCapacity sets a node's task slots.
func (s *Scheduler) SetCapacity(node cluster.NodeID, slots int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capacity[node] = slots
}

// Start launches the worker pool and the dispatch tick; both run until
// ctx (or Stop) cancels them. Start itself returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = s.ctx
	}

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Dispatch()
			case <-ctx.Done():
				return
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the dispatch loop and workers and waits for them.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Dispatch performs one dispatch pass: pop queued tasks while some live
// node has a free slot, assigning each to the node with the most free
// capacity (lowest NodeID on ties). Exported so tests and callers can
// force a deterministic pass.
func (s *Scheduler) Dispatch() {
	var assigned []string

	s.mu.Lock()
	for len(s.queue) > 0 {
		node, ok := s.pickNodeLocked()
		if !ok {
			// No capacity anywhere: stop rather than busy-loop.
			break
		}
		id := s.queue[0]
		s.queue = s.queue[1:]
		t, exists := s.tasks[id]
		if !exists || t.Status != StatusPending {
			continue
		}
		t.Status = StatusRunning
		t.AssignedNode = node
		t.StartedAt = s.now()
		t.attempt++
		s.inUse[node]++
		assigned = append(assigned, id)
	}
	s.mu.Unlock()

	// Hand off outside the lock; the work channel is buffered but a full
	// pool must not block dispatch state.
	for _, id := range assigned {
		select {
		case s.work <- id:
		case <-s.ctx.Done():
			return
		}
	}
}

// pickNodeLocked selects the live node with the most free slots, breaking
// ties toward the lowest NodeID. Caller holds s.mu.
func (s *Scheduler) pickNodeLocked() (cluster.NodeID, bool) {
	var best cluster.NodeID
	bestFree := 0
	for node, slots := range s.capacity {
		if !s.registry.IsAlive(node) {
			continue
		}
		free := slots - s.inUse[node]
		if free <= 0 {
			continue
		}
		if free > bestFree || (free == bestFree && node < best) {
			best = node
			bestFree = free
		}
	}
	return best, bestFree > 0
}

// OnNodeDead returns every task running on a dead node to the pending
// queue. Register this with the failure detector. Each affected task is
// re-enqueued exactly once per failure event.
func (s *Scheduler) OnNodeDead(node cluster.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.capacity, node)
	delete(s.inUse, node)

	requeued := 0
	for id, t := range s.tasks {
		if t.Status == StatusRunning && t.AssignedNode == node {
			t.Status = StatusPending
			t.AssignedNode = ""
			t.StartedAt = time.Time{}
			s.queue = append(s.queue, id)
			requeued++
		}
	}
	if requeued > 0 {
		log.Printf("node %s died; %d task(s) returned to pending", node, requeued)
	}
}

// worker executes dispatched tasks until the context is canceled.
func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case id := <-s.work:
			s.run(ctx, id)
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		}
	}
}

// run executes one task attempt and records its outcome. The outcome is
// discarded if the task was reassigned while this attempt was in flight.
func (s *Scheduler) run(ctx context.Context, id string) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok || t.Status != StatusRunning {
		s.mu.Unlock()
		return
	}
	node := t.AssignedNode
	payload := t.Payload
	attempt := t.attempt
	s.mu.Unlock()

	result, err := s.exec(ctx, node, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok = s.tasks[id]
	if !ok || t.Status != StatusRunning || t.attempt != attempt {
		// Reassigned (or completed elsewhere) while we ran; the newer
		// attempt owns the outcome.
		return
	}
	t.CompletedAt = s.now()
	if err != nil {
		t.Status = StatusFailed
		t.Err = err.Error()
	} else {
		t.Status = StatusCompleted
		t.Result = result
	}
	if s.inUse[node] > 0 {
		s.inUse[node]--
	}
}
