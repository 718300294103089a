// Package scheduler assigns units of work to cluster nodes and reassigns
// them when a node dies.
//
// # Model
//
// Callers submit opaque payloads; each becomes a Task with a generated ID
// and a Pending status. A periodic dispatch tick drains the pending queue
// while any live node has spare capacity, placing each task on the node
// with the most free slots (ties go to the lowest NodeID, so placement is
// deterministic). Execution happens on a worker pool off the tick: a slow
// task never stalls dispatch.
//
// Task lifecycle:
//
//	Pending ──dispatch──► Running ──exec──► Completed | Failed
//	   ▲                     │
//	   └──── node death ─────┘
//
// When the failure detector reports a node dead, every task Running on it
// returns to Pending exactly once and re-enters the queue. This gives
// at-least-once execution: a task interrupted by a false failure
// detection may run twice. The scheduler does not deduplicate; payloads
// that need idempotency must provide it themselves.
//
// A task execution error is recorded on the Task and surfaced through
// status queries; it never disturbs the scheduler's own control flow.
package scheduler
