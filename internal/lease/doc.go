// Package lease grants time-bounded, mutually exclusive ownership of
// named resources.
//
// A lease is held by exactly one holder until it expires or is released.
// Acquisition by the current holder extends the lease (renewal); an
// expired lease is reclaimed by the next acquirer as if it were free.
// Denied requesters are appended once to the resource's waiter queue and
// are notified on release so they can retry ahead of their next poll.
//
// A background renewal tick extends every lease held by the local node
// that is close to expiring, so a healthy holder never evicts itself.
//
// Limitation, by contract: this service provides mutual exclusion only
// under non-adversarial, roughly synchronized clocks. Leases carry no
// fencing tokens, so a holder that keeps operating past a false
// failure-detection window can race the next holder. Callers that need
// stronger guarantees must layer them on top.
package lease
