// Package cache is a per-node key/value store with TTL expiry and
// pull-through fetch from cluster peers.
//
// # Semantics
//
// Get serves from the local store when the entry is live. An entry whose
// TTL has lapsed is logically absent the moment it expires, even if a
// sweep has not physically removed it yet; an expired hit is evicted and
// treated as a miss. On a local miss the cache asks each live peer in
// turn and, on the first hit, stores the value locally under a fixed
// refresh TTL before returning it.
//
// This is a best-effort, eventually-stale cache, not a coherence
// protocol. Put, Remove and Clear act only on the local store; writes are
// not broadcast, so peers can disagree until their own entries expire.
//
// # Eviction
//
// Two independent mechanisms remove entries:
//
//   - TTL expiry: lazily on Get, and via a janitor sweep.
//   - Capacity: when a bound is configured, inserting past it evicts the
//     least-recently-used entry. LRU is the one eviction policy this
//     cache implements; recency is updated on Get and Put.
package cache
