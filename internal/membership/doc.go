// Package membership tracks which nodes are part of the cluster and which
// of them are currently alive.
//
// # Overview
//
// The cluster view is fixed at construction: there is no join/leave
// protocol. What changes at runtime is liveness. Every heartbeat or vote
// request received from a peer refreshes that peer's last-seen timestamp
// in the Registry; the Detector periodically sweeps the Registry, probes
// any node whose timestamp has gone stale, and removes the ones that do
// not answer.
//
//	┌─────────────┐   RecordHeartbeat    ┌─────────────┐
//	│  Registry    │◄────────────────────│  receivers   │
//	│  id→lastSeen │                     └─────────────┘
//	└──────┬──────┘
//	       │ sweep every interval
//	┌──────▼──────┐   onDead(id)         ┌─────────────┐
//	│  Detector    │────────────────────►│  scheduler   │
//	└─────────────┘                      └─────────────┘
//
// Staleness alone cannot decide death: with a stable leader, followers
// never address one another, so on every follower the other followers'
// timestamps simply age out. The probe separates "quiet" from "gone".
// A removal's only side effects are dropping the node from the Registry
// and invoking the onDead callback, which the task scheduler uses to
// return the dead node's in-flight work to the pending queue. A removed
// node whose traffic later reappears is re-admitted from the configured
// view.
//
// # Invariants
//
//   - A last-seen timestamp never moves backward.
//   - The local node is never swept, regardless of its timestamp.
//   - onDead fires at most once per node removal, outside the Registry lock.
//   - Only a node that is both stale and failing its probe is removed.
package membership
