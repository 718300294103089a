// Package election drives each node through the Follower/Candidate/Leader
// state machine that decides cluster leadership.
//
// # Protocol
//
// Every node starts as a Follower. A Follower that hears nothing from a
// leader within its election timeout (randomized per attempt, so nodes do
// not stampede into synchronized elections) becomes a Candidate: it
// increments its term, votes for itself, and asks every peer for a vote.
// A Candidate holding votes from a strict majority of the cluster view
// becomes Leader; otherwise the next timeout starts a fresh election in a
// higher term. A Leader sends heartbeats to all peers on a short fixed
// interval and steps down the moment it sees an equal-or-higher term from
// another leader.
//
//	                 timeout                majority
//	  ┌──────────┐ ─────────► ┌───────────┐ ───────► ┌────────┐
//	  │ Follower  │            │ Candidate  │          │ Leader  │
//	  └──────────┘ ◄───────── └───────────┘ ◄──────── └────────┘
//	                 higher term seen (from anyone)
//
// Vote policy is deterministic: a node grants at most one vote per term
// and denies any request carrying a term older than its own. There is no
// log-completeness check because there is no replicated log; this is a
// leadership beacon, not a consensus protocol, and leadership here must
// not be treated as a linearizability guarantee.
//
// # Invariants
//
//   - A node's term never decreases.
//   - role == Leader implies the node considers itself the known leader.
//   - (role, term, leader) is read and written under one lock, so
//     observers never see a torn triple.
//
// Stale-term messages are ignored, not errors. Unreachable peers during a
// vote round simply contribute no vote.
package election
