// Package cluster defines the shared vocabulary of the Quorum coordination
// core: node identity, the tagged message envelope exchanged between nodes,
// and the Transport capability used to deliver it.
//
// # Overview
//
// Every inter-node interaction in Quorum is a single request/response
// exchange of one Message. A Message carries four things and nothing more:
//
//	┌──────────────────────────────────────┐
//	│              Message                  │
//	├──────────────────────────────────────┤
//	│  Kind     - what this message is     │
//	│  From     - sender NodeID            │
//	│  Term     - election epoch (if any)  │
//	│  Payload  - kind-specific JSON body  │
//	└──────────────────────────────────────┘
//
// Kinds are a closed enum; receivers dispatch on Kind explicitly rather
// than on the dynamic type of a payload. Payloads are decoded only by the
// component that owns the kind (election decodes votes, cache decodes
// fetches), keeping the envelope itself dumb.
//
// # Transport
//
// Transport is the one capability the core requires from its environment:
//
//	Send(ctx, addr, msg) -> (response, error)
//
// A send error is not an application error. Callers treat it as a liveness
// signal about the peer (see internal/membership) and carry on; nothing in
// the core escalates a single unreachable peer into a process failure.
//
// HTTPTransport is the production implementation: JSON bodies over plain
// HTTP POST, one URL path per message kind, bounded by a per-call timeout
// so a hung peer can never stall a periodic tick.
//
// # Clock
//
// Components that need time take an injected now() function and default to
// time.Now. Tests substitute a fake clock; production code never does.
package cluster
