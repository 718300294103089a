package cluster

import (
	"encoding/json"
)

// NodeID uniquely identifies a cluster member.
// Opaque to the core; stable for the node's process lifetime.
type NodeID string

// NodeInfo describes one member of the cluster: its identity and the
// address peers use to reach it.
type NodeInfo struct {
	ID   NodeID `json:"id"`
	Addr string `json:"addr"`
}

// MessageKind tags the purpose of a Message. Receivers dispatch on this
// value explicitly; there is no dynamic payload typing.
type MessageKind string

const (
	// KindHeartbeat is a leader's periodic liveness claim.
	KindHeartbeat MessageKind = "heartbeat"

	// KindVoteRequest asks a peer for its vote in the sender's term.
	KindVoteRequest MessageKind = "vote_request"

	// KindVoteResponse answers a vote request.
	KindVoteResponse MessageKind = "vote_response"

	// KindCacheFetch asks a peer for a locally cached value.
	KindCacheFetch MessageKind = "cache_fetch"

	// KindCacheValue answers a cache fetch.
	KindCacheValue MessageKind = "cache_value"

	// KindAck is a bare acknowledgement carrying only the responder's
	// identity and term.
	KindAck MessageKind = "ack"
)

// Message is the envelope for all inter-node traffic.
//
// Term is meaningful only for election traffic (heartbeats, votes) and for
// acks to them; other kinds leave it zero.
type Message struct {
	Kind    MessageKind     `json:"kind"`
	From    NodeID          `json:"from"`
	Term    uint64          `json:"term,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// VotePayload is the body of a KindVoteResponse message.
type VotePayload struct {
	Granted bool `json:"granted"`
}

// CacheFetchPayload is the body of a KindCacheFetch message.
type CacheFetchPayload struct {
	Key string `json:"key"`
}

// CacheValuePayload is the body of a KindCacheValue message. Found is
// false when the peer had no live entry for the key.
type CacheValuePayload struct {
	Key   string `json:"key"`
	Value []byte `json:"value,omitempty"`
	Found bool   `json:"found"`
}

// EncodePayload marshals a payload struct into a Message body.
// Marshaling these payload types cannot fail; an error here is a
// programming mistake and is returned rather than swallowed.
func EncodePayload(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// DecodePayload unmarshals a Message body into the given payload struct.
func DecodePayload(raw json.RawMessage, v any) error {
	return json.Unmarshal(raw, v)
}
