package membership

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/dreamware/quorum/internal/cluster"
)

// DefaultLivenessTimeout is how long a node may go unheard-from before it
// is considered dead.
const DefaultLivenessTimeout = 30 * time.Second

// member is one tracked node with its liveness bookkeeping.
type member struct {
	info     cluster.NodeInfo
	lastSeen time.Time
}

// Registry holds the known cluster members and their last-seen timestamps.
// Thread-safe: all methods may be called concurrently.
type Registry struct {
	mu              sync.RWMutex
	self            cluster.NodeID
	members         map[cluster.NodeID]*member
	view            map[cluster.NodeID]cluster.NodeInfo
	livenessTimeout time.Duration
	now             func() time.Time
}

// NewRegistry builds a registry over a fixed cluster view. The local node
// must appear in nodes; every node starts with a fresh timestamp so the
// cluster does not declare everyone dead before the first heartbeats land.
func NewRegistry(self cluster.NodeID, nodes []cluster.NodeInfo, livenessTimeout time.Duration) *Registry {
	if livenessTimeout <= 0 {
		livenessTimeout = DefaultLivenessTimeout
	}
	r := &Registry{
		self:            self,
		members:         make(map[cluster.NodeID]*member, len(nodes)),
		view:            make(map[cluster.NodeID]cluster.NodeInfo, len(nodes)),
		livenessTimeout: livenessTimeout,
		now:             time.Now,
	}
	start := r.now()
	for _, n := range nodes {
		r.members[n.ID] = &member{info: n, lastSeen: start}
		r.view[n.ID] = n
	}
	return r
}

// SetClock overrides the registry's time source. Tests only.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Self returns the local node's ID.
func (r *Registry) Self() cluster.NodeID { return r.self }

// RecordHeartbeat refreshes a node's last-seen timestamp. Timestamps never
// move backward, so a delayed message cannot age a node. Heartbeats from
// nodes outside the configured view are ignored; a previously removed view
// node whose traffic reappears is re-admitted, so removal is not a life
// sentence after a partition heals.
func (r *Registry) RecordHeartbeat(id cluster.NodeID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		info, known := r.view[id]
		if !known {
			return
		}
		r.members[id] = &member{info: info, lastSeen: at}
		log.Printf("node %s rejoined the cluster view", id)
		return
	}
	if at.After(m.lastSeen) {
		m.lastSeen = at
	}
}

// IsAlive reports whether the node has been heard from within the
// liveness timeout. The local node is always alive; unknown (or removed)
// nodes never are.
func (r *Registry) IsAlive(id cluster.NodeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == r.self {
		return true
	}
	m, ok := r.members[id]
	if !ok {
		return false
	}
	return r.now().Sub(m.lastSeen) <= r.livenessTimeout
}

// LastSeen returns a node's last-seen timestamp, and false if the node is
// not in the registry.
func (r *Registry) LastSeen(id cluster.NodeID) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	if !ok {
		return time.Time{}, false
	}
	return m.lastSeen, true
}

// Addr returns the network address for a node, and false if unknown.
func (r *Registry) Addr(id cluster.NodeID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	if !ok {
		return "", false
	}
	return m.info.Addr, true
}

// Remove drops a node from the registry. Removing the local node or an
// unknown node is a no-op; the bool reports whether anything was removed.
func (r *Registry) Remove(id cluster.NodeID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == r.self {
		return false
	}
	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	return true
}

// Nodes returns a snapshot of all tracked nodes, sorted by ID for
// deterministic iteration.
func (r *Registry) Nodes() []cluster.NodeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]cluster.NodeInfo, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Peers returns all tracked nodes except the local one, sorted by ID.
func (r *Registry) Peers() []cluster.NodeInfo {
	nodes := r.Nodes()
	out := nodes[:0]
	for _, n := range nodes {
		if n.ID != r.self {
			out = append(out, n)
		}
	}
	return out
}

// Alive returns the IDs of all nodes currently passing the liveness
// check, sorted. The local node is always included.
func (r *Registry) Alive() []cluster.NodeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := r.now()
	out := make([]cluster.NodeID, 0, len(r.members))
	for id, m := range r.members {
		if id == r.self || now.Sub(m.lastSeen) <= r.livenessTimeout {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of nodes currently tracked as members.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// ViewSize returns the size of the configured cluster view. Unlike Len it
// never shrinks on removals: quorum math must count the whole deployment,
// or an isolated node could vote itself leader of its own remnant.
func (r *Registry) ViewSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.view)
}

// stale returns the IDs of non-self nodes failing the liveness check.
func (r *Registry) stale() []cluster.NodeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := r.now()
	var out []cluster.NodeID
	for id, m := range r.members {
		if id == r.self {
			continue
		}
		if now.Sub(m.lastSeen) > r.livenessTimeout {
			out = append(out, id)
		}
	}
	return out
}
