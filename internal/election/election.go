package election

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/dreamware/quorum/internal/cluster"
	"github.com/dreamware/quorum/internal/membership"
)

// Role is a node's position in the election state machine.
type Role string

const (
	RoleFollower  Role = "follower"
	RoleCandidate Role = "candidate"
	RoleLeader    Role = "leader"
)

// Timing defaults. The election timeout is randomized per attempt within
// [Min, Max) so nodes that time out together do not stay in lockstep.
const (
	DefaultElectionTimeoutMin = 150 * time.Millisecond
	DefaultElectionTimeoutMax = 300 * time.Millisecond
	DefaultHeartbeatInterval  = 50 * time.Millisecond
)

// Options tunes the elector's timers. Zero values take the defaults.
type Options struct {
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	HeartbeatInterval  time.Duration
}

func (o Options) withDefaults() Options {
	if o.ElectionTimeoutMin <= 0 {
		o.ElectionTimeoutMin = DefaultElectionTimeoutMin
	}
	if o.ElectionTimeoutMax <= o.ElectionTimeoutMin {
		o.ElectionTimeoutMax = o.ElectionTimeoutMin * 2
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return o
}

// Elector runs one node's side of the leader election protocol.
// Thread-safe: message handlers and the periodic loop may run concurrently.
type Elector struct {
	mu       sync.Mutex
	self     cluster.NodeID
	registry *membership.Registry
	trans    cluster.Transport
	opts     Options

	role   Role
	term   uint64
	leader cluster.NodeID // empty when unknown

	// votedTerm/votedFor record the single vote this node may cast per
	// term. votedTerm only increases.
	votedTerm uint64
	votedFor  cluster.NodeID

	// lastContact is the last time this node heard from a valid leader or
	// granted a vote; timeout is the current randomized election deadline
	// measured from it.
	lastContact time.Time
	timeout     time.Duration

	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewElector creates an elector for the local node. It starts as a
// Follower in term 0 with no known leader.
func NewElector(self cluster.NodeID, registry *membership.Registry, trans cluster.Transport, opts Options) *Elector {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Elector{
		self:     self,
		registry: registry,
		trans:    trans,
		opts:     opts.withDefaults(),
		role:     RoleFollower,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	e.mu.Lock()
	e.resetTimeoutLocked()
	e.mu.Unlock()
	return e
}

// SetClock overrides the elector's time source. Tests only.
func (e *Elector) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// State returns the current (role, term, leader) triple as one consistent
// snapshot.
func (e *Elector) State() (Role, uint64, cluster.NodeID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.role, e.term, e.leader
}

// Start runs the election loop until ctx (or Stop) cancels it. Run as
// `go elector.Start(ctx)`.
func (e *Elector) Start(ctx context.Context) {
	e.wg.Add(1)
	defer e.wg.Done()

	if ctx == nil {
		ctx = e.ctx
	}

	ticker := time.NewTicker(e.opts.HeartbeatInterval)
	defer ticker.Stop()

	log.Printf("[%s] elector started (timeout %v-%v, heartbeat %v)",
		e.self, e.opts.ElectionTimeoutMin, e.opts.ElectionTimeoutMax, e.opts.HeartbeatInterval)

	for {
		select {
		case <-ticker.C:
			e.tick()
		case <-ctx.Done():
			return
		case <-e.ctx.Done():
			return
		}
	}
}

// Stop cancels the election loop and waits for it to finish.
func (e *Elector) Stop() {
	e.cancel()
	e.wg.Wait()
}

// tick advances the state machine once: leaders heartbeat, everyone else
// checks whether the current leader has gone quiet.
func (e *Elector) tick() {
	e.mu.Lock()
	role := e.role
	expired := e.now().Sub(e.lastContact) > e.timeout
	e.mu.Unlock()

	switch role {
	case RoleLeader:
		// Leaders never time themselves out.
		e.broadcastHeartbeats()
	default:
		if expired {
			e.startElection()
		}
	}
}

// startElection moves the node to Candidate in a fresh term and fans out
// vote requests to all peers. Vote counting happens off the caller's
// goroutine; the caller's tick returns immediately.
func (e *Elector) startElection() {
	e.mu.Lock()
	e.role = RoleCandidate
	e.term++
	e.leader = ""
	// Implicit self-vote for the new term.
	e.votedTerm = e.term
	e.votedFor = e.self
	term := e.term
	e.resetTimeoutLocked()
	e.mu.Unlock()

	log.Printf("[%s] starting election for term %d", e.self, term)

	peers := e.registry.Peers()
	// Majority of the configured view, not of whatever members remain
	// tracked: a node that removed its peers must not win with one vote.
	needed := e.registry.ViewSize()/2 + 1

	// Buffered so every sender can deliver even if the collector already
	// won and left; senders always send, contributing false on failure.
	results := make(chan bool, len(peers))
	for _, peer := range peers {
		go func(peer cluster.NodeInfo) {
			results <- e.requestVote(peer, term)
		}(peer)
	}

	go func() {
		votes := 1 // self
		if votes >= needed {
			e.becomeLeader(term)
			return
		}
		for i := 0; i < len(peers); i++ {
			select {
			case granted := <-results:
				if granted {
					votes++
					if votes >= needed {
						e.becomeLeader(term)
						return
					}
				}
			case <-e.ctx.Done():
				return
			}
		}
		// Not enough votes; the next expired tick retries in a new term.
	}()
}

// requestVote asks one peer for its vote in term. Unreachable peers count
// as a denied vote; a response from a higher term forces a step-down.
func (e *Elector) requestVote(peer cluster.NodeInfo, term uint64) bool {
	resp, err := e.trans.Send(e.ctx, peer.Addr, cluster.Message{
		Kind: cluster.KindVoteRequest,
		From: e.self,
		Term: term,
	})
	if err != nil {
		return false
	}
	if resp.Term > term {
		e.stepDown(resp.Term)
		return false
	}
	var vote cluster.VotePayload
	if err := cluster.DecodePayload(resp.Payload, &vote); err != nil {
		return false
	}
	return vote.Granted
}

// becomeLeader promotes the node if it is still the Candidate of the term
// it won. A stale win (the term moved on, or a leader was already
// adopted) is discarded.
func (e *Elector) becomeLeader(term uint64) {
	e.mu.Lock()
	if e.role != RoleCandidate || e.term != term {
		e.mu.Unlock()
		return
	}
	e.role = RoleLeader
	e.leader = e.self
	e.mu.Unlock()

	log.Printf("[%s] became leader for term %d", e.self, term)
	e.broadcastHeartbeats()
}

// broadcastHeartbeats sends one heartbeat to every peer. Sends run off
// this goroutine so a slow peer cannot delay the tick.
func (e *Elector) broadcastHeartbeats() {
	e.mu.Lock()
	if e.role != RoleLeader {
		e.mu.Unlock()
		return
	}
	term := e.term
	e.mu.Unlock()

	for _, peer := range e.registry.Peers() {
		go func(peer cluster.NodeInfo) {
			resp, err := e.trans.Send(e.ctx, peer.Addr, cluster.Message{
				Kind: cluster.KindHeartbeat,
				From: e.self,
				Term: term,
			})
			if err != nil {
				// Unreachable peer: a liveness signal, not an error.
				return
			}
			e.registry.RecordHeartbeat(peer.ID, e.clockNow())
			if resp.Term > term {
				e.stepDown(resp.Term)
			}
		}(peer)
	}
}

// stepDown returns the node to Follower, adopting term if it is newer.
func (e *Elector) stepDown(term uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if term > e.term {
		e.term = term
	}
	if e.role != RoleFollower {
		log.Printf("[%s] stepping down to follower in term %d", e.self, e.term)
	}
	e.role = RoleFollower
	e.leader = ""
	e.resetTimeoutLocked()
}

// HandleVoteRequest applies a peer's vote request and returns the
// response message. Policy: deny stale terms, grant at most one vote per
// term. Receiving the request also refreshes the sender's liveness.
func (e *Elector) HandleVoteRequest(msg cluster.Message) cluster.Message {
	e.mu.Lock()
	if msg.Term > e.term {
		// We are behind: adopt the term and stand down before judging.
		e.term = msg.Term
		e.role = RoleFollower
		e.leader = ""
	}

	granted := false
	if msg.Term == e.term && msg.Term > 0 {
		if e.votedTerm < msg.Term || (e.votedTerm == msg.Term && e.votedFor == msg.From) {
			e.votedTerm = msg.Term
			e.votedFor = msg.From
			granted = true
			// Granting a vote defers our own candidacy.
			e.resetTimeoutLocked()
		}
	}
	term := e.term
	e.mu.Unlock()

	e.registry.RecordHeartbeat(msg.From, e.clockNow())

	payload, _ := cluster.EncodePayload(cluster.VotePayload{Granted: granted})
	return cluster.Message{
		Kind:    cluster.KindVoteResponse,
		From:    e.self,
		Term:    term,
		Payload: payload,
	}
}

// HandleHeartbeat applies a leader's heartbeat and returns an ack bearing
// this node's term. An equal-or-higher term claim is adopted (stepping
// down if necessary); a stale claim is silently ignored, and the stale
// leader learns our term from the ack.
func (e *Elector) HandleHeartbeat(msg cluster.Message) cluster.Message {
	e.mu.Lock()
	if msg.Term >= e.term {
		if msg.Term > e.term {
			e.term = msg.Term
		}
		e.role = RoleFollower
		e.leader = msg.From
		e.resetTimeoutLocked()
	}
	term := e.term
	e.mu.Unlock()

	e.registry.RecordHeartbeat(msg.From, e.clockNow())

	return cluster.Message{Kind: cluster.KindAck, From: e.self, Term: term}
}

// resetTimeoutLocked restarts the election deadline with a fresh random
// timeout. Caller holds e.mu.
func (e *Elector) resetTimeoutLocked() {
	e.lastContact = e.now()
	spread := e.opts.ElectionTimeoutMax - e.opts.ElectionTimeoutMin
	e.timeout = e.opts.ElectionTimeoutMin + time.Duration(rand.Int63n(int64(spread)))
}

// clockNow reads the injected clock under the lock.
func (e *Elector) clockNow() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now()
}
