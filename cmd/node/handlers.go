package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dreamware/quorum/internal/cluster"
	"github.com/dreamware/quorum/internal/scheduler"
)

var errExecNodeGone = errors.New("assigned node left the cluster view")

// Request/response bodies for the caller-facing API.

type submitTaskRequest struct {
	Payload []byte `json:"payload"`
}

type submitTaskResponse struct {
	ID string `json:"id"`
}

type taskStatusResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	AssignedNode string `json:"assigned_node,omitempty"`
	Result       []byte `json:"result,omitempty"`
	Error        string `json:"error,omitempty"`
}

type executeRequest struct {
	Payload []byte `json:"payload"`
}

type executeResponse struct {
	Result []byte `json:"result"`
}

type lockRequest struct {
	Resource  string `json:"resource"`
	Holder    string `json:"holder"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
}

type lockResponse struct {
	Acquired bool `json:"acquired"`
}

type lockStatusResponse struct {
	Resource string `json:"resource"`
	Held     bool   `json:"held"`
	Holder   string `json:"holder,omitempty"`
}

type cachePutRequest struct {
	Value []byte `json:"value"`
	TTLMS int    `json:"ttl_ms"`
}

type cacheGetResponse struct {
	Key   string `json:"key"`
	Value []byte `json:"value,omitempty"`
	Found bool   `json:"found"`
}

type clusterStateResponse struct {
	NodeID     string          `json:"node_id"`
	Role       string          `json:"role"`
	Term       uint64          `json:"term"`
	Leader     string          `json:"leader,omitempty"`
	AliveNodes []string        `json:"alive_nodes"`
	Tasks      scheduler.Stats `json:"tasks"`
}

// routes builds the node's HTTP API.
func (n *node) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", n.handleHealth)
	mux.HandleFunc("POST /cluster/heartbeat", n.handleHeartbeat)
	mux.HandleFunc("POST /cluster/vote", n.handleVote)
	mux.HandleFunc("GET /cluster/state", n.handleClusterState)

	mux.HandleFunc("POST /tasks", n.handleSubmitTask)
	mux.HandleFunc("GET /tasks/{id}", n.handleTaskStatus)
	mux.HandleFunc("POST /tasks/execute", n.handleExecute)

	mux.HandleFunc("POST /locks/acquire", n.handleLockAcquire)
	mux.HandleFunc("POST /locks/release", n.handleLockRelease)
	mux.HandleFunc("GET /locks/{resource}", n.handleLockStatus)

	mux.HandleFunc("PUT /cache/{key}", n.handleCachePut)
	mux.HandleFunc("GET /cache/{key}", n.handleCacheGet)
	mux.HandleFunc("DELETE /cache/{key}", n.handleCacheDelete)
	mux.HandleFunc("POST /cache/peer/fetch", n.handleCachePeerFetch)

	return mux
}

func (n *node) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "node": string(n.self.ID)})
}

// handleHeartbeat receives a leader's beacon and answers with this
// node's term so a stale leader can step down.
func (n *node) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var msg cluster.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, n.elector.HandleHeartbeat(msg))
}

func (n *node) handleVote(w http.ResponseWriter, r *http.Request) {
	var msg cluster.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, n.elector.HandleVoteRequest(msg))
}

// handleClusterState is the observability hook: one consistent
// (role, term, leader) triple plus the live node set.
func (n *node) handleClusterState(w http.ResponseWriter, r *http.Request) {
	role, term, leader := n.elector.State()
	alive := n.registry.Alive()

	nodes := make([]string, len(alive))
	for i, id := range alive {
		nodes[i] = string(id)
	}

	writeJSON(w, http.StatusOK, clusterStateResponse{
		NodeID:     string(n.self.ID),
		Role:       string(role),
		Term:       term,
		Leader:     string(leader),
		AliveNodes: nodes,
		Tasks:      n.scheduler.Stats(),
	})
}

func (n *node) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req submitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := n.scheduler.Submit(req.Payload)
	writeJSON(w, http.StatusAccepted, submitTaskResponse{ID: id})
}

func (n *node) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	task, ok := n.scheduler.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, taskStatusResponse{
		ID:           task.ID,
		Status:       string(task.Status),
		AssignedNode: string(task.AssignedNode),
		Result:       task.Result,
		Error:        task.Err,
	})
}

// handleExecute runs a task payload on behalf of a peer's scheduler.
func (n *node) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{Result: runPayload(req.Payload)})
}

func (n *node) handleLockAcquire(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Resource == "" || req.Holder == "" {
		http.Error(w, "resource and holder are required", http.StatusBadRequest)
		return
	}

	var acquired bool
	if req.TimeoutMS > 0 {
		acquired = n.locks.Acquire(r.Context(), req.Resource, cluster.NodeID(req.Holder),
			time.Duration(req.TimeoutMS)*time.Millisecond)
	} else {
		acquired = n.locks.TryAcquire(req.Resource, cluster.NodeID(req.Holder))
	}
	writeJSON(w, http.StatusOK, lockResponse{Acquired: acquired})
}

func (n *node) handleLockRelease(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.locks.Release(req.Resource, cluster.NodeID(req.Holder))
	writeJSON(w, http.StatusOK, lockResponse{Acquired: false})
}

func (n *node) handleLockStatus(w http.ResponseWriter, r *http.Request) {
	resource := r.PathValue("resource")
	holder, held := n.locks.Holder(resource)
	writeJSON(w, http.StatusOK, lockStatusResponse{
		Resource: resource,
		Held:     held,
		Holder:   string(holder),
	})
}

func (n *node) handleCachePut(w http.ResponseWriter, r *http.Request) {
	var req cachePutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.TTLMS <= 0 {
		http.Error(w, "ttl_ms must be positive", http.StatusBadRequest)
		return
	}
	n.cache.Put(r.PathValue("key"), req.Value, time.Duration(req.TTLMS)*time.Millisecond)
	w.WriteHeader(http.StatusNoContent)
}

func (n *node) handleCacheGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	value, found := n.cache.Get(r.Context(), key)
	writeJSON(w, http.StatusOK, cacheGetResponse{Key: key, Value: value, Found: found})
}

func (n *node) handleCacheDelete(w http.ResponseWriter, r *http.Request) {
	n.cache.Remove(r.PathValue("key"))
	w.WriteHeader(http.StatusNoContent)
}

// handleCachePeerFetch answers another node's pull-through lookup from
// the local store only; peer lookups never cascade.
func (n *node) handleCachePeerFetch(w http.ResponseWriter, r *http.Request) {
	var msg cluster.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req cluster.CacheFetchPayload
	if err := cluster.DecodePayload(msg.Payload, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	value, found := n.cache.GetLocal(req.Key)
	payload, err := cluster.EncodePayload(cluster.CacheValuePayload{
		Key:   req.Key,
		Value: value,
		Found: found,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cluster.Message{
		Kind:    cluster.KindCacheValue,
		From:    n.self.ID,
		Payload: payload,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
