package aris

import (
	"sort"
	"sync"

	"impulse/internal/wire"
)

// Registry tracks the last record received from each known peer, keyed by
// UUID. Writes are last-write-wins; entries are never expired or evicted, so
// a peer that goes silent stays in the registry with its final record.
type Registry struct {
	mu     sync.Mutex
	robots map[string]wire.AgentMessage
}

func NewRegistry() *Registry {
	return &Registry{robots: make(map[string]wire.AgentMessage)}
}

// Upsert stores the record under its UUID, overwriting any previous entry,
// and reports whether the peer was previously unknown.
func (r *Registry) Upsert(msg wire.AgentMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, known := r.robots[msg.UUID]
	r.robots[msg.UUID] = msg
	return !known
}

// Get returns the last record received from the given peer.
func (r *Registry) Get(uuid string) (wire.AgentMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.robots[uuid]
	return msg, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.robots)
}

// Snapshot returns a copy of every known record, ordered by UUID so
// repeated calls render stable listings.
func (r *Registry) Snapshot() []wire.AgentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]wire.AgentMessage, 0, len(r.robots))
	for _, msg := range r.robots {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out
}
