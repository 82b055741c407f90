// Package room maps session identifiers to the set of live endpoints
// subscribed to them and fans session events out to members.
package room

import (
	"sync"

	"github.com/agentdeck-ai/agentdeck/internal/event"
)

// Endpoint is one live connection subscribed to a room. Deliver must not
// block: implementations buffer and drop on overflow, since member
// delivery is best-effort with no redelivery.
type Endpoint interface {
	ID() string
	Deliver(ev event.Event)
}

// Registry is the in-memory room table. It keeps no history: membership
// is reconstructed on every reconnect, never persisted.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Endpoint
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[string]Endpoint)}
}

// Join adds the endpoint to the room for sessionID. Joining a room the
// endpoint is already in is a no-op.
func (r *Registry) Join(sessionID string, ep Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[sessionID]
	if !ok {
		members = make(map[string]Endpoint)
		r.rooms[sessionID] = members
	}
	members[ep.ID()] = ep
}

// Leave removes the endpoint from the room. Leaving a room the endpoint
// is not in is a no-op, and an empty room is dropped from the table.
func (r *Registry) Leave(sessionID string, ep Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[sessionID]
	if !ok {
		return
	}
	delete(members, ep.ID())
	if len(members) == 0 {
		delete(r.rooms, sessionID)
	}
}

// LeaveAll removes the endpoint from every room it is in. Called when a
// connection drops.
func (r *Registry) LeaveAll(ep Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sessionID, members := range r.rooms {
		delete(members, ep.ID())
		if len(members) == 0 {
			delete(r.rooms, sessionID)
		}
	}
}

// Broadcast delivers the event to every current member of the room.
// Each member delivery is independent; no ordering is guaranteed across
// members and a failed delivery is not retried.
func (r *Registry) Broadcast(sessionID string, ev event.Event) {
	r.mu.RLock()
	members := make([]Endpoint, 0, len(r.rooms[sessionID]))
	for _, ep := range r.rooms[sessionID] {
		members = append(members, ep)
	}
	r.mu.RUnlock()

	for _, ep := range members {
		ep.Deliver(ev)
	}
}

// Members returns the number of endpoints currently in the room.
func (r *Registry) Members(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[sessionID])
}
