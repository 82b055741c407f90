package room

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentdeck-ai/agentdeck/internal/event"
)

type fakeEndpoint struct {
	id     string
	events []event.Event
}

func (f *fakeEndpoint) ID() string { return f.id }
func (f *fakeEndpoint) Deliver(ev event.Event) { f.events = append(f.events, ev) }

func TestJoinIsIdempotent(t *testing.T) {
	r := NewRegistry()
	ep := &fakeEndpoint{id: "e1"}

	r.Join("s1", ep)
	r.Join("s1", ep)

	assert.Equal(t, 1, r.Members("s1"))
}

func TestLeaveIsIdempotent(t *testing.T) {
	r := NewRegistry()
	ep := &fakeEndpoint{id: "e1"}

	r.Join("s1", ep)
	r.Leave("s1", ep)
	r.Leave("s1", ep)
	r.Leave("never-joined", ep)

	assert.Equal(t, 0, r.Members("s1"))
}

func TestBroadcastReachesAllMembers(t *testing.T) {
	r := NewRegistry()
	a := &fakeEndpoint{id: "a"}
	b := &fakeEndpoint{id: "b"}
	r.Join("s1", a)
	r.Join("s1", b)

	r.Broadcast("s1", event.Event{Type: event.TypeStatus, SessionID: "s1"})

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestBroadcastIsIsolatedBetweenRooms(t *testing.T) {
	r := NewRegistry()
	a := &fakeEndpoint{id: "a"}
	b := &fakeEndpoint{id: "b"}
	r.Join("s1", a)
	r.Join("s2", b)

	r.Broadcast("s1", event.Event{Type: event.TypeMessage, SessionID: "s1"})

	assert.Len(t, a.events, 1)
	assert.Empty(t, b.events)
}

func TestDepartedMemberGetsNothing(t *testing.T) {
	r := NewRegistry()
	a := &fakeEndpoint{id: "a"}
	r.Join("s1", a)
	r.Leave("s1", a)

	r.Broadcast("s1", event.Event{Type: event.TypeMessage, SessionID: "s1"})

	assert.Empty(t, a.events)
}

func TestBroadcastToEmptyRoomIsNotAnError(t *testing.T) {
	r := NewRegistry()
	// Must simply not panic.
	r.Broadcast("ghost", event.Event{Type: event.TypeMessage, SessionID: "ghost"})
}

func TestLeaveAll(t *testing.T) {
	r := NewRegistry()
	ep := &fakeEndpoint{id: "e1"}
	other := &fakeEndpoint{id: "e2"}
	r.Join("s1", ep)
	r.Join("s2", ep)
	r.Join("s2", other)

	r.LeaveAll(ep)

	assert.Equal(t, 0, r.Members("s1"))
	assert.Equal(t, 1, r.Members("s2"))
}
