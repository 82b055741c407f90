// Package wire defines the socket frame envelope and payload shapes
// exchanged between viewers, agents, and the server.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

// EventName identifies a socket event.
type EventName string

// Inbound (client → server) events.
const (
	EvtJoinRoom       EventName = "join_room"
	EvtLeaveRoom      EventName = "leave_room"
	EvtMessage        EventName = "message"
	EvtStopGenerating EventName = "stop_generating"
)

// Outbound (server → client) events. EvtMessage and EvtStopGenerating
// travel both directions.
const (
	EvtStatus    EventName = "status"
	EvtType      EventName = "type"
	EvtTokens    EventName = "tokens"
	EvtTerminate EventName = "terminate"
	EvtJoined    EventName = "joined"
)

// Frame is the envelope for every socket event.
type Frame struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame builds a frame with the payload encoded in place.
func NewFrame(event EventName, payload any) (Frame, error) {
	if payload == nil {
		return Frame{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Frame{Event: event, Data: data}, nil
}

// Decode unmarshals the frame payload into v.
func (f Frame) Decode(v any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%s frame has no payload", f.Event)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", f.Event, err)
	}
	return nil
}

// RoomRef addresses a session room; used by join_room, leave_room,
// joined, and stop_generating.
type RoomRef struct {
	Room string `json:"room"`
}

// MessagePayload is the message event body: the message itself plus the
// room it targets. Fanned-out messages carry the session in their own
// sessionId field instead.
type MessagePayload struct {
	Room string `json:"room,omitempty"`
	types.Message
}

// StatusPayload carries a session status value. Room names the session
// in both directions; endpoints joined to several rooms route by it.
type StatusPayload struct {
	Room  string              `json:"room,omitempty"`
	Value types.SessionStatus `json:"value"`
}

// TypePayload carries a processing-phase classification.
type TypePayload struct {
	Room  string            `json:"room,omitempty"`
	Value types.SessionType `json:"value"`
}

// TokensPayload carries token usage: a delta to add when sent by an
// agent endpoint, the cumulative session total when fanned out.
type TokensPayload struct {
	Room  string `json:"room,omitempty"`
	Value int    `json:"value"`
}
