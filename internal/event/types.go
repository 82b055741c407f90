package event

import "github.com/agentdeck-ai/agentdeck/pkg/types"

// MessageData is the payload for message events: a full message or a
// fragment of a chunked outgoing message.
type MessageData struct {
	Message *types.Message
}

// StatusData is the payload for status events.
type StatusData struct {
	Value types.SessionStatus
}

// ChatTypeData is the payload for type events, classifying the current
// processing phase.
type ChatTypeData struct {
	Value types.SessionType
}

// TokensData is the payload for tokens events, carrying the cumulative
// session token usage.
type TokensData struct {
	Value int
}

// TerminateData is the payload for terminate events.
type TerminateData struct{}

// JoinedData is the payload for joined events, acknowledging a room
// join to the endpoint that requested it.
type JoinedData struct {
	EndpointID string
}

// StopData is the payload for stop_generating relays. Fire-and-forget:
// the eventual status/terminate event is the only confirmation that
// generation ended.
type StopData struct{}
