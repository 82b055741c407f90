// Package types provides the core data types shared by the agentdeck
// server and client.
package types

// SessionStatus describes where a session is in its lifetime.
type SessionStatus string

const (
	StatusStarted    SessionStatus = "started"
	StatusRunning    SessionStatus = "running"
	StatusWaiting    SessionStatus = "waiting"
	StatusErrored    SessionStatus = "errored"
	StatusTerminated SessionStatus = "terminated"
)

// KnownStatus reports whether s is a recognized status value. Events
// carrying an unknown status are logged and dropped rather than applied.
func KnownStatus(s SessionStatus) bool {
	switch s {
	case StatusStarted, StatusRunning, StatusWaiting, StatusErrored, StatusTerminated:
		return true
	}
	return false
}

// SessionType classifies the current processing phase of a session. The
// set of values is owned by the orchestration layer, so it is carried
// opaquely rather than validated.
type SessionType string

// SessionTime contains timestamps for a session, in Unix milliseconds.
type SessionTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}

// Session is one durable conversation thread between a viewer and an
// agent. It is created by the orchestration layer before any messaging
// begins and is immutable once Status is StatusTerminated.
type Session struct {
	ID         string        `json:"id"`
	Prompt     string        `json:"prompt"`
	Type       SessionType   `json:"type,omitempty"`
	Status     SessionStatus `json:"status"`
	TokensUsed int           `json:"tokensUsed"`
	Time       SessionTime   `json:"time"`
}

// Terminated reports whether the session has reached its terminal state.
func (s *Session) Terminated() bool {
	return s.Status == StatusTerminated
}
