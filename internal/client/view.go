package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentdeck-ai/agentdeck/internal/lifecycle"
	"github.com/agentdeck-ai/agentdeck/internal/logging"
	"github.com/agentdeck-ai/agentdeck/internal/transcript"
	"github.com/agentdeck-ai/agentdeck/internal/viewport"
	"github.com/agentdeck-ai/agentdeck/internal/wire"
	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

// SessionView is one viewer's live view of a session: the recombined
// transcript, the lifecycle state driving input and stop controls, and
// the read-position tracker. It stays consistent across reconnects by
// re-seeding from the REST API and replaying events buffered while the
// seed fetch was in flight.
type SessionView struct {
	api        *API
	conn       *Conn
	sessionID  string
	authorName string
	log        zerolog.Logger

	engine  *transcript.Engine
	machine *lifecycle.Machine
	tracker *viewport.Tracker

	mu       sync.Mutex
	session  *types.Session
	syncing  bool
	buffered []wire.Frame

	unsubs []func()
}

// OpenSession joins the session's room, seeds the view from the REST
// API, and starts applying live events. authorName is attached to
// outgoing messages.
func OpenSession(ctx context.Context, api *API, conn *Conn, sessionID, authorName string) (*SessionView, error) {
	v := &SessionView{
		api:        api,
		conn:       conn,
		sessionID:  sessionID,
		authorName: authorName,
		log:        logging.For("client.view").With().Str("session_id", sessionID).Logger(),
		engine:     transcript.NewEngine(),
		machine:    lifecycle.NewMachine(),
		tracker:    viewport.NewTracker(),
		syncing:    true,
	}

	// Handlers go in before the join: events may start arriving the
	// moment the join lands, and during a resync they are buffered
	// rather than lost.
	v.unsubs = append(v.unsubs,
		conn.On(wire.EvtMessage, v.handleFrame),
		conn.On(wire.EvtStatus, v.handleFrame),
		conn.On(wire.EvtType, v.handleFrame),
		conn.On(wire.EvtTokens, v.handleFrame),
		conn.On(wire.EvtTerminate, v.handleFrame),
		conn.OnConnect(func() {
			if err := v.resync(context.Background()); err != nil {
				v.log.Warn().Err(err).Msg("resync after reconnect failed")
			}
		}),
	)

	if err := conn.Join(sessionID); err != nil {
		v.detach()
		return nil, fmt.Errorf("join room: %w", err)
	}

	if err := v.resync(ctx); err != nil {
		v.detach()
		conn.Leave(sessionID)
		return nil, err
	}
	return v, nil
}

// resync re-seeds the view from the REST API. Events arriving while the
// fetch is in flight are buffered and applied afterwards; reassembly is
// idempotent, so overlap between the seed and the buffer is harmless.
func (v *SessionView) resync(ctx context.Context) error {
	v.mu.Lock()
	v.syncing = true
	v.buffered = nil
	v.mu.Unlock()

	sess, err := v.api.GetSession(ctx, v.sessionID)
	if err != nil {
		return fmt.Errorf("fetch session: %w", err)
	}
	records, err := v.api.Messages(ctx, v.sessionID)
	if err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.session = sess
	v.engine.Seed(records)
	if sess.Terminated() {
		v.machine.SeedTerminated()
	} else if latest := v.engine.Latest(); latest != nil {
		v.machine.MessageDelivered(latest)
	}

	for _, frame := range v.buffered {
		v.applyLocked(frame)
	}
	v.buffered = nil
	v.syncing = false
	return nil
}

func (v *SessionView) handleFrame(frame wire.Frame) {
	if !v.forThisSession(frame) {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.syncing {
		v.buffered = append(v.buffered, frame)
		return
	}
	v.applyLocked(frame)
}

// forThisSession filters frames by room; the connection is shared, so
// every view sees frames for every room the client joined.
func (v *SessionView) forThisSession(frame wire.Frame) bool {
	if frame.Event == wire.EvtMessage {
		var m types.Message
		if err := frame.Decode(&m); err != nil {
			return false
		}
		return m.SessionID == v.sessionID
	}
	var ref wire.RoomRef
	if err := frame.Decode(&ref); err != nil {
		return false
	}
	return ref.Room == v.sessionID
}

func (v *SessionView) applyLocked(frame wire.Frame) {
	switch frame.Event {
	case wire.EvtMessage:
		var m types.Message
		if err := frame.Decode(&m); err != nil {
			v.log.Warn().Err(err).Msg("bad message frame")
			return
		}
		delta := v.engine.Ingest(&m)
		v.machine.MessageDelivered(&m)
		if delta.Kind != transcript.DeltaDropped && delta.Message != nil {
			v.tracker.MessageArrived(delta.Message.ID)
		}

	case wire.EvtStatus:
		var payload wire.StatusPayload
		if err := frame.Decode(&payload); err != nil {
			return
		}
		if v.session != nil {
			v.session.Status = payload.Value
		}
		v.machine.ApplyStatus(payload.Value)

	case wire.EvtType:
		var payload wire.TypePayload
		if err := frame.Decode(&payload); err != nil {
			return
		}
		if v.session != nil {
			v.session.Type = payload.Value
		}

	case wire.EvtTokens:
		var payload wire.TokensPayload
		if err := frame.Decode(&payload); err != nil {
			return
		}
		if v.session != nil {
			v.session.TokensUsed = payload.Value
		}

	case wire.EvtTerminate:
		v.machine.Terminate()
		if v.session != nil {
			v.session.Status = types.StatusTerminated
		}
	}
}

// SendMessage submits viewer input. Fire-and-forget: the message comes
// back through the room like everyone else's, and only then enters the
// transcript.
func (v *SessionView) SendMessage(text string, isFeedback bool) error {
	if v.machine.Terminated() {
		return fmt.Errorf("session %s is terminated", v.sessionID)
	}

	err := v.conn.Emit(wire.EvtMessage, wire.MessagePayload{
		Room: v.sessionID,
		Message: types.Message{
			AuthorName: v.authorName,
			Incoming:   true,
			Ts:         time.Now().UnixMilli(),
			IsFeedback: isFeedback,
			Message:    types.Content{Text: text},
		},
	})
	if err != nil {
		return err
	}
	v.machine.ViewerSubmitted()
	return nil
}

// RequestStop asks the agent to stop generating. Fire-and-forget; the
// eventual status or terminate event is the only confirmation.
func (v *SessionView) RequestStop() error {
	return v.conn.Emit(wire.EvtStopGenerating, wire.RoomRef{Room: v.sessionID})
}

// Observe forwards a scroll measurement to the read-position tracker.
func (v *SessionView) Observe(scrollTop, clientHeight, scrollHeight float64) {
	v.tracker.Observe(scrollTop, clientHeight, scrollHeight)
}

// Messages returns the current recombined transcript.
func (v *SessionView) Messages() []*types.Message {
	return v.engine.Messages()
}

// Session returns a copy of the current session record.
func (v *SessionView) Session() types.Session {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.session == nil {
		return types.Session{ID: v.sessionID}
	}
	return *v.session
}

// Busy reports whether the agent owns the turn: viewer input stays
// disabled until an agent message lands. A terminated session is never
// busy.
func (v *SessionView) Busy() bool {
	if v.machine.Terminated() {
		return false
	}
	return lifecycle.Busy(v.engine.Latest())
}

// StopVisible reports whether the stop control should be shown.
func (v *SessionView) StopVisible() bool {
	return v.machine.StopVisible()
}

// Terminated reports whether the session has reached its final state.
func (v *SessionView) Terminated() bool {
	return v.machine.Terminated()
}

// LastSeen returns the id of the last message the viewer has seen.
func (v *SessionView) LastSeen() string {
	return v.tracker.LastSeen()
}

// TokenTotal returns the token usage visible in the transcript.
func (v *SessionView) TokenTotal() int {
	return v.engine.TokenTotal()
}

// Close detaches the view from the connection and leaves the room. The
// connection itself stays open for other views.
func (v *SessionView) Close() error {
	v.detach()
	return v.conn.Leave(v.sessionID)
}

func (v *SessionView) detach() {
	for _, unsub := range v.unsubs {
		unsub()
	}
	v.unsubs = nil
}
