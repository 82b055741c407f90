package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentdeck-ai/agentdeck/internal/event"
	"github.com/agentdeck-ai/agentdeck/internal/logging"
	"github.com/agentdeck-ai/agentdeck/internal/session"
	"github.com/agentdeck-ai/agentdeck/internal/wire"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Outbound frame buffer per connection. Deliver drops on overflow:
	// room delivery is best-effort and a stalled reader must not stall
	// fan-out to the rest of the room.
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Cross-origin policy is handled by the CORS middleware; the socket
	// accepts any origin the HTTP layer let through.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// socketConn is one live WebSocket connection, viewer or agent. It is a
// room endpoint: events published for a session it joined are converted
// to wire frames and queued on its send channel.
type socketConn struct {
	id     string
	server *Server
	conn   *websocket.Conn
	send   chan wire.Frame
	done   chan struct{}
	log    zerolog.Logger
}

// handleSocket handles GET /socket, upgrading to a WebSocket.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log := logging.For("socket")
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &socketConn{
		id:     uuid.NewString(),
		server: s,
		conn:   conn,
		send:   make(chan wire.Frame, sendBuffer),
		done:   make(chan struct{}),
	}
	c.log = logging.For("socket").With().Str("endpoint", c.id).Logger()

	go c.writePump()
	c.readPump()
}

// ID implements room.Endpoint.
func (c *socketConn) ID() string { return c.id }

// Deliver implements room.Endpoint. It never blocks: if the send buffer
// is full the event is dropped and the reader catches up on reconnect
// via the seed fetch.
func (c *socketConn) Deliver(ev event.Event) {
	frame, ok := frameFromEvent(ev)
	if !ok {
		return
	}
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		c.log.Warn().
			Str("event", string(frame.Event)).
			Str("session_id", ev.SessionID).
			Msg("send buffer full, dropping event")
	}
}

// deliverFrame queues a frame built outside the event path, such as the
// joined acknowledgement, which goes only to the requesting endpoint.
func (c *socketConn) deliverFrame(frame wire.Frame) {
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		c.log.Warn().Str("event", string(frame.Event)).Msg("send buffer full, dropping frame")
	}
}

// readPump reads frames from the peer until the connection drops, then
// removes the endpoint from every room it joined.
func (c *socketConn) readPump() {
	defer func() {
		c.server.rooms.LeaveAll(c)
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame wire.Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("read error")
			}
			return
		}
		c.dispatch(frame)
	}
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings.
func (c *socketConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound frame. Malformed or misaddressed frames
// are logged and dropped; the socket protocol has no error replies.
func (c *socketConn) dispatch(frame wire.Frame) {
	switch frame.Event {
	case wire.EvtJoinRoom:
		c.handleJoin(frame)
	case wire.EvtLeaveRoom:
		c.handleLeave(frame)
	case wire.EvtMessage:
		c.handleMessage(frame)
	case wire.EvtStopGenerating:
		c.handleStop(frame)
	case wire.EvtStatus:
		c.handleStatus(frame)
	case wire.EvtType:
		c.handleType(frame)
	case wire.EvtTokens:
		c.handleTokens(frame)
	case wire.EvtTerminate:
		c.handleTerminate(frame)
	default:
		c.log.Warn().Str("event", string(frame.Event)).Msg("unknown event, dropping")
	}
}

func (c *socketConn) handleJoin(frame wire.Frame) {
	var ref wire.RoomRef
	if err := frame.Decode(&ref); err != nil || ref.Room == "" {
		c.log.Warn().Err(err).Msg("bad join_room frame")
		return
	}

	c.server.rooms.Join(ref.Room, c)

	// Acknowledge directly to the joining endpoint, never through the
	// room: other members must not see the ack.
	ack, err := wire.NewFrame(wire.EvtJoined, wire.RoomRef{Room: ref.Room})
	if err != nil {
		return
	}
	c.deliverFrame(ack)
	c.log.Debug().Str("session_id", ref.Room).Msg("joined room")
}

func (c *socketConn) handleLeave(frame wire.Frame) {
	var ref wire.RoomRef
	if err := frame.Decode(&ref); err != nil || ref.Room == "" {
		c.log.Warn().Err(err).Msg("bad leave_room frame")
		return
	}
	c.server.rooms.Leave(ref.Room, c)
	c.log.Debug().Str("session_id", ref.Room).Msg("left room")
}

func (c *socketConn) handleMessage(frame wire.Frame) {
	var payload wire.MessagePayload
	if err := frame.Decode(&payload); err != nil {
		c.log.Warn().Err(err).Msg("bad message frame")
		return
	}

	m := payload.Message
	if payload.Room != "" {
		m.SessionID = payload.Room
	}
	if m.SessionID == "" {
		c.log.Warn().Msg("message frame without room")
		return
	}

	if _, err := c.server.sessions.AppendMessage(c.ctx(), &m); err != nil {
		// Unknown or terminated sessions absorb the message; senders
		// get no error reply over the socket.
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrTerminated) {
			c.log.Warn().Err(err).Str("session_id", m.SessionID).Msg("dropping message")
			return
		}
		c.log.Error().Err(err).Str("session_id", m.SessionID).Msg("append message failed")
	}
}

func (c *socketConn) handleStop(frame wire.Frame) {
	var ref wire.RoomRef
	if err := frame.Decode(&ref); err != nil || ref.Room == "" {
		c.log.Warn().Err(err).Msg("bad stop_generating frame")
		return
	}

	// Relayed to the room so the agent endpoint sees it; the server
	// itself takes no action.
	c.server.bus.PublishSync(event.Event{
		Type:      event.TypeStop,
		SessionID: ref.Room,
		Data:      event.StopData{},
	})
}

func (c *socketConn) handleStatus(frame wire.Frame) {
	var payload wire.StatusPayload
	if err := frame.Decode(&payload); err != nil || payload.Room == "" {
		c.log.Warn().Err(err).Msg("bad status frame")
		return
	}
	if err := c.server.sessions.UpdateStatus(c.ctx(), payload.Room, payload.Value); err != nil {
		c.log.Warn().Err(err).Str("session_id", payload.Room).Msg("status update failed")
	}
}

func (c *socketConn) handleType(frame wire.Frame) {
	var payload wire.TypePayload
	if err := frame.Decode(&payload); err != nil || payload.Room == "" {
		c.log.Warn().Err(err).Msg("bad type frame")
		return
	}
	if err := c.server.sessions.UpdateType(c.ctx(), payload.Room, payload.Value); err != nil {
		c.log.Warn().Err(err).Str("session_id", payload.Room).Msg("type update failed")
	}
}

func (c *socketConn) handleTokens(frame wire.Frame) {
	var payload wire.TokensPayload
	if err := frame.Decode(&payload); err != nil || payload.Room == "" {
		c.log.Warn().Err(err).Msg("bad tokens frame")
		return
	}
	if err := c.server.sessions.AddTokens(c.ctx(), payload.Room, payload.Value); err != nil {
		c.log.Warn().Err(err).Str("session_id", payload.Room).Msg("tokens update failed")
	}
}

func (c *socketConn) handleTerminate(frame wire.Frame) {
	var ref wire.RoomRef
	if err := frame.Decode(&ref); err != nil || ref.Room == "" {
		c.log.Warn().Err(err).Msg("bad terminate frame")
		return
	}
	if err := c.server.sessions.Terminate(c.ctx(), ref.Room); err != nil {
		c.log.Warn().Err(err).Str("session_id", ref.Room).Msg("terminate failed")
	}
}

// ctx returns the context for service calls made on behalf of frames.
// Frame handling outlives the originating read, so the connection does
// not scope these calls.
func (c *socketConn) ctx() context.Context { return context.Background() }

// frameFromEvent converts a bus event into its wire frame. Events with
// no socket representation return ok=false.
func frameFromEvent(ev event.Event) (wire.Frame, bool) {
	var (
		frame wire.Frame
		err   error
	)

	switch data := ev.Data.(type) {
	case event.MessageData:
		frame, err = wire.NewFrame(wire.EvtMessage, data.Message)
	case event.StatusData:
		frame, err = wire.NewFrame(wire.EvtStatus, wire.StatusPayload{Room: ev.SessionID, Value: data.Value})
	case event.ChatTypeData:
		frame, err = wire.NewFrame(wire.EvtType, wire.TypePayload{Room: ev.SessionID, Value: data.Value})
	case event.TokensData:
		frame, err = wire.NewFrame(wire.EvtTokens, wire.TokensPayload{Room: ev.SessionID, Value: data.Value})
	case event.TerminateData:
		frame, err = wire.NewFrame(wire.EvtTerminate, wire.RoomRef{Room: ev.SessionID})
	case event.StopData:
		frame, err = wire.NewFrame(wire.EvtStopGenerating, wire.RoomRef{Room: ev.SessionID})
	default:
		return wire.Frame{}, false
	}
	if err != nil {
		return wire.Frame{}, false
	}
	return frame, true
}
