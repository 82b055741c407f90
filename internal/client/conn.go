package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentdeck-ai/agentdeck/internal/logging"
	"github.com/agentdeck-ai/agentdeck/internal/wire"
)

const (
	// ReconnectInitialInterval is the initial interval for reconnect backoff.
	ReconnectInitialInterval = 500 * time.Millisecond
	// ReconnectMaxInterval is the maximum interval between reconnect attempts.
	ReconnectMaxInterval = 30 * time.Second

	writeWait = 10 * time.Second
)

// ErrClosed is returned when emitting on a closed or reconnecting
// connection.
var ErrClosed = errors.New("connection closed")

// Handler receives a decoded socket frame.
type Handler func(frame wire.Frame)

type handlerEntry struct {
	id uint64
	fn Handler
}

// Conn is a socket connection to the server that reconnects on failure.
// After each successful (re)connect it re-joins every room the caller
// joined and then fires the connect hooks, in that order: room events
// may start flowing the moment the join lands, so hooks that resync
// must install their buffers beforehand.
type Conn struct {
	url string
	log zerolog.Logger

	mu       sync.Mutex
	ws       *websocket.Conn
	handlers map[wire.EventName][]handlerEntry
	hooks    []handlerHook
	rooms    map[string]bool
	nextID   uint64
	closed   bool

	cancel context.CancelFunc
	donewg sync.WaitGroup
}

type handlerHook struct {
	id uint64
	fn func()
}

// Dial connects to the server's socket endpoint and starts the
// read/reconnect loop. baseURL is the server's HTTP base URL.
func Dial(ctx context.Context, baseURL string) (*Conn, error) {
	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/socket"

	c := &Conn{
		url:      url,
		log:      logging.For("client.socket"),
		handlers: make(map[wire.EventName][]handlerEntry),
		rooms:    make(map[string]bool),
	}

	ws, err := c.dialOnce(ctx)
	if err != nil {
		return nil, err
	}
	c.ws = ws

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.donewg.Add(1)
	go c.readLoop(runCtx)

	return c, nil
}

func (c *Conn) dialOnce(ctx context.Context) (*websocket.Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	return ws, err
}

// newReconnectBackoff builds the retry schedule for re-establishing the
// socket. Jitter spreads out viewers reconnecting after a server
// restart; no elapsed-time cap, the client retries until closed.
func newReconnectBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = ReconnectInitialInterval
	b.MaxInterval = ReconnectMaxInterval
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(b, ctx)
}

// On registers a handler for one event name. Returns an unsubscribe
// function.
func (c *Conn) On(event wire.EventName, fn Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.handlers[event] = append(c.handlers[event], handlerEntry{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		entries := c.handlers[event]
		for i, e := range entries {
			if e.id == id {
				c.handlers[event] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// OnConnect registers a hook invoked after every reconnect, once rooms
// have been re-joined. It is not invoked for the initial connection.
func (c *Conn) OnConnect(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.hooks = append(c.hooks, handlerHook{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, h := range c.hooks {
			if h.id == id {
				c.hooks = append(c.hooks[:i], c.hooks[i+1:]...)
				return
			}
		}
	}
}

// Emit sends one frame to the server. Fire-and-forget: the protocol has
// no per-frame acknowledgements.
func (c *Conn) Emit(event wire.EventName, payload any) error {
	frame, err := wire.NewFrame(event, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil || c.closed {
		return ErrClosed
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(frame)
}

// Join subscribes to a session room. The subscription survives
// reconnects until Leave is called.
func (c *Conn) Join(room string) error {
	c.mu.Lock()
	c.rooms[room] = true
	c.mu.Unlock()
	return c.Emit(wire.EvtJoinRoom, wire.RoomRef{Room: room})
}

// Leave unsubscribes from a session room.
func (c *Conn) Leave(room string) error {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
	return c.Emit(wire.EvtLeaveRoom, wire.RoomRef{Room: room})
}

// Close shuts the connection down and stops reconnecting.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	ws := c.ws
	c.mu.Unlock()

	c.cancel()
	if ws != nil {
		ws.Close()
	}
	c.donewg.Wait()
	return nil
}

func (c *Conn) readLoop(ctx context.Context) {
	defer c.donewg.Done()

	for {
		c.mu.Lock()
		ws := c.ws
		c.mu.Unlock()

		for {
			var frame wire.Frame
			if err := ws.ReadJSON(&frame); err != nil {
				break
			}
			c.dispatch(frame)
		}

		c.mu.Lock()
		closed := c.closed
		c.ws = nil
		c.mu.Unlock()
		if closed || ctx.Err() != nil {
			return
		}

		if !c.reconnect(ctx) {
			return
		}
	}
}

// reconnect re-establishes the socket, re-joins rooms, and fires the
// connect hooks. Returns false when the connection was closed while
// retrying.
func (c *Conn) reconnect(ctx context.Context) bool {
	var ws *websocket.Conn
	err := backoff.Retry(func() error {
		var dialErr error
		ws, dialErr = c.dialOnce(ctx)
		if dialErr != nil {
			c.log.Debug().Err(dialErr).Msg("reconnect attempt failed")
		}
		return dialErr
	}, newReconnectBackoff(ctx))
	if err != nil {
		return false
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		return false
	}
	c.ws = ws
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	hooks := make([]func(), 0, len(c.hooks))
	for _, h := range c.hooks {
		hooks = append(hooks, h.fn)
	}
	c.mu.Unlock()

	for _, room := range rooms {
		if err := c.Emit(wire.EvtJoinRoom, wire.RoomRef{Room: room}); err != nil {
			c.log.Warn().Err(err).Str("session_id", room).Msg("re-join failed")
		}
	}
	for _, hook := range hooks {
		hook()
	}

	c.log.Info().Int("rooms", len(rooms)).Msg("reconnected")
	return true
}

func (c *Conn) dispatch(frame wire.Frame) {
	c.mu.Lock()
	entries := c.handlers[frame.Event]
	fns := make([]Handler, len(entries))
	for i, e := range entries {
		fns[i] = e.fn
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(frame)
	}
}
