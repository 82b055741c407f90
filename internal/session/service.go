// Package session provides the durable session and message service
// backing the messaging core. Every mutation is published on the event
// bus so connected rooms observe it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentdeck-ai/agentdeck/internal/event"
	"github.com/agentdeck-ai/agentdeck/internal/storage"
	"github.com/agentdeck-ai/agentdeck/internal/transcript"
	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrTerminated is returned for mutations against a terminated
	// session, which is immutable.
	ErrTerminated = errors.New("session terminated")
	// ErrUnknownStatus is returned for status values outside the known
	// enum; callers log and drop these.
	ErrUnknownStatus = errors.New("unknown status value")
)

// Service manages durable sessions and their message history.
type Service struct {
	store *storage.Store
	bus   *event.Bus

	// Per-session write serialization: chunk merge and re-sort are not
	// commutative, so events for one session apply strictly in order.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a session service over the given store and bus.
func NewService(store *storage.Store, bus *event.Bus) *Service {
	return &Service{
		store: store,
		bus:   bus,
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *Service) sessionLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

// Create creates a new session in the started state.
func (s *Service) Create(ctx context.Context, prompt string, typ types.SessionType) (*types.Session, error) {
	now := time.Now().UnixMilli()
	sess := &types.Session{
		ID:     generateID(),
		Prompt: prompt,
		Type:   typ,
		Status: types.StatusStarted,
		Time:   types.SessionTime{Created: now, Updated: now},
	}
	if err := s.store.Put(ctx, []string{"session", sess.ID}, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Get returns the session record for id.
func (s *Service) Get(ctx context.Context, id string) (*types.Session, error) {
	var sess types.Session
	if err := s.store.Get(ctx, []string{"session", id}, &sess); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

// List returns all sessions, newest first.
func (s *Service) List(ctx context.Context) ([]*types.Session, error) {
	keys, err := s.store.List(ctx, []string{"session"})
	if err != nil {
		return nil, err
	}
	sessions := make([]*types.Session, 0, len(keys))
	for _, key := range keys {
		sess, err := s.Get(ctx, key)
		if err != nil {
			continue
		}
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Time.Created > sessions[j].Time.Created
	})
	return sessions, nil
}

// Delete removes a session and its message history.
func (s *Service) Delete(ctx context.Context, id string) error {
	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	if err := s.store.Delete(ctx, []string{"session", id}); err != nil {
		return err
	}
	return s.store.DeleteAll(ctx, []string{"message", id})
}

// Messages returns the session's full message history sorted by
// timestamp, chunks reassembled. This is the authoritative transcript
// viewers seed from at open and after a reconnect resync.
func (s *Service) Messages(ctx context.Context, sessionID string) ([]*types.Message, error) {
	keys, err := s.store.List(ctx, []string{"message", sessionID})
	if err != nil {
		return nil, err
	}
	msgs := make([]*types.Message, 0, len(keys))
	for _, key := range keys {
		var m types.Message
		if err := s.store.Get(ctx, []string{"message", sessionID, key}, &m); err != nil {
			continue
		}
		transcript.Recombine(&m)
		msgs = append(msgs, &m)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Ts < msgs[j].Ts
	})
	return msgs, nil
}

// AppendMessage persists one inbound message event and publishes it. An
// event sharing a chunkId and author with a stored outgoing message is
// folded into that record; a redelivered chunk is dropped without a
// publish. Incoming events always append.
func (s *Service) AppendMessage(ctx context.Context, m *types.Message) (*types.Message, error) {
	lock := s.sessionLock(m.SessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.Get(ctx, m.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.Terminated() {
		return nil, ErrTerminated
	}

	stored := m.Clone()
	if stored.Ts == 0 {
		stored.Ts = time.Now().UnixMilli()
	}

	if !stored.Incoming && stored.Message.ChunkID != "" {
		if sibling, err := s.findSibling(ctx, stored); err == nil && sibling != nil {
			chunk := types.Chunk{Ts: stored.Ts, Text: stored.Message.Text, Tokens: stored.Message.Tokens}
			if !transcript.AppendChunk(sibling, chunk) {
				// Redelivery; nothing changed, nothing to publish.
				return sibling, nil
			}
			if err := s.store.Put(ctx, []string{"message", m.SessionID, sibling.ID}, sibling); err != nil {
				return nil, fmt.Errorf("persist chunk: %w", err)
			}
			s.touch(ctx, sess)
			s.publishMessage(m.SessionID, stored)
			return sibling, nil
		}
	}

	if stored.ID == "" {
		stored.ID = generateID()
	}
	if err := s.store.Put(ctx, []string{"message", m.SessionID, stored.ID}, stored); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	s.touch(ctx, sess)
	s.publishMessage(m.SessionID, stored)
	return stored, nil
}

// findSibling locates the stored outgoing message an event's chunk
// belongs to, if any.
func (s *Service) findSibling(ctx context.Context, m *types.Message) (*types.Message, error) {
	msgs, err := s.Messages(ctx, m.SessionID)
	if err != nil {
		return nil, err
	}
	for _, candidate := range msgs {
		if candidate.Incoming {
			continue
		}
		if candidate.Message.ChunkID == m.Message.ChunkID && candidate.AuthorName == m.AuthorName {
			return candidate, nil
		}
	}
	return nil, nil
}

// UpdateStatus applies a status event to the session.
func (s *Service) UpdateStatus(ctx context.Context, id string, status types.SessionStatus) error {
	if !types.KnownStatus(status) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}

	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess.Terminated() {
		return ErrTerminated
	}

	sess.Status = status
	sess.Time.Updated = time.Now().UnixMilli()
	if err := s.store.Put(ctx, []string{"session", id}, sess); err != nil {
		return err
	}

	if status == types.StatusTerminated {
		s.bus.PublishSync(event.Event{Type: event.TypeTerminate, SessionID: id, Data: event.TerminateData{}})
	} else {
		s.bus.PublishSync(event.Event{Type: event.TypeStatus, SessionID: id, Data: event.StatusData{Value: status}})
	}
	return nil
}

// UpdateType applies a processing-phase classification event.
func (s *Service) UpdateType(ctx context.Context, id string, typ types.SessionType) error {
	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess.Terminated() {
		return ErrTerminated
	}

	sess.Type = typ
	sess.Time.Updated = time.Now().UnixMilli()
	if err := s.store.Put(ctx, []string{"session", id}, sess); err != nil {
		return err
	}
	s.bus.PublishSync(event.Event{Type: event.TypeChatType, SessionID: id, Data: event.ChatTypeData{Value: typ}})
	return nil
}

// AddTokens adds to the session's cumulative token usage and publishes
// the new total.
func (s *Service) AddTokens(ctx context.Context, id string, delta int) error {
	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if sess.Terminated() {
		return ErrTerminated
	}

	sess.TokensUsed += delta
	sess.Time.Updated = time.Now().UnixMilli()
	if err := s.store.Put(ctx, []string{"session", id}, sess); err != nil {
		return err
	}
	s.bus.PublishSync(event.Event{Type: event.TypeTokens, SessionID: id, Data: event.TokensData{Value: sess.TokensUsed}})
	return nil
}

// Terminate moves the session to its terminal state. Terminating twice
// is a no-op.
func (s *Service) Terminate(ctx context.Context, id string) error {
	err := s.UpdateStatus(ctx, id, types.StatusTerminated)
	if errors.Is(err, ErrTerminated) {
		return nil
	}
	return err
}

// All publishes are synchronous: endpoint delivery is non-blocking by
// contract, and per-session event order must survive fan-out.
func (s *Service) publishMessage(sessionID string, m *types.Message) {
	s.bus.PublishSync(event.Event{
		Type:      event.TypeMessage,
		SessionID: sessionID,
		Data:      event.MessageData{Message: m},
	})
}

func (s *Service) touch(ctx context.Context, sess *types.Session) {
	sess.Time.Updated = time.Now().UnixMilli()
	_ = s.store.Put(ctx, []string{"session", sess.ID}, sess)
}

// generateID generates a new lexically sortable message/session ID.
func generateID() string {
	return ulid.Make().String()
}
