package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentdeck-ai/agentdeck/internal/event"
	"github.com/agentdeck-ai/agentdeck/internal/session"
	"github.com/agentdeck-ai/agentdeck/internal/storage"
	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	store := storage.New(t.TempDir())
	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })

	cfg := DefaultConfig()
	cfg.EnableCORS = false
	return New(cfg, session.NewService(store, bus), bus)
}

func TestListSessions_Empty(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest("GET", "/session", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var sessions []types.Session
	if err := json.NewDecoder(w.Body).Decode(&sessions); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("Expected empty list, got %d sessions", len(sessions))
	}
}

func TestCreateSession(t *testing.T) {
	srv := setupTestServer(t)

	body, _ := json.Marshal(CreateSessionRequest{Prompt: "summarize the logs", Type: "chat"})
	req := httptest.NewRequest("POST", "/session", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var sess types.Session
	if err := json.NewDecoder(w.Body).Decode(&sess); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if sess.ID == "" {
		t.Error("Session ID should not be empty")
	}
	if sess.Prompt != "summarize the logs" {
		t.Errorf("Prompt mismatch: got %q", sess.Prompt)
	}
	if sess.Status != types.StatusStarted {
		t.Errorf("Expected started status, got %q", sess.Status)
	}
}

func TestCreateSession_InvalidJSON(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest("POST", "/session", bytes.NewReader([]byte("invalid json")))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestCreateSession_MissingPrompt(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest("POST", "/session", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest("GET", "/session/nonexistent", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if resp.Error.Code != ErrCodeNotFound {
		t.Errorf("Expected %s, got %s", ErrCodeNotFound, resp.Error.Code)
	}
}

func TestGetSession(t *testing.T) {
	srv := setupTestServer(t)

	created, err := srv.sessions.Create(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/session/"+created.ID, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var sess types.Session
	if err := json.NewDecoder(w.Body).Decode(&sess); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if sess.ID != created.ID {
		t.Errorf("ID mismatch: got %s, want %s", sess.ID, created.ID)
	}
}

func TestDeleteSession(t *testing.T) {
	srv := setupTestServer(t)

	created, err := srv.sessions.Create(context.Background(), "to delete", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	req := httptest.NewRequest("DELETE", "/session/"+created.ID, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	if _, err := srv.sessions.Get(context.Background(), created.ID); err == nil {
		t.Error("Session should be gone after delete")
	}
}

func TestDeleteSession_NotFound(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest("DELETE", "/session/nonexistent", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestGetMessages(t *testing.T) {
	srv := setupTestServer(t)
	ctx := context.Background()

	sess, err := srv.sessions.Create(ctx, "with messages", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := srv.sessions.AppendMessage(ctx, &types.Message{
		SessionID:  sess.ID,
		AuthorName: "viewer",
		Incoming:   true,
		Ts:         1,
		Message:    types.Content{Text: "first"},
	}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if _, err := srv.sessions.AppendMessage(ctx, &types.Message{
		SessionID:  sess.ID,
		AuthorName: "agent",
		Ts:         2,
		Message:    types.Content{Text: "second"},
	}); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/session/"+sess.ID+"/message", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var messages []types.Message
	if err := json.NewDecoder(w.Body).Decode(&messages); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}
	if messages[0].Message.Text != "first" || messages[1].Message.Text != "second" {
		t.Errorf("Messages out of order: %q then %q",
			messages[0].Message.Text, messages[1].Message.Text)
	}
}

func TestGetMessages_SessionNotFound(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest("GET", "/session/nonexistent/message", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
