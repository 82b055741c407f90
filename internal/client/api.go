// Package client provides the viewer-side runtime: a REST client for
// session records, a socket connection with automatic reconnect, and a
// session view that assembles transcript, lifecycle, and read-position
// state from both.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

// API is the HTTP client for session records. The socket carries live
// events only; seed state always comes from these endpoints.
type API struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPI creates an API client for the given server base URL.
func NewAPI(baseURL string) *API {
	return &API{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%s %s: %s (%s)", method, path, apiErr.Error.Message, apiErr.Error.Code)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// CreateSession creates a new session.
func (a *API) CreateSession(ctx context.Context, prompt string, typ types.SessionType) (*types.Session, error) {
	req := map[string]string{"prompt": prompt}
	if typ != "" {
		req["type"] = string(typ)
	}
	var sess types.Session
	if err := a.do(ctx, http.MethodPost, "/session", req, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetSession fetches one session record.
func (a *API) GetSession(ctx context.Context, id string) (*types.Session, error) {
	var sess types.Session
	if err := a.do(ctx, http.MethodGet, "/session/"+id, nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions fetches all sessions, newest first.
func (a *API) ListSessions(ctx context.Context) ([]*types.Session, error) {
	var sessions []*types.Session
	if err := a.do(ctx, http.MethodGet, "/session", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// DeleteSession deletes a session and its messages.
func (a *API) DeleteSession(ctx context.Context, id string) error {
	return a.do(ctx, http.MethodDelete, "/session/"+id, nil, nil)
}

// Messages fetches the recombined transcript for a session.
func (a *API) Messages(ctx context.Context, sessionID string) ([]*types.Message, error) {
	var messages []*types.Message
	if err := a.do(ctx, http.MethodGet, "/session/"+sessionID+"/message", nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
