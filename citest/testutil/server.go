// Package testutil provides helpers for black-box tests: a fully wired
// server on a random port and client-side fixtures.
package testutil

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/agentdeck-ai/agentdeck/internal/event"
	"github.com/agentdeck-ai/agentdeck/internal/server"
	"github.com/agentdeck-ai/agentdeck/internal/session"
	"github.com/agentdeck-ai/agentdeck/internal/storage"
)

// TestServer wraps a fully wired server instance for testing.
type TestServer struct {
	Server   *server.Server
	Sessions *session.Service
	Bus      *event.Bus
	Storage  *storage.Store
	BaseURL  string
	TempDir  string

	httpSrv *httptest.Server
}

// StartTestServer creates and starts a test server backed by a
// temporary data directory.
func StartTestServer() (*TestServer, error) {
	tempDir, err := os.MkdirTemp("", "agentdeck-test-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	store := storage.New(tempDir)
	bus := event.NewBus()
	sessions := session.NewService(store, bus)

	cfg := server.DefaultConfig()
	cfg.EnableCORS = false
	srv := server.New(cfg, sessions, bus)

	httpSrv := httptest.NewServer(srv.Handler())

	return &TestServer{
		Server:   srv,
		Sessions: sessions,
		Bus:      bus,
		Storage:  store,
		BaseURL:  httpSrv.URL,
		TempDir:  tempDir,
		httpSrv:  httpSrv,
	}, nil
}

// Stop shuts the server down and removes its data directory.
func (ts *TestServer) Stop() {
	ts.httpSrv.Close()
	ts.Server.Shutdown(context.Background())
	ts.Bus.Close()
	os.RemoveAll(ts.TempDir)
}

// DropConnections severs every live client connection, sockets
// included, without stopping the server. Simulates a network blip.
func (ts *TestServer) DropConnections() {
	ts.httpSrv.CloseClientConnections()
}

// FreePort returns an available TCP port.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// WaitReady polls the server until it answers HTTP requests.
func (ts *TestServer) WaitReady() error {
	resp, err := http.Get(ts.BaseURL + "/session")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
