package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentdeck-ai/agentdeck/internal/config"
	"github.com/agentdeck-ai/agentdeck/internal/event"
	"github.com/agentdeck-ai/agentdeck/internal/logging"
	"github.com/agentdeck-ai/agentdeck/internal/server"
	"github.com/agentdeck-ai/agentdeck/internal/session"
	"github.com/agentdeck-ai/agentdeck/internal/storage"
)

var (
	servePort     int
	serveHostname string
	serveDir      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agentdeck session server",
	Long: `Start the agentdeck server: session records over HTTP, live events
over a WebSocket. Agents and viewers both connect here.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "", "Hostname to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir := serveDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return err
		}
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if serveHostname != "" {
		cfg.Host = serveHostname
	}

	if err := config.GetPaths().EnsurePaths(); err != nil {
		return err
	}

	log := logging.For("serve")

	store := storage.New(cfg.DataDir)
	bus := event.NewBus()
	sessions := session.NewService(store, bus)

	serverConfig := server.DefaultConfig()
	serverConfig.Host = cfg.Host
	serverConfig.Port = cfg.Port
	serverConfig.EnableCORS = cfg.CORSEnabled()

	srv := server.New(serverConfig, sessions, bus)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)).Msg("server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return bus.Close()
}
