// Package main provides the entry point for the agentdeck server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentdeck-ai/agentdeck/internal/config"
	"github.com/agentdeck-ai/agentdeck/internal/event"
	"github.com/agentdeck-ai/agentdeck/internal/logging"
	"github.com/agentdeck-ai/agentdeck/internal/server"
	"github.com/agentdeck-ai/agentdeck/internal/session"
	"github.com/agentdeck-ai/agentdeck/internal/storage"
)

var (
	port      = flag.Int("port", 0, "Server port (overrides config)")
	directory = flag.String("directory", "", "Working directory")
	version   = flag.Bool("version", false, "Print version and exit")
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("agentdeck-server %s (%s)\n", Version, BuildTime)
		os.Exit(0)
	}

	workDir := *directory
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to get working directory: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}

	logging.Init(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
	})
	log := logging.For("main")

	if err := config.GetPaths().EnsurePaths(); err != nil {
		log.Fatal().Err(err).Msg("failed to create data directories")
	}

	store := storage.New(cfg.DataDir)
	bus := event.NewBus()
	sessions := session.NewService(store, bus)

	serverConfig := server.DefaultConfig()
	serverConfig.Host = cfg.Host
	serverConfig.Port = cfg.Port
	serverConfig.EnableCORS = cfg.CORSEnabled()

	srv := server.New(serverConfig, sessions, bus)

	go func() {
		log.Info().Str("addr", fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)).Msg("server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	bus.Close()

	log.Info().Msg("server stopped")
}
