// Package commands provides the CLI commands for agentdeck.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentdeck-ai/agentdeck/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel  string
	logPretty bool
)

var rootCmd = &cobra.Command{
	Use:   "agentdeck",
	Short: "agentdeck - shared live console for AI agent sessions",
	Long: `agentdeck hosts live agent sessions that any number of viewers can
watch and steer in real time.

Run 'agentdeck serve' to start the session server, or 'agentdeck chat'
to join a session from the terminal.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.Config{
			Level:  logging.ParseLevel(logLevel),
			Pretty: logPretty,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "Human-readable log output")

	rootCmd.SetVersionTemplate(fmt.Sprintf("agentdeck %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
