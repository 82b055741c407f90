package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentdeck-ai/agentdeck/internal/client"
)

var sessionsServer string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List and manage sessions",
	RunE:  runSessionsList,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	sessionsCmd.PersistentFlags().StringVar(&sessionsServer, "server", "http://127.0.0.1:3000", "Server base URL")
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	api := client.NewAPI(sessionsServer)
	sessions, err := api.ListSessions(context.Background())
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("no sessions")
		return nil
	}
	for _, s := range sessions {
		created := time.UnixMilli(s.Time.Created).Format(time.RFC3339)
		prompt := s.Prompt
		if len(prompt) > 60 {
			prompt = prompt[:57] + "..."
		}
		fmt.Printf("%s  %-10s  %s  %s\n", s.ID, s.Status, created, prompt)
	}
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	api := client.NewAPI(sessionsServer)
	if err := api.DeleteSession(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Println("deleted", args[0])
	return nil
}
