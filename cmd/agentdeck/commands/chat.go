package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/agentdeck-ai/agentdeck/internal/client"
	"github.com/agentdeck-ai/agentdeck/internal/wire"
	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

var (
	chatServer  string
	chatSession string
	chatName    string
	chatPrompt  string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join an agent session from the terminal",
	Long: `Join a live agent session as a viewer. Messages stream in as the
agent produces them; anything you type is sent into the session.

Examples:
  agentdeck chat --prompt "Fix the failing test"
  agentdeck chat --session 01J9W2...   # join an existing session`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatServer, "server", "http://127.0.0.1:3000", "Server base URL")
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "Session ID to join")
	chatCmd.Flags().StringVarP(&chatName, "name", "n", "viewer", "Author name for your messages")
	chatCmd.Flags().StringVar(&chatPrompt, "prompt", "", "Prompt for a new session when none is joined")
	chatCmd.MarkFlagsOneRequired("session", "prompt")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	api := client.NewAPI(chatServer)

	sessionID := chatSession
	if sessionID == "" {
		sess, err := api.CreateSession(ctx, chatPrompt, "")
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		sessionID = sess.ID
		fmt.Printf("created session %s\n", sessionID)
	}

	conn, err := client.Dial(ctx, chatServer)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	// The handler is registered before the view opens so no frame is
	// missed; the renderer buffers anything that arrives until the
	// history seed has printed, then flushes without repeats.
	r := newChatRenderer(os.Stdout)
	unsub := conn.On(wire.EvtMessage, func(frame wire.Frame) {
		var m types.Message
		if frame.Decode(&m) != nil || m.SessionID != sessionID {
			return
		}
		if m.Incoming && m.AuthorName == chatName {
			return
		}
		r.Live(&m)
	})
	defer unsub()

	view, err := client.OpenSession(ctx, api, conn, sessionID, chatName)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer view.Close()

	r.Seed(view.Messages())

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil
		}
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}

		switch text {
		case "/exit", "/quit":
			return nil
		case "/stop":
			if err := view.RequestStop(); err != nil {
				fmt.Fprintf(os.Stderr, "stop failed: %v\n", err)
			}
			continue
		case "/status":
			sess := view.Session()
			fmt.Printf("session %s  status=%s  tokens=%d\n", sess.ID, sess.Status, sess.TokensUsed)
			continue
		}

		if view.Terminated() {
			fmt.Println("session is terminated")
			continue
		}
		if err := view.SendMessage(text, false); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
		}
	}
}

// chatRenderer serializes transcript output. Frames delivered while the
// history is still being fetched are held back; Seed prints the history
// and then flushes the held frames, skipping anything the history
// already covered so nothing prints twice.
type chatRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	seeded  bool
	pending []*types.Message
	shown   map[string]bool
	chunks  map[string]map[int64]bool
}

func newChatRenderer(out io.Writer) *chatRenderer {
	return &chatRenderer{
		out:    out,
		shown:  make(map[string]bool),
		chunks: make(map[string]map[int64]bool),
	}
}

func (r *chatRenderer) Live(m *types.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.seeded {
		r.pending = append(r.pending, m)
		return
	}
	r.renderOnce(m)
}

func (r *chatRenderer) Seed(msgs []*types.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.render(m)
		r.record(m)
	}
	for _, m := range r.pending {
		r.renderOnce(m)
	}
	r.pending = nil
	r.seeded = true
}

// renderOnce prints m unless an earlier render already covered it:
// whole messages dedupe by ID, streamed fragments by chunk timestamp.
func (r *chatRenderer) renderOnce(m *types.Message) {
	if m.ID != "" && r.shown[m.ID] {
		return
	}
	if m.ID == "" && m.Message.ChunkID != "" && r.chunks[m.Message.ChunkID][m.Ts] {
		return
	}
	r.render(m)
	r.record(m)
}

func (r *chatRenderer) record(m *types.Message) {
	if m.ID != "" {
		r.shown[m.ID] = true
	}
	cid := m.Message.ChunkID
	if cid == "" {
		return
	}
	seen := r.chunks[cid]
	if seen == nil {
		seen = make(map[int64]bool)
		r.chunks[cid] = seen
	}
	if len(m.Chunks) > 0 {
		for _, c := range m.Chunks {
			seen[c.Ts] = true
		}
		return
	}
	seen[m.Ts] = true
}

func (r *chatRenderer) render(m *types.Message) {
	text := m.DisplayText()
	if text == "" {
		return
	}
	author := m.AuthorName
	if author == "" {
		author = "agent"
	}
	fmt.Fprintf(r.out, "[%s] %s\n", author, text)
	if m.IsFeedback && len(m.Options) > 0 {
		for i, opt := range m.Options {
			fmt.Fprintf(r.out, "  %d) %s\n", i+1, opt)
		}
	}
}
