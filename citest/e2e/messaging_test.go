package e2e_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/agentdeck-ai/agentdeck/internal/client"
	"github.com/agentdeck-ai/agentdeck/internal/wire"
	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

var _ = Describe("Live Messaging", func() {
	var (
		conn *client.Conn
		sess *types.Session
	)

	BeforeEach(func() {
		var err error
		conn, err = client.Dial(context.Background(), testServer.BaseURL)
		Expect(err).NotTo(HaveOccurred())

		sess, err = api.CreateSession(ctx, "live messaging", "")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		conn.Close()
		api.DeleteSession(ctx, sess.ID)
	})

	It("should fan a viewer message out to every room member", func() {
		sender, err := client.OpenSession(ctx, api, conn, sess.ID, "alice")
		Expect(err).NotTo(HaveOccurred())
		defer sender.Close()

		otherConn, err := client.Dial(context.Background(), testServer.BaseURL)
		Expect(err).NotTo(HaveOccurred())
		defer otherConn.Close()
		watcher, err := client.OpenSession(ctx, api, otherConn, sess.ID, "bob")
		Expect(err).NotTo(HaveOccurred())
		defer watcher.Close()

		Expect(sender.SendMessage("hello everyone", false)).To(Succeed())

		for _, view := range []*client.SessionView{sender, watcher} {
			v := view
			Eventually(func() int { return len(v.Messages()) }, 2*time.Second, 10*time.Millisecond).Should(Equal(1))
			Expect(v.Messages()[0].Message.Text).To(Equal("hello everyone"))
			Expect(v.Messages()[0].AuthorName).To(Equal("alice"))
		}
	})

	It("should stream chunked agent output into one transcript entry", func() {
		view, err := client.OpenSession(ctx, api, conn, sess.ID, "viewer")
		Expect(err).NotTo(HaveOccurred())
		defer view.Close()

		for i, text := range []string{"Reading ", "the ", "test ", "output"} {
			_, err := testServer.Sessions.AppendMessage(ctx, &types.Message{
				SessionID:  sess.ID,
				AuthorName: "agent",
				Ts:         int64(i + 1),
				Message:    types.Content{Text: text, ChunkID: "stream-1"},
			})
			Expect(err).NotTo(HaveOccurred())
		}

		Eventually(func() string {
			msgs := view.Messages()
			if len(msgs) != 1 {
				return ""
			}
			return msgs[0].Message.Text
		}, 2*time.Second, 10*time.Millisecond).Should(Equal("Reading the test output"))
	})

	It("should hand the turn back and forth with the agent", func() {
		view, err := client.OpenSession(ctx, api, conn, sess.ID, "viewer")
		Expect(err).NotTo(HaveOccurred())
		defer view.Close()

		// The agent owns the opening turn.
		Expect(view.Busy()).To(BeTrue())

		_, err = testServer.Sessions.AppendMessage(ctx, &types.Message{
			SessionID:  sess.ID,
			AuthorName: "agent",
			Ts:         1,
			Message:    types.Content{Text: "done thinking"},
		})
		Expect(err).NotTo(HaveOccurred())

		Eventually(view.Busy, 2*time.Second, 10*time.Millisecond).Should(BeFalse())

		Expect(view.SendMessage("next question", false)).To(Succeed())
		Eventually(func() int { return len(view.Messages()) }, 2*time.Second, 10*time.Millisecond).Should(Equal(2))
		Expect(view.Busy()).To(BeTrue())
	})

	It("should deliver terminate to live viewers and freeze the view", func() {
		view, err := client.OpenSession(ctx, api, conn, sess.ID, "viewer")
		Expect(err).NotTo(HaveOccurred())
		defer view.Close()

		Expect(testServer.Sessions.Terminate(ctx, sess.ID)).To(Succeed())

		Eventually(view.Terminated, 2*time.Second, 10*time.Millisecond).Should(BeTrue())
		Expect(view.Busy()).To(BeFalse())
		Expect(view.SendMessage("anyone there?", false)).NotTo(Succeed())
	})

	It("should relay stop requests to agent endpoints in the room", func() {
		view, err := client.OpenSession(ctx, api, conn, sess.ID, "viewer")
		Expect(err).NotTo(HaveOccurred())
		defer view.Close()

		agentConn, err := client.Dial(context.Background(), testServer.BaseURL)
		Expect(err).NotTo(HaveOccurred())
		defer agentConn.Close()

		stopSeen := make(chan string, 1)
		unsub := agentConn.On(wire.EvtStopGenerating, func(frame wire.Frame) {
			var ref wire.RoomRef
			if frame.Decode(&ref) == nil {
				stopSeen <- ref.Room
			}
		})
		defer unsub()
		Expect(agentConn.Join(sess.ID)).To(Succeed())

		Expect(view.RequestStop()).To(Succeed())

		Eventually(stopSeen, 2*time.Second).Should(Receive(Equal(sess.ID)))
	})

	It("should report cumulative token usage", func() {
		view, err := client.OpenSession(ctx, api, conn, sess.ID, "viewer")
		Expect(err).NotTo(HaveOccurred())
		defer view.Close()

		Expect(testServer.Sessions.AddTokens(ctx, sess.ID, 100)).To(Succeed())
		Expect(testServer.Sessions.AddTokens(ctx, sess.ID, 50)).To(Succeed())

		Eventually(func() int { return view.Session().TokensUsed }, 2*time.Second, 10*time.Millisecond).Should(Equal(150))
	})
})
