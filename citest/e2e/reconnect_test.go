package e2e_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/agentdeck-ai/agentdeck/internal/client"
	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

var _ = Describe("Reconnect", func() {
	It("should resync the view after a dropped connection", func() {
		sess, err := api.CreateSession(ctx, "flaky network", "")
		Expect(err).NotTo(HaveOccurred())
		defer api.DeleteSession(ctx, sess.ID)

		conn, err := client.Dial(context.Background(), testServer.BaseURL)
		Expect(err).NotTo(HaveOccurred())
		defer conn.Close()

		view, err := client.OpenSession(ctx, api, conn, sess.ID, "viewer")
		Expect(err).NotTo(HaveOccurred())
		defer view.Close()

		_, err = testServer.Sessions.AppendMessage(ctx, &types.Message{
			SessionID:  sess.ID,
			AuthorName: "agent",
			Ts:         1,
			Message:    types.Content{Text: "before the blip"},
		})
		Expect(err).NotTo(HaveOccurred())
		Eventually(func() int { return len(view.Messages()) }, 2*time.Second, 10*time.Millisecond).Should(Equal(1))

		testServer.DropConnections()

		// Published while the viewer is offline; the resync after
		// reconnect must pick it up from the store.
		_, err = testServer.Sessions.AppendMessage(ctx, &types.Message{
			SessionID:  sess.ID,
			AuthorName: "agent",
			Ts:         2,
			Message:    types.Content{Text: "missed live, caught by resync"},
		})
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() int { return len(view.Messages()) }, 10*time.Second, 50*time.Millisecond).Should(Equal(2))

		messages := view.Messages()
		Expect(messages[0].Message.Text).To(Equal("before the blip"))
		Expect(messages[1].Message.Text).To(Equal("missed live, caught by resync"))

		// Live delivery works again after the reconnect.
		_, err = testServer.Sessions.AppendMessage(ctx, &types.Message{
			SessionID:  sess.ID,
			AuthorName: "agent",
			Ts:         3,
			Message:    types.Content{Text: "back online"},
		})
		Expect(err).NotTo(HaveOccurred())
		Eventually(func() int { return len(view.Messages()) }, 5*time.Second, 50*time.Millisecond).Should(Equal(3))
	})
})
