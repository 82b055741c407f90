package e2e_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

var _ = Describe("Session Workflows", func() {
	Describe("Basic Session Lifecycle", func() {
		It("should create a new session", func() {
			sess, err := api.CreateSession(ctx, "Summarize the release notes", "chat")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.ID).NotTo(BeEmpty())
			Expect(sess.Prompt).To(Equal("Summarize the release notes"))
			Expect(sess.Status).To(Equal(types.StatusStarted))

			api.DeleteSession(ctx, sess.ID)
		})

		It("should retrieve a session by ID", func() {
			sess, err := api.CreateSession(ctx, "retrieve me", "")
			Expect(err).NotTo(HaveOccurred())
			defer api.DeleteSession(ctx, sess.ID)

			retrieved, err := api.GetSession(ctx, sess.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved.ID).To(Equal(sess.ID))
			Expect(retrieved.Prompt).To(Equal("retrieve me"))
		})

		It("should list sessions newest first", func() {
			older, err := api.CreateSession(ctx, "older", "")
			Expect(err).NotTo(HaveOccurred())
			defer api.DeleteSession(ctx, older.ID)

			newer, err := api.CreateSession(ctx, "newer", "")
			Expect(err).NotTo(HaveOccurred())
			defer api.DeleteSession(ctx, newer.ID)

			sessions, err := api.ListSessions(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(sessions)).To(BeNumerically(">=", 2))

			var ids []string
			for _, s := range sessions {
				ids = append(ids, s.ID)
			}
			Expect(ids).To(ContainElements(older.ID, newer.ID))
			Expect(indexOf(ids, newer.ID)).To(BeNumerically("<", indexOf(ids, older.ID)))
		})

		It("should delete a session and its messages", func() {
			sess, err := api.CreateSession(ctx, "ephemeral", "")
			Expect(err).NotTo(HaveOccurred())

			_, err = testServer.Sessions.AppendMessage(ctx, &types.Message{
				SessionID:  sess.ID,
				AuthorName: "agent",
				Ts:         1,
				Message:    types.Content{Text: "soon gone"},
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(api.DeleteSession(ctx, sess.ID)).To(Succeed())

			_, err = api.GetSession(ctx, sess.ID)
			Expect(err).To(HaveOccurred())
			_, err = api.Messages(ctx, sess.ID)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Terminal State", func() {
		It("should refuse new messages after termination", func() {
			sess, err := api.CreateSession(ctx, "terminal", "")
			Expect(err).NotTo(HaveOccurred())
			defer api.DeleteSession(ctx, sess.ID)

			Expect(testServer.Sessions.Terminate(ctx, sess.ID)).To(Succeed())

			_, err = testServer.Sessions.AppendMessage(ctx, &types.Message{
				SessionID:  sess.ID,
				AuthorName: "viewer",
				Incoming:   true,
				Ts:         1,
				Message:    types.Content{Text: "too late"},
			})
			Expect(err).To(HaveOccurred())

			fetched, err := api.GetSession(ctx, sess.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(fetched.Status).To(Equal(types.StatusTerminated))
		})

		It("should keep termination idempotent", func() {
			sess, err := api.CreateSession(ctx, "double tap", "")
			Expect(err).NotTo(HaveOccurred())
			defer api.DeleteSession(ctx, sess.ID)

			Expect(testServer.Sessions.Terminate(ctx, sess.ID)).To(Succeed())
			Expect(testServer.Sessions.Terminate(ctx, sess.ID)).To(Succeed())
		})
	})
})

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
