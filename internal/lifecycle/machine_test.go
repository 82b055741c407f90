package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

func outgoing(feedback bool) *types.Message {
	return &types.Message{
		AuthorName: "agent",
		IsFeedback: feedback,
		Message:    types.Content{Kind: types.KindText, Text: "reply"},
	}
}

func incoming() *types.Message {
	return &types.Message{
		AuthorName: "viewer",
		Incoming:   true,
		Message:    types.Content{Kind: types.KindText, Text: "prompt"},
	}
}

func TestViewerSubmitStartsGenerating(t *testing.T) {
	m := NewMachine()
	assert.Equal(t, StateIdle, m.State())

	m.ViewerSubmitted()
	assert.Equal(t, StateGenerating, m.State())
	assert.True(t, m.StopVisible())
}

func TestFeedbackMessageBlocksOnViewer(t *testing.T) {
	m := NewMachine()
	m.ViewerSubmitted()

	m.MessageDelivered(outgoing(true))
	assert.Equal(t, StateAwaitingFeedback, m.State())
	assert.True(t, m.StopVisible())

	// Feedback response resumes generation.
	m.ViewerSubmitted()
	assert.Equal(t, StateGenerating, m.State())
}

func TestCompletedResponseReturnsToIdle(t *testing.T) {
	m := NewMachine()
	m.ViewerSubmitted()

	m.MessageDelivered(outgoing(false))
	assert.Equal(t, StateIdle, m.State())
	assert.False(t, m.StopVisible())
}

func TestChunkKeepsGenerating(t *testing.T) {
	m := NewMachine()
	m.ViewerSubmitted()

	chunk := outgoing(false)
	chunk.Message.ChunkID = "ck1"
	m.MessageDelivered(chunk)
	assert.Equal(t, StateGenerating, m.State())
}

func TestTerminationAbsorbs(t *testing.T) {
	m := NewMachine()
	m.ViewerSubmitted()
	m.Terminate()

	assert.Equal(t, StateTerminated, m.State())
	assert.False(t, m.StopVisible())

	// Subsequent events are accepted for display only; the machine does
	// not move.
	m.MessageDelivered(outgoing(false))
	m.ViewerSubmitted()
	m.ApplyStatus(types.StatusRunning)
	assert.Equal(t, StateTerminated, m.State())
	assert.False(t, m.StopVisible())
}

func TestTerminatedStatusTerminates(t *testing.T) {
	m := NewMachine()
	m.ApplyStatus(types.StatusTerminated)
	assert.True(t, m.Terminated())
}

func TestNonTerminalStatusIsInformational(t *testing.T) {
	m := NewMachine()
	m.ApplyStatus(types.StatusRunning)
	assert.Equal(t, StateIdle, m.State())
}

func TestBusyPredicate(t *testing.T) {
	// Nothing arrived yet: busy.
	assert.True(t, Busy(nil))

	// Latest is incoming: the system owes a response.
	assert.True(t, Busy(incoming()))

	// Latest is an outgoing non-feedback reply: idle.
	assert.False(t, Busy(outgoing(false)))

	// Feedback requests need input enabled to answer them.
	assert.False(t, Busy(outgoing(true)))
}
