// Package transcript merges possibly-fragmented, possibly-out-of-order
// message events into a monotonically ordered, reassembled transcript.
package transcript

import (
	"sort"

	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

// AppendChunk merges one fragment into m's chunk list and recomputes the
// reassembled text. Chunks are kept sorted by timestamp because delivery
// order is not guaranteed to match generation order. A fragment whose
// timestamp already exists in the list is treated as a redelivery and
// dropped; the return value reports whether the chunk was applied.
func AppendChunk(m *types.Message, c types.Chunk) bool {
	if len(m.Chunks) == 0 && m.Message.Text != "" {
		// The message was created from its first fragment before any
		// chunk list existed; materialize that fragment so it keeps its
		// place in timestamp order.
		m.Chunks = []types.Chunk{{Ts: m.Ts, Text: m.Message.Text, Tokens: m.Message.Tokens}}
	}
	for _, existing := range m.Chunks {
		if existing.Ts == c.Ts {
			return false
		}
	}

	m.Chunks = append(m.Chunks, c)
	Recombine(m)
	return true
}

// Recombine sorts m's chunks by timestamp and rebuilds the displayed
// text as their concatenation. The message timestamp is pinned to the
// earliest fragment so transcript order does not depend on which
// fragment happened to arrive first.
func Recombine(m *types.Message) {
	if len(m.Chunks) == 0 {
		return
	}
	sort.SliceStable(m.Chunks, func(i, j int) bool {
		return m.Chunks[i].Ts < m.Chunks[j].Ts
	})

	var text string
	for _, c := range m.Chunks {
		text += c.Text
	}
	m.Message.Text = text

	if first := m.Chunks[0].Ts; first < m.Ts {
		m.Ts = first
	}
}
