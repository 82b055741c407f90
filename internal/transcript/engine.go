package transcript

import (
	"sort"
	"sync"

	"github.com/agentdeck-ai/agentdeck/pkg/types"
)

// DeltaKind classifies what an ingested event did to the transcript.
type DeltaKind int

const (
	// DeltaAppended means a new transcript entry was added.
	DeltaAppended DeltaKind = iota
	// DeltaMerged means the event was folded into an existing chunked
	// message.
	DeltaMerged
	// DeltaDropped means the event changed nothing (nil input or a
	// redelivered chunk).
	DeltaDropped
)

// Delta is the transcript change to apply after ingesting one event.
type Delta struct {
	Kind    DeltaKind
	Message *types.Message
}

// Engine maintains one session's ordered transcript. It is not
// reentrant: a mutex serializes ingestion because chunk re-sort and
// full-transcript re-sort do not commute under arbitrary interleaving.
// Returned message pointers are owned by the engine and must be treated
// as read-only.
type Engine struct {
	mu      sync.Mutex
	entries []*types.Message
}

// NewEngine creates an empty transcript engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Seed replaces the transcript with authoritative history records, as
// fetched from the store at session open or after a reconnect resync.
// Records carrying chunk lists are reassembled in timestamp order.
func (e *Engine) Seed(records []*types.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.entries = make([]*types.Message, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		m := rec.Clone()
		Recombine(m)
		e.entries = append(e.entries, m)
	}
	e.sortLocked()
}

// Ingest accepts one inbound message event and returns the transcript
// delta to apply.
//
// An event sharing a chunkId and author with an existing entry, and not
// flagged incoming, is a fragment of that entry. Anything else appends
// as a new entry, after which the whole transcript is re-sorted by
// timestamp: join and reconnect can interleave historical and live
// events, so total order must be restored on every insertion.
func (e *Engine) Ingest(in *types.Message) Delta {
	if in == nil {
		return Delta{Kind: DeltaDropped}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Seed and live delivery can overlap around a resync; a message id
	// already present means this event was applied in a prior form.
	if in.ID != "" {
		for _, m := range e.entries {
			if m.ID == in.ID {
				return Delta{Kind: DeltaDropped}
			}
		}
	}

	if !in.Incoming {
		if match := e.findSiblingLocked(in); match != nil {
			chunk := types.Chunk{Ts: in.Ts, Text: in.Message.Text, Tokens: in.Message.Tokens}
			if !AppendChunk(match, chunk) {
				return Delta{Kind: DeltaDropped}
			}
			e.sortLocked()
			return Delta{Kind: DeltaMerged, Message: match}
		}
	}

	// New entry, including the common first-chunk case where no sibling
	// exists yet for the event's chunkId.
	m := in.Clone()
	e.entries = append(e.entries, m)
	e.sortLocked()
	return Delta{Kind: DeltaAppended, Message: m}
}

// findSiblingLocked locates the chunked message an event belongs to.
// Incoming (viewer-authored) entries never act as merge targets.
func (e *Engine) findSiblingLocked(in *types.Message) *types.Message {
	if in.Message.ChunkID == "" {
		return nil
	}
	for _, m := range e.entries {
		if m.Incoming {
			continue
		}
		if m.Message.ChunkID == in.Message.ChunkID && m.AuthorName == in.AuthorName {
			return m
		}
	}
	return nil
}

func (e *Engine) sortLocked() {
	sort.SliceStable(e.entries, func(i, j int) bool {
		return e.entries[i].Ts < e.entries[j].Ts
	})
}

// Messages returns the transcript in timestamp order.
func (e *Engine) Messages() []*types.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*types.Message(nil), e.entries...)
}

// Latest returns the most recent transcript entry, or nil when empty.
func (e *Engine) Latest() *types.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.entries) == 0 {
		return nil
	}
	return e.entries[len(e.entries)-1]
}

// Len returns the number of transcript entries.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

// TokenTotal sums token accounting across the transcript.
func (e *Engine) TokenTotal() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for _, m := range e.entries {
		total += m.TokenTotal()
	}
	return total
}
