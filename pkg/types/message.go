package types

import (
	"encoding/json"
	"fmt"
)

// ContentKind tags the payload variant of a message body.
type ContentKind string

const (
	KindText ContentKind = "text"
	KindCode ContentKind = "code"
)

// Content is the body of a message: a tagged variant of kind plus
// payload. Text carries the raw (or, for chunked messages, reassembled)
// text; Language is only meaningful for KindCode. ChunkID groups the
// fragments of one streamed outgoing message, and Tokens is the token
// count of this fragment when the content arrived as part of a stream.
type Content struct {
	Kind     ContentKind `json:"type"`
	Text     string      `json:"text"`
	Language string      `json:"language,omitempty"`
	ChunkID  string      `json:"chunkId,omitempty"`
	Tokens   int         `json:"tokens,omitempty"`
}

// UnmarshalJSON validates the content kind, defaulting absent kinds to
// text the way the original wire format does.
func (c *Content) UnmarshalJSON(data []byte) error {
	type alias Content
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Kind == "" {
		a.Kind = KindText
	}
	switch a.Kind {
	case KindText, KindCode:
	default:
		return fmt.Errorf("unknown content kind %q", a.Kind)
	}
	*c = Content(a)
	return nil
}

// Chunk is an incremental text fragment of one streamed outgoing
// message. Chunks never exist independently of a parent Message.
type Chunk struct {
	Ts     int64  `json:"ts"`
	Text   string `json:"chunk"`
	Tokens int    `json:"tokens,omitempty"`
}

// Message is one ordered unit of a session transcript. Within a session,
// messages are totally ordered by Ts; messages sharing a ChunkID and
// author represent one logical message whose displayed text is the
// chunks' concatenation in timestamp order.
type Message struct {
	ID             string   `json:"id,omitempty"`
	SessionID      string   `json:"sessionId,omitempty"`
	AuthorName     string   `json:"authorName"`
	Incoming       bool     `json:"incoming"`
	Ts             int64    `json:"ts"`
	IsFeedback     bool     `json:"isFeedback,omitempty"`
	DisplayMessage string   `json:"displayMessage,omitempty"`
	Options        []string `json:"options,omitempty"`
	Message        Content  `json:"message"`
	Chunks         []Chunk  `json:"chunks,omitempty"`
	Tokens         int      `json:"tokens,omitempty"`
}

// TokenTotal is the token accounting for a message: the sum of its
// chunks' token counts, falling back to the message-level fields when no
// chunks are present.
func (m *Message) TokenTotal() int {
	if len(m.Chunks) > 0 {
		total := 0
		for _, c := range m.Chunks {
			total += c.Tokens
		}
		return total
	}
	if m.Tokens > 0 {
		return m.Tokens
	}
	return m.Message.Tokens
}

// DisplayText returns the viewer-facing text, honoring the optional
// display override.
func (m *Message) DisplayText() string {
	if m.DisplayMessage != "" {
		return m.DisplayMessage
	}
	return m.Message.Text
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	cp := *m
	if m.Chunks != nil {
		cp.Chunks = append([]Chunk(nil), m.Chunks...)
	}
	if m.Options != nil {
		cp.Options = append([]string(nil), m.Options...)
	}
	return &cp
}
