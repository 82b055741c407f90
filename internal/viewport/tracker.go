// Package viewport tracks a viewer's read position in a transcript. It
// is purely client-local state: never persisted, reset on every reload.
package viewport

import "sync"

// Pixel slack below which the viewer still counts as at the bottom.
// Browsers report fractional scroll offsets, so exact equality is
// unreliable.
const bottomTolerance = 10

// Tracker decides whether the transcript should auto-scroll when a new
// message arrives and which message the viewer has last seen.
type Tracker struct {
	mu       sync.Mutex
	atBottom bool
	lastSeen string
}

// NewTracker creates a tracker. A fresh view starts pinned to the
// bottom: the transcript renders scrolled to the latest message.
func NewTracker() *Tracker {
	return &Tracker{atBottom: true}
}

// Observe records a scroll measurement. scrollTop is the scrolled
// offset, clientHeight the visible height, scrollHeight the full
// content height. The marker does not move here: messages that arrived
// while scrolled away stay unseen until a new one lands at the bottom.
func (t *Tracker) Observe(scrollTop, clientHeight, scrollHeight float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.atBottom = scrollTop+clientHeight >= scrollHeight-bottomTolerance
}

// MessageArrived reports a new message with the given id. It returns
// true when the view should auto-scroll to it, in which case the
// read-position marker advances to the message.
func (t *Tracker) MessageArrived(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.atBottom {
		return false
	}
	t.lastSeen = id
	return true
}

// AtBottom reports whether the last observed scroll position was at the
// bottom of the transcript.
func (t *Tracker) AtBottom() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.atBottom
}

// LastSeen returns the id of the last message considered seen, or the
// empty string if none has been.
func (t *Tracker) LastSeen() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSeen
}
