// Package queue holds pre-authored prompts awaiting consumption.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// Item is a single queued prompt. Attachments are opaque references
// resolved by whichever surface authored them.
type Item struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Attachments []string  `json:"attachments,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// State is a serializable view of the queue, used in snapshots and
// queue-updated events.
type State struct {
	Items   []Item `json:"items"`
	Enabled bool   `json:"enabled"`
	Paused  bool   `json:"paused"`
}

// Queue is an ordered list of pending prompts with enabled/paused gating
// flags. It is not safe for concurrent use: the broker's single-writer
// executor owns it and serializes every mutation.
type Queue struct {
	items   []Item
	enabled bool
	paused  bool
}

// New returns an empty queue. Auto-consumption gating starts out
// enabled and unpaused unless the caller flips the flags.
func New() *Queue {
	return &Queue{enabled: true}
}

// Enqueue appends a prompt and returns the stored item.
func (q *Queue) Enqueue(text string, attachments []string) Item {
	item := Item{
		ID:          uuid.New().String(),
		Text:        text,
		Attachments: attachments,
		CreatedAt:   time.Now(),
	}
	q.items = append(q.items, item)
	return item
}

// Dequeue removes and returns the head item. The second return is false
// when the queue is empty.
func (q *Queue) Dequeue() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, true
}

// Remove deletes the item with the given id. Unknown ids are a no-op:
// queue mutations race with remote UIs and a double-remove is expected.
func (q *Queue) Remove(id string) {
	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

// Edit replaces the text of the item with the given id. Unknown ids are
// a no-op.
func (q *Queue) Edit(id, text string) {
	for i := range q.items {
		if q.items[i].ID == id {
			q.items[i].Text = text
			return
		}
	}
}

// Reorder moves the item at from to position to. Out-of-range indices
// are a no-op.
func (q *Queue) Reorder(from, to int) {
	if from < 0 || from >= len(q.items) || to < 0 || to >= len(q.items) || from == to {
		return
	}
	item := q.items[from]
	rest := append(q.items[:from], q.items[from+1:]...)
	q.items = append(rest[:to], append([]Item{item}, rest[to:]...)...)
}

// Clear drops all items. The enabled/paused flags are untouched.
func (q *Queue) Clear() {
	q.items = nil
}

// SetEnabled flips the master switch for auto-consumption.
func (q *Queue) SetEnabled(enabled bool) { q.enabled = enabled }

// SetPaused pauses or resumes auto-consumption without dropping items.
func (q *Queue) SetPaused(paused bool) { q.paused = paused }

// Enabled reports the master switch.
func (q *Queue) Enabled() bool { return q.enabled }

// Paused reports the pause flag.
func (q *Queue) Paused() bool { return q.paused }

// Len returns the number of queued items.
func (q *Queue) Len() int { return len(q.items) }

// Items returns a copy of the queued items in order.
func (q *Queue) Items() []Item {
	out := make([]Item, len(q.items))
	copy(out, q.items)
	return out
}

// Snapshot returns the full queue state for sync snapshots.
func (q *Queue) Snapshot() State {
	return State{
		Items:   q.Items(),
		Enabled: q.enabled,
		Paused:  q.paused,
	}
}
