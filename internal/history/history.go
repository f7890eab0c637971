// Package history records settled interactive requests for later review.
package history

import (
	"context"
	"time"

	"github.com/mverdier/parley/internal/broker"
)

// Entry is one settled request as stored in history. Every resolution is
// recorded, including cancellations and supersessions, so the transcript
// stays a faithful account of what was asked.
type Entry struct {
	RequestID   string        `json:"request_id"`
	Kind        broker.Kind   `json:"kind"`
	Prompt      string        `json:"prompt"`
	Title       string        `json:"title,omitempty"`
	Source      broker.Source `json:"source"`
	Value       string        `json:"value"`
	Attachments []string      `json:"attachments,omitempty"`
	ResolvedAt  string        `json:"resolved_at"`
}

// Recorder is an append-only store of settled requests.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	Recent(ctx context.Context, n int) ([]Entry, error)
	Close() error
}

// FromEvent converts a request.resolved broker event into a history
// entry. Returns false for any other event type.
func FromEvent(e broker.Event) (Entry, bool) {
	if e.Type != broker.EventRequestResolved || e.Request == nil || e.Resolution == nil {
		return Entry{}, false
	}
	return Entry{
		RequestID:   e.Request.ID,
		Kind:        e.Request.Kind,
		Prompt:      e.Request.Prompt,
		Title:       e.Request.Title,
		Source:      e.Resolution.Source,
		Value:       e.Resolution.Value,
		Attachments: e.Resolution.Attachments,
		ResolvedAt:  e.Resolution.ResolvedAt.UTC().Format(time.RFC3339Nano),
	}, true
}
