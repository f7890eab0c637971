package broker

import (
	"time"

	"github.com/mverdier/parley/internal/choices"
	"github.com/mverdier/parley/internal/queue"
)

// Kind classifies a pending request.
type Kind string

const (
	// KindQuestion - free-form question, optionally with parsed choices
	KindQuestion Kind = "question"
	// KindApproval - yes/no style confirmation
	KindApproval Kind = "approval"
	// KindMultiQuestion - several questions answered in one round trip
	KindMultiQuestion Kind = "multi-question"
	// KindPlanReview - a plan document awaiting a review decision
	KindPlanReview Kind = "plan-review"
)

// Source identifies which responder settled a request.
type Source string

const (
	SourceLocal      Source = "local"
	SourceRemote     Source = "remote"
	SourceQueue      Source = "queue"
	SourceCancelled  Source = "cancelled"
	SourceSuperseded Source = "superseded"
)

// Plan review decisions carried in Resolution.Value for KindPlanReview.
const (
	PlanApproved             = "approved"
	PlanApprovedWithComments = "approvedWithComments"
	PlanRecreateWithChanges  = "recreateWithChanges"
	PlanCancelled            = "cancelled"
)

// Question is one entry of a multi-question request.
type Question struct {
	Prompt  string           `json:"prompt"`
	Choices []choices.Choice `json:"choices,omitempty"`
}

// Request is the single unit of in-flight interactivity. Immutable after
// creation; only its resolution is recorded separately.
type Request struct {
	ID        string           `json:"id"`
	Kind      Kind             `json:"kind"`
	Prompt    string           `json:"prompt"`
	Context   string           `json:"context,omitempty"`
	Choices   []choices.Choice `json:"choices,omitempty"`
	Questions []Question       `json:"questions,omitempty"`
	Title     string           `json:"title,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Spec is the caller-supplied shape of a new request.
type Spec struct {
	Kind      Kind             `json:"kind"`
	Prompt    string           `json:"prompt"`
	Context   string           `json:"context,omitempty"`
	Choices   []choices.Choice `json:"choices,omitempty"`
	Questions []Question       `json:"questions,omitempty"`
	Title     string           `json:"title,omitempty"`
}

// Resolution settles a request. Consumed exactly once by the registering
// caller through the channel returned from Register.
type Resolution struct {
	RequestID   string    `json:"request_id"`
	Source      Source    `json:"source"`
	Value       string    `json:"value"`
	Attachments []string  `json:"attachments,omitempty"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// Snapshot is the authoritative full state handed to (re)connecting
// clients: the current pending request, if any, plus the queue view.
type Snapshot struct {
	Request *Request    `json:"request,omitempty"`
	Queue   queue.State `json:"queue"`
}

// EventType enumerates the broker's broadcast vocabulary.
type EventType string

const (
	EventRequestPending  EventType = "request.pending"
	EventRequestResolved EventType = "request.resolved"
	EventQueueUpdated    EventType = "queue.updated"
)

// Event is emitted to the broker's handler on every state change.
// Resolved events carry both the request and its resolution so consumers
// (history, sync fan-out) need no extra lookup.
type Event struct {
	Type       EventType    `json:"type"`
	Request    *Request     `json:"request,omitempty"`
	Resolution *Resolution  `json:"resolution,omitempty"`
	Queue      *queue.State `json:"queue,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}
