// Package broker owns the single pending interactive request and
// arbitrates which responder wins it.
package broker

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mverdier/parley/internal/choices"
	"github.com/mverdier/parley/internal/event"
	"github.com/mverdier/parley/internal/queue"
)

var (
	// ErrNoQuestions is returned when a request carries nothing to ask.
	ErrNoQuestions = errors.New("request contains no questions")
	// ErrStopped is returned when the broker is no longer running.
	ErrStopped = errors.New("broker is stopped")
)

// EventHandler receives broker events in emission order.
type EventHandler func(Event)

type pendingRequest struct {
	req *Request
	ch  chan Resolution
}

// Broker is the single source of truth for the currently open request.
// All state mutation runs on one actor goroutine draining a command
// channel, so acceptance of a response is a plain compare-and-clear with
// no locking: two near-simultaneous submissions are serialized by arrival
// order and only the first can observe a matching current id.
type Broker struct {
	cmds       chan func()
	quit       chan struct{}
	done       chan struct{}
	q          *queue.Queue
	current    *pendingRequest
	dispatcher *event.Dispatcher[Event]
}

// New creates a broker owning the given queue. The handler, if non-nil,
// receives every broker event; delivery uses a single worker so event
// order matches state-change order (a superseded request's completion is
// observed before its successor's pending event).
func New(q *queue.Queue, handler EventHandler) *Broker {
	if q == nil {
		q = queue.New()
	}
	b := &Broker{
		cmds: make(chan func(), 64),
		quit: make(chan struct{}),
		done: make(chan struct{}),
		q:    q,
	}
	if handler != nil {
		b.dispatcher = event.NewDispatcher(func(e Event) { handler(e) }, 1, 256)
		b.dispatcher.Start()
	}
	return b
}

// Start launches the actor goroutine.
func (b *Broker) Start() {
	go b.run()
}

// Stop shuts the actor down. A still-pending request is settled as
// cancelled (and its completion event emitted) so no caller is left
// awaiting forever. Waits for queued events to drain.
func (b *Broker) Stop() {
	select {
	case <-b.quit:
		return
	default:
	}
	close(b.quit)
	<-b.done
	if b.dispatcher != nil {
		b.dispatcher.Stop()
	}
}

func (b *Broker) run() {
	defer close(b.done)
	for {
		select {
		case <-b.quit:
			b.resolve("", SourceCancelled, "broker stopped", nil, true)
			return
		case cmd := <-b.cmds:
			cmd()
		}
	}
}

// do runs fn on the actor and waits for it to complete. Returns false if
// the broker is stopped.
func (b *Broker) do(fn func()) bool {
	donech := make(chan struct{})
	wrapped := func() {
		fn()
		close(donech)
	}
	select {
	case b.cmds <- wrapped:
	case <-b.quit:
		return false
	}
	select {
	case <-donech:
		return true
	case <-b.done:
		return false
	}
}

// Register creates a fresh pending request from spec and returns it with
// the channel its eventual resolution arrives on (signalled exactly once).
// If another request is outstanding it is first resolved as superseded and
// its completion event emitted, so every surface dismisses the stale view
// before seeing the new one.
func (b *Broker) Register(spec Spec) (*Request, <-chan Resolution, error) {
	req, err := buildRequest(spec)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan Resolution, 1)
	ok := b.do(func() {
		if b.current != nil {
			b.resolve(b.current.req.ID, SourceSuperseded, "", nil, false)
		}
		b.current = &pendingRequest{req: req, ch: ch}
		b.emit(Event{Type: EventRequestPending, Request: req})
		b.tryAutoConsume()
	})
	if !ok {
		return nil, nil, ErrStopped
	}
	return req, ch, nil
}

// SubmitLocal resolves the current request from the local surface.
// Returns false for stale or duplicate ids; the caller must treat that as
// a silent no-op, not an error.
func (b *Broker) SubmitLocal(id, value string, attachments []string) bool {
	return b.submit(id, SourceLocal, value, attachments)
}

// SubmitRemote resolves the current request from a remote client. Same
// contract as SubmitLocal: first accepted call wins, later calls get
// false and the loser's UI simply follows the completion broadcast.
func (b *Broker) SubmitRemote(id, value string, attachments []string) bool {
	return b.submit(id, SourceRemote, value, attachments)
}

func (b *Broker) submit(id string, source Source, value string, attachments []string) bool {
	var accepted bool
	b.do(func() {
		accepted = b.resolve(id, source, value, attachments, false)
	})
	return accepted
}

// Cancel force-resolves the request with the given id when its upstream
// tool invocation stops. Idempotent: cancelling a resolved or unknown id
// is a no-op. The completion event is always emitted on a real cancel so
// no surface keeps showing a stale pending UI.
func (b *Broker) Cancel(id, reason string) {
	b.do(func() {
		b.resolve(id, SourceCancelled, reason, nil, false)
	})
}

// Current returns the pending request, or nil.
func (b *Broker) Current() *Request {
	var req *Request
	b.do(func() {
		if b.current != nil {
			req = b.current.req
		}
	})
	return req
}

// State returns the full authoritative snapshot. Reads run on the actor,
// so a snapshot is internally consistent and calling it twice without an
// intervening mutation yields identical results.
func (b *Broker) State() Snapshot {
	var snap Snapshot
	b.do(func() {
		if b.current != nil {
			snap.Request = b.current.req
		}
		snap.Queue = b.q.Snapshot()
	})
	return snap
}

// resolve is the single compare-and-clear. Runs on the actor only.
// With any=true the current request is settled regardless of id (broker
// shutdown path).
func (b *Broker) resolve(id string, source Source, value string, attachments []string, any bool) bool {
	if b.current == nil {
		return false
	}
	if !any && b.current.req.ID != id {
		return false
	}
	p := b.current
	b.current = nil

	res := Resolution{
		RequestID:   p.req.ID,
		Source:      source,
		Value:       value,
		Attachments: attachments,
		ResolvedAt:  time.Now(),
	}
	p.ch <- res
	b.emit(Event{Type: EventRequestResolved, Request: p.req, Resolution: &res})
	return true
}

// tryAutoConsume feeds the head queue item to the just-registered request.
// The enabled/paused gate is evaluated here, at registration time, never
// at enqueue time: items enqueued while paused must sit untouched until a
// human resumes the queue.
func (b *Broker) tryAutoConsume() {
	if b.current == nil {
		return
	}
	if !b.q.Enabled() || b.q.Paused() {
		return
	}
	item, ok := b.q.Dequeue()
	if !ok {
		return
	}
	b.emitQueueUpdated()
	b.resolve(b.current.req.ID, SourceQueue, item.Text, item.Attachments, false)
}

// EnqueuePrompt appends a prompt to the queue. Queue mutations route
// through the actor so they serialize with registration and the pause
// gate; each one emits a queue.updated event.
func (b *Broker) EnqueuePrompt(text string, attachments []string) (queue.Item, error) {
	var item queue.Item
	ok := b.do(func() {
		item = b.q.Enqueue(text, attachments)
		b.emitQueueUpdated()
	})
	if !ok {
		return queue.Item{}, ErrStopped
	}
	return item, nil
}

// RemovePrompt deletes a queued prompt by id. Unknown ids are ignored.
func (b *Broker) RemovePrompt(id string) {
	b.do(func() {
		b.q.Remove(id)
		b.emitQueueUpdated()
	})
}

// EditPrompt replaces the text of a queued prompt. Unknown ids are ignored.
func (b *Broker) EditPrompt(id, text string) {
	b.do(func() {
		b.q.Edit(id, text)
		b.emitQueueUpdated()
	})
}

// ReorderPrompts moves the item at from to position to.
func (b *Broker) ReorderPrompts(from, to int) {
	b.do(func() {
		b.q.Reorder(from, to)
		b.emitQueueUpdated()
	})
}

// SetQueuePaused flips the pause gate. Pausing never disturbs queued
// items; it only stops future registrations from consuming them.
func (b *Broker) SetQueuePaused(paused bool) {
	b.do(func() {
		b.q.SetPaused(paused)
		b.emitQueueUpdated()
	})
}

// SetQueueEnabled turns the queue feature on or off.
func (b *Broker) SetQueueEnabled(enabled bool) {
	b.do(func() {
		b.q.SetEnabled(enabled)
		b.emitQueueUpdated()
	})
}

// ClearQueue drops all queued prompts, keeping the flag state.
func (b *Broker) ClearQueue() {
	b.do(func() {
		b.q.Clear()
		b.emitQueueUpdated()
	})
}

func (b *Broker) emit(e Event) {
	if b.dispatcher == nil {
		return
	}
	e.Timestamp = time.Now()
	if e.Type == EventRequestResolved {
		// A dropped resolved event is a hole in the history transcript;
		// wait for buffer space instead. Emits run on the actor, which
		// Stop drains before stopping the dispatcher, so this cannot
		// race the queue close.
		b.dispatcher.DispatchBlocking(e)
		return
	}
	b.dispatcher.Dispatch(e)
}

func (b *Broker) emitQueueUpdated() {
	st := b.q.Snapshot()
	b.emit(Event{Type: EventQueueUpdated, Queue: &st})
}

// buildRequest validates and normalizes a spec into an immutable request.
func buildRequest(spec Spec) (*Request, error) {
	kind := spec.Kind
	if kind == "" {
		kind = KindQuestion
	}

	prompt := spec.Prompt
	cs := spec.Choices
	questions := spec.Questions

	if kind == KindMultiQuestion {
		switch len(questions) {
		case 0:
			return nil, ErrNoQuestions
		case 1:
			// The multi/single distinction is a UI-mode choice; collapse
			// to the plain question shape rather than rejecting.
			kind = KindQuestion
			prompt = questions[0].Prompt
			cs = questions[0].Choices
			questions = nil
		}
	} else if prompt == "" {
		return nil, ErrNoQuestions
	}

	// Caller-supplied choices win; otherwise detect an option set in the
	// question text so surfaces can render buttons.
	if kind == KindQuestion && cs == nil {
		cs = choices.Parse(prompt)
	}

	return &Request{
		ID:        uuid.New().String(),
		Kind:      kind,
		Prompt:    prompt,
		Context:   spec.Context,
		Choices:   cs,
		Questions: questions,
		Title:     spec.Title,
		CreatedAt: time.Now(),
	}, nil
}
