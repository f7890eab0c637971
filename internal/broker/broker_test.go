package broker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mverdier/parley/internal/queue"
)

// collector gathers broker events; call the broker's Stop before reading
// so the single dispatch worker has drained.
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *collector) types() []EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]EventType, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

func newBroker(t *testing.T) (*Broker, *collector) {
	t.Helper()
	c := &collector{}
	b := New(queue.New(), c.handle)
	b.Start()
	return b, c
}

func awaitResolution(t *testing.T, ch <-chan Resolution) Resolution {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for resolution")
		return Resolution{}
	}
}

func TestBroker_SubmitLocalResolves(t *testing.T) {
	b, _ := newBroker(t)
	defer b.Stop()

	req, ch, err := b.Register(Spec{Prompt: "Deploy to staging?"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if !b.SubmitLocal(req.ID, "yes", nil) {
		t.Fatal("SubmitLocal() = false, want true")
	}

	res := awaitResolution(t, ch)
	if res.Source != SourceLocal || res.Value != "yes" {
		t.Errorf("resolution = %+v, want local/yes", res)
	}
	if res.RequestID != req.ID {
		t.Errorf("resolution request id = %q, want %q", res.RequestID, req.ID)
	}
	if b.Current() != nil {
		t.Error("Current() != nil after resolution")
	}
}

func TestBroker_ExactlyOneWinner(t *testing.T) {
	b, _ := newBroker(t)
	defer b.Stop()

	req, ch, err := b.Register(Spec{Prompt: "Proceed?"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		remote := i%2 == 0
		go func() {
			defer wg.Done()
			var ok bool
			if remote {
				ok = b.SubmitRemote(req.ID, "remote says yes", nil)
			} else {
				ok = b.SubmitLocal(req.ID, "local says yes", nil)
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Errorf("accepted submissions = %d, want exactly 1", got)
	}
	awaitResolution(t, ch)
}

func TestBroker_StaleIDRejected(t *testing.T) {
	b, _ := newBroker(t)
	defer b.Stop()

	req, ch, _ := b.Register(Spec{Prompt: "Continue?"})
	b.SubmitLocal(req.ID, "ok", nil)
	awaitResolution(t, ch)

	if b.SubmitRemote(req.ID, "late", nil) {
		t.Error("SubmitRemote() with settled id = true, want false")
	}
	if b.SubmitLocal("never-existed", "x", nil) {
		t.Error("SubmitLocal() with unknown id = true, want false")
	}
}

func TestBroker_RegisterSupersedes(t *testing.T) {
	b, c := newBroker(t)

	first, ch1, _ := b.Register(Spec{Prompt: "Old question?"})
	second, ch2, _ := b.Register(Spec{Prompt: "New question?"})

	res := awaitResolution(t, ch1)
	if res.Source != SourceSuperseded {
		t.Errorf("first resolution source = %q, want superseded", res.Source)
	}
	if cur := b.Current(); cur == nil || cur.ID != second.ID {
		t.Fatalf("Current() = %v, want second request", cur)
	}

	b.SubmitLocal(second.ID, "answer", nil)
	awaitResolution(t, ch2)
	b.Stop()

	// The old request's completion must be observed before the new
	// pending event.
	types := c.types()
	want := []EventType{EventRequestPending, EventRequestResolved, EventRequestPending, EventRequestResolved}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event order = %v, want %v", types, want)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events[1].Request.ID != first.ID {
		t.Error("superseded completion did not reference the first request")
	}
	if c.events[2].Request.ID != second.ID {
		t.Error("second pending event did not reference the second request")
	}
}

func TestBroker_QueueAutoConsume(t *testing.T) {
	b, c := newBroker(t)

	if _, err := b.EnqueuePrompt("use the staging database", []string{"file://schema.sql"}); err != nil {
		t.Fatalf("EnqueuePrompt() error = %v", err)
	}

	_, ch, err := b.Register(Spec{Prompt: "Which database?"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	res := awaitResolution(t, ch)
	if res.Source != SourceQueue {
		t.Fatalf("resolution source = %q, want queue", res.Source)
	}
	if res.Value != "use the staging database" {
		t.Errorf("resolution value = %q", res.Value)
	}
	if len(res.Attachments) != 1 {
		t.Errorf("resolution attachments = %v, want the queued one", res.Attachments)
	}
	if b.State().Queue.Items != nil && len(b.State().Queue.Items) != 0 {
		t.Error("queue item not consumed")
	}

	b.Stop()
	// queue.updated from the dequeue must land before the resolved event.
	types := c.types()
	var sawDequeue bool
	for _, tp := range types {
		if tp == EventQueueUpdated && !sawDequeue {
			sawDequeue = true
		}
		if tp == EventRequestResolved && !sawDequeue {
			t.Fatalf("resolved before queue update: %v", types)
		}
	}
}

func TestBroker_PausedQueueNotConsumed(t *testing.T) {
	b, _ := newBroker(t)
	defer b.Stop()

	b.EnqueuePrompt("queued answer", nil)
	b.SetQueuePaused(true)

	req, ch, _ := b.Register(Spec{Prompt: "Anything?"})
	select {
	case res := <-ch:
		t.Fatalf("request resolved while paused: %+v", res)
	case <-time.After(50 * time.Millisecond):
	}

	// Resuming does not retroactively feed the already-pending request;
	// the gate is checked only at registration.
	b.SetQueuePaused(false)
	select {
	case res := <-ch:
		t.Fatalf("resume retroactively resolved request: %+v", res)
	case <-time.After(50 * time.Millisecond):
	}

	b.SubmitLocal(req.ID, "manual", nil)
	res := awaitResolution(t, ch)
	if res.Source != SourceLocal {
		t.Errorf("resolution source = %q, want local", res.Source)
	}
	if b.State().Queue.Items[0].Text != "queued answer" {
		t.Error("paused queue lost its item")
	}
}

func TestBroker_DisabledQueueNotConsumed(t *testing.T) {
	b, _ := newBroker(t)
	defer b.Stop()

	b.EnqueuePrompt("queued", nil)
	b.SetQueueEnabled(false)

	_, ch, _ := b.Register(Spec{Prompt: "Anything?"})
	select {
	case <-ch:
		t.Fatal("request resolved with queue disabled")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroker_CancelIdempotent(t *testing.T) {
	b, c := newBroker(t)

	req, ch, _ := b.Register(Spec{Prompt: "Still there?"})
	b.Cancel(req.ID, "tool call aborted")
	b.Cancel(req.ID, "tool call aborted")

	res := awaitResolution(t, ch)
	if res.Source != SourceCancelled || res.Value != "tool call aborted" {
		t.Errorf("resolution = %+v, want cancelled", res)
	}

	b.Stop()
	var resolved int
	for _, tp := range c.types() {
		if tp == EventRequestResolved {
			resolved++
		}
	}
	if resolved != 1 {
		t.Errorf("resolved events = %d, want 1", resolved)
	}
}

func TestBroker_StopCancelsPending(t *testing.T) {
	b, _ := newBroker(t)

	_, ch, _ := b.Register(Spec{Prompt: "Waiting..."})
	b.Stop()

	res := awaitResolution(t, ch)
	if res.Source != SourceCancelled {
		t.Errorf("resolution source = %q, want cancelled", res.Source)
	}

	if _, _, err := b.Register(Spec{Prompt: "too late"}); err != ErrStopped {
		t.Errorf("Register() after Stop error = %v, want ErrStopped", err)
	}
	if b.SubmitLocal("x", "y", nil) {
		t.Error("SubmitLocal() after Stop = true, want false")
	}
}

func TestBroker_Normalization(t *testing.T) {
	b, _ := newBroker(t)
	defer b.Stop()

	if _, _, err := b.Register(Spec{Kind: KindMultiQuestion}); err != ErrNoQuestions {
		t.Errorf("empty multi-question error = %v, want ErrNoQuestions", err)
	}
	if _, _, err := b.Register(Spec{Kind: KindQuestion}); err != ErrNoQuestions {
		t.Errorf("empty prompt error = %v, want ErrNoQuestions", err)
	}

	req, ch, err := b.Register(Spec{
		Kind:      KindMultiQuestion,
		Questions: []Question{{Prompt: "Use Redis or Postgres?"}},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if req.Kind != KindQuestion {
		t.Errorf("single-entry multi-question kind = %q, want question", req.Kind)
	}
	if req.Prompt != "Use Redis or Postgres?" {
		t.Errorf("collapsed prompt = %q", req.Prompt)
	}
	b.Cancel(req.ID, "test cleanup")
	awaitResolution(t, ch)
}

func TestBroker_ParsesChoicesFromPrompt(t *testing.T) {
	b, _ := newBroker(t)
	defer b.Stop()

	req, ch, err := b.Register(Spec{Prompt: "Which database? 1. Postgres 2. MySQL 3. SQLite"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if len(req.Choices) != 3 {
		t.Fatalf("parsed choices = %v, want 3", req.Choices)
	}
	if req.Choices[0].Label != "Postgres" {
		t.Errorf("first choice = %q, want Postgres", req.Choices[0].Label)
	}
	b.Cancel(req.ID, "test cleanup")
	awaitResolution(t, ch)
}

func TestBroker_StateIdempotent(t *testing.T) {
	b, _ := newBroker(t)
	defer b.Stop()

	b.EnqueuePrompt("a", nil)
	b.SetQueuePaused(true)
	req, _, _ := b.Register(Spec{Prompt: "Snapshot me"})

	s1 := b.State()
	s2 := b.State()
	if s1.Request == nil || s1.Request.ID != req.ID {
		t.Fatalf("State().Request = %v, want current request", s1.Request)
	}
	if s2.Request.ID != s1.Request.ID || len(s2.Queue.Items) != len(s1.Queue.Items) {
		t.Error("back-to-back snapshots differ")
	}
	if !s1.Queue.Paused {
		t.Error("snapshot lost queue paused flag")
	}
}

// Pending and queue events may be shed under load, but every resolved
// request must reach the handler even when the handler falls behind and
// the event buffer stays full, so the history transcript has no holes.
func TestBroker_ResolvedEventsSurviveBacklog(t *testing.T) {
	var resolved atomic.Int64
	b := New(queue.New(), func(e Event) {
		time.Sleep(time.Millisecond)
		if e.Type == EventRequestResolved {
			resolved.Add(1)
		}
	})
	b.Start()

	const rounds = 300
	for i := 0; i < rounds; i++ {
		req, ch, err := b.Register(Spec{Prompt: "Proceed?"})
		if err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		b.Cancel(req.ID, "tool call ended")
		awaitResolution(t, ch)
	}
	b.Stop()

	if got := resolved.Load(); got != rounds {
		t.Errorf("resolved events delivered = %d, want %d", got, rounds)
	}
}
