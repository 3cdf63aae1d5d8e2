package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"nimbusworker/src/model"
)

// fakeRunner blocks until released or cancelled and records the order of
// run starts and ends, which is what the single-flight tests assert on.
type fakeRunner struct {
	mu      sync.Mutex
	events  []string
	started chan struct{} // one send per Run start
	release chan struct{} // closing lets blocked runs complete
	outcome model.Outcome
	err     error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
		outcome: model.Outcome{Status: model.TaskCompleted},
	}
}

func (r *fakeRunner) record(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *fakeRunner) Run(ctx context.Context, req model.TaskRequest) (model.Outcome, error) {
	r.record("start:" + req.Task)
	r.started <- struct{}{}
	select {
	case <-ctx.Done():
		r.record("cancelled:" + req.Task)
		return model.Outcome{}, ctx.Err()
	case <-r.release:
		r.record("done:" + req.Task)
		return r.outcome, r.err
	}
}

func (r *fakeRunner) eventList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func waitStarted(t *testing.T, r *fakeRunner) {
	t.Helper()
	select {
	case <-r.started:
	case <-time.After(2 * time.Second):
		t.Fatal("runner never started")
	}
}

func TestSubmitReturnsTerminalOutcome(t *testing.T) {
	runner := newFakeRunner()
	runner.outcome = model.Outcome{Status: model.TaskCompleted, Output: map[string]any{"result": float64(42)}}
	close(runner.release)

	c := New(runner)
	outcome, err := c.Submit(context.Background(), model.TaskRequest{Task: "a"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if outcome.Status != model.TaskCompleted {
		t.Fatalf("unexpected status: %s", outcome.Status)
	}
	if c.Current() != nil {
		t.Fatal("coordinator should be idle after completion")
	}
}

func TestSubmitPropagatesRunnerError(t *testing.T) {
	runner := newFakeRunner()
	runner.err = errors.New("trigger rejected")
	close(runner.release)

	c := New(runner)
	if _, err := c.Submit(context.Background(), model.TaskRequest{Task: "a"}); err == nil || err.Error() != "trigger rejected" {
		t.Fatalf("expected runner error, got %v", err)
	}
	if c.Current() != nil {
		t.Fatal("coordinator should be idle after failure")
	}
}

func TestSubmitPreemptsActiveExecution(t *testing.T) {
	runner := newFakeRunner()
	c := New(runner)

	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), model.TaskRequest{Task: "first"})
		firstErr <- err
	}()
	waitStarted(t, runner)

	secondDone := make(chan model.Outcome, 1)
	go func() {
		outcome, err := c.Submit(context.Background(), model.TaskRequest{Task: "second"})
		if err != nil {
			t.Errorf("second submit failed: %v", err)
		}
		secondDone <- outcome
	}()
	waitStarted(t, runner)

	// The preempted caller gets the cancellation, not the new caller.
	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("first submit should return cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first submit never returned")
	}

	close(runner.release)
	outcome := <-secondDone
	if outcome.Status != model.TaskCompleted {
		t.Fatalf("unexpected second outcome: %+v", outcome)
	}

	// The second run must start strictly after the first one was cancelled
	// and torn down.
	events := runner.eventList()
	want := []string{"start:first", "cancelled:first", "start:second", "done:second"}
	if len(events) != len(want) {
		t.Fatalf("unexpected event sequence: %v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d = %q, want %q (full: %v)", i, events[i], want[i], events)
		}
	}
}

func TestStopCancelsActiveExecution(t *testing.T) {
	runner := newFakeRunner()
	c := New(runner)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), model.TaskRequest{Task: "a"})
		errCh <- err
	}()
	waitStarted(t, runner)

	c.Stop()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("submit never returned after stop")
	}
	if c.Current() != nil {
		t.Fatal("coordinator should be idle after stop")
	}
}

func TestStopWithoutActiveExecutionIsNoOp(t *testing.T) {
	c := New(newFakeRunner())
	c.Stop() // must not panic or block
	if c.Current() != nil {
		t.Fatal("nothing should be active")
	}
}

func TestCurrentReportsActiveRequest(t *testing.T) {
	runner := newFakeRunner()
	c := New(runner)

	go func() {
		_, _ = c.Submit(context.Background(), model.TaskRequest{Task: "inspect me"})
	}()
	waitStarted(t, runner)

	current := c.Current()
	if current == nil || current.Task != "inspect me" {
		t.Fatalf("unexpected current task: %+v", current)
	}

	close(runner.release)
}
