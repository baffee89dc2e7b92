package draft

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Task is a cancellable deferred call with at most one pending timer.
type Task struct {
	clock clockwork.Clock

	mu    sync.Mutex
	timer clockwork.Timer
	fn    func()
	gen   uint64
}

func NewTask(clock clockwork.Clock) *Task {
	return &Task{clock: clock}
}

// Arm schedules fn after delay, replacing any pending call.
func (t *Task) Arm(delay time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()

	t.gen++
	gen := t.gen
	t.fn = fn
	t.timer = t.clock.AfterFunc(delay, func() {
		if run := t.take(gen); run != nil {
			run()
		}
	})
}

// Cancel drops the pending call. It reports whether one was pending.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending := t.fn != nil
	t.stopLocked()

	return pending
}

// Fire runs the pending call now instead of waiting for its timer. It
// reports whether a call was pending.
func (t *Task) Fire() bool {
	t.mu.Lock()
	run := t.fn
	t.stopLocked()
	t.mu.Unlock()

	if run == nil {
		return false
	}

	run()

	return true
}

// Pending reports whether a call is scheduled.
func (t *Task) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.fn != nil
}

func (t *Task) take(gen uint64) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.gen || t.fn == nil {
		return nil
	}

	run := t.fn
	t.fn = nil
	t.timer = nil

	return run
}

func (t *Task) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
	}

	t.timer = nil
	t.fn = nil
	t.gen++
}
