// Package scheduler implements the agent-internal scheduler (C5): periodic
// step-count callbacks, a serial enqueue chain, and external trigger
// forwarding. It owns no clock of its own — NotifyStep/NotifyExternalTrigger
// are driven by the agent step loop and, respectively, an outside scheduler.
//
// Grounded on pkg/task's mutex-guarded map + serial lifecycle idiom and
// pkg/ratelimit's token/interval bookkeeping pattern.
package scheduler

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Task is a unit of scheduler work. Its error is swallowed by the
// fire-and-forget Enqueue and surfaced by EnqueueAwait.
type Task func(ctx context.Context) error

// TriggerKind distinguishes why OnTrigger fired.
type TriggerKind string

const (
	TriggerEverySteps TriggerKind = "every_steps"
	TriggerExternal   TriggerKind = "external"
)

// TriggerInfo describes one dispatched trigger, passed to OnTrigger.
type TriggerInfo struct {
	TaskID string
	Spec   string
	Kind   TriggerKind
}

type everySteps struct {
	n             int
	lastTriggered int
	cb            func()
}

type onStepListener struct {
	cb func()
}

// Scheduler holds one agent's registered periodic callbacks and serial
// enqueue chain.
type Scheduler struct {
	mu          sync.Mutex
	everySteps  map[string]*everySteps
	onStep      map[string]*onStepListener
	tail        chan struct{}

	// OnTrigger, if set, is invoked for every dispatched EverySteps task and
	// every forwarded external trigger.
	OnTrigger func(TriggerInfo)
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{
		everySteps: make(map[string]*everySteps),
		onStep:     make(map[string]*onStepListener),
	}
}

// EverySteps registers cb to run once step_count advances by at least n
// since its last invocation. Returns a handle; pass it to CancelEverySteps
// to unregister.
func (s *Scheduler) EverySteps(n int, cb func()) string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.everySteps[id] = &everySteps{n: n, cb: cb}
	return id
}

// CancelEverySteps unregisters the EverySteps task named by handle.
func (s *Scheduler) CancelEverySteps(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.everySteps, handle)
}

// OnStep registers cb to run on every step. Returns an unregister function.
func (s *Scheduler) OnStep(cb func()) func() {
	id := uuid.NewString()
	s.mu.Lock()
	s.onStep[id] = &onStepListener{cb: cb}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.onStep, id)
	}
}

// enqueueChained links cb into the serial chain: it waits for every
// previously enqueued task (fire-and-forget or awaited alike) to finish
// before running, regardless of that task's outcome.
func (s *Scheduler) enqueueChained(ctx context.Context, cb Task) <-chan error {
	result := make(chan error, 1)

	s.mu.Lock()
	prev := s.tail
	done := make(chan struct{})
	s.tail = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}

		select {
		case <-ctx.Done():
			result <- ctx.Err()
			return
		default:
		}

		result <- cb(ctx)
	}()

	return result
}

// Enqueue appends cb to the serial chain, fire-and-forget: its error, if
// any, is swallowed.
func (s *Scheduler) Enqueue(cb Task) {
	ch := s.enqueueChained(context.Background(), cb)
	go func() { <-ch }()
}

// EnqueueAwait appends cb to the serial chain and blocks until it (and
// every task enqueued before it) completes, returning its error. A ctx
// cancelled before cb's turn arrives completes with ctx.Err() without
// running cb.
func (s *Scheduler) EnqueueAwait(ctx context.Context, cb Task) error {
	return <-s.enqueueChained(ctx, cb)
}

// NotifyStep dispatches OnStep listeners and eligible EverySteps tasks for
// the given step count, one goroutine per task (fire-and-forget), and
// invokes OnTrigger for each EverySteps task that fired. Both the listener
// set and the task table are snapshotted under lock, then released before
// dispatch, so a listener re-registering mid-dispatch does not affect the
// current notification.
func (s *Scheduler) NotifyStep(stepCount int) {
	s.mu.Lock()
	listeners := make([]func(), 0, len(s.onStep))
	for _, l := range s.onStep {
		listeners = append(listeners, l.cb)
	}

	var fired []TriggerInfo
	callbacks := make(map[string]func())
	for id, task := range s.everySteps {
		if stepCount-task.lastTriggered >= task.n {
			task.lastTriggered = stepCount
			callbacks[id] = task.cb
			fired = append(fired, TriggerInfo{TaskID: id, Kind: TriggerEverySteps})
		}
	}
	s.mu.Unlock()

	for _, cb := range listeners {
		go cb()
	}
	for _, info := range fired {
		cb := callbacks[info.TaskID]
		go cb()
		if s.OnTrigger != nil {
			s.OnTrigger(info)
		}
	}
}

// NotifyExternalTrigger forwards a time/cron hint from an outside scheduler
// without the Scheduler owning any clock itself.
func (s *Scheduler) NotifyExternalTrigger(spec string) {
	if s.OnTrigger != nil {
		s.OnTrigger(TriggerInfo{Spec: spec, Kind: TriggerExternal})
	}
}
