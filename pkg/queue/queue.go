// Package queue implements the message queue (C4): a mutex-guarded buffer
// of PendingMessage that batches sends into atomic flushes against history.
//
// Grounded on pkg/session/session.go's mutex-guarded in-memory store and
// append semantics.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentcore/runtime/pkg/errs"
	"github.com/agentcore/runtime/pkg/message"
	"github.com/google/uuid"
)

// ReminderFormatter wraps reminder text according to an externally owned
// policy (category, priority, persistence, label, skip-standard-ending).
// The queue never interprets these concerns itself.
type ReminderFormatter func(text string, opts ReminderOptions) string

// ReminderOptions carries the policy-driven reminder surface.
type ReminderOptions struct {
	Category           string
	Priority           string
	Persistent         bool
	Label              string
	SkipStandardEnding bool
}

// AddMessageFunc appends a message to the owning agent's history.
type AddMessageFunc func(ctx context.Context, msg message.Message) error

// PersistFunc durably records that a flush occurred (e.g. a checkpoint
// save). The queue treats persistence failure identically to an append
// failure: nothing is removed from the buffer.
type PersistFunc func(ctx context.Context) error

// EnsureProcessingFunc starts the step loop if it is currently idle. It is
// invoked for every User-kind send, never for Reminder-kind sends.
type EnsureProcessingFunc func()

// SendOptions parameterises Send.
type SendOptions struct {
	Kind              message.PendingKind
	Metadata          map[string]any
	ReminderOpts      ReminderOptions
}

// Queue is a single agent's pending-message buffer.
type Queue struct {
	mu        sync.Mutex
	buffer    []message.PendingMessage
	completed bool

	FormatReminder   ReminderFormatter
	AddMessage       AddMessageFunc
	Persist          PersistFunc
	EnsureProcessing EnsureProcessingFunc
}

// New creates an empty queue. The injection points (FormatReminder,
// AddMessage, Persist, EnsureProcessing) may be set after construction; a
// nil one is skipped.
func New() *Queue {
	return &Queue{}
}

// Send appends text to the buffer, wrapping it through FormatReminder first
// if opts.Kind is Reminder, and returns the new pending message's id. For a
// User-kind send, EnsureProcessing is invoked after the append. Fails if the
// queue has already been Complete()d.
func (q *Queue) Send(ctx context.Context, text string, opts SendOptions) (string, error) {
	q.mu.Lock()
	if q.completed {
		q.mu.Unlock()
		return "", errs.New(errs.KindInvalidState, "queue is completed")
	}

	if opts.Kind == "" {
		opts.Kind = message.KindUser
	}

	body := text
	if opts.Kind == message.KindReminder && q.FormatReminder != nil {
		body = q.FormatReminder(text, opts.ReminderOpts)
	}

	id := fmt.Sprintf("msg-%d-%s", time.Now().UnixMilli(), uuid.NewString())
	pending := message.PendingMessage{
		ID:   id,
		Kind: opts.Kind,
		Message: message.Message{
			Role:      message.RoleUser,
			Content:   body,
			Timestamp: time.Now(),
		},
		Metadata: opts.Metadata,
	}
	q.buffer = append(q.buffer, pending)
	q.mu.Unlock()

	if opts.Kind == message.KindUser && q.EnsureProcessing != nil {
		q.EnsureProcessing()
	}

	return id, nil
}

// Flush snapshots the current buffer, appends each entry to history via
// AddMessage, calls Persist, and only then removes the flushed ids from the
// buffer. On any failure (including cancellation), the buffer is left
// completely untouched — retry is always safe.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	snapshot := make([]message.PendingMessage, len(q.buffer))
	copy(snapshot, q.buffer)
	q.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	for _, pending := range snapshot {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if q.AddMessage != nil {
			if err := q.AddMessage(ctx, pending.Message); err != nil {
				return err
			}
		}
	}

	// Persist runs after history has the flushed messages appended, so
	// whatever Persist durably records (e.g. a checkpoint snapshot) reflects
	// this flush's contents rather than the state before it.
	if q.Persist != nil {
		if err := q.Persist(ctx); err != nil {
			return err
		}
	}

	flushed := make(map[string]bool, len(snapshot))
	for _, pending := range snapshot {
		flushed[pending.ID] = true
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	remaining := q.buffer[:0:0]
	for _, pending := range q.buffer {
		if !flushed[pending.ID] {
			remaining = append(remaining, pending)
		}
	}
	q.buffer = remaining
	return nil
}

// PendingCount returns the current buffer length under lock.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffer)
}

// Complete marks the queue terminal and clears the buffer. Subsequent Send
// calls fail.
func (q *Queue) Complete() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = true
	q.buffer = nil
}
