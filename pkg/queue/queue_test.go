package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/agentcore/runtime/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendAndFlushAppendsInOrder(t *testing.T) {
	q := New()
	var history []message.Message
	var mu sync.Mutex

	q.AddMessage = func(ctx context.Context, msg message.Message) error {
		mu.Lock()
		defer mu.Unlock()
		history = append(history, msg)
		return nil
	}
	q.Persist = func(ctx context.Context) error { return nil }

	_, err := q.Send(context.Background(), "a", SendOptions{Kind: message.KindUser})
	require.NoError(t, err)
	_, err = q.Send(context.Background(), "b", SendOptions{Kind: message.KindUser})
	require.NoError(t, err)

	assert.Equal(t, 2, q.PendingCount())
	require.NoError(t, q.Flush(context.Background()))
	assert.Equal(t, 0, q.PendingCount())
	require.Len(t, history, 2)
	assert.Equal(t, "a", history[0].Text())
	assert.Equal(t, "b", history[1].Text())
}

func TestFlushAtomicOnPersistFailure(t *testing.T) {
	q := New()
	attempt := 0
	q.AddMessage = func(ctx context.Context, msg message.Message) error { return nil }
	q.Persist = func(ctx context.Context) error {
		attempt++
		if attempt == 1 {
			return errors.New("boom")
		}
		return nil
	}

	_, _ = q.Send(context.Background(), "a", SendOptions{Kind: message.KindUser})
	_, _ = q.Send(context.Background(), "b", SendOptions{Kind: message.KindUser})

	err := q.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, q.PendingCount())

	require.NoError(t, q.Flush(context.Background()))
	assert.Equal(t, 0, q.PendingCount())
}

func TestSendAfterCompleteFails(t *testing.T) {
	q := New()
	q.Complete()
	_, err := q.Send(context.Background(), "a", SendOptions{})
	assert.Error(t, err)
}

func TestReminderFormatterAppliesOnlyToReminders(t *testing.T) {
	q := New()
	q.FormatReminder = func(text string, opts ReminderOptions) string {
		return "[" + opts.Category + "] " + text
	}

	var captured string
	q.AddMessage = func(ctx context.Context, msg message.Message) error {
		captured = msg.Text()
		return nil
	}
	q.Persist = func(ctx context.Context) error { return nil }

	_, err := q.Send(context.Background(), "check in", SendOptions{
		Kind:         message.KindReminder,
		ReminderOpts: ReminderOptions{Category: "nudge"},
	})
	require.NoError(t, err)
	require.NoError(t, q.Flush(context.Background()))
	assert.Equal(t, "[nudge] check in", captured)
}

func TestEnsureProcessingCalledOnlyForUserKind(t *testing.T) {
	q := New()
	calls := 0
	q.EnsureProcessing = func() { calls++ }

	_, _ = q.Send(context.Background(), "a", SendOptions{Kind: message.KindUser})
	assert.Equal(t, 1, calls)

	_, _ = q.Send(context.Background(), "b", SendOptions{Kind: message.KindReminder})
	assert.Equal(t, 1, calls)
}
