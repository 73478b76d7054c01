package pool

import (
	"context"
	"sync"
	"testing"

	"github.com/agentcore/runtime/pkg/agent"
	"github.com/agentcore/runtime/pkg/message"
	"github.com/agentcore/runtime/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingModel struct {
	mu       sync.Mutex
	received []string
}

func (m *recordingModel) Call(ctx context.Context, req *message.ModelRequest) (*message.ModelResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(req.Messages) > 0 {
		m.received = append(m.received, req.Messages[len(req.Messages)-1].Text())
	}
	return &message.ModelResponse{Message: message.Message{Role: message.RoleAssistant, Content: "ack"}}, nil
}

func newTestAgent(id string) (*agent.Agent, *recordingModel) {
	model := &recordingModel{}
	return agent.New(agent.Config{ID: id, Model: model}), model
}

func TestCreateRejectsDuplicateAndCapacity(t *testing.T) {
	p := New(1)
	a1, _ := newTestAgent("A")
	require.NoError(t, p.Create("A", a1))

	a1b, _ := newTestAgent("A")
	assert.Error(t, p.Create("A", a1b))

	a2, _ := newTestAgent("B")
	assert.Error(t, p.Create("B", a2)) // capacity 1 already used
}

func TestGetAndList(t *testing.T) {
	p := New(10)
	a1, _ := newTestAgent("team-A")
	a2, _ := newTestAgent("team-B")
	a3, _ := newTestAgent("other-C")
	require.NoError(t, p.Create("team-A", a1))
	require.NoError(t, p.Create("team-B", a2))
	require.NoError(t, p.Create("other-C", a3))

	got, ok := p.Get("team-A")
	require.True(t, ok)
	assert.Equal(t, "team-A", got.ID())

	team := p.List("team-")
	assert.Len(t, team, 2)

	all := p.List("")
	assert.Len(t, all, 3)
}

func TestResumeReturnsExistingWithoutCallingFactory(t *testing.T) {
	p := New(10)
	a1, _ := newTestAgent("A")
	require.NoError(t, p.Create("A", a1))

	called := false
	resumed, err := p.Resume(context.Background(), "A", func(ctx context.Context, id string) (*agent.Agent, error) {
		called = true
		a, _ := newTestAgent(id)
		return a, nil
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Same(t, a1, resumed)
}

func TestResumeBuildsWhenAbsent(t *testing.T) {
	p := New(10)
	resumed, err := p.Resume(context.Background(), "A", func(ctx context.Context, id string) (*agent.Agent, error) {
		a, _ := newTestAgent(id)
		return a, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "A", resumed.ID())

	again, ok := p.Get("A")
	require.True(t, ok)
	assert.Same(t, resumed, again)
}

func TestStatusForUnknownAgentIsNotFound(t *testing.T) {
	p := New(10)
	_, err := p.Status("missing")
	assert.Error(t, err)
}

func TestDeleteDisposesAndRemoves(t *testing.T) {
	p := New(10)
	a1, _ := newTestAgent("A")
	require.NoError(t, p.Create("A", a1))
	require.NoError(t, p.Delete("A"))

	_, ok := p.Get("A")
	assert.False(t, ok)

	_, err := a1.Send(context.Background(), "x", queue.SendOptions{Kind: message.KindUser})
	assert.Error(t, err) // disposed queue rejects Send
}

func TestRemoveDoesNotDispose(t *testing.T) {
	p := New(10)
	a1, _ := newTestAgent("A")
	require.NoError(t, p.Create("A", a1))
	require.NoError(t, p.Remove("A"))

	_, ok := p.Get("A")
	assert.False(t, ok)

	_, err := a1.Send(context.Background(), "x", queue.SendOptions{Kind: message.KindUser})
	assert.NoError(t, err) // still live, not disposed
}

func TestRoomBroadcastExcludesSender(t *testing.T) {
	p := New(10)
	alice, aliceModel := newTestAgent("A1")
	bob, bobModel := newTestAgent("A2")
	carol, carolModel := newTestAgent("A3")
	require.NoError(t, p.Create("A1", alice))
	require.NoError(t, p.Create("A2", bob))
	require.NoError(t, p.Create("A3", carol))

	room := NewRoom(p)
	room.Join("alice", "A1")
	room.Join("bob", "A2")
	room.Join("carol", "A3")

	require.NoError(t, room.Say(context.Background(), "alice", "hello team"))

	assert.Empty(t, aliceModel.received)
	require.Len(t, bobModel.received, 1)
	assert.Equal(t, "[from:alice] hello team", bobModel.received[0])
	require.Len(t, carolModel.received, 1)
	assert.Equal(t, "[from:alice] hello team", carolModel.received[0])

	history := room.History()
	require.Len(t, history, 1)
	assert.Equal(t, "alice", history[0].From)
}

func TestRoomMentionRoutingSkipsBroadcast(t *testing.T) {
	p := New(10)
	alice, aliceModel := newTestAgent("A1")
	bob, bobModel := newTestAgent("A2")
	carol, carolModel := newTestAgent("A3")
	require.NoError(t, p.Create("A1", alice))
	require.NoError(t, p.Create("A2", bob))
	require.NoError(t, p.Create("A3", carol))

	room := NewRoom(p)
	room.Join("alice", "A1")
	room.Join("bob", "A2")
	room.Join("carol", "A3")

	require.NoError(t, room.Say(context.Background(), "dave", "hello @alice @bob"))

	require.Len(t, aliceModel.received, 1)
	require.Len(t, bobModel.received, 1)
	assert.Empty(t, carolModel.received)
}

func TestWhisperTargetsExactlyOneMember(t *testing.T) {
	p := New(10)
	alice, aliceModel := newTestAgent("A1")
	require.NoError(t, p.Create("A1", alice))

	room := NewRoom(p)
	room.Join("alice", "A1")

	require.NoError(t, room.Whisper(context.Background(), "dave", "alice", "secret"))
	require.Len(t, aliceModel.received, 1)
	assert.Equal(t, "[whisper from:dave] secret", aliceModel.received[0])
}

func TestWhisperUnknownMemberFails(t *testing.T) {
	p := New(10)
	room := NewRoom(p)
	err := room.Whisper(context.Background(), "dave", "ghost", "secret")
	assert.Error(t, err)
}
