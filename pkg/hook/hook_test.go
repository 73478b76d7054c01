package hook

import (
	"context"
	"testing"

	"github.com/agentcore/runtime/pkg/message"
	"github.com/stretchr/testify/assert"
)

func TestPreToolUseFirstNonNilWins(t *testing.T) {
	p := New()
	var secondCalled bool

	p.Register(OriginAgent,
		func(ctx context.Context, call message.ToolCall, tc ToolContext) HookDecision {
			return HookDecision{}
		}, nil, nil, nil, nil)

	p.Register(OriginPlugin,
		func(ctx context.Context, call message.ToolCall, tc ToolContext) HookDecision {
			return Deny("not allowed")
		}, nil, nil, nil, nil)

	p.Register(OriginPlugin,
		func(ctx context.Context, call message.ToolCall, tc ToolContext) HookDecision {
			secondCalled = true
			return Allow()
		}, nil, nil, nil, nil)

	decision := p.RunPreToolUse(context.Background(), message.ToolCall{Name: "write_file"}, ToolContext{})
	assert.Equal(t, DecisionDeny, decision.Kind)
	assert.Equal(t, "not allowed", decision.Reason)
	assert.False(t, secondCalled)
}

func TestPreToolUseDefaultsToAllow(t *testing.T) {
	p := New()
	decision := p.RunPreToolUse(context.Background(), message.ToolCall{Name: "noop"}, ToolContext{})
	assert.Equal(t, DecisionAllow, decision.Kind)
}

func TestPostToolUseSequentialTransform(t *testing.T) {
	p := New()
	p.Register(OriginAgent, nil, func(ctx context.Context, outcome message.ToolOutcome, tc ToolContext) PostHookResult {
		isError := true
		return UpdateOutcome(nil, &isError)
	}, nil, nil, nil)

	p.Register(OriginAgent, nil, func(ctx context.Context, outcome message.ToolOutcome, tc ToolContext) PostHookResult {
		return UpdateOutcome(&message.ToolResult{Success: false, Error: "redacted"}, nil)
	}, nil, nil, nil)

	out := p.RunPostToolUse(context.Background(), message.ToolOutcome{ID: "t1"}, ToolContext{})
	assert.True(t, out.IsError)
	assert.Equal(t, "redacted", out.Result.Error)
}

func TestMessagesChangedRunsAll(t *testing.T) {
	p := New()
	calls := 0
	p.Register(OriginAgent, nil, nil, nil, nil, func(ctx context.Context, history []message.Message) {
		calls++
	})
	p.Register(OriginToolTune, nil, nil, nil, nil, func(ctx context.Context, history []message.Message) {
		calls++
	})

	p.RunMessagesChanged(context.Background(), []message.Message{{Role: message.RoleUser}})
	assert.Equal(t, 2, calls)
}

func TestReentrantRegistrationDoesNotAffectCurrentTurn(t *testing.T) {
	p := New()
	p.Register(OriginAgent, func(ctx context.Context, call message.ToolCall, tc ToolContext) HookDecision {
		p.Register(OriginPlugin, func(ctx context.Context, call message.ToolCall, tc ToolContext) HookDecision {
			return Deny("late")
		}, nil, nil, nil, nil)
		return HookDecision{}
	}, nil, nil, nil, nil)

	decision := p.RunPreToolUse(context.Background(), message.ToolCall{}, ToolContext{})
	assert.Equal(t, DecisionAllow, decision.Kind)
}
