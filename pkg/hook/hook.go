// Package hook implements the ordered pre/post interceptor pipeline (C2)
// that the agent step loop consults around tool calls, model round-trips,
// and history mutation.
//
// Grounded on pkg/agent/tool_approval.go's decision short-circuit pattern
// (first non-default decision wins, loop continues otherwise).
package hook

import (
	"context"
	"sync"

	"github.com/agentcore/runtime/pkg/message"
)

// Origin identifies who registered a hook, for diagnostics and for hooks
// that need to reason about registration provenance (e.g. a plugin hook
// that should not override an agent-level one).
type Origin string

const (
	OriginAgent    Origin = "agent"
	OriginToolTune Origin = "tool_tune"
	OriginPlugin   Origin = "plugin"
)

// DecisionKind tags a HookDecision's variant.
type DecisionKind string

const (
	DecisionAllow           DecisionKind = "allow"
	DecisionDeny            DecisionKind = "deny"
	DecisionSkip            DecisionKind = "skip"
	DecisionRequireApproval DecisionKind = "require_approval"
)

// HookDecision is the tagged union a PreToolUse hook returns. The zero value
// is not a valid decision; use the constructors below.
type HookDecision struct {
	Kind       DecisionKind
	Reason     string // set on Deny and, optionally, RequireApproval
	MockResult any    // set on Skip: appended verbatim as the tool result
}

// Allow permits the tool call to proceed to execution. The agent consults
// the permission engine before it runs PreToolUse hooks.
func Allow() HookDecision { return HookDecision{Kind: DecisionAllow} }

// Deny rejects the tool call outright; the loop synthesizes an error tool
// message carrying reason.
func Deny(reason string) HookDecision {
	return HookDecision{Kind: DecisionDeny, Reason: reason}
}

// Skip short-circuits execution: the tool is never invoked, and mockResult
// is appended as the tool result as if the tool had returned it.
func Skip(mockResult any) HookDecision {
	return HookDecision{Kind: DecisionSkip, MockResult: mockResult}
}

// RequireApproval forces an "ask" outcome regardless of the configured
// permission mode: the agent sends the call to its approval handler.
func RequireApproval(reason string) HookDecision {
	return HookDecision{Kind: DecisionRequireApproval, Reason: reason}
}

// PostResultKind tags a PostHookResult's variant.
type PostResultKind string

const (
	PostResultPass    PostResultKind = "pass"
	PostResultReplace PostResultKind = "replace"
	PostResultUpdate  PostResultKind = "update"
)

// PostHookResult is the tagged union a PostToolUse hook returns.
type PostHookResult struct {
	Kind PostResultKind

	// Replace carries the wholesale substitute outcome when Kind ==
	// PostResultReplace.
	Replace message.ToolOutcome

	// Update carries a field-level merge when Kind == PostResultUpdate;
	// nil pointers mean "leave unchanged".
	UpdateResult  *message.ToolResult
	UpdateIsError *bool
}

// Pass makes no change to the outcome.
func Pass() PostHookResult { return PostHookResult{Kind: PostResultPass} }

// ReplaceOutcome wholesale substitutes outcome.
func ReplaceOutcome(outcome message.ToolOutcome) PostHookResult {
	return PostHookResult{Kind: PostResultReplace, Replace: outcome}
}

// UpdateOutcome field-level merges result and/or isError into the outcome.
// Pass nil for a field to leave it unchanged.
func UpdateOutcome(result *message.ToolResult, isError *bool) PostHookResult {
	return PostHookResult{Kind: PostResultUpdate, UpdateResult: result, UpdateIsError: isError}
}

// Apply folds a PostHookResult onto outcome, returning the resulting value.
func (r PostHookResult) Apply(outcome message.ToolOutcome) message.ToolOutcome {
	switch r.Kind {
	case PostResultReplace:
		return r.Replace
	case PostResultUpdate:
		if r.UpdateResult != nil {
			outcome.Result = *r.UpdateResult
		}
		if r.UpdateIsError != nil {
			outcome.IsError = *r.UpdateIsError
		}
		return outcome
	default:
		return outcome
	}
}

// ToolContext is the ambient context handed to PreToolUse/PostToolUse hooks.
type ToolContext struct {
	AgentID string
	StepNum int
}

// PreToolUseHook inspects a pending tool call and may short-circuit it.
// Returning the zero HookDecision (Kind == "") means "no opinion" and the
// pipeline proceeds to the next registration.
type PreToolUseHook func(ctx context.Context, call message.ToolCall, tc ToolContext) HookDecision

// PostToolUseHook observes (and may transform) a completed tool outcome.
type PostToolUseHook func(ctx context.Context, outcome message.ToolOutcome, tc ToolContext) PostHookResult

// PreModelHook observes an outbound model request. Side-effect only.
type PreModelHook func(ctx context.Context, req *message.ModelRequest)

// PostModelHook observes a model response. Side-effect only.
type PostModelHook func(ctx context.Context, resp *message.ModelResponse)

// MessagesChangedHook observes a history snapshot after any mutation.
type MessagesChangedHook func(ctx context.Context, history []message.Message)

type registration struct {
	origin Origin

	preToolUse      PreToolUseHook
	postToolUse     PostToolUseHook
	preModel        PreModelHook
	postModel       PostModelHook
	messagesChanged MessagesChangedHook
}

// Pipeline holds the ordered hook registrations for one agent.
type Pipeline struct {
	mu            sync.Mutex
	registrations []registration
}

// New creates an empty pipeline.
func New() *Pipeline {
	return &Pipeline{}
}

// Register adds a new registration tagged with origin. Any of the five
// interceptor fields may be left nil.
func (p *Pipeline) Register(origin Origin, preToolUse PreToolUseHook, postToolUse PostToolUseHook, preModel PreModelHook, postModel PostModelHook, messagesChanged MessagesChangedHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registrations = append(p.registrations, registration{
		origin:          origin,
		preToolUse:      preToolUse,
		postToolUse:     postToolUse,
		preModel:        preModel,
		postModel:       postModel,
		messagesChanged: messagesChanged,
	})
}

// snapshot copies the registration list under lock so that re-entrant
// registration during an interceptor does not affect the current turn.
func (p *Pipeline) snapshot() []registration {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]registration, len(p.registrations))
	copy(out, p.registrations)
	return out
}

// RunPreToolUse runs PreToolUse interceptors in registration order; the
// first non-default decision wins and iteration stops. Cancellation is
// honoured before each invocation.
func (p *Pipeline) RunPreToolUse(ctx context.Context, call message.ToolCall, tc ToolContext) HookDecision {
	for _, reg := range p.snapshot() {
		if reg.preToolUse == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return Allow()
		default:
		}
		decision := reg.preToolUse(ctx, call, tc)
		if decision.Kind != "" {
			return decision
		}
	}
	return Allow()
}

// RunPostToolUse runs every PostToolUse interceptor in order, each
// transforming the outcome produced by the previous one.
func (p *Pipeline) RunPostToolUse(ctx context.Context, outcome message.ToolOutcome, tc ToolContext) message.ToolOutcome {
	for _, reg := range p.snapshot() {
		if reg.postToolUse == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return outcome
		default:
		}
		result := reg.postToolUse(ctx, outcome, tc)
		outcome = result.Apply(outcome)
	}
	return outcome
}

// RunPreModel runs every PreModel interceptor against req.
func (p *Pipeline) RunPreModel(ctx context.Context, req *message.ModelRequest) {
	for _, reg := range p.snapshot() {
		if reg.preModel == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		reg.preModel(ctx, req)
	}
}

// RunPostModel runs every PostModel interceptor against resp.
func (p *Pipeline) RunPostModel(ctx context.Context, resp *message.ModelResponse) {
	for _, reg := range p.snapshot() {
		if reg.postModel == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		reg.postModel(ctx, resp)
	}
}

// RunMessagesChanged runs every MessagesChanged interceptor against the
// current history snapshot.
func (p *Pipeline) RunMessagesChanged(ctx context.Context, history []message.Message) {
	for _, reg := range p.snapshot() {
		if reg.messagesChanged == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		reg.messagesChanged(ctx, history)
	}
}

// VerifyPolicyHook is a no-op PostToolUse hook placeholder. Its intended
// semantics are unspecified upstream; it exists only so an agent can
// register a named slot for future policy verification.
func VerifyPolicyHook(ctx context.Context, outcome message.ToolOutcome, tc ToolContext) PostHookResult {
	return Pass()
}

// MemoryRecallHook is a no-op PreModel hook placeholder, for the same
// reason as VerifyPolicyHook.
func MemoryRecallHook(ctx context.Context, req *message.ModelRequest) {}
