// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package agent implements the agent core (C8): the model<->tool step loop,
// its public lifecycle operations (Send/RunAsync/Fork/Pause/Resume/Status/
// DisposeAsync), and the wiring between the queue, hook pipeline,
// permission engine, tool registry, checkpoint store, and scheduler.
//
// Grounded on pkg/agent/tool_approval.go's allow/deny/ask decision shape
// and pkg/task.Task's mutex-guarded state-machine idiom.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/agentcore/runtime/pkg/checkpoint"
	"github.com/agentcore/runtime/pkg/config"
	"github.com/agentcore/runtime/pkg/errs"
	"github.com/agentcore/runtime/pkg/hook"
	"github.com/agentcore/runtime/pkg/logger"
	"github.com/agentcore/runtime/pkg/message"
	"github.com/agentcore/runtime/pkg/permission"
	"github.com/agentcore/runtime/pkg/queue"
	"github.com/agentcore/runtime/pkg/scheduler"
	"github.com/agentcore/runtime/pkg/tool"
)

var tracer = otel.Tracer("github.com/agentcore/runtime/pkg/agent")

// Model is the external collaborator that turns a ModelRequest into a
// ModelResponse. Concrete LLM clients are out of scope; callers inject
// whatever implementation fits.
type Model interface {
	Call(ctx context.Context, req *message.ModelRequest) (*message.ModelResponse, error)
}

// ApprovalHandler is the out-of-scope collaborator consulted when the
// permission engine or a hook decides "ask". A nil handler denies.
type ApprovalHandler func(ctx context.Context, call message.ToolCall, descriptor tool.Descriptor) permission.Decision

// Config parameterises a new Agent. Tools, Hooks, Scheduler, and
// Permissions default to fresh empty instances when left nil.
type Config struct {
	ID             string
	MaxIterations  int
	PermissionMode string

	Model        Model
	Tools        *tool.Registry
	Hooks        *hook.Pipeline
	Permissions  *permission.Engine
	Scheduler    *scheduler.Scheduler
	Checkpointer checkpoint.Checkpointer
	Approval     ApprovalHandler

	// Logger configures the process-wide slog default logger (§6's Logger
	// surface). Left nil, the agent logs through whatever default logger
	// an embedding process already installed.
	Logger *config.LoggerConfig
}

// Status is the snapshot returned by Agent.Status.
type Status struct {
	AgentID      string
	State        message.RuntimeState
	StepCount    int
	LastSFPIndex int // index of the last message appended to history
	LastBookmark *string
	Cursor       int // == StepCount; kept as a distinct field per the wire contract
	Breakpoint   *string
}

// Task is returned by RunAsync: the outcome of running the step loop until
// it quiesces (no tool calls in the last round, queue empty, or a
// terminal failure).
type Task struct {
	StepCount int
	Err       error
}

// Agent is a stateful conversational actor: a message history plus a
// tool/permission/hook configuration, advanced one model round-trip at a
// time by the step loop.
type Agent struct {
	id            string
	maxIterations int

	runMu sync.Mutex // at-most-one concurrent step loop

	stateMu   sync.Mutex
	state     message.RuntimeState
	stepCount int
	disposed  bool

	historyMu sync.Mutex
	history   []message.Message

	permissionMode string
	model          Model
	tools          *tool.Registry
	hooks          *hook.Pipeline
	permissions    *permission.Engine
	scheduler      *scheduler.Scheduler
	checkpointer   checkpoint.Checkpointer
	approval       ApprovalHandler

	queue           *queue.Queue
	checkpointHooks *checkpoint.Hooks
	loggerCleanup   func()
}

// New constructs an Agent from cfg, wiring its internal message queue to
// this agent's history append/persist hooks.
func New(cfg Config) *Agent {
	a := &Agent{
		id:             cfg.ID,
		maxIterations:  cfg.MaxIterations,
		permissionMode: cfg.PermissionMode,
		model:          cfg.Model,
		tools:          cfg.Tools,
		hooks:          cfg.Hooks,
		permissions:    cfg.Permissions,
		scheduler:      cfg.Scheduler,
		checkpointer:   cfg.Checkpointer,
		approval:       cfg.Approval,
		state:          message.StateReady,
	}
	if a.maxIterations <= 0 {
		a.maxIterations = 50
	}
	if a.permissionMode == "" {
		a.permissionMode = "auto"
	}
	if a.tools == nil {
		a.tools = tool.NewRegistry()
	}
	if a.hooks == nil {
		a.hooks = hook.New()
	}
	if a.permissions == nil {
		a.permissions = permission.NewEngine()
	}
	if a.scheduler == nil {
		a.scheduler = scheduler.New()
	}

	if cfg.Logger != nil {
		cleanup, err := logger.InitFromConfig(cfg.Logger)
		if err != nil {
			slog.Warn("logger init from config failed, keeping existing default logger", "agent", a.id, "error", err)
		} else {
			a.loggerCleanup = cleanup
		}
	}

	a.checkpointHooks = checkpoint.NewHooks(a.checkpointer, func(phase string, err error) {
		slog.Warn("intermediate checkpoint save failed", "agent", a.id, "phase", phase, "error", err)
	})

	q := queue.New()
	q.AddMessage = func(ctx context.Context, msg message.Message) error {
		a.appendHistory(msg)
		return nil
	}
	q.Persist = func(ctx context.Context) error {
		return a.persist(ctx)
	}
	q.EnsureProcessing = func() {}
	a.queue = q

	slog.Info("agent created", "agent", a.id, "max_iterations", a.maxIterations, "permission_mode", a.permissionMode)
	return a
}

// ID returns the agent's identifier.
func (a *Agent) ID() string { return a.id }

func (a *Agent) persist(ctx context.Context) error {
	if a.checkpointer == nil {
		return nil
	}
	_, err := a.checkpointer.Save(ctx, a.buildCheckpoint())
	return err
}

func (a *Agent) appendHistory(msg message.Message) {
	a.historyMu.Lock()
	a.history = append(a.history, msg)
	a.historyMu.Unlock()
}

// History returns a defensive copy of the agent's message history.
func (a *Agent) History() []message.Message {
	a.historyMu.Lock()
	defer a.historyMu.Unlock()
	out := make([]message.Message, len(a.history))
	copy(out, a.history)
	return out
}

func (a *Agent) getState() message.RuntimeState {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.state
}

func (a *Agent) setState(s message.RuntimeState) {
	a.stateMu.Lock()
	a.state = s
	a.stateMu.Unlock()
}

// Send enqueues text as a pending message, delegating to the message
// queue (C4).
func (a *Agent) Send(ctx context.Context, text string, opts queue.SendOptions) (string, error) {
	return a.queue.Send(ctx, text, opts)
}

// Status snapshots the agent's externally observable state.
func (a *Agent) Status() Status {
	a.stateMu.Lock()
	state, step := a.state, a.stepCount
	a.stateMu.Unlock()

	return Status{
		AgentID:      a.id,
		State:        state,
		StepCount:    step,
		LastSFPIndex: len(a.History()) - 1,
		Cursor:       step,
	}
}

// Pause toggles the agent to Paused: Send still succeeds, but the step
// loop will not advance until Resume is called.
func (a *Agent) Pause() { a.setState(message.StatePaused) }

// Resume toggles a paused agent back to Ready.
func (a *Agent) Resume() {
	a.stateMu.Lock()
	if a.state == message.StatePaused {
		a.state = message.StateReady
	}
	a.stateMu.Unlock()
}

// DisposeAsync completes the queue and marks the agent disposed; its step
// loop will not run again.
func (a *Agent) DisposeAsync() {
	a.queue.Complete()
	a.stateMu.Lock()
	a.disposed = true
	a.stateMu.Unlock()
	slog.Info("agent disposed", "agent", a.id, "step_count", a.Status().StepCount)
	if a.loggerCleanup != nil {
		a.loggerCleanup()
	}
}

func (a *Agent) buildCheckpoint() *checkpoint.Checkpoint {
	return &checkpoint.Checkpoint{
		ID:        fmt.Sprintf("%s-%d", a.id, time.Now().UnixMilli()),
		AgentID:   a.id,
		Timestamp: time.Now().UnixMilli(),
		Messages:  a.History(),
		State:     a.getState(),
	}
}

// Fork checkpoints the agent's current state, forks that checkpoint under
// newAgentID, and constructs a fresh Agent loaded from the forked
// snapshot. The new agent shares this agent's tool/hook/permission/
// scheduler/model wiring but starts with an independent history and run
// lock.
func (a *Agent) Fork(ctx context.Context, newAgentID string) (*Agent, error) {
	if a.checkpointer == nil {
		return nil, errs.New(errs.KindInvalidState, "fork requires a configured checkpointer")
	}

	id, err := a.checkpointer.Save(ctx, a.buildCheckpoint())
	if err != nil {
		return nil, err
	}

	newID, err := a.checkpointer.Fork(ctx, id, newAgentID)
	if err != nil {
		return nil, err
	}

	forked, err := a.checkpointer.Load(ctx, newID)
	if err != nil {
		return nil, err
	}

	child := New(Config{
		ID:             newAgentID,
		MaxIterations:  a.maxIterations,
		PermissionMode: a.permissionMode,
		Model:          a.model,
		Tools:          a.tools,
		Hooks:          a.hooks,
		Permissions:    a.permissions,
		Scheduler:      a.scheduler,
		Checkpointer:   a.checkpointer,
		Approval:       a.approval,
	})
	child.history = forked.Messages
	child.stepCount = a.Status().StepCount
	return child, nil
}

func errorOutcome(call message.ToolCall, reason string) message.ToolOutcome {
	return message.ToolOutcome{
		ID:      call.ID,
		Name:    call.Name,
		Input:   call.Input,
		IsError: true,
		Result:  message.ToolResult{Success: false, Error: reason},
	}
}

func skippedOutcome(call message.ToolCall, mock any) message.ToolOutcome {
	return message.ToolOutcome{
		ID:      call.ID,
		Name:    call.Name,
		Input:   call.Input,
		IsError: false,
		Result:  message.ToolResult{Success: true, Value: mock},
	}
}

// executeToolCall resolves, permission-checks, hook-intercepts, and runs
// one tool call, always returning a ToolOutcome.
func (a *Agent) executeToolCall(ctx context.Context, call message.ToolCall) message.ToolOutcome {
	ctx, span := tracer.Start(ctx, "agent.tool", trace.WithAttributes(attribute.String("tool.name", call.Name)))
	defer span.End()

	t, ok := a.tools.Get(call.Name)
	if !ok {
		span.AddEvent("tool.not_found")
		return errorOutcome(call, fmt.Sprintf("tool %q not found", call.Name))
	}

	descriptor := t.Descriptor()

	switch a.permissions.Evaluate(a.permissionMode, call.Name, &descriptor, descriptor.Config) {
	case permission.Deny:
		slog.Warn("tool call denied by permission engine", "agent", a.id, "tool", call.Name)
		return errorOutcome(call, fmt.Sprintf("permission denied for %q", call.Name))
	case permission.Ask:
		if !a.requestApproval(ctx, call, descriptor) {
			slog.Warn("tool call approval denied", "agent", a.id, "tool", call.Name)
			return errorOutcome(call, fmt.Sprintf("approval denied for %q", call.Name))
		}
	}

	tc := hook.ToolContext{AgentID: a.id, StepNum: a.Status().StepCount}
	decision := a.hooks.RunPreToolUse(ctx, call, tc)
	switch decision.Kind {
	case hook.DecisionDeny:
		return errorOutcome(call, decision.Reason)
	case hook.DecisionSkip:
		return a.hooks.RunPostToolUse(ctx, skippedOutcome(call, decision.MockResult), tc)
	case hook.DecisionRequireApproval:
		if !a.requestApproval(ctx, call, descriptor) {
			return errorOutcome(call, "approval required but was not granted")
		}
	}

	outcome := a.runTool(ctx, t, call)
	return a.hooks.RunPostToolUse(ctx, outcome, tc)
}

func (a *Agent) requestApproval(ctx context.Context, call message.ToolCall, descriptor tool.Descriptor) bool {
	if a.approval == nil {
		return false
	}
	return a.approval(ctx, call, descriptor) == permission.Allow
}

// runTool invokes t.Execute, recovering from panics and measuring duration.
func (a *Agent) runTool(ctx context.Context, t tool.Tool, call message.ToolCall) (outcome message.ToolOutcome) {
	start := time.Now()
	outcome = message.ToolOutcome{ID: call.ID, Name: call.Name, Input: call.Input}

	defer func() {
		outcome.Duration = time.Since(start)
		if r := recover(); r != nil {
			outcome.IsError = true
			outcome.Result = message.ToolResult{Success: false, Error: fmt.Sprintf("tool panicked: %v", r)}
		}
	}()

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(done)
	}()

	result, err := t.Execute(ctx, call.Input, done)
	if err != nil {
		outcome.IsError = true
		outcome.Result = message.ToolResult{Success: false, Error: err.Error()}
		return outcome
	}

	outcome.IsError = !result.Success
	outcome.Result = message.ToolResult{Success: result.Success, Value: result.Value, Error: result.Error}
	return outcome
}

func (a *Agent) toolDescriptors() []tool.Descriptor {
	tools := a.tools.List()
	out := make([]tool.Descriptor, 0, len(tools))
	for _, t := range tools {
		out = append(out, t.Descriptor())
	}
	return out
}

// runStep executes one model<->tool iteration (steps 2-8 of the step
// loop). It returns false when the turn is complete (no tool calls) or a
// terminal error occurred.
func (a *Agent) runStep(ctx context.Context) (bool, error) {
	ctx, span := tracer.Start(ctx, "agent.step")
	defer span.End()

	a.historyMu.Lock()
	preFlushLen := len(a.history)
	a.historyMu.Unlock()
	if err := a.queue.Flush(ctx); err != nil {
		// A failed flush leaves the queue's buffer untouched, so drop what it
		// already appended to history; the retry appends those messages again.
		a.historyMu.Lock()
		a.history = a.history[:preFlushLen]
		a.historyMu.Unlock()
		return false, err
	}

	req := &message.ModelRequest{
		Messages: a.History(),
		Metadata: map[string]any{"tools": a.toolDescriptors()},
	}
	a.hooks.RunPreModel(ctx, req)
	a.checkpointHooks.BeforeModelCall(ctx, a.buildCheckpoint())

	resp, err := a.model.Call(ctx, req)
	if err != nil {
		span.RecordError(err)
		return false, errs.ModelFailed("", 0, err)
	}
	a.hooks.RunPostModel(ctx, resp)

	a.appendHistory(resp.Message)
	a.checkpointHooks.AfterModelCall(ctx, a.buildCheckpoint())

	// One iteration == one model round-trip: step_count advances whether
	// or not this round produced tool calls. Only the tool-execution
	// block (7) is conditional on there being calls to run.
	hasToolCalls := len(resp.Message.ToolCalls) > 0
	if hasToolCalls {
		span.SetAttributes(attribute.Int("agent.tool_calls", len(resp.Message.ToolCalls)))
		a.checkpointHooks.BeforeToolExecution(ctx, a.buildCheckpoint())
		outcomes := a.executeToolCalls(ctx, resp.Message.ToolCalls)
		for _, outcome := range outcomes {
			a.appendHistory(outcome.ToMessage())
		}
		a.checkpointHooks.AfterToolExecution(ctx, a.buildCheckpoint())
	}

	a.stateMu.Lock()
	a.stepCount++
	step := a.stepCount
	a.stateMu.Unlock()

	a.scheduler.NotifyStep(step)
	a.hooks.RunMessagesChanged(ctx, a.History())
	a.checkpointHooks.OnIterationEnd(ctx, a.buildCheckpoint())
	slog.Debug("step completed", "agent", a.id, "step", step, "tool_calls", hasToolCalls)

	if step >= a.maxIterations {
		return false, errs.MaxIterations(a.id, step)
	}
	if !hasToolCalls {
		return false, nil
	}
	return true, nil
}

// executeToolCalls runs calls in order, but consecutive calls whose tool
// attributes allow parallel execution run concurrently via errgroup.
func (a *Agent) executeToolCalls(ctx context.Context, calls []message.ToolCall) []message.ToolOutcome {
	outcomes := make([]message.ToolOutcome, len(calls))

	i := 0
	for i < len(calls) {
		if !a.allowsParallel(calls[i].Name) {
			outcomes[i] = a.executeToolCall(ctx, calls[i])
			i++
			continue
		}

		start := i
		for i < len(calls) && a.allowsParallel(calls[i].Name) {
			i++
		}

		g, gctx := errgroup.WithContext(ctx)
		for j := start; j < i; j++ {
			j := j
			g.Go(func() error {
				outcomes[j] = a.executeToolCall(gctx, calls[j])
				return nil
			})
		}
		_ = g.Wait()
	}

	return outcomes
}

func (a *Agent) allowsParallel(toolName string) bool {
	t, ok := a.tools.Get(toolName)
	if !ok {
		return false
	}
	return t.Attributes().AllowParallel
}

// RunAsync optionally sends text, then runs the step loop until it
// quiesces: the last round produced no tool calls, the agent is paused,
// the context is cancelled, or a terminal error occurs. At most one step
// loop runs per agent at a time; concurrent callers block on runMu.
func (a *Agent) RunAsync(ctx context.Context, text string) (*Task, error) {
	if text != "" {
		if _, err := a.Send(ctx, text, queue.SendOptions{Kind: message.KindUser}); err != nil {
			return nil, err
		}
	}

	a.runMu.Lock()
	defer a.runMu.Unlock()

	a.stateMu.Lock()
	disposed := a.disposed
	a.stateMu.Unlock()
	if disposed {
		return nil, errs.InvalidState(a.id, a.getState().String(), "agent is disposed")
	}

	for {
		if a.getState() == message.StatePaused {
			return &Task{StepCount: a.Status().StepCount}, nil
		}
		select {
		case <-ctx.Done():
			return &Task{StepCount: a.Status().StepCount}, ctx.Err()
		default:
		}

		a.setState(message.StateWorking)
		more, err := a.runStep(ctx)
		if err != nil {
			a.setState(message.StateReady)
			return &Task{StepCount: a.Status().StepCount, Err: err}, err
		}
		if !more {
			a.setState(message.StateReady)
			return &Task{StepCount: a.Status().StepCount}, nil
		}
	}
}
