// Package errs defines the stable error taxonomy shared across the agent
// runtime core. Every user-visible failure carries one of these kinds plus
// the identifying ids needed for programmatic branching (tool name, call
// id, agent id, checkpoint id, model name, status code).
package errs

import (
	"errors"
	"fmt"
)

// Kind is a stable, wire-safe error code.
type Kind string

const (
	KindInvalidState        Kind = "INVALID_STATE"
	KindToolExecutionError  Kind = "TOOL_EXECUTION_ERROR"
	KindToolNotFound        Kind = "TOOL_NOT_FOUND"
	KindPermissionDenied    Kind = "PERMISSION_DENIED"
	KindModelError          Kind = "MODEL_ERROR"
	KindCheckpointError     Kind = "CHECKPOINT_ERROR"
	KindMaxIterations       Kind = "MAX_ITERATIONS"

	// KindNotFound covers lookups outside the tool registry: unknown pool
	// agent ids, unknown room members.
	KindNotFound Kind = "NOT_FOUND"
)

// Sentinel errors for errors.Is matching against a Kind regardless of the
// identifying details carried on a concrete *Error.
var (
	ErrInvalidState       = errors.New("invalid agent state")
	ErrToolExecutionError = errors.New("tool execution error")
	ErrToolNotFound       = errors.New("tool not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrModelError         = errors.New("model error")
	ErrCheckpointError    = errors.New("checkpoint error")
	ErrMaxIterations      = errors.New("max iterations reached")
	ErrNotFound           = errors.New("not found")
)

var sentinelByKind = map[Kind]error{
	KindInvalidState:       ErrInvalidState,
	KindToolExecutionError: ErrToolExecutionError,
	KindToolNotFound:       ErrToolNotFound,
	KindPermissionDenied:   ErrPermissionDenied,
	KindModelError:         ErrModelError,
	KindCheckpointError:    ErrCheckpointError,
	KindMaxIterations:      ErrMaxIterations,
	KindNotFound:           ErrNotFound,
}

// Error is the structured failure type surfaced to callers. It always
// carries a stable Kind plus whichever identifying ids apply.
type Error struct {
	Kind Kind

	ToolName      string
	ToolCallID    string
	AgentID       string
	AgentState    string
	CheckpointID  string
	ModelName     string
	StatusCode    int

	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		if e.Err != nil {
			return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
		}
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return sentinelByKind[e.Kind]
}

// Is allows errors.Is(err, errs.ErrToolNotFound) to match an *Error whose
// Kind maps to that sentinel, even without an explicit wrapped err.
func (e *Error) Is(target error) bool {
	return sentinelByKind[e.Kind] == target
}

// New constructs a structured *Error for the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a structured *Error that wraps an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// ToolNotFound builds the TOOL_NOT_FOUND error for a missing registry id.
func ToolNotFound(name string) *Error {
	return &Error{
		Kind:     KindToolNotFound,
		ToolName: name,
		Message:  fmt.Sprintf("tool %q not found", name),
	}
}

// ToolExecutionFailed builds the TOOL_EXECUTION_ERROR for a tool that threw
// after permission was granted.
func ToolExecutionFailed(toolName, callID string, err error) *Error {
	return &Error{
		Kind:       KindToolExecutionError,
		ToolName:   toolName,
		ToolCallID: callID,
		Message:    fmt.Sprintf("tool %q execution failed", toolName),
		Err:        err,
	}
}

// PermissionDenied builds the PERMISSION_DENIED error synthesized when a
// hook or the permission engine denies a tool call.
func PermissionDenied(toolName, callID, reason string) *Error {
	return &Error{
		Kind:       KindPermissionDenied,
		ToolName:   toolName,
		ToolCallID: callID,
		Message:    reason,
	}
}

// InvalidState builds the INVALID_STATE error for an operation that is
// illegal in the agent's current runtime state.
func InvalidState(agentID, state, message string) *Error {
	return &Error{
		Kind:       KindInvalidState,
		AgentID:    agentID,
		AgentState: state,
		Message:    message,
	}
}

// ModelFailed builds the MODEL_ERROR for a failed model round-trip.
func ModelFailed(modelName string, statusCode int, err error) *Error {
	return &Error{
		Kind:       KindModelError,
		ModelName:  modelName,
		StatusCode: statusCode,
		Message:    "model call failed",
		Err:        err,
	}
}

// CheckpointFailed builds the CHECKPOINT_ERROR for a failed save/load/fork.
func CheckpointFailed(checkpointID, message string, err error) *Error {
	return &Error{
		Kind:         KindCheckpointError,
		CheckpointID: checkpointID,
		Message:      message,
		Err:          err,
	}
}

// MaxIterations builds the MAX_ITERATIONS error when the step loop exceeds
// its configured budget.
func MaxIterations(agentID string, iterations int) *Error {
	return &Error{
		Kind:    KindMaxIterations,
		AgentID: agentID,
		Message: fmt.Sprintf("agent %q exceeded max iterations (%d)", agentID, iterations),
	}
}

// NotFound builds the NOT_FOUND error for an unknown pool agent id or room
// member name. key is carried in AgentID regardless of which lookup failed.
func NotFound(key, message string) *Error {
	return &Error{
		Kind:    KindNotFound,
		AgentID: key,
		Message: message,
	}
}
