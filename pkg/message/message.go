// Package message defines the wire-level data model shared by the queue,
// the agent step loop, and the checkpoint store: messages, pending
// messages, tool calls/outcomes/results, and the agent runtime state enum.
//
// Grounded on pkg/task.Task's state-machine JSON tags and
// pkg/checkpoint/state.go's Phase/Type string-const convention.
package message

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role identifies who authored a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in an agent's conversation history. History is
// append-only during normal operation; branching requires a checkpoint
// fork (see pkg/checkpoint).
type Message struct {
	Role Role `json:"role"`

	// Content holds either plain text or a slice of structured content
	// blocks (left as `any` since the wire shape is provider-defined; the
	// core never interprets it beyond passing it through).
	Content any `json:"content,omitempty"`

	// ToolCallID is set on a tool-role message: it names which ToolCall
	// this message is the result of.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolCalls is set on an assistant message that requested tool use.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// IsError marks a tool-role message as an error result (denied,
	// not-found, or a failed execution).
	IsError bool `json:"is_error,omitempty"`

	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Text returns Content as a string when it is one, and "" otherwise.
func (m Message) Text() string {
	if s, ok := m.Content.(string); ok {
		return s
	}
	return ""
}

// PendingKind distinguishes why a message is waiting in the queue.
type PendingKind string

const (
	// KindUser is an ordinary end-user message.
	KindUser PendingKind = "User"

	// KindReminder is a system-injected reminder, formatted by an
	// externally supplied policy (see queue.ReminderFormatter).
	KindReminder PendingKind = "Reminder"
)

// PendingMessage lives only inside the message queue until Flush appends
// it to history.
type PendingMessage struct {
	ID       string
	Message  Message
	Kind     PendingKind
	Metadata map[string]any
}

// ToolCall is a model-assigned request to invoke a tool, consumed exactly
// once per turn.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolResult is the value produced by a tool execution.
type ToolResult struct {
	Success bool   `json:"success"`
	Value   any    `json:"value,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ToolOutcome is produced by the executor, fed to PostToolUse hooks, and
// appended to history as a tool-role Message.
type ToolOutcome struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Input    map[string]any `json:"input"`
	Result   ToolResult     `json:"result"`
	IsError  bool           `json:"is_error"`
	Duration time.Duration  `json:"duration"`
}

// ToMessage converts a ToolOutcome to its tool-role history Message.
func (o ToolOutcome) ToMessage() Message {
	var content any
	if o.Result.Error != "" {
		content = o.Result.Error
	} else {
		content = o.Result.Value
	}
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: o.ID,
		IsError:    o.IsError,
		Timestamp:  time.Now(),
	}
}

// ModelRequest is the simplified view of an outbound model call that
// PreModel hooks observe and may annotate via Metadata.
type ModelRequest struct {
	Messages []Message
	Metadata map[string]any
}

// ModelResponse is the simplified view of a model round-trip that PostModel
// hooks observe.
type ModelResponse struct {
	Message  Message
	Metadata map[string]any
}

// RuntimeState is the agent's coarse-grained execution state. Wire form is
// UPPER_SNAKE_CASE; MarshalJSON/UnmarshalJSON implement the compatibility
// decoder that also accepts integers and case-insensitive strings.
type RuntimeState int

const (
	StateReady RuntimeState = iota
	StateWorking
	StatePaused
)

var runtimeStateNames = map[RuntimeState]string{
	StateReady:   "READY",
	StateWorking: "WORKING",
	StatePaused:  "PAUSED",
}

var runtimeStateValues = map[string]RuntimeState{
	"READY":   StateReady,
	"WORKING": StateWorking,
	"PAUSED":  StatePaused,
}

func (s RuntimeState) String() string {
	if name, ok := runtimeStateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// MarshalJSON emits the UPPER_SNAKE_CASE wire form.
func (s RuntimeState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the canonical UPPER_SNAKE_CASE string, any
// case-insensitive variant of it, or a raw integer, for compatibility with
// older producers.
func (s *RuntimeState) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))

	if n, err := strconv.Atoi(trimmed); err == nil {
		*s = RuntimeState(n)
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("message: invalid runtime state %q: %w", trimmed, err)
	}

	if v, ok := runtimeStateValues[strings.ToUpper(str)]; ok {
		*s = v
		return nil
	}
	return fmt.Errorf("message: unrecognized runtime state %q", str)
}
