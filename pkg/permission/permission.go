// Package permission implements the permission engine (C3): a registry of
// named modes, each a handler deciding allow/deny/ask for a tool call from
// its descriptor metadata alone.
//
// Grounded on pkg/tool/tool.go's attributes model and
// pkg/agent/tool_approval.go's allow/deny/ask decision shape.
package permission

import (
	"strings"

	"github.com/agentcore/runtime/pkg/registry"
	"github.com/agentcore/runtime/pkg/tool"
)

// Decision is the outcome of a permission check.
type Decision string

const (
	Allow Decision = "allow"
	Deny  Decision = "deny"
	Ask   Decision = "ask"
)

// Handler decides a Decision for a tool call given its name, descriptor
// (nil if the tool could not be resolved), and the tool's instantiation
// config.
type Handler func(toolName string, descriptor *tool.Descriptor, config map[string]any) Decision

// mode pairs a handler with whether it is one of the three built-ins.
type mode struct {
	name      string
	builtIn   bool
	handler   Handler
}

// Engine is the process-wide mode registry injected into agents and pools.
type Engine struct {
	modes *registry.BaseRegistry[mode]
}

// NewEngine creates an engine pre-populated with the three built-in modes.
func NewEngine() *Engine {
	e := &Engine{modes: registry.NewBaseRegistry[mode]()}
	e.modes.Put("auto", mode{name: "auto", builtIn: true, handler: autoHandler})
	e.modes.Put("approval", mode{name: "approval", builtIn: true, handler: approvalHandler})
	e.modes.Put("readonly", mode{name: "readonly", builtIn: true, handler: readonlyHandler})
	return e
}

func autoHandler(string, *tool.Descriptor, map[string]any) Decision { return Allow }

func approvalHandler(string, *tool.Descriptor, map[string]any) Decision { return Ask }

func readonlyHandler(_ string, descriptor *tool.Descriptor, _ map[string]any) Decision {
	if descriptor == nil || descriptor.Metadata == nil {
		return Ask
	}

	if mutates, ok := descriptor.Metadata["mutates"].(bool); ok {
		if mutates {
			return Deny
		}
		return Allow
	}

	if access, ok := descriptor.Metadata["access"].(string); ok {
		switch strings.ToLower(access) {
		case "write", "execute", "manage", "mutate":
			return Deny
		default:
			return Allow
		}
	}

	return Ask
}

// Register adds or replaces a mode. Registering under one of the three
// built-in names with builtIn=false marks it custom, overriding the
// default behavior.
func (e *Engine) Register(name string, builtIn bool, handler Handler) {
	e.modes.Put(name, mode{name: name, builtIn: builtIn, handler: handler})
}

// Evaluate runs the named mode's handler. An unregistered mode name always
// decides Ask, the conservative default.
func (e *Engine) Evaluate(modeName, toolName string, descriptor *tool.Descriptor, config map[string]any) Decision {
	m, ok := e.modes.Get(modeName)
	if !ok {
		return Ask
	}
	return m.handler(toolName, descriptor, config)
}

// ModeSnapshot is the serializable form of a registered mode.
type ModeSnapshot struct {
	Name    string `json:"name"`
	BuiltIn bool   `json:"built_in"`
}

// Snapshot emits {name, built_in} for every registered mode.
func (e *Engine) Snapshot() []ModeSnapshot {
	keys := e.modes.Keys()
	out := make([]ModeSnapshot, 0, len(keys))
	for _, k := range keys {
		m, _ := e.modes.Get(k)
		out = append(out, ModeSnapshot{Name: m.name, BuiltIn: m.builtIn})
	}
	return out
}

// Restore returns the snapshot's custom mode names that the engine does not
// know, without registering anything and without aborting; Evaluate on such
// a name decides Ask. Built-in names present in the snapshot are left
// untouched: the live built-in handler always wins over a serialized entry.
func (e *Engine) Restore(snapshot []ModeSnapshot) (missing []string) {
	for _, s := range snapshot {
		if _, ok := e.modes.Get(s.Name); ok {
			continue
		}
		if s.BuiltIn {
			continue
		}
		missing = append(missing, s.Name)
	}
	return missing
}
