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

// Package tool defines the tool abstraction agents invoke (C1): the Tool
// interface itself, its descriptor, and a registry of factories keyed by id.
package tool

import (
	"context"
	"strings"

	"github.com/agentcore/runtime/pkg/errs"
	"github.com/agentcore/runtime/pkg/registry"
)

// Source identifies where a tool came from, carried on its Descriptor.
type Source string

const (
	SourceBuiltin    Source = "builtin"
	SourceRegistered Source = "registered"
	SourceMCP        Source = "mcp"
)

// Attributes describes a tool's execution characteristics. The registry
// back-fills descriptor metadata from them (mutates = !ReadOnly), and the
// permission engine (pkg/permission) decides allow/deny/ask from that
// descriptor metadata.
type Attributes struct {
	ReadOnly          bool
	NoEffect          bool
	RequiresApproval  bool
	AllowParallel     bool
	PermissionCategory string
}

// Descriptor is the metadata a tool emits about itself, enriched by the
// registry before being handed to callers.
type Descriptor struct {
	Source     Source
	Name       string
	RegistryID string
	Config     map[string]any
	Metadata   map[string]any
}

// Result is the outcome of a tool execution.
type Result struct {
	Success bool
	Value   any
	Error   string
}

// Tool is the interface every callable capability implements.
type Tool interface {
	Name() string
	Description() string

	// InputSchema returns the JSON Schema object describing Execute's args.
	InputSchema() map[string]any

	Attributes() Attributes

	// Execute runs the tool. cancel is honoured: a cancelled context must
	// abort the call without partial side effects where avoidable.
	Execute(ctx context.Context, args map[string]any, cancel <-chan struct{}) (Result, error)

	// Descriptor emits this tool's self-described metadata. The registry
	// enriches a copy of it before returning to callers (see withDescriptor).
	Descriptor() Descriptor
}

// Factory constructs a fresh Tool instance, optionally parameterised by
// config (e.g. an MCP tool's connection options).
type Factory func(config map[string]any) (Tool, error)

// Registry stores tool factories keyed by id (case-insensitive) and caches
// instantiated singletons returned by Get.
type Registry struct {
	factories  *registry.BaseRegistry[Factory]
	singletons *registry.BaseRegistry[Tool]
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		factories:  registry.NewBaseRegistry[Factory](),
		singletons: registry.NewBaseRegistry[Tool](),
	}
}

func normalizeID(id string) string {
	return strings.ToLower(id)
}

// Register adds a singleton tool directly, bypassing factory construction.
// This is how a pre-built Tool value (e.g. a closure-based function tool)
// becomes available through Get/Create.
func (r *Registry) Register(t Tool) error {
	id := normalizeID(t.Name())
	wrapped := withDescriptor(t)
	r.singletons.Put(id, wrapped)
	r.factories.Put(id, func(map[string]any) (Tool, error) { return wrapped, nil })
	return nil
}

// RegisterFactory adds a tool factory under id (case-insensitive).
func (r *Registry) RegisterFactory(id string, factory Factory) error {
	return r.factories.Register(normalizeID(id), factory)
}

// Create instantiates a fresh tool from the factory registered under id,
// applying config. Fails with errs.ToolNotFound if id is unregistered.
func (r *Registry) Create(id string, config map[string]any) (Tool, error) {
	factory, ok := r.factories.Get(normalizeID(id))
	if !ok {
		return nil, errs.ToolNotFound(id)
	}
	t, err := factory(config)
	if err != nil {
		return nil, errs.ToolExecutionFailed(id, "", err)
	}
	return withDescriptor(t), nil
}

// Get returns the cached singleton instance registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	return r.singletons.Get(normalizeID(name))
}

// List returns every cached singleton tool.
func (r *Registry) List() []Tool {
	return r.singletons.List()
}

// descriptorTool wraps a Tool so Descriptor() always returns the
// back-filled metadata, without mutating the wrapped tool's own state.
// Wrapping is idempotent: wrapping an already-wrapped tool is a no-op.
type descriptorTool struct {
	Tool
	descriptor Descriptor
}

func (d *descriptorTool) Descriptor() Descriptor {
	return d.descriptor
}

func withDescriptor(t Tool) Tool {
	if already, ok := t.(*descriptorTool); ok {
		return already
	}

	d := t.Descriptor()
	if d.Name == "" {
		d.Name = t.Name()
	}
	if d.Metadata == nil {
		d.Metadata = make(map[string]any)
	}

	attrs := t.Attributes()
	if _, set := d.Metadata["mutates"]; !set {
		d.Metadata["mutates"] = !attrs.ReadOnly
	}
	if _, set := d.Metadata["access"]; !set {
		d.Metadata["access"] = accessLevel(d.Name)
	}

	return &descriptorTool{Tool: t, descriptor: d}
}

func accessLevel(name string) string {
	switch {
	case strings.HasPrefix(name, "bash_"):
		return "execute"
	default:
		return "read"
	}
}

// Toolset groups related tools and resolves them dynamically for a given
// turn, enabling lazy loading (e.g. an MCP server's tool list).
type Toolset interface {
	Name() string
	Tools(ctx context.Context) ([]Tool, error)
}

// Predicate decides whether a tool should be exposed to the model for the
// current turn.
type Predicate func(t Tool) bool

// AllowAll returns a Predicate that allows every tool.
func AllowAll() Predicate { return func(Tool) bool { return true } }

// DenyAll returns a Predicate that allows no tool.
func DenyAll() Predicate { return func(Tool) bool { return false } }

// StringPredicate allows only the named tools.
func StringPredicate(allowed []string) Predicate {
	set := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		set[strings.ToLower(name)] = true
	}
	return func(t Tool) bool { return set[strings.ToLower(t.Name())] }
}

// Combine ANDs predicates together.
func Combine(predicates ...Predicate) Predicate {
	return func(t Tool) bool {
		for _, p := range predicates {
			if !p(t) {
				return false
			}
		}
		return true
	}
}

// Or ORs predicates together.
func Or(predicates ...Predicate) Predicate {
	return func(t Tool) bool {
		for _, p := range predicates {
			if p(t) {
				return true
			}
		}
		return false
	}
}

// Not negates a predicate.
func Not(p Predicate) Predicate {
	return func(t Tool) bool { return !p(t) }
}
