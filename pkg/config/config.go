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

// Package config declares the recognized configuration surface (§6):
// AgentConfig, PoolConfig, SkillsConfig, and MCPConfig, plus the YAML
// loading pipeline (env-var expansion, mapstructure decode, defaults)
// grounded on the teacher's pkg/config/loader.go.
package config

import "fmt"

// HookConfig names a hook registration to attach to an agent, by type and
// an opaque, hook-specific options blob.
type HookConfig struct {
	Type    string         `yaml:"type" json:"type"`
	Options map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
}

// CheckpointConfig selects and configures a checkpoint backend.
type CheckpointConfig struct {
	// Backend is one of "memory", "file", "remote". Default: "memory".
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"`

	// Dir is the root directory for the "file" backend.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty"`

	// Endpoint addresses the remote KV store for the "remote" backend.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
}

// SetDefaults applies CheckpointConfig defaults.
func (c *CheckpointConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
}

// Validate checks CheckpointConfig.
func (c *CheckpointConfig) Validate() error {
	switch c.Backend {
	case "", "memory", "file", "remote":
	default:
		return fmt.Errorf("invalid checkpoint backend %q (valid: memory, file, remote)", c.Backend)
	}
	if c.Backend == "file" && c.Dir == "" {
		return fmt.Errorf("checkpoint backend \"file\" requires dir")
	}
	if c.Backend == "remote" && c.Endpoint == "" {
		return fmt.Errorf("checkpoint backend \"remote\" requires endpoint")
	}
	return nil
}

// StoreConfig points at an external Store collaborator (§6) used by a
// component other than the checkpointer — e.g. a durable task store.
type StoreConfig struct {
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"`
	Dir     string `yaml:"dir,omitempty" json:"dir,omitempty"`
}

// AgentConfig is the recognized Agent configuration surface: §6 lists
// exactly {max_iterations, permission_mode, hooks[], tools[],
// skills_config?, checkpointer?, store?}.
type AgentConfig struct {
	MaxIterations  int          `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
	PermissionMode string       `yaml:"permission_mode,omitempty" json:"permission_mode,omitempty"`
	Hooks          []HookConfig `yaml:"hooks,omitempty" json:"hooks,omitempty"`
	Tools          []string     `yaml:"tools,omitempty" json:"tools,omitempty"`

	SkillsConfig *SkillsConfig     `yaml:"skills_config,omitempty" json:"skills_config,omitempty"`
	Checkpointer *CheckpointConfig `yaml:"checkpointer,omitempty" json:"checkpointer,omitempty"`
	Store        *StoreConfig      `yaml:"store,omitempty" json:"store,omitempty"`
}

// SetDefaults applies AgentConfig defaults.
func (c *AgentConfig) SetDefaults() {
	if c.MaxIterations == 0 {
		c.MaxIterations = 50
	}
	if c.PermissionMode == "" {
		c.PermissionMode = "auto"
	}
	if c.SkillsConfig != nil {
		c.SkillsConfig.SetDefaults()
	}
	if c.Checkpointer != nil {
		c.Checkpointer.SetDefaults()
	}
}

// Validate checks AgentConfig.
func (c *AgentConfig) Validate() error {
	if c.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must be >= 0, got %d", c.MaxIterations)
	}
	if c.SkillsConfig != nil {
		if err := c.SkillsConfig.Validate(); err != nil {
			return fmt.Errorf("skills_config: %w", err)
		}
	}
	if c.Checkpointer != nil {
		if err := c.Checkpointer.Validate(); err != nil {
			return fmt.Errorf("checkpointer: %w", err)
		}
	}
	return nil
}

// PoolConfig is the recognized Pool configuration surface: §6 lists
// exactly {dependencies, max_agents (default 50)}.
type PoolConfig struct {
	// Dependencies names other agent ids this pool's agents may reference.
	// It is decoded and carried as configuration only: nothing in the
	// runtime reads it or enforces it as an allowlist.
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`

	MaxAgents int `yaml:"max_agents,omitempty" json:"max_agents,omitempty"`
}

// SetDefaults applies PoolConfig defaults.
func (c *PoolConfig) SetDefaults() {
	if c.MaxAgents == 0 {
		c.MaxAgents = 50
	}
}

// Validate checks PoolConfig.
func (c *PoolConfig) Validate() error {
	if c.MaxAgents < 0 {
		return fmt.Errorf("max_agents must be >= 0, got %d", c.MaxAgents)
	}
	return nil
}

// SkillsConfig is the recognized Skills configuration surface: §6 lists
// exactly {paths[], include?, exclude?, trusted?, validate_on_load
// (default true)}.
type SkillsConfig struct {
	Paths   []string `yaml:"paths,omitempty" json:"paths,omitempty"`
	Include []string `yaml:"include,omitempty" json:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`

	// Trusted lists skill paths marked as trusted. It is decoded only:
	// pkg/skills does not read it and asks no confirmation before exposing
	// a skill's allowed_tools.
	Trusted []string `yaml:"trusted,omitempty" json:"trusted,omitempty"`

	// ValidateOnLoad is the validate_on_load flag. Default: true. It is
	// decoded only: pkg/skills does no frontmatter schema validation based
	// on it.
	ValidateOnLoad *bool `yaml:"validate_on_load,omitempty" json:"validate_on_load,omitempty"`
}

// SetDefaults applies SkillsConfig defaults.
func (c *SkillsConfig) SetDefaults() {
	if c.ValidateOnLoad == nil {
		validate := true
		c.ValidateOnLoad = &validate
	}
}

// Validate checks SkillsConfig.
func (c *SkillsConfig) Validate() error {
	if len(c.Paths) == 0 {
		return fmt.Errorf("skills_config requires at least one path")
	}
	return nil
}

// ValidatesOnLoad reports the effective validate_on_load value.
func (c *SkillsConfig) ValidatesOnLoad() bool {
	return c.ValidateOnLoad == nil || *c.ValidateOnLoad
}

// MCPTransport enumerates the MCP transports recognized by §6.
type MCPTransport string

const (
	MCPTransportStdio          MCPTransport = "Stdio"
	MCPTransportHTTP           MCPTransport = "Http"
	MCPTransportStreamableHTTP MCPTransport = "StreamableHttp"
	MCPTransportSSE            MCPTransport = "Sse"
)

// MCPConfig configures a dynamic MCP tool source: §6 lists exactly
// {transport, command?, args?, environment?, url?, headers?, server_name?,
// include?, exclude?}.
type MCPConfig struct {
	Transport MCPTransport `yaml:"transport" json:"transport"`

	// Stdio transport fields.
	Command     string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args        []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty" json:"environment,omitempty"`

	// HTTP-family transport fields.
	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	ServerName string   `yaml:"server_name,omitempty" json:"server_name,omitempty"`
	Include    []string `yaml:"include,omitempty" json:"include,omitempty"`
	Exclude    []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
}

// SetDefaults applies MCPConfig defaults.
func (c *MCPConfig) SetDefaults() {
	if c.Transport == "" {
		if c.URL != "" {
			c.Transport = MCPTransportSSE
		} else {
			c.Transport = MCPTransportStdio
		}
	}
}

// Validate checks MCPConfig.
func (c *MCPConfig) Validate() error {
	switch c.Transport {
	case MCPTransportStdio:
		if c.Command == "" {
			return fmt.Errorf("mcp transport %q requires command", c.Transport)
		}
	case MCPTransportHTTP, MCPTransportStreamableHTTP, MCPTransportSSE:
		if c.URL == "" {
			return fmt.Errorf("mcp transport %q requires url", c.Transport)
		}
	default:
		return fmt.Errorf("invalid mcp transport %q (valid: Stdio, Http, StreamableHttp, Sse)", c.Transport)
	}
	return nil
}

// RuntimeConfig is the top-level document a caller loads: one or more
// named agents, the pool they share, and the logger for the process.
type RuntimeConfig struct {
	Agents map[string]*AgentConfig `yaml:"agents,omitempty" json:"agents,omitempty"`
	Pool   *PoolConfig             `yaml:"pool,omitempty" json:"pool,omitempty"`
	Logger *LoggerConfig           `yaml:"logger,omitempty" json:"logger,omitempty"`
}

// SetDefaults applies defaults to the whole document.
func (c *RuntimeConfig) SetDefaults() {
	for _, a := range c.Agents {
		a.SetDefaults()
	}
	if c.Pool != nil {
		c.Pool.SetDefaults()
	}
	if c.Logger != nil {
		c.Logger.SetDefaults()
	}
}

// Validate checks the whole document.
func (c *RuntimeConfig) Validate() error {
	for name, a := range c.Agents {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("agent %q: %w", name, err)
		}
	}
	if c.Pool != nil {
		if err := c.Pool.Validate(); err != nil {
			return fmt.Errorf("pool: %w", err)
		}
	}
	if c.Logger != nil {
		if err := c.Logger.Validate(); err != nil {
			return fmt.Errorf("logger: %w", err)
		}
	}
	return nil
}
