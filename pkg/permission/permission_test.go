package permission

import (
	"testing"

	"github.com/agentcore/runtime/pkg/tool"
	"github.com/stretchr/testify/assert"
)

func TestAutoAlwaysAllows(t *testing.T) {
	e := NewEngine()
	assert.Equal(t, Allow, e.Evaluate("auto", "write_file", nil, nil))
}

func TestApprovalAlwaysAsks(t *testing.T) {
	e := NewEngine()
	assert.Equal(t, Ask, e.Evaluate("approval", "write_file", nil, nil))
}

func TestReadonlyByMutates(t *testing.T) {
	e := NewEngine()
	mutating := &tool.Descriptor{Metadata: map[string]any{"mutates": true}}
	readOnly := &tool.Descriptor{Metadata: map[string]any{"mutates": false}}

	assert.Equal(t, Deny, e.Evaluate("readonly", "write_file", mutating, nil))
	assert.Equal(t, Allow, e.Evaluate("readonly", "read_file", readOnly, nil))
}

func TestReadonlyByAccessFallback(t *testing.T) {
	e := NewEngine()
	write := &tool.Descriptor{Metadata: map[string]any{"access": "write"}}
	read := &tool.Descriptor{Metadata: map[string]any{"access": "read"}}

	assert.Equal(t, Deny, e.Evaluate("readonly", "write_file", write, nil))
	assert.Equal(t, Allow, e.Evaluate("readonly", "read_file", read, nil))
}

func TestReadonlyWithNoMetadataAsks(t *testing.T) {
	e := NewEngine()
	assert.Equal(t, Ask, e.Evaluate("readonly", "mystery_tool", &tool.Descriptor{}, nil))
	assert.Equal(t, Ask, e.Evaluate("readonly", "mystery_tool", nil, nil))
}

func TestUnregisteredModeAsks(t *testing.T) {
	e := NewEngine()
	assert.Equal(t, Ask, e.Evaluate("nonexistent", "t", nil, nil))
}

func TestCustomModeOverridesBuiltin(t *testing.T) {
	e := NewEngine()
	e.Register("auto", false, func(string, *tool.Descriptor, map[string]any) Decision {
		return Deny
	})
	assert.Equal(t, Deny, e.Evaluate("auto", "t", nil, nil))

	snap := e.Snapshot()
	var found bool
	for _, s := range snap {
		if s.Name == "auto" {
			found = true
			assert.False(t, s.BuiltIn)
		}
	}
	assert.True(t, found)
}

func TestRestoreSurfacesMissingCustomModes(t *testing.T) {
	e := NewEngine()
	missing := e.Restore([]ModeSnapshot{
		{Name: "auto", BuiltIn: true},
		{Name: "org-policy", BuiltIn: false},
	})
	assert.Equal(t, []string{"org-policy"}, missing)
}
