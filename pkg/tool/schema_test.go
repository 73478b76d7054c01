package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchArgs struct {
	Query string `json:"query" jsonschema:"required,description=search query"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=max results"`
}

func TestSchemaFromStructDerivesPropertiesAndRequired(t *testing.T) {
	schema, err := SchemaFromStruct[searchArgs]()
	require.NoError(t, err)

	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "query")
	assert.Contains(t, props, "limit")

	required, ok := schema["required"].([]any)
	require.True(t, ok)
	assert.Contains(t, required, "query")
	assert.NotContains(t, required, "limit")
}

func TestStructToolDerivesSchemaAndDecodesArgs(t *testing.T) {
	tool := &StructTool[searchArgs]{
		ToolName: "search",
		Desc:     "search for things",
		Attrs:    Attributes{ReadOnly: true},
		Run: func(ctx context.Context, args searchArgs, cancel <-chan struct{}) (Result, error) {
			return Result{Success: true, Value: args.Query}, nil
		},
	}

	schema := tool.InputSchema()
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "query")

	result, err := tool.Execute(context.Background(), map[string]any{"query": "hector", "limit": 5}, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hector", result.Value)
}

func TestRegistryWrapsStructTool(t *testing.T) {
	r := NewRegistry()
	tool := &StructTool[searchArgs]{
		ToolName: "search",
		Desc:     "search for things",
		Attrs:    Attributes{ReadOnly: true},
		Run: func(ctx context.Context, args searchArgs, cancel <-chan struct{}) (Result, error) {
			return Result{Success: true}, nil
		},
	}
	require.NoError(t, r.Register(tool))

	got, ok := r.Get("search")
	require.True(t, ok)
	assert.Equal(t, "read", got.Descriptor().Metadata["access"])
}
