package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeStateWireForm(t *testing.T) {
	b, err := json.Marshal(StateWorking)
	require.NoError(t, err)
	assert.JSONEq(t, `"WORKING"`, string(b))
}

func TestRuntimeStateUnmarshalCompat(t *testing.T) {
	cases := []struct {
		in   string
		want RuntimeState
	}{
		{`"READY"`, StateReady},
		{`"working"`, StateWorking},
		{`"Paused"`, StatePaused},
		{`1`, StateWorking},
	}

	for _, tc := range cases {
		var s RuntimeState
		require.NoError(t, json.Unmarshal([]byte(tc.in), &s), tc.in)
		assert.Equal(t, tc.want, s, tc.in)
	}
}

func TestRuntimeStateUnmarshalUnknown(t *testing.T) {
	var s RuntimeState
	err := json.Unmarshal([]byte(`"BOGUS"`), &s)
	assert.Error(t, err)
}

func TestToolOutcomeToMessage(t *testing.T) {
	outcome := ToolOutcome{
		ID:      "t1",
		Name:    "write_file",
		IsError: true,
		Result:  ToolResult{Success: false, Error: "permission denied: write_file"},
	}

	msg := outcome.ToMessage()
	assert.Equal(t, RoleTool, msg.Role)
	assert.Equal(t, "t1", msg.ToolCallID)
	assert.True(t, msg.IsError)
	assert.Equal(t, "permission denied: write_file", msg.Text())
}
