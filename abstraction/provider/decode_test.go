package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Generic(t *testing.T) {
	n, err := Decode("mock", json.RawMessage(`{"text":"hi","tool_calls":[{"id":"1","name":"fetch","input":{"a":1}}]}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", n.Text)
	require.Len(t, n.ToolCalls, 1)
	assert.Equal(t, "fetch", n.ToolCalls[0].Name)
}

func TestDecode_Bedrock(t *testing.T) {
	raw := json.RawMessage(`{"role":"assistant","content":[{"text":"hello"},{"tool_use":{"tool_use_id":"t1","name":"lookup","input":{"q":"x"}}}]}`)
	n, err := Decode("bedrock", raw)
	require.NoError(t, err)
	assert.Equal(t, "hello", n.Text)
	require.Len(t, n.ToolCalls, 1)
	assert.Equal(t, "lookup", n.ToolCalls[0].Name)
	assert.Equal(t, "t1", n.ToolCalls[0].ID)
}

func TestDecode_UnknownProviderFallsBackToGeneric(t *testing.T) {
	n, err := Decode("some-other-provider", json.RawMessage(`{"text":"ok"}`))
	require.NoError(t, err)
	assert.Equal(t, "ok", n.Text)
}
