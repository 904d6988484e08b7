package spectest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trajectly/trt/policy"
)

func TestLoadFile_DecodesNestedOptions(t *testing.T) {
	spec, err := LoadFile("testdata/refund_agent.yaml")
	require.NoError(t, err)

	assert.Equal(t, "refund-agent", spec.Name)
	assert.Equal(t, []string{"python3", "agent.py"}, spec.Command)
	assert.Equal(t, policy.FixtureByHash, spec.FixturePolicy)
	assert.Equal(t, policy.ReplayOffline, spec.Replay.Mode)
	assert.Equal(t, policy.RefinementSkeleton, spec.Refinement.Mode)
	assert.Equal(t, []string{"lookup_order"}, spec.Refinement.AllowExtraTools)

	assert.Equal(t, []string{"lookup_order", "issue_refund"}, spec.Contracts.Tools.Allow)
	assert.Equal(t, 1, spec.Contracts.Tools.MaxCallsPerTool["issue_refund"])
	require.Len(t, spec.Contracts.Sequence.RequireBefore, 1)
	assert.Equal(t, "lookup_order", spec.Contracts.Sequence.RequireBefore[0].Before)
	assert.Equal(t, "issue_refund", spec.Contracts.Sequence.RequireBefore[0].After)
	assert.Equal(t, policy.NetworkDeny, spec.Contracts.Network.Default)
	assert.True(t, spec.Contracts.DataLeak.DenyPIIOutbound)

	require.Len(t, spec.Contracts.Args, 1)
	assert.Equal(t, "issue_refund", spec.Contracts.Args[0].ToolName)
	require.Len(t, spec.Contracts.Args[0].Fields, 2)
	amount := spec.Contracts.Args[0].Fields[1]
	assert.Equal(t, "amount_cents", amount.Name)
	require.NotNil(t, amount.Min)
	assert.Equal(t, 1.0, *amount.Min)

	assert.Equal(t, int64(30000), spec.Budgets.MaxLatencyMS)
	require.Len(t, spec.Redact, 1)

	require.NoError(t, policy.Validate(spec))
}

func TestLoadBytes_MinimalSpecValidates(t *testing.T) {
	spec, err := LoadBytes([]byte(`
name: minimal
command: ["true"]
fixture_policy: by_hash
replay:
  mode: offline
  llm_match_mode: signature_match
  tool_match_mode: args_signature_match
refinement:
  mode: none
`))
	require.NoError(t, err)
	assert.NoError(t, policy.Validate(spec))
}

func TestLoadFile_MissingFileReturnsError(t *testing.T) {
	_, err := LoadFile("testdata/does_not_exist.yaml")
	require.Error(t, err)
}
