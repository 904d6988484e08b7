package contract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trajectly/trt/event"
	"github.com/trajectly/trt/policy"
	"github.com/trajectly/trt/violation"
)

func ev(t *testing.T, typ event.Type, seq int, payload map[string]any) event.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	e, err := event.Parse(event.Envelope{EventType: string(typ), Seq: seq, RunID: "r1", Payload: raw})
	require.NoError(t, err)
	return e
}

func codes(viols []violation.Violation) []string {
	out := make([]string, len(viols))
	for i, v := range viols {
		out[i] = v.Code
	}
	return out
}

// TestEvaluate_S1ToolDeny mirrors spec.md §8 scenario S1's contract half: the
// tool policy family emits CONTRACT_TOOL_DENIED at the denied call.
func TestEvaluate_S1ToolDeny(t *testing.T) {
	spec := policy.Default("s1", []string{"agent"})
	spec.Contracts.Tools.Allow = []string{"fetch_ticket", "store_triage"}
	spec.Contracts.Tools.Deny = []string{"unsafe_export"}

	trace := []event.Event{
		ev(t, event.TypeRunStarted, 1, map[string]any{"spec_name": "s1"}),
		ev(t, event.TypeToolCalled, 2, map[string]any{"tool_name": "fetch_ticket", "input": map[string]any{}}),
		ev(t, event.TypeToolCalled, 3, map[string]any{"tool_name": "unsafe_export", "input": map[string]any{}}),
		ev(t, event.TypeRunFinished, 4, map[string]any{"status": "ok"}),
	}
	viols := Evaluate(spec, trace)
	require.Contains(t, codes(viols), violation.CodeContractToolDenied)
	for _, v := range viols {
		if v.Code == violation.CodeContractToolDenied {
			assert.Equal(t, 3, v.EventIndex)
		}
	}
}

// TestEvaluate_S2RequireBefore mirrors spec.md §8 scenario S2.
func TestEvaluate_S2RequireBefore(t *testing.T) {
	spec := policy.Default("s2", []string{"agent"})
	spec.Contracts.Sequence.RequireBefore = []policy.RequireBefore{{Before: "lint_code", After: "post_review"}}

	trace := []event.Event{
		ev(t, event.TypeRunStarted, 1, map[string]any{"spec_name": "s2"}),
		ev(t, event.TypeToolCalled, 2, map[string]any{"tool_name": "fetch_pr", "input": map[string]any{}}),
		ev(t, event.TypeToolCalled, 3, map[string]any{"tool_name": "post_review", "input": map[string]any{}}),
		ev(t, event.TypeRunFinished, 4, map[string]any{"status": "ok"}),
	}
	viols := Evaluate(spec, trace)
	require.Len(t, viols, 1)
	assert.Equal(t, violation.CodeSequenceRequireBefore, viols[0].Code)
	assert.Equal(t, 3, viols[0].EventIndex)
}

func TestEvaluate_MaxCallsTotalExceeded(t *testing.T) {
	spec := policy.Default("s", []string{"agent"})
	spec.Contracts.Tools.MaxCallsTotal = 1

	trace := []event.Event{
		ev(t, event.TypeToolCalled, 1, map[string]any{"tool_name": "a", "input": map[string]any{}}),
		ev(t, event.TypeToolCalled, 2, map[string]any{"tool_name": "b", "input": map[string]any{}}),
	}
	viols := Evaluate(spec, trace)
	require.Len(t, viols, 1)
	assert.Equal(t, violation.CodeContractMaxCallsTotalExceeded, viols[0].Code)
	assert.Equal(t, 2, viols[0].EventIndex)
}

func TestEvaluate_DataLeakPII(t *testing.T) {
	spec := policy.Default("s", []string{"agent"})
	spec.Contracts.DataLeak.DenyPIIOutbound = true

	trace := []event.Event{
		ev(t, event.TypeToolCalled, 1, map[string]any{"tool_name": "notify", "input": map[string]any{"to": "bob@example.com"}}),
	}
	viols := Evaluate(spec, trace)
	require.Len(t, viols, 1)
	assert.Equal(t, violation.CodeContractDataLeakPII, viols[0].Code)
}

func TestEvaluate_ArgsRequiredMissing(t *testing.T) {
	spec := policy.Default("s", []string{"agent"})
	spec.Contracts.Args = []policy.ArgSchema{{ToolName: "book", Fields: []policy.ArgField{{Name: "id", Required: true}}}}

	trace := []event.Event{
		ev(t, event.TypeToolCalled, 1, map[string]any{"tool_name": "book", "input": map[string]any{}}),
	}
	viols := Evaluate(spec, trace)
	require.Len(t, viols, 1)
	assert.Equal(t, violation.CodeContractArgRequiredMissing, viols[0].Code)
}
