package refinement

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trajectly/trt/policy"
	"github.com/trajectly/trt/verdict"
	"github.com/trajectly/trt/violation"
)

func seqsFor(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// TestCheck_S3ExtraAllowedTool mirrors spec.md §8 scenario S3.
func TestCheck_S3ExtraAllowedTool(t *testing.T) {
	baseline := []string{"fetch_ticket", "store_triage"}
	candidate := []string{"fetch_ticket", "log_event", "store_triage"}
	r := policy.Refinement{AllowExtraTools: []string{"log_event"}, AllowNewToolNames: false}
	report := Check(policy.RefinementSkeleton, baseline, candidate, seqsFor(len(candidate)), 99, r)
	assert.Empty(t, report.Violations)
}

// TestCheck_S4ExtraDisallowedTool mirrors spec.md §8 scenario S4. It resolves
// the real verdict from the checker's report rather than re-implementing
// primary selection, so it exercises the actual class/code tie-break in
// verdict.Resolve.
func TestCheck_S4ExtraDisallowedTool(t *testing.T) {
	baseline := []string{"fetch_ticket", "store_triage"}
	candidate := []string{"fetch_ticket", "log_event", "store_triage"}
	r := policy.Refinement{AllowNewToolNames: false}
	report := Check(policy.RefinementSkeleton, baseline, candidate, seqsFor(len(candidate)), 99, r)
	require.NotEmpty(t, report.Violations)

	v := verdict.Resolve(report.Violations)
	require.Equal(t, verdict.StatusFail, v.Status)
	require.NotNil(t, v.PrimaryViolation)
	assert.Equal(t, 2, v.PrimaryViolation.EventIndex)
	assert.Equal(t, violation.CodeRefinementNewToolNameForbidden, v.PrimaryViolation.Code)
}

func TestCheck_VacuousWhenBaselineEmpty(t *testing.T) {
	report := Check(policy.RefinementSkeleton, nil, []string{"a", "b"}, seqsFor(2), 99, policy.Refinement{AllowNewToolNames: true})
	assert.True(t, report.Vacuous)
	assert.Empty(t, report.Violations)
}

func TestCheck_MissingBaselineCallAnchoredAtRunFinished(t *testing.T) {
	baseline := []string{"fetch_ticket", "store_triage"}
	candidate := []string{"fetch_ticket", "unsafe_export"}
	r := policy.Refinement{AllowNewToolNames: false}
	report := Check(policy.RefinementSkeleton, baseline, candidate, seqsFor(len(candidate)), 99, r)

	found := false
	for _, v := range report.Violations {
		if v.Code == violation.CodeRefinementBaselineCallMissing {
			found = true
			assert.Equal(t, 99, v.EventIndex)
		}
	}
	assert.True(t, found)
}

func TestCheck_StrictModeFlagsAnyExtraEvenIfAllowed(t *testing.T) {
	baseline := []string{"a"}
	candidate := []string{"a", "b"}
	r := policy.Refinement{AllowExtraTools: []string{"b"}, AllowNewToolNames: true}
	report := Check(policy.RefinementStrict, baseline, candidate, seqsFor(len(candidate)), 99, r)
	require.NotEmpty(t, report.Violations)
	assert.Equal(t, violation.CodeRefinementExtraToolCall, report.Violations[0].Code)
}

func TestCheck_NoneModeDisabled(t *testing.T) {
	report := Check(policy.RefinementNone, []string{"a"}, []string{"b"}, seqsFor(1), 99, policy.Refinement{})
	assert.Empty(t, report.Violations)
}

// TestSubsequenceLaw is the gopter property for spec.md §8 property 5: for
// every PASS case (non-vacuous baseline, no violations), the embedding is a
// valid strictly increasing subsequence witness.
func TestSubsequenceLaw(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	names := gen.OneConstOf("a", "b", "c")

	properties.Property("greedy embedding is strictly increasing and name-matching", prop.ForAll(
		func(baseline, extra []string) bool {
			if len(baseline) == 0 {
				return true
			}
			candidate := interleave(baseline, extra)
			embedding := greedyEmbed(baseline, candidate)
			last := -1
			for i, pos := range embedding {
				if pos == -1 {
					continue
				}
				if pos <= last {
					return false
				}
				if candidate[pos] != baseline[i] {
					return false
				}
				last = pos
			}
			return true
		},
		gen.SliceOf(names), gen.SliceOf(names),
	))
	properties.TestingRun(t)
}

// interleave builds a candidate containing baseline as a genuine subsequence
// (plus extras scattered around it), so the property exercises the
// embedding on traces guaranteed to admit at least one valid match.
func interleave(baseline, extra []string) []string {
	out := make([]string, 0, len(baseline)+len(extra))
	ei := 0
	for _, b := range baseline {
		for ei < len(extra) && len(out)%2 == 0 {
			out = append(out, extra[ei])
			ei++
			break
		}
		out = append(out, b)
	}
	for ; ei < len(extra); ei++ {
		out = append(out, extra[ei])
	}
	return out
}
