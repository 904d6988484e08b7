package verdict

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trajectly/trt/violation"
)

func TestResolve_EmptyIsPass(t *testing.T) {
	v := Resolve(nil)
	assert.Equal(t, StatusPass, v.Status)
	assert.Nil(t, v.PrimaryViolation)
}

func TestResolve_WitnessIsMinimumEventIndex(t *testing.T) {
	all := []violation.Violation{
		violation.New("CONTRACT_TOOL_DENIED", violation.ClassContract, 5, "m", 0),
		violation.New("CONTRACT_NETWORK_DENIED", violation.ClassContract, 2, "m", 1),
	}
	v := Resolve(all)
	assert.Equal(t, 2, v.WitnessIndex)
	require.NotNil(t, v.PrimaryViolation)
	assert.Equal(t, "CONTRACT_NETWORK_DENIED", v.PrimaryViolation.Code)
}

// TestResolve_S1ClassPrecedence mirrors spec.md §8 scenario S1's primary
// selection: REFINEMENT beats CONTRACT at a tied witness.
func TestResolve_S1ClassPrecedence(t *testing.T) {
	all := []violation.Violation{
		violation.New(violation.CodeContractToolDenied, violation.ClassContract, 3, "m", 0),
		violation.New(violation.CodeRefinementNewToolNameForbidden, violation.ClassRefinement, 3, "m", 1),
		violation.New(violation.CodeRefinementBaselineCallMissing, violation.ClassRefinement, 99, "m", 2),
	}
	v := Resolve(all)
	assert.Equal(t, 3, v.WitnessIndex)
	require.NotNil(t, v.PrimaryViolation)
	assert.Equal(t, violation.CodeRefinementNewToolNameForbidden, v.PrimaryViolation.Code)
}

func TestResolve_LexicographicCodeTieBreak(t *testing.T) {
	all := []violation.Violation{
		violation.New("CONTRACT_Z", violation.ClassContract, 1, "m", 0),
		violation.New("CONTRACT_A", violation.ClassContract, 1, "m", 1),
	}
	v := Resolve(all)
	assert.Equal(t, "CONTRACT_A", v.PrimaryViolation.Code)
}

// TestWitnessMinimality is the gopter property for spec.md §8 property 3:
// if FAIL, no violation has event_index < witness_index.
func TestWitnessMinimality(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("witness index is the minimum across all violations", prop.ForAll(
		func(indices []int) bool {
			if len(indices) == 0 {
				return true
			}
			var all []violation.Violation
			for i, idx := range indices {
				all = append(all, violation.New("CODE", violation.ClassContract, idx, "m", i))
			}
			v := Resolve(all)
			for _, viol := range v.AllViolations {
				if viol.EventIndex < v.WitnessIndex {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(1, 1000)),
	))
	properties.TestingRun(t)
}
