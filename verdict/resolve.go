// Package verdict implements the verdict & witness resolver (spec.md §4.7):
// a pure, side-effect-free reduction of the violation union to a single
// deterministic PASS/FAIL verdict.
package verdict

import (
	"sort"

	"github.com/trajectly/trt/violation"
)

// Status is the top-level pipeline outcome (spec.md §3.6).
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// Verdict is the pipeline's final, persisted output (spec.md §3.6).
type Verdict struct {
	Status             Status
	WitnessIndex       int // 0 when Status == PASS
	PrimaryViolation   *violation.Violation
	ViolationsAtWitness []violation.Violation
	AllViolations      []violation.Violation
}

// Resolve computes the verdict from the union of contract and refinement
// violations (spec.md §4.7). The input order is preserved as the emission
// order used by the final, defensive tie-break; callers should pass
// contractViolations followed by refinementViolations, or any fixed,
// reproducible order, since Resolve never reorders equally-ranked
// violations beyond the documented tie-break.
func Resolve(all []violation.Violation) Verdict {
	if len(all) == 0 {
		return Verdict{Status: StatusPass, AllViolations: []violation.Violation{}}
	}

	witness := all[0].EventIndex
	for _, v := range all[1:] {
		if v.EventIndex < witness {
			witness = v.EventIndex
		}
	}

	var atWitness []violation.Violation
	for _, v := range all {
		if v.EventIndex == witness {
			atWitness = append(atWitness, v)
		}
	}

	primary := selectPrimary(atWitness)

	return Verdict{
		Status:              StatusFail,
		WitnessIndex:        witness,
		PrimaryViolation:    &primary,
		ViolationsAtWitness: atWitness,
		AllViolations:       all,
	}
}

// selectPrimary applies the three-step tie-break (spec.md §4.7 "Primary
// selection"): class precedence, then lexicographic code order, then
// original emission order.
func selectPrimary(atWitness []violation.Violation) violation.Violation {
	sorted := make([]violation.Violation, len(atWitness))
	copy(sorted, atWitness)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.FailureClass.Rank() != b.FailureClass.Rank() {
			return a.FailureClass.Rank() < b.FailureClass.Rank()
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.EmissionOrder() < b.EmissionOrder()
	})
	return sorted[0]
}
