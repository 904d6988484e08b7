// Package refinement implements the refinement checker (spec.md §4.6):
// deciding S_b ⊑ S_n between a baseline and candidate skeleton under a
// configured mode, via the canonical leftmost-greedy embedding.
package refinement

import (
	"github.com/trajectly/trt/policy"
	"github.com/trajectly/trt/violation"
)

// Report is the checker's output: the violations it found plus bookkeeping
// needed by the verdict resolver and by tests asserting the vacuity/embedding
// invariants (spec.md §8 properties 4–5).
type Report struct {
	Violations []violation.Violation
	// Vacuous is true when the baseline skeleton is empty (spec.md §4.6
	// "Vacuity"): refinement is then trivially satisfied.
	Vacuous bool
	// Embedding maps each baseline index to the candidate index it matched,
	// in baseline order; len(Embedding) == len(baseline), with -1 for a
	// baseline element that has no match. Populated by Check and by
	// CheckDebug (left nil for mode none and for a vacuous baseline).
	Embedding []int
}

// Check decides S_b ⊑ S_n per spec.md §4.6 and returns the violations (if
// any), anchored using candidateSeqs[i] as the event index for S_n position
// i (and runFinishedIdx when a violation has no corresponding candidate
// position, e.g. a trailing missing baseline call).
func Check(mode policy.RefinementMode, baseline, candidate []string, candidateSeqs []int, runFinishedIdx int, r policy.Refinement) Report {
	if mode == policy.RefinementNone {
		return Report{}
	}
	if len(baseline) == 0 {
		return Report{Vacuous: true}
	}

	embedding := greedyEmbed(baseline, candidate)

	extra := toSet(r.AllowExtraTools)
	extraSideEffect := toSet(r.AllowExtraSideEffectTools)
	baselineNames := toSet(baseline)

	matchedCandidatePos := make(map[int]struct{}, len(embedding))
	for _, pos := range embedding {
		if pos >= 0 {
			matchedCandidatePos[pos] = struct{}{}
		}
	}

	var out []violation.Violation
	emit := func(code string, idx int, msg string) {
		out = append(out, violation.New(code, violation.ClassRefinement, idx, msg, len(out)))
	}

	// Missing baseline calls: any embedding[i] == -1. The greedy scan that
	// fails to place baseline[i] has, by construction, already scanned
	// every remaining candidate position looking for it (a match at any
	// later position would have been taken), so the position it "would
	// have needed" never exists within S_n — the anchor is run_finished
	// (spec.md §4.6 "Violation anchoring"; resolved per §9's open question
	// using the S1 worked example, which anchors the missing store_triage
	// call at run_finished rather than at a later, unrelated candidate
	// event).
	for i, pos := range embedding {
		if pos != -1 {
			continue
		}
		emit(violation.CodeRefinementBaselineCallMissing, runFinishedIdx, "baseline call \""+baseline[i]+"\" has no match in candidate")
	}

	// Extra calls and new-name checks over every unmatched candidate position.
	// A name that is both unexpected and new/forbidden emits only
	// CodeRefinementNewToolNameForbidden: that code subsumes "extra" for a
	// name never seen in baseline, and emitting both would give the verdict
	// resolver two contradictory codes anchored at the same event index.
	for pos, name := range candidate {
		if _, matched := matchedCandidatePos[pos]; matched {
			continue
		}
		allowed := false
		if _, ok := extra[name]; ok {
			allowed = true
		}
		if _, ok := extraSideEffect[name]; ok {
			allowed = true
		}
		if mode == policy.RefinementStrict {
			allowed = false
		}

		isNew := false
		if !r.AllowNewToolNames {
			if _, known := baselineNames[name]; !known {
				if _, ok := extra[name]; !ok {
					if _, ok := extraSideEffect[name]; !ok {
						isNew = true
					}
				}
			}
		}

		switch {
		case isNew:
			emit(violation.CodeRefinementNewToolNameForbidden, candidateSeqs[pos], "tool name \""+name+"\" is not in baseline or allow_extra_tools")
		case !allowed:
			emit(violation.CodeRefinementExtraToolCall, candidateSeqs[pos], "unexpected extra call \""+name+"\"")
		}
	}

	return Report{Violations: out, Embedding: embedding}
}

// greedyEmbed computes the leftmost greedy embedding of baseline into
// candidate (spec.md §4.6 "Embedding choice"): each baseline element is
// matched against the earliest still-available candidate position. Returns
// embedding (baseline index → candidate index, or -1 if unmatched).
func greedyEmbed(baseline, candidate []string) []int {
	embedding := make([]int, len(baseline))
	cursor := 0
	for i, name := range baseline {
		embedding[i] = -1
		start := cursor
		for cursor < len(candidate) {
			if candidate[cursor] == name {
				embedding[i] = cursor
				cursor++
				break
			}
			cursor++
		}
		if embedding[i] == -1 {
			// baseline[i] was never found; leave the cursor where the search
			// started so later baseline names can still match candidate
			// positions beyond this hole (spec.md §4.6 leftmost-greedy
			// embedding — a miss must not consume candidate positions).
			cursor = start
		}
	}
	return embedding
}

// CheckDebug is Check plus an explicit, minimal increasing embedding
// witness, exposed for spec.md §8 property 5 ("the checker must exhibit one
// on demand").
func CheckDebug(mode policy.RefinementMode, baseline, candidate []string, candidateSeqs []int, runFinishedIdx int, r policy.Refinement) (Report, []int) {
	report := Check(mode, baseline, candidate, candidateSeqs, runFinishedIdx, r)
	return report, report.Embedding
}

func toSet(list []string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, s := range list {
		out[s] = struct{}{}
	}
	return out
}
