// Package counterexample implements the counterexample prefix and shrinker
// (spec.md §4.8): persisting the minimal evidence needed to re-derive a FAIL
// verdict offline.
package counterexample

import "github.com/trajectly/trt/event"

// Prefix returns the candidate events [seq=1 .. witnessEventSeq], sufficient
// combined with the fixture bundle and the spec to re-derive the same
// verdict offline (spec.md §4.8 "Counterexample prefix").
func Prefix(candidate []event.Event, witnessEventSeq int) []event.Event {
	out := make([]event.Event, 0, len(candidate))
	for _, e := range candidate {
		if e.Seq > witnessEventSeq {
			break
		}
		out = append(out, e)
	}
	return out
}
