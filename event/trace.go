package event

import "fmt"

// Trace is a finite ordered sequence of events for a single run
// (spec.md §3.2).
type Trace []Event

// ValidateTrace checks the invariants of spec.md §3.2: seq values form a
// strictly increasing sequence starting at 1, the first event is
// run_started, and the last is run_finished. It does not check the
// tool_called/tool_returned pairing invariant, which requires call-id
// tracking (an aborted run legitimately leaves a call unmatched); no other
// package in this module checks that pairing either.
func ValidateTrace(t Trace) error {
	if len(t) == 0 {
		return fmt.Errorf("%w: trace is empty", ErrInvalidShape)
	}
	if t[0].EventType != TypeRunStarted {
		return fmt.Errorf("%w: first event must be run_started, got %s", ErrInvalidShape, t[0].EventType)
	}
	if last := t[len(t)-1]; last.EventType != TypeRunFinished {
		return fmt.Errorf("%w: last event must be run_finished, got %s", ErrInvalidShape, last.EventType)
	}
	expected := 1
	for _, e := range t {
		if e.Seq != expected {
			return fmt.Errorf("%w: expected seq %d, got %d", ErrInvalidShape, expected, e.Seq)
		}
		expected++
	}
	return nil
}

// ByEventType filters the trace to the events of the given type, preserving
// order.
func (t Trace) ByEventType(typ Type) Trace {
	var out Trace
	for _, e := range t {
		if e.EventType == typ {
			out = append(out, e)
		}
	}
	return out
}

// Finished reports whether the trace's last event is run_finished.
func (t Trace) Finished() bool {
	return len(t) > 0 && t[len(t)-1].EventType == TypeRunFinished
}
