package counterexample

import (
	"context"
	"time"

	"github.com/trajectly/trt/event"
	"github.com/trajectly/trt/violation"
)

// Evaluator re-runs the pipeline (§4.1–§4.7) over a candidate reduced trace
// and reports whether it still fails, and with what (failure_class,
// primary_code). The shrinker treats this as an opaque, deterministic oracle
// (spec.md §4.8 "Safety": the reduced trace is re-validated through the full
// pipeline before acceptance).
type Evaluator func(trace []event.Event) (stillFails bool, class violation.Class, code string)

// Budget bounds a shrink run (spec.md §5 "Cancellation & timeouts", §4.8
// "Budget"), mirroring the wall-clock time-budget shape of
// runtime/agent/runtime/runtime.go's RunPolicy.TimeBudget.
type Budget struct {
	MaxSeconds    float64
	MaxIterations int
}

// Shrink runs a bounded ddmin-style delta-debugging procedure over trace,
// attempting to produce a smaller trace that still fails with the same
// (failureClass, primaryCode) (spec.md §4.8 "Shrinker"). Events at seq of
// run_started and run_finished are never dropped. If no reduction is
// accepted, the original trace is returned unchanged.
func Shrink(ctx context.Context, trace []event.Event, failureClass violation.Class, primaryCode string, eval Evaluator, budget Budget) []event.Event {
	deadline := time.Time{}
	if budget.MaxSeconds > 0 {
		deadline = timeNow().Add(time.Duration(budget.MaxSeconds * float64(time.Second)))
	}
	iterations := 0

	current := append([]event.Event(nil), trace...)

	withinBudget := func() bool {
		if ctx.Err() != nil {
			return false
		}
		if budget.MaxIterations > 0 && iterations >= budget.MaxIterations {
			return false
		}
		if !deadline.IsZero() && timeNow().After(deadline) {
			return false
		}
		return true
	}

	changed := true
	for changed && withinBudget() {
		changed = false
		reducible := reducibleRange(current)
		if reducible.end <= reducible.start {
			break
		}
		current, changed = ddminPass(current, reducible, failureClass, primaryCode, eval, &iterations, withinBudget)
	}
	return current
}

type span struct{ start, end int } // [start, end) indices into a trace, excluding run_started/run_finished

// reducibleRange returns the contiguous index range eligible for removal:
// everything strictly between the first run_started and the last
// run_finished (spec.md §4.8 "Candidate reduction set").
func reducibleRange(trace []event.Event) span {
	start, end := 0, len(trace)
	for i, e := range trace {
		if e.EventType == event.TypeRunStarted {
			start = i + 1
			break
		}
	}
	for i := len(trace) - 1; i >= 0; i-- {
		if trace[i].EventType == event.TypeRunFinished {
			end = i
			break
		}
	}
	return span{start: start, end: end}
}

// ddminPass attempts one round of binary halving over the reducible range,
// recursing into subdivisions on failure to accept either half (spec.md
// §4.8 "Binary/ddmin-style halving").
func ddminPass(trace []event.Event, r span, class violation.Class, code string, eval Evaluator, iterations *int, withinBudget func() bool) ([]event.Event, bool) {
	if r.end-r.start <= 0 {
		return trace, false
	}
	mid := r.start + (r.end-r.start)/2

	tryRemove := func(from, to int) ([]event.Event, bool) {
		if to <= from {
			// An empty range removes nothing and is not a reduction.
			return nil, false
		}
		if !withinBudget() {
			return nil, false
		}
		*iterations++
		candidate := removeRange(trace, from, to)
		stillFails, gotClass, gotCode := eval(candidate)
		if stillFails && gotClass == class && gotCode == code {
			return candidate, true
		}
		return nil, false
	}

	if reduced, ok := tryRemove(r.start, mid); ok {
		return reduced, true
	}
	if reduced, ok := tryRemove(mid, r.end); ok {
		return reduced, true
	}
	if mid-r.start > 1 {
		if reduced, ok := ddminPass(trace, span{r.start, mid}, class, code, eval, iterations, withinBudget); ok {
			return reduced, true
		}
	}
	if r.end-mid > 1 {
		if reduced, ok := ddminPass(trace, span{mid, r.end}, class, code, eval, iterations, withinBudget); ok {
			return reduced, true
		}
	}
	return trace, false
}

func removeRange(trace []event.Event, from, to int) []event.Event {
	out := make([]event.Event, 0, len(trace)-(to-from))
	out = append(out, trace[:from]...)
	out = append(out, trace[to:]...)
	return out
}

// timeNow is indirected so it can be swapped in tests; workflow scripts and
// the pipeline itself never call it directly at package scope.
var timeNow = time.Now
