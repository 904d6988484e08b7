package counterexample

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trajectly/trt/event"
	"github.com/trajectly/trt/violation"
)

func buildTrace(t *testing.T, n int) []event.Event {
	t.Helper()
	var out []event.Event
	mk := func(typ event.Type, seq int, payload map[string]any) event.Event {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		e, err := event.Parse(event.Envelope{EventType: string(typ), Seq: seq, RunID: "r", Payload: raw})
		require.NoError(t, err)
		return e
	}
	out = append(out, mk(event.TypeRunStarted, 1, map[string]any{"spec_name": "s"}))
	for i := 0; i < n; i++ {
		out = append(out, mk(event.TypeToolCalled, i+2, map[string]any{"tool_name": "x", "input": map[string]any{}}))
	}
	out = append(out, mk(event.TypeRunFinished, n+2, map[string]any{"status": "ok"}))
	return out
}

// alwaysFailsIfContainsMarker is a trivial oracle: the reduced trace "fails"
// with a fixed (class, code) as long as it still contains at least one
// tool_called event; this isolates the shrinker's halving logic from any
// real pipeline.
func alwaysFailsIfContainsMarker(trace []event.Event) (bool, violation.Class, string) {
	for _, e := range trace {
		if e.EventType == event.TypeToolCalled {
			return true, violation.ClassTooling, "MARKER"
		}
	}
	return false, "", ""
}

func TestShrink_ReducesToMinimalFailingTrace(t *testing.T) {
	trace := buildTrace(t, 8)
	reduced := Shrink(context.Background(), trace, violation.ClassTooling, "MARKER", alwaysFailsIfContainsMarker, Budget{MaxIterations: 1000})
	assert.LessOrEqual(t, len(reduced), len(trace))
	// run_started + one tool_called + run_finished is the smallest trace the
	// oracle still reports as failing.
	assert.Len(t, reduced, 3)
	stillFails, _, _ := alwaysFailsIfContainsMarker(reduced)
	assert.True(t, stillFails)
}

func TestShrink_PreservesRunStartedAndFinished(t *testing.T) {
	trace := buildTrace(t, 4)
	reduced := Shrink(context.Background(), trace, violation.ClassTooling, "MARKER", alwaysFailsIfContainsMarker, Budget{MaxIterations: 1000})
	require.NotEmpty(t, reduced)
	assert.Equal(t, event.TypeRunStarted, reduced[0].EventType)
	assert.Equal(t, event.TypeRunFinished, reduced[len(reduced)-1].EventType)
}

func TestShrink_NoReductionAcceptedReturnsOriginal(t *testing.T) {
	trace := buildTrace(t, 3)
	neverMatches := func(t2 []event.Event) (bool, violation.Class, string) {
		return true, violation.ClassTooling, "OTHER_CODE"
	}
	reduced := Shrink(context.Background(), trace, violation.ClassTooling, "MARKER", neverMatches, Budget{MaxIterations: 1000})
	assert.Equal(t, len(trace), len(reduced))
}

// TestShrinkMonotonicity is the gopter property for spec.md §8 property 6:
// any accepted reduced trace's length is <= the original.
func TestShrinkMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("shrunk trace is never longer than the original", prop.ForAll(
		func(n int) bool {
			trace := buildTrace(t, n)
			reduced := Shrink(context.Background(), trace, violation.ClassTooling, "MARKER", alwaysFailsIfContainsMarker, Budget{MaxIterations: 1000})
			return len(reduced) <= len(trace)
		},
		gen.IntRange(0, 20),
	))
	properties.TestingRun(t)
}
