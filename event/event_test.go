package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_DefaultsSchemaVersion(t *testing.T) {
	e, err := Parse(Envelope{
		EventType: string(TypeRunStarted),
		Seq:       1,
		RunID:     "r1",
		Payload:   []byte(`{"spec_name":"demo"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, e.SchemaVersion)
}

func TestParse_RejectsUnsupportedSchema(t *testing.T) {
	_, err := Parse(Envelope{SchemaVersion: "v2", EventType: string(TypeRunStarted), Seq: 1})
	assert.ErrorIs(t, err, ErrUnsupportedSchema)
}

func TestParse_RejectsUnknownType(t *testing.T) {
	_, err := Parse(Envelope{EventType: "bogus", Seq: 1})
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestParse_RejectsNonPositiveSeq(t *testing.T) {
	_, err := Parse(Envelope{EventType: string(TypeRunStarted), Seq: 0, Payload: []byte(`{"spec_name":"x"}`)})
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestParse_RejectsMissingRequiredPayloadField(t *testing.T) {
	_, err := Parse(Envelope{EventType: string(TypeToolCalled), Seq: 1, Payload: []byte(`{"tool_name":"x"}`)})
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		typ  Type
		body string
		want Kind
	}{
		{TypeToolCalled, `{"tool_name":"x","input":{}}`, KindToolCall},
		{TypeToolReturned, `{"tool_name":"x","output":1}`, KindToolResult},
		{TypeToolReturned, `{"tool_name":"x","error":"boom"}`, KindError},
		{TypeLLMCalled, `{"provider":"anthropic","model":"claude"}`, KindLLMRequest},
		{TypeLLMReturned, `{"provider":"anthropic","model":"claude","output":"hi"}`, KindLLMResponse},
		{TypeRunFinished, `{"status":"ok"}`, KindObservation},
		{TypeRunFinished, `{"status":"error"}`, KindError},
		{TypeAgentStep, `{"name":"plan"}`, KindMessage},
	}
	for _, tc := range cases {
		e, err := Parse(Envelope{EventType: string(tc.typ), Seq: 1, Payload: []byte(tc.body)})
		require.NoError(t, err)
		assert.Equal(t, tc.want, e.KindOf(), "type=%s body=%s", tc.typ, tc.body)
	}
}

func buildTrace(t *testing.T, n int) Trace {
	t.Helper()
	var tr Trace
	tr = append(tr, mustParse(t, Envelope{EventType: string(TypeRunStarted), Seq: 1, Payload: []byte(`{"spec_name":"demo"}`)}))
	seq := 2
	for i := 0; i < n; i++ {
		tr = append(tr, mustParse(t, Envelope{
			EventType: string(TypeToolCalled), Seq: seq,
			Payload: []byte(`{"tool_name":"fetch","input":{}}`),
		}))
		seq++
	}
	tr = append(tr, mustParse(t, Envelope{EventType: string(TypeRunFinished), Seq: seq, Payload: []byte(`{"status":"ok"}`)}))
	return tr
}

func TestValidateTrace_Valid(t *testing.T) {
	tr := buildTrace(t, 3)
	assert.NoError(t, ValidateTrace(tr))
}

func TestValidateTrace_RejectsNonIncreasingSeq(t *testing.T) {
	tr := buildTrace(t, 1)
	tr[1].Seq = 1
	assert.ErrorIs(t, ValidateTrace(tr), ErrInvalidShape)
}

func TestValidateTrace_RequiresRunStartedFirst(t *testing.T) {
	tr := buildTrace(t, 1)
	tr = tr[1:]
	assert.ErrorIs(t, ValidateTrace(tr), ErrInvalidShape)
}
