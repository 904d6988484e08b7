// Package event defines the canonical event record used throughout the TRT
// pipeline: the wire envelope emitted by instrumented agent programs, the
// validated in-memory Event, and the canonical serialization used for
// content hashing and fixture keying.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type enumerates the recognized event types (spec.md §3.1).
type Type string

const (
	TypeRunStarted  Type = "run_started"
	TypeAgentStep   Type = "agent_step"
	TypeLLMCalled   Type = "llm_called"
	TypeLLMReturned Type = "llm_returned"
	TypeToolCalled  Type = "tool_called"
	TypeToolReturned Type = "tool_returned"
	TypeRunFinished Type = "run_finished"
)

// SchemaVersion is the only schema version the engine accepts on raw input.
const SchemaVersion = "v1"

// Kind is the abstraction-layer token kind derived from an event's type
// (spec.md §3.1, §4.4).
type Kind string

const (
	KindToolCall    Kind = "TOOL_CALL"
	KindToolResult  Kind = "TOOL_RESULT"
	KindLLMRequest  Kind = "LLM_REQUEST"
	KindLLMResponse Kind = "LLM_RESPONSE"
	KindMessage     Kind = "MESSAGE"
	KindObservation Kind = "OBSERVATION"
	KindError       Kind = "ERROR"
)

// Event is the validated in-memory record for one trace entry. Parse is its
// validating constructor; the fields are exported and nothing prevents a
// caller from changing them afterwards.
type Event struct {
	SchemaVersion string
	EventType     Type
	Seq           int
	RunID         string
	RelMS         int64
	Payload       map[string]any
	Meta          map[string]any

	// EventID is populated by Canonicalize; empty on a freshly parsed, not yet
	// canonicalized Event.
	EventID string
}

// Envelope is the raw wire shape of one JSONL line (spec.md §6.1). It is
// intentionally permissive: Payload is kept as json.RawMessage so callers can
// decode event-type-specific shapes without double-parsing, and EventID is
// optional because raw emission does not compute it.
type Envelope struct {
	SchemaVersion string          `json:"schema_version,omitempty"`
	EventType     string          `json:"event_type"`
	Seq           int             `json:"seq"`
	RunID         string          `json:"run_id"`
	RelMS         int64           `json:"rel_ms"`
	Payload       json.RawMessage `json:"payload"`
	Meta          json.RawMessage `json:"meta,omitempty"`
	EventID       string          `json:"event_id,omitempty"`
}

// ErrInvalidShape is returned (wrapped) when a raw event fails validation;
// callers surface this as the TOOLING code INVALID_EVENT_SHAPE.
var ErrInvalidShape = errors.New("invalid event shape")

// ErrUnsupportedSchema is returned (wrapped) when schema_version is present
// and not "v1"; callers surface this as SCHEMA_VERSION_UNSUPPORTED.
var ErrUnsupportedSchema = errors.New("unsupported schema version")

var validTypes = map[Type]struct{}{
	TypeRunStarted:   {},
	TypeAgentStep:    {},
	TypeLLMCalled:    {},
	TypeLLMReturned:  {},
	TypeToolCalled:   {},
	TypeToolReturned: {},
	TypeRunFinished:  {},
}

// requiredPayloadFields lists the payload keys that must be present (with a
// non-null value) for each event type, per spec.md §6.1.
var requiredPayloadFields = map[Type][]string{
	TypeRunStarted:   {"spec_name"},
	TypeAgentStep:    {"name"},
	TypeLLMCalled:    {"provider", "model"},
	TypeLLMReturned:  {"provider", "model", "output"},
	TypeToolCalled:   {"tool_name", "input"},
	TypeToolReturned: {"tool_name"},
	TypeRunFinished:  {"status"},
}

// Parse validates a raw Envelope and returns the corresponding Event. Missing
// schema_version defaults to "v1" per spec.md §6.1.
func Parse(env Envelope) (Event, error) {
	version := env.SchemaVersion
	if version == "" {
		version = SchemaVersion
	}
	if version != SchemaVersion {
		return Event{}, fmt.Errorf("%w: %q", ErrUnsupportedSchema, version)
	}
	typ := Type(env.EventType)
	if _, ok := validTypes[typ]; !ok {
		return Event{}, fmt.Errorf("%w: unknown event_type %q", ErrInvalidShape, env.EventType)
	}
	if env.Seq <= 0 {
		return Event{}, fmt.Errorf("%w: seq must be positive, got %d", ErrInvalidShape, env.Seq)
	}
	if env.RelMS < 0 {
		return Event{}, fmt.Errorf("%w: rel_ms must be non-negative, got %d", ErrInvalidShape, env.RelMS)
	}

	var payload map[string]any
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return Event{}, fmt.Errorf("%w: payload is not a JSON object: %v", ErrInvalidShape, err)
		}
	}
	for _, field := range requiredPayloadFields[typ] {
		v, ok := payload[field]
		if !ok || v == nil {
			return Event{}, fmt.Errorf("%w: %s payload missing required field %q", ErrInvalidShape, typ, field)
		}
	}

	var meta map[string]any
	if len(env.Meta) > 0 {
		if err := json.Unmarshal(env.Meta, &meta); err != nil {
			return Event{}, fmt.Errorf("%w: meta is not a JSON object: %v", ErrInvalidShape, err)
		}
	}

	return Event{
		SchemaVersion: version,
		EventType:     typ,
		Seq:           env.Seq,
		RunID:         env.RunID,
		RelMS:         env.RelMS,
		Payload:       payload,
		Meta:          meta,
		EventID:       env.EventID,
	}, nil
}

// ToEnvelope re-serializes an Event back into its wire Envelope shape,
// including EventID if computed.
func (e Event) ToEnvelope() (Envelope, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload: %w", err)
	}
	var meta json.RawMessage
	if e.Meta != nil {
		meta, err = json.Marshal(e.Meta)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal meta: %w", err)
		}
	}
	return Envelope{
		SchemaVersion: e.SchemaVersion,
		EventType:     string(e.EventType),
		Seq:           e.Seq,
		RunID:         e.RunID,
		RelMS:         e.RelMS,
		Payload:       payload,
		Meta:          meta,
		EventID:       e.EventID,
	}, nil
}

// KindOf maps an event type to its abstraction-layer token kind
// (spec.md §3.1, §4.4). Tool/LLM events map to CALL/RESULT/REQUEST/RESPONSE
// kinds, except a tool_returned carrying a non-null "error", which maps to
// ERROR. run_finished maps to ERROR when its status is "error" and to
// OBSERVATION otherwise; run_started and agent_step map to MESSAGE.
func (e Event) KindOf() Kind {
	switch e.EventType {
	case TypeToolCalled:
		return KindToolCall
	case TypeToolReturned:
		if _, hasErr := e.Payload["error"]; hasErr && e.Payload["error"] != nil {
			return KindError
		}
		return KindToolResult
	case TypeLLMCalled:
		return KindLLMRequest
	case TypeLLMReturned:
		return KindLLMResponse
	case TypeRunFinished:
		if status, _ := e.Payload["status"].(string); status == "error" {
			return KindError
		}
		return KindObservation
	default:
		return KindMessage
	}
}
