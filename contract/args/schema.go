// Package args validates tool call arguments against the per-tool schemas
// declared in contracts.args (spec.md §3.4, §4.5 "Args"), using
// santhosh-tekuri/jsonschema/v6 for the actual type/enum/pattern/range
// semantics. Grounded on the compile/validate pattern in
// registry/service.go's validatePayloadJSONAgainstSchema.
package args

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/trajectly/trt/policy"
)

// FieldViolation is one failed constraint on one argument field, already
// classified to a single CONTRACT_ARG_* reason (spec.md §4.5 "Args").
type FieldViolation struct {
	Field  string
	Reason string // "required", "type", "range", "enum", "regex"
	Detail string
}

// Validate checks args against schema's field constraints and returns every
// violation found, in the field declaration order of schema.Fields. Each
// field reports at most one violation: required-missing short-circuits the
// rest of that field's checks (an absent value has no type/range/enum to
// fail), and a compiled single-constraint schema is tried in priority order
// (type, enum, regex, range) so exactly one reason is attributed even when a
// value could fail more than one constraint.
func Validate(schema policy.ArgSchema, args map[string]any) []FieldViolation {
	var out []FieldViolation
	for _, field := range schema.Fields {
		v, present := args[field.Name]
		if !present {
			if field.Required {
				out = append(out, FieldViolation{Field: field.Name, Reason: "required", Detail: "missing required argument"})
			}
			continue
		}
		if viol, ok := checkField(field, v); ok {
			out = append(out, viol)
		}
	}
	return out
}

func checkField(field policy.ArgField, v any) (FieldViolation, bool) {
	if field.Type != "" {
		if err := validateAgainst(map[string]any{"type": jsonSchemaType(field.Type)}, v); err != nil {
			return FieldViolation{Field: field.Name, Reason: "type", Detail: err.Error()}, true
		}
	}
	if len(field.Enum) > 0 {
		enum := make([]any, len(field.Enum))
		for i, e := range field.Enum {
			enum[i] = e
		}
		if err := validateAgainst(map[string]any{"enum": enum}, v); err != nil {
			return FieldViolation{Field: field.Name, Reason: "enum", Detail: err.Error()}, true
		}
	}
	if field.Regex != "" {
		if err := validateAgainst(map[string]any{"type": "string", "pattern": field.Regex}, v); err != nil {
			return FieldViolation{Field: field.Name, Reason: "regex", Detail: err.Error()}, true
		}
	}
	if field.Min != nil || field.Max != nil {
		numeric := map[string]any{"type": "number"}
		if field.Min != nil {
			numeric["minimum"] = *field.Min
		}
		if field.Max != nil {
			numeric["maximum"] = *field.Max
		}
		if err := validateAgainst(numeric, v); err != nil {
			return FieldViolation{Field: field.Name, Reason: "range", Detail: err.Error()}, true
		}
	}
	return FieldViolation{}, false
}

func jsonSchemaType(t string) string {
	switch t {
	case "", "any":
		return "object"
	default:
		return t
	}
}

// validateAgainst compiles a single-purpose schema document and validates v
// against it, returning the library's validation error (nil on success).
func validateAgainst(schemaDoc map[string]any, v any) error {
	c := jsonschema.NewCompiler()
	const resourceURL = "trt://contract-arg-field.json"
	if err := c.AddResource(resourceURL, schemaDoc); err != nil {
		return fmt.Errorf("compile arg constraint: %w", err)
	}
	sch, err := c.Compile(resourceURL)
	if err != nil {
		return fmt.Errorf("compile arg constraint: %w", err)
	}
	return sch.Validate(v)
}
