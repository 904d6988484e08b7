// Package spectest loads policy.Spec values from YAML fixtures, for tests
// across the repo that want a realistic spec without building one field by
// field in Go. Not used by cmd/trtd itself (its spec is the hardcoded
// demoSpec) — this is test tooling only, grounded on the teacher
// pack's convention of keeping fixture decoding out of the production
// packages it feeds.
package spectest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/trajectly/trt/policy"
)

// doc mirrors spec.md §3.4's dotted option names as nested YAML, since
// policy.Spec itself carries no yaml tags (it is the core's resolved,
// language-agnostic shape, not a serialization format).
type doc struct {
	Name    string            `yaml:"name"`
	Command []string          `yaml:"command"`
	Workdir string            `yaml:"workdir"`
	Env     map[string]string `yaml:"env"`

	FixturePolicy string `yaml:"fixture_policy"`

	Replay struct {
		Mode           string `yaml:"mode"`
		StrictSequence bool   `yaml:"strict_sequence"`
		LLMMatchMode   string `yaml:"llm_match_mode"`
		ToolMatchMode  string `yaml:"tool_match_mode"`
	} `yaml:"replay"`

	Refinement struct {
		Mode                      string   `yaml:"mode"`
		AllowExtraLLMSteps        bool     `yaml:"allow_extra_llm_steps"`
		AllowExtraTools           []string `yaml:"allow_extra_tools"`
		AllowExtraSideEffectTools []string `yaml:"allow_extra_side_effect_tools"`
		AllowNewToolNames         bool     `yaml:"allow_new_tool_names"`
		IgnoreCallTools           []string `yaml:"ignore_call_tools"`
	} `yaml:"refinement"`

	Contracts struct {
		Tools struct {
			Allow           []string       `yaml:"allow"`
			Deny            []string       `yaml:"deny"`
			MaxCallsTotal   int            `yaml:"max_calls_total"`
			MaxCallsPerTool map[string]int `yaml:"max_calls_per_tool"`
		} `yaml:"tools"`
		Sequence struct {
			Require       []string `yaml:"require"`
			Forbid        []string `yaml:"forbid"`
			RequireBefore []struct {
				Before string `yaml:"before"`
				After  string `yaml:"after"`
			} `yaml:"require_before"`
			Eventually []string `yaml:"eventually"`
			Never      []string `yaml:"never"`
			AtMostOnce []string `yaml:"at_most_once"`
		} `yaml:"sequence"`
		SideEffects struct {
			DenyWriteTools bool     `yaml:"deny_write_tools"`
			WriteTools     []string `yaml:"write_tools"`
		} `yaml:"side_effects"`
		Network struct {
			Default      string   `yaml:"default"`
			AllowDomains []string `yaml:"allow_domains"`
		} `yaml:"network"`
		DataLeak struct {
			DenyPIIOutbound bool     `yaml:"deny_pii_outbound"`
			OutboundKinds   []string `yaml:"outbound_kinds"`
		} `yaml:"data_leak"`
		Args []struct {
			ToolName string `yaml:"tool_name"`
			Fields   []struct {
				Name     string   `yaml:"name"`
				Required bool     `yaml:"required"`
				Type     string   `yaml:"type"`
				Min      *float64 `yaml:"min"`
				Max      *float64 `yaml:"max"`
				Enum     []string `yaml:"enum"`
				Regex    string   `yaml:"regex"`
			} `yaml:"fields"`
		} `yaml:"args"`
	} `yaml:"contracts"`

	BudgetThresholds struct {
		MaxLatencyMS int64 `yaml:"max_latency_ms"`
		MaxToolCalls int   `yaml:"max_tool_calls"`
		MaxTokens    int   `yaml:"max_tokens"`
	} `yaml:"budget_thresholds"`

	Redact []string `yaml:"redact"`
}

// LoadFile reads and parses a policy.Spec fixture from path.
func LoadFile(path string) (policy.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return policy.Spec{}, fmt.Errorf("spectest: read %s: %w", path, err)
	}
	return LoadBytes(data)
}

// LoadBytes parses a policy.Spec fixture from raw YAML.
func LoadBytes(data []byte) (policy.Spec, error) {
	var d doc
	if err := yaml.Unmarshal(data, &d); err != nil {
		return policy.Spec{}, fmt.Errorf("spectest: parse yaml: %w", err)
	}
	return d.toSpec(), nil
}

func (d doc) toSpec() policy.Spec {
	s := policy.Spec{
		Name:          d.Name,
		Command:       d.Command,
		Workdir:       d.Workdir,
		Env:           d.Env,
		FixturePolicy: policy.FixturePolicy(d.FixturePolicy),
		Replay: policy.Replay{
			Mode:           policy.ReplayMode(d.Replay.Mode),
			StrictSequence: d.Replay.StrictSequence,
			LLMMatchMode:   policy.MatchMode(d.Replay.LLMMatchMode),
			ToolMatchMode:  policy.MatchMode(d.Replay.ToolMatchMode),
		},
		Refinement: policy.Refinement{
			Mode:                      policy.RefinementMode(d.Refinement.Mode),
			AllowExtraLLMSteps:        d.Refinement.AllowExtraLLMSteps,
			AllowExtraTools:           d.Refinement.AllowExtraTools,
			AllowExtraSideEffectTools: d.Refinement.AllowExtraSideEffectTools,
			AllowNewToolNames:         d.Refinement.AllowNewToolNames,
			IgnoreCallTools:           d.Refinement.IgnoreCallTools,
		},
		Budgets: policy.BudgetThresholds{
			MaxLatencyMS: d.BudgetThresholds.MaxLatencyMS,
			MaxToolCalls: d.BudgetThresholds.MaxToolCalls,
			MaxTokens:    d.BudgetThresholds.MaxTokens,
		},
		Redact: d.Redact,
	}

	s.Contracts.Tools = policy.ToolsPolicy{
		Allow:           d.Contracts.Tools.Allow,
		Deny:            d.Contracts.Tools.Deny,
		MaxCallsTotal:   d.Contracts.Tools.MaxCallsTotal,
		MaxCallsPerTool: d.Contracts.Tools.MaxCallsPerTool,
	}
	var requireBefore []policy.RequireBefore
	for _, rb := range d.Contracts.Sequence.RequireBefore {
		requireBefore = append(requireBefore, policy.RequireBefore{Before: rb.Before, After: rb.After})
	}
	s.Contracts.Sequence = policy.SequencePolicy{
		Require:       d.Contracts.Sequence.Require,
		Forbid:        d.Contracts.Sequence.Forbid,
		RequireBefore: requireBefore,
		Eventually:    d.Contracts.Sequence.Eventually,
		Never:         d.Contracts.Sequence.Never,
		AtMostOnce:    d.Contracts.Sequence.AtMostOnce,
	}
	s.Contracts.SideEffects = policy.SideEffectsPolicy{
		DenyWriteTools: d.Contracts.SideEffects.DenyWriteTools,
		WriteTools:     d.Contracts.SideEffects.WriteTools,
	}
	s.Contracts.Network = policy.NetworkPolicy{
		Default:      policy.NetworkDefault(d.Contracts.Network.Default),
		AllowDomains: d.Contracts.Network.AllowDomains,
	}
	s.Contracts.DataLeak = policy.DataLeakPolicy{
		DenyPIIOutbound: d.Contracts.DataLeak.DenyPIIOutbound,
		OutboundKinds:   d.Contracts.DataLeak.OutboundKinds,
	}
	for _, a := range d.Contracts.Args {
		schema := policy.ArgSchema{ToolName: a.ToolName}
		for _, f := range a.Fields {
			schema.Fields = append(schema.Fields, policy.ArgField{
				Name:     f.Name,
				Required: f.Required,
				Type:     f.Type,
				Min:      f.Min,
				Max:      f.Max,
				Enum:     f.Enum,
				Regex:    f.Regex,
			})
		}
		s.Contracts.Args = append(s.Contracts.Args, schema)
	}

	return s
}
