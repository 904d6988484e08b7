// Package contract implements Φ, the contract monitor (spec.md §4.5):
// fixed-order evaluation of tool policy, budgets, sequence, side-effect,
// network, data-leak, and argument-schema obligations against a candidate
// trace.
package contract

import (
	"regexp"
	"sort"

	"github.com/trajectly/trt/contract/args"
	"github.com/trajectly/trt/event"
	"github.com/trajectly/trt/policy"
	"github.com/trajectly/trt/violation"
)

var piiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
	regexp.MustCompile(`\+?\d{1,3}[\s.\-]?\(?\d{2,4}\)?[\s.\-]?\d{3,4}[\s.\-]?\d{3,4}`),
}

// Evaluate runs every enabled obligation family against trace in the fixed
// order tool policy → budgets → sequence → side_effects → network →
// data_leak → args (spec.md §4.5 "Order of evaluation"). trace must be
// seq-ascending; the caller (orchestrator) guarantees this via
// event.ValidateTrace.
func Evaluate(spec policy.Spec, trace []event.Event) []violation.Violation {
	var out []violation.Violation

	evalToolPolicy(spec, trace, &out)
	evalBudgets(spec, trace, &out)
	evalSequence(spec, trace, &out)
	evalSideEffects(spec, trace, &out)
	evalNetwork(spec, trace, &out)
	evalDataLeak(spec, trace, &out)
	evalArgs(spec, trace, &out)

	return out
}

func append1(out *[]violation.Violation, code string, class violation.Class, idx int, msg string) {
	*out = append(*out, violation.New(code, class, idx, msg, len(*out)))
}

func toolName(e event.Event) (string, bool) {
	if e.EventType != event.TypeToolCalled {
		return "", false
	}
	n, _ := e.Payload["tool_name"].(string)
	return n, n != ""
}

func runFinishedIndex(trace []event.Event) int {
	for _, e := range trace {
		if e.EventType == event.TypeRunFinished {
			return e.Seq
		}
	}
	if len(trace) > 0 {
		return trace[len(trace)-1].Seq
	}
	return 0
}

// evalToolPolicy implements spec.md §4.5 "Tool policy".
func evalToolPolicy(spec policy.Spec, trace []event.Event, out *[]violation.Violation) {
	allow := toSet(spec.Contracts.Tools.Allow)
	deny := toSet(spec.Contracts.Tools.Deny)
	for _, e := range trace {
		name, ok := toolName(e)
		if !ok {
			continue
		}
		if _, denied := deny[name]; denied {
			append1(out, violation.CodeContractToolDenied, violation.ClassContract, e.Seq, "tool \""+name+"\" is denied")
			continue
		}
		if len(allow) > 0 {
			if _, allowed := allow[name]; !allowed {
				append1(out, violation.CodeContractToolNotAllowed, violation.ClassContract, e.Seq, "tool \""+name+"\" is not in the allowlist")
			}
		}
	}
}

// evalBudgets implements spec.md §4.5 "Budgets".
func evalBudgets(spec policy.Spec, trace []event.Event, out *[]violation.Violation) {
	total := 0
	perTool := map[string]int{}
	totalEmitted := false
	perToolEmitted := map[string]bool{}

	maxToolCallsCrossed := false
	var finalRelMS int64
	var tokensCrossedAt = -1

	for _, e := range trace {
		if e.RelMS > finalRelMS {
			finalRelMS = e.RelMS
		}
		if name, ok := toolName(e); ok {
			total++
			perTool[name]++
			if spec.Contracts.Tools.MaxCallsTotal > 0 && total > spec.Contracts.Tools.MaxCallsTotal && !totalEmitted {
				append1(out, violation.CodeContractMaxCallsTotalExceeded, violation.ClassContract, e.Seq, "max_calls_total exceeded")
				totalEmitted = true
			}
			if limit, ok := spec.Contracts.Tools.MaxCallsPerTool[name]; ok && limit > 0 && perTool[name] > limit && !perToolEmitted[name] {
				append1(out, violation.CodeContractMaxCallsPerToolExceeded, violation.ClassContract, e.Seq, "max_calls_per_tool exceeded for \""+name+"\"")
				perToolEmitted[name] = true
			}
			if spec.Budgets.MaxToolCalls > 0 && total > spec.Budgets.MaxToolCalls && !maxToolCallsCrossed {
				append1(out, violation.CodeBudgetToolCallsExceeded, violation.ClassContract, e.Seq, "budget_thresholds.max_tool_calls exceeded")
				maxToolCallsCrossed = true
			}
		}
		if e.EventType == event.TypeLLMReturned && spec.Budgets.MaxTokens > 0 && tokensCrossedAt < 0 {
			if usage, ok := e.Payload["usage"].(map[string]any); ok {
				tokens := 0
				if p, ok := asInt(usage["prompt_tokens"]); ok {
					tokens += p
				}
				if c, ok := asInt(usage["completion_tokens"]); ok {
					tokens += c
				}
				if tokens > spec.Budgets.MaxTokens {
					append1(out, violation.CodeBudgetTokensExceeded, violation.ClassContract, e.Seq, "budget_thresholds.max_tokens exceeded")
					tokensCrossedAt = e.Seq
				}
			}
		}
	}

	if spec.Budgets.MaxLatencyMS > 0 && finalRelMS > spec.Budgets.MaxLatencyMS {
		append1(out, violation.CodeBudgetLatencyExceeded, violation.ClassContract, runFinishedIndex(trace), "budget_thresholds.max_latency_ms exceeded")
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// evalSequence implements spec.md §4.5 "Sequence".
func evalSequence(spec policy.Spec, trace []event.Event, out *[]violation.Violation) {
	seq := spec.Contracts.Sequence

	seen := map[string]bool{}
	seenAt := map[string]int{}
	counts := map[string]int{}
	neverEmitted := map[string]bool{}
	atMostOnceEmitted := map[string]bool{}

	for _, e := range trace {
		name, ok := toolName(e)
		if !ok {
			continue
		}
		if !seen[name] {
			seen[name] = true
			seenAt[name] = e.Seq
		}
		counts[name]++

		for _, forbidden := range append(append([]string{}, seq.Forbid...), seq.Never...) {
			if forbidden == name && !neverEmitted[name] {
				append1(out, violation.CodeContractSequenceNeverSeen, violation.ClassContract, e.Seq, "forbidden tool \""+name+"\" was called")
				neverEmitted[name] = true
			}
		}
		for _, once := range seq.AtMostOnce {
			if once == name && counts[name] == 2 && !atMostOnceEmitted[name] {
				append1(out, violation.CodeContractSequenceAtMostOnce, violation.ClassContract, e.Seq, "tool \""+name+"\" called more than once")
				atMostOnceEmitted[name] = true
			}
		}
	}

	for _, rb := range seq.RequireBefore {
		afterIdx, afterSeen := seenAt[rb.After]
		if !afterSeen {
			continue
		}
		beforeIdx, beforeSeen := seenAt[rb.Before]
		if !beforeSeen || beforeIdx > afterIdx {
			append1(out, violation.CodeSequenceRequireBefore, violation.ClassContract, afterIdx, "\""+rb.After+"\" occurred before \""+rb.Before+"\"")
		}
	}

	finishedIdx := runFinishedIndex(trace)
	required := append(append([]string{}, seq.Require...), seq.Eventually...)
	sort.Strings(required)
	for _, name := range required {
		if !seen[name] {
			append1(out, violation.CodeContractSequenceRequiredMissing, violation.ClassContract, finishedIdx, "required tool \""+name+"\" was never called")
		}
	}
}

// evalSideEffects implements spec.md §4.5 "Side effects".
func evalSideEffects(spec policy.Spec, trace []event.Event, out *[]violation.Violation) {
	if !spec.Contracts.SideEffects.DenyWriteTools {
		return
	}
	for _, e := range trace {
		name, ok := toolName(e)
		if !ok {
			continue
		}
		if spec.IsWriteTool(name) {
			append1(out, violation.CodeContractWriteToolDenied, violation.ClassContract, e.Seq, "write tool \""+name+"\" is denied")
		}
	}
}

// evalNetwork implements spec.md §4.5 "Network".
func evalNetwork(spec policy.Spec, trace []event.Event, out *[]violation.Violation) {
	if spec.Contracts.Network.Default != policy.NetworkDeny {
		return
	}
	allow := toSet(spec.Contracts.Network.AllowDomains)
	for _, e := range trace {
		domain, _ := e.Payload["domain"].(string)
		if domain == "" {
			continue
		}
		if _, ok := allow[domain]; !ok {
			append1(out, violation.CodeContractNetworkDenied, violation.ClassContract, e.Seq, "network access to \""+domain+"\" is denied")
		}
	}
}

// evalDataLeak implements spec.md §4.5 "Data leak".
func evalDataLeak(spec policy.Spec, trace []event.Event, out *[]violation.Violation) {
	if !spec.Contracts.DataLeak.DenyPIIOutbound {
		return
	}
	kinds := toSet(spec.Contracts.DataLeak.OutboundKinds)
	for _, e := range trace {
		k := string(e.KindOf())
		if len(kinds) > 0 {
			if _, ok := kinds[k]; !ok {
				continue
			}
		}
		if matchesPII(e.Payload) {
			append1(out, violation.CodeContractDataLeakPII, violation.ClassContract, e.Seq, "outbound payload contains PII")
			return
		}
	}
}

func matchesPII(payload map[string]any) bool {
	found := false
	var walk func(v any)
	walk = func(v any) {
		if found {
			return
		}
		switch t := v.(type) {
		case string:
			for _, p := range piiPatterns {
				if p.MatchString(t) {
					found = true
					return
				}
			}
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(t[k])
			}
		case []any:
			for _, e := range t {
				walk(e)
			}
		}
	}
	walk(payload)
	return found
}

// evalArgs implements spec.md §4.5 "Args".
func evalArgs(spec policy.Spec, trace []event.Event, out *[]violation.Violation) {
	schemaByName := make(map[string]int, len(spec.Contracts.Args))
	for i := range spec.Contracts.Args {
		schemaByName[spec.Contracts.Args[i].ToolName] = i
	}

	for _, e := range trace {
		name, ok := toolName(e)
		if !ok {
			continue
		}
		idx, ok := schemaByName[name]
		if !ok {
			continue
		}
		input, _ := e.Payload["input"].(map[string]any)
		for _, fv := range args.Validate(spec.Contracts.Args[idx], input) {
			switch fv.Reason {
			case "required":
				append1(out, violation.CodeContractArgRequiredMissing, violation.ClassContract, e.Seq, "tool \""+name+"\" missing required arg \""+fv.Field+"\"")
			case "type":
				append1(out, violation.CodeContractArgType, violation.ClassContract, e.Seq, "tool \""+name+"\" arg \""+fv.Field+"\" has wrong type")
			case "range":
				append1(out, violation.CodeContractArgRange, violation.ClassContract, e.Seq, "tool \""+name+"\" arg \""+fv.Field+"\" out of range")
			case "enum":
				append1(out, violation.CodeContractArgEnum, violation.ClassContract, e.Seq, "tool \""+name+"\" arg \""+fv.Field+"\" not in enum")
			case "regex":
				append1(out, violation.CodeContractArgRegex, violation.ClassContract, e.Seq, "tool \""+name+"\" arg \""+fv.Field+"\" fails pattern")
			}
		}
	}
}

func toSet(list []string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, s := range list {
		out[s] = struct{}{}
	}
	return out
}
