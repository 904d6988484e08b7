// Package abstraction implements α (spec.md §4.4): the pure, deterministic
// map from a normalized trace to {tokens, skeleton, predicates}. The token
// sum type follows the ordered-Part pattern from
// runtime/agent/transcript/ledger.go — a closed interface with an unexported
// marker method, one concrete type per token kind.
package abstraction

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"

	"github.com/trajectly/trt/event"
)

// Token is one abstraction-layer token (spec.md §4.4 "Tokens"). Concrete
// types are CallToken, ResultToken, LLMRequestToken, LLMResponseToken,
// MessageToken, ObservationToken, and ErrorToken.
type Token interface {
	isToken()
	// Text renders the token's canonical string form, e.g. "CALL(fetch_ticket)".
	Text() string
}

type CallToken struct{ Name string }
type ResultToken struct{ Name string }
type LLMRequestToken struct{ Model string }
type LLMResponseToken struct{ Model string }
type MessageToken struct{}
type ObservationToken struct{}
type ErrorToken struct{}

func (CallToken) isToken()        {}
func (ResultToken) isToken()      {}
func (LLMRequestToken) isToken()  {}
func (LLMResponseToken) isToken() {}
func (MessageToken) isToken()     {}
func (ObservationToken) isToken() {}
func (ErrorToken) isToken()       {}

func (t CallToken) Text() string        { return "CALL(" + t.Name + ")" }
func (t ResultToken) Text() string      { return "RESULT(" + t.Name + ")" }
func (t LLMRequestToken) Text() string  { return "LLM_REQUEST(" + t.Model + ")" }
func (t LLMResponseToken) Text() string { return "LLM_RESPONSE(" + t.Model + ")" }
func (MessageToken) Text() string       { return "MESSAGE" }
func (ObservationToken) Text() string   { return "OBSERVATION" }
func (ErrorToken) Text() string         { return "ERROR" }

// Predicates is the v1 minimum predicate set (spec.md §4.4 "Predicates").
type Predicates struct {
	PII            bool
	Price          []float64
	RefundCount    int
	ToolCallsTotal int
	ToolCallsByName map[string]int
	Domains        []string // sorted, deduplicated
}

// PredicateConfig carries the caller-supplied knobs needed to extract
// predicates: price payload paths and the refund-tool name pattern
// (spec.md §4.4 names these as "configured" without fixing a wire shape).
type PredicateConfig struct {
	PricePayloadPaths []string // dotted paths into tool_called payload
	RefundPattern     *regexp.Regexp
}

// Result is α's output: {tokens, skeleton, predicates} (spec.md §4.4).
type Result struct {
	Tokens     []Token
	Skeleton   []string
	Predicates Predicates
}

var piiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
	regexp.MustCompile(`\+?\d{1,3}[\s.\-]?\(?\d{2,4}\)?[\s.\-]?\d{3,4}[\s.\-]?\d{3,4}`),
}

// Run computes α over a normalized trace (spec.md §4.4). trace must already
// be redaction-and-strip-normalized (event.Canonicalize applied to each
// event) so predicate extraction is invariant under volatile fields.
// ignoreCallTools removes matching tool names from the skeleton only, per
// spec.md's refinement.ignore_call_tools.
func Run(trace []event.Event, ignoreCallTools []string, cfg PredicateConfig) Result {
	ignore := make(map[string]struct{}, len(ignoreCallTools))
	for _, n := range ignoreCallTools {
		ignore[n] = struct{}{}
	}

	res := Result{
		Predicates: Predicates{ToolCallsByName: map[string]int{}},
	}
	domainSet := map[string]struct{}{}

	for _, e := range trace {
		res.Tokens = append(res.Tokens, tokenFor(e))

		switch e.EventType {
		case event.TypeToolCalled:
			name, _ := e.Payload["tool_name"].(string)
			if _, skip := ignore[name]; !skip {
				res.Skeleton = append(res.Skeleton, name)
			}
			res.Predicates.ToolCallsTotal++
			res.Predicates.ToolCallsByName[name]++
			if cfg.RefundPattern != nil && cfg.RefundPattern.MatchString(name) {
				res.Predicates.RefundCount++
			}
			scanOutbound(e.Payload, &res.Predicates, domainSet)
			for _, path := range cfg.PricePayloadPaths {
				if v, ok := lookupPath(e.Payload, path); ok {
					if f, ok := asFloat(v); ok {
						res.Predicates.Price = append(res.Predicates.Price, f)
					}
				}
			}
		case event.TypeLLMCalled:
			scanOutbound(e.Payload, &res.Predicates, domainSet)
		}
	}

	res.Predicates.Domains = sortedKeys(domainSet)
	return res
}

func tokenFor(e event.Event) Token {
	switch e.KindOf() {
	case event.KindToolCall:
		name, _ := e.Payload["tool_name"].(string)
		return CallToken{Name: name}
	case event.KindToolResult:
		name, _ := e.Payload["tool_name"].(string)
		return ResultToken{Name: name}
	case event.KindLLMRequest:
		model, _ := e.Payload["model"].(string)
		return LLMRequestToken{Model: model}
	case event.KindLLMResponse:
		model, _ := e.Payload["model"].(string)
		return LLMResponseToken{Model: model}
	case event.KindObservation:
		return ObservationToken{}
	case event.KindError:
		return ErrorToken{}
	default:
		return MessageToken{}
	}
}

// scanOutbound applies the PII detectors and domain extraction to an
// outbound payload (spec.md §4.4 "pii", "domains").
func scanOutbound(payload map[string]any, p *Predicates, domains map[string]struct{}) {
	walkStrings(payload, func(s string) {
		for _, re := range piiPatterns {
			if re.MatchString(s) {
				p.PII = true
				break
			}
		}
	})
	if d, ok := payload["domain"].(string); ok && d != "" {
		domains[d] = struct{}{}
	}
}

func walkStrings(v any, fn func(string)) {
	switch t := v.(type) {
	case string:
		fn(t)
	case map[string]any:
		keys := sortedKeys(toStringSet(t))
		for _, k := range keys {
			walkStrings(t[k], fn)
		}
	case []any:
		for _, e := range t {
			walkStrings(e, fn)
		}
	}
}

func toStringSet(m map[string]any) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func lookupPath(payload map[string]any, dotted string) (any, bool) {
	cur := any(payload)
	for _, part := range splitDots(dotted) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func splitDots(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// StableDigest hashes a skeleton for use as a diagnostic fingerprint (not
// part of fixture keying, which lives in package fixture).
func StableDigest(skeleton []string) string {
	h := sha256.New()
	for _, name := range skeleton {
		h.Write([]byte(name))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
