package fixture

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/trajectly/trt/event"
)

// Policy selects how fixture signature keys are derived (spec.md §4.2
// "Keying").
type Policy string

const (
	PolicyByHash  Policy = "by_hash"
	PolicyByIndex Policy = "by_index"
)

// ToolRequestCanon builds the canon for a tool_called request under
// args_signature_match: (tool_name, canonical(args)) (spec.md §4.2).
func ToolRequestCanon(toolName string, args any) map[string]any {
	return map[string]any{"tool_name": toolName, "args": args}
}

// LLMRequestCanon builds the canon for an llm_called request: provider,
// model, messages/prompt, and any deterministic parameters. whitelistParams
// selects which entries of params survive into the canon; spec.md §4.2 says
// non-deterministic parameters are excluded "only if whitelisted by the
// spec", so callers pass the spec's declared whitelist (possibly nil/empty,
// meaning no params are included).
func LLMRequestCanon(provider, model string, messagesOrPrompt any, params map[string]any, whitelistParams []string) map[string]any {
	canon := map[string]any{
		"provider": provider,
		"model":    model,
		"messages": messagesOrPrompt,
	}
	if len(whitelistParams) > 0 && params != nil {
		kept := make(map[string]any, len(whitelistParams))
		for _, k := range whitelistParams {
			if v, ok := params[k]; ok {
				kept[k] = v
			}
		}
		if len(kept) > 0 {
			canon["params"] = kept
		}
	}
	return canon
}

// HashKey computes the by_hash signature key: SHA-256 over the canonical
// JSON form of the request canon.
func HashKey(canon map[string]any) string {
	sum := sha256.Sum256(event.CanonicalJSON(canon))
	return hex.EncodeToString(sum[:])
}

// IndexKey computes the by_index signature key: the 1-based emission order
// of the kind-restricted subsequence.
func IndexKey(emissionIndex int) string {
	return strconv.Itoa(emissionIndex)
}

// SignatureKey derives the fixture signature key for a request under the
// configured Policy.
func SignatureKey(policy Policy, canon map[string]any, emissionIndex int) string {
	if policy == PolicyByIndex {
		return IndexKey(emissionIndex)
	}
	return HashKey(canon)
}
