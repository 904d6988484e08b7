// Package policy defines the resolved Spec (spec.md §3.4): the immutable
// configuration the core pipeline evaluates a run against. Spec values are
// produced by the orchestrator's caller (CLI, config loader) after any
// extends/deep-merge resolution; the core never performs inheritance.
package policy

// FixturePolicy selects fixture key derivation (spec.md §4.2).
type FixturePolicy string

const (
	FixtureByHash  FixturePolicy = "by_hash"
	FixtureByIndex FixturePolicy = "by_index"
)

// ReplayMode selects whether the replay guard blocks outbound network.
type ReplayMode string

const (
	ReplayOffline ReplayMode = "offline"
	ReplayOnline  ReplayMode = "online"
)

// MatchMode selects fixture lookup semantics per request kind (spec.md §3.4).
type MatchMode string

const (
	MatchSignature      MatchMode = "signature_match"
	MatchArgsSignature  MatchMode = "args_signature_match"
	MatchSequence       MatchMode = "sequence_match"
)

// RefinementMode selects the refinement checker's strictness (spec.md §4.6).
type RefinementMode string

const (
	RefinementNone     RefinementMode = "none"
	RefinementSkeleton RefinementMode = "skeleton"
	RefinementStrict   RefinementMode = "strict"
)

// NetworkDefault is the contract monitor's default network posture
// (spec.md §4.5 "Network").
type NetworkDefault string

const (
	NetworkAllow NetworkDefault = "allow"
	NetworkDeny  NetworkDefault = "deny"
)

// Replay groups replay.* options (spec.md §3.4).
type Replay struct {
	Mode           ReplayMode
	StrictSequence bool
	LLMMatchMode   MatchMode
	ToolMatchMode  MatchMode
}

// Refinement groups refinement.* options (spec.md §3.4).
type Refinement struct {
	Mode                     RefinementMode
	AllowExtraLLMSteps       bool
	AllowExtraTools          []string
	AllowExtraSideEffectTools []string
	AllowNewToolNames        bool
	IgnoreCallTools          []string
}

// RequireBefore is one contracts.sequence.require_before pair.
type RequireBefore struct {
	Before string
	After  string
}

// ToolsPolicy groups contracts.tools.* options.
type ToolsPolicy struct {
	Allow            []string
	Deny             []string
	MaxCallsTotal    int // 0 means unset/no budget
	MaxCallsPerTool  map[string]int
}

// SequencePolicy groups contracts.sequence.* options.
type SequencePolicy struct {
	Require       []string
	Forbid        []string
	RequireBefore []RequireBefore
	Eventually    []string
	Never         []string
	AtMostOnce    []string
}

// SideEffectsPolicy groups contracts.side_effects.* options.
type SideEffectsPolicy struct {
	DenyWriteTools bool
	// WriteTools names the tools tagged as write-side-effect, since v1 has
	// no built-in classifier (spec.md §3.4 "semantics: forbids tool names
	// tagged as write-side-effect by the caller/spec").
	WriteTools []string
}

// NetworkPolicy groups contracts.network.* options.
type NetworkPolicy struct {
	Default      NetworkDefault
	AllowDomains []string
}

// DataLeakPolicy groups contracts.data_leak.* options.
type DataLeakPolicy struct {
	DenyPIIOutbound bool
	OutboundKinds   []string // subset of {TOOL_CALL, LLM_REQUEST}
}

// ArgField is one field constraint within an ArgSchema (spec.md §3.4
// "contracts.args").
type ArgField struct {
	Name     string
	Required bool
	Type     string // "string", "number", "integer", "boolean", "array", "object"
	Min      *float64
	Max      *float64
	Enum     []string
	Regex    string
}

// ArgSchema is the per-tool argument contract (spec.md §3.4, §4.5 "Args").
type ArgSchema struct {
	ToolName string
	Fields   []ArgField
}

// ContractsPolicy groups every contracts.* family (spec.md §3.4).
type ContractsPolicy struct {
	Tools       ToolsPolicy
	Sequence    SequencePolicy
	SideEffects SideEffectsPolicy
	Network     NetworkPolicy
	DataLeak    DataLeakPolicy
	Args        []ArgSchema
}

// BudgetThresholds groups budget_thresholds.* options (spec.md §3.4).
type BudgetThresholds struct {
	MaxLatencyMS int64
	MaxToolCalls int
	MaxTokens    int
}

// Spec is the resolved, immutable input to the core pipeline (spec.md §3.4).
type Spec struct {
	Name    string
	Command []string
	Workdir string
	Env     map[string]string

	FixturePolicy FixturePolicy
	Replay        Replay
	Refinement    Refinement
	Contracts     ContractsPolicy
	Budgets       BudgetThresholds

	// Redact lists regex patterns applied before hashing and predicate
	// extraction (spec.md §3.4, §9 "Redaction ordering").
	Redact []string
}

// RefundPattern is the regex used by abstraction's refund_count predicate
// (spec.md §4.4). It is not part of the resolved-spec option list in §3.4.
// No package in this module uses this type: the predicate config that
// abstraction.Run reads is abstraction.PredicateConfig, whose RefundPattern
// is a compiled *regexp.Regexp.
type RefundPattern struct {
	Pattern string
}
