package policy

import (
	"errors"
	"fmt"
)

// ErrInvalidSpec is returned (wrapped) when a resolved Spec fails validation;
// callers surface this as a TOOLING failure before pipeline evaluation
// starts (spec.md §4.5 "Failure semantics").
var ErrInvalidSpec = errors.New("invalid spec")

// Default returns a Spec with every option at its spec.md §3.4 default:
// fixture_policy=by_hash, replay.mode=offline, match modes=signature-based,
// refinement.mode=skeleton, contracts.network.default=allow.
func Default(name string, command []string) Spec {
	return Spec{
		Name:          name,
		Command:       command,
		FixturePolicy: FixtureByHash,
		Replay: Replay{
			Mode:          ReplayOffline,
			LLMMatchMode:  MatchSignature,
			ToolMatchMode: MatchArgsSignature,
		},
		Refinement: Refinement{
			Mode:              RefinementSkeleton,
			AllowNewToolNames: true,
		},
		Contracts: ContractsPolicy{
			Network: NetworkPolicy{Default: NetworkAllow},
		},
	}
}

// Validate rejects a Spec whose shape the core cannot evaluate, before any
// event is processed (spec.md §4.5: "Invalid spec is rejected before
// evaluation starts as a TOOLING failure").
func Validate(s Spec) error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSpec)
	}
	if len(s.Command) == 0 {
		return fmt.Errorf("%w: command is required", ErrInvalidSpec)
	}
	switch s.FixturePolicy {
	case FixtureByHash, FixtureByIndex:
	default:
		return fmt.Errorf("%w: unknown fixture_policy %q", ErrInvalidSpec, s.FixturePolicy)
	}
	switch s.Replay.Mode {
	case ReplayOffline, ReplayOnline:
	default:
		return fmt.Errorf("%w: unknown replay.mode %q", ErrInvalidSpec, s.Replay.Mode)
	}
	switch s.Replay.LLMMatchMode {
	case MatchSignature, MatchSequence:
	default:
		return fmt.Errorf("%w: unknown replay.llm_match_mode %q", ErrInvalidSpec, s.Replay.LLMMatchMode)
	}
	switch s.Replay.ToolMatchMode {
	case MatchArgsSignature, MatchSequence:
	default:
		return fmt.Errorf("%w: unknown replay.tool_match_mode %q", ErrInvalidSpec, s.Replay.ToolMatchMode)
	}
	switch s.Refinement.Mode {
	case RefinementNone, RefinementSkeleton, RefinementStrict:
	default:
		return fmt.Errorf("%w: unknown refinement.mode %q", ErrInvalidSpec, s.Refinement.Mode)
	}
	if s.Contracts.Network.Default != "" {
		switch s.Contracts.Network.Default {
		case NetworkAllow, NetworkDeny:
		default:
			return fmt.Errorf("%w: unknown contracts.network.default %q", ErrInvalidSpec, s.Contracts.Network.Default)
		}
	}
	for _, rb := range s.Contracts.Sequence.RequireBefore {
		if rb.Before == "" || rb.After == "" {
			return fmt.Errorf("%w: require_before entries need both before and after", ErrInvalidSpec)
		}
	}
	return nil
}

// IsWriteTool reports whether name is tagged as a write-side-effect tool
// (spec.md §3.4 "contracts.side_effects.deny_write_tools").
func (s Spec) IsWriteTool(name string) bool {
	for _, n := range s.Contracts.SideEffects.WriteTools {
		if n == name {
			return true
		}
	}
	return false
}

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}
