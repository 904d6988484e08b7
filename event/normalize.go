package event

// Normalized wraps a canonicalized Event with the derived Kind token used by
// abstraction.Run and the contract monitor (spec.md §3.1).
type Normalized struct {
	Event
	Kind        Kind
	StableHash  string
}

// Normalize canonicalizes e and attaches its Kind and stable hash. StableHash
// is simply the canonical EventID; it is exposed under its own name here
// because spec.md §3.1 describes it as a distinct attribute of the
// normalized view even though, in this implementation, hashing happens once.
func Normalize(e Event, r *Redactor) Normalized {
	canon := Canonicalize(e, r)
	return Normalized{
		Event:      canon,
		Kind:       canon.KindOf(),
		StableHash: canon.EventID,
	}
}

// NormalizeTrace normalizes every event in a trace, in order.
func NormalizeTrace(events []Event, r *Redactor) []Normalized {
	out := make([]Normalized, len(events))
	for i, e := range events {
		out[i] = Normalize(e, r)
	}
	return out
}
