// Package store defines the two narrow storage interfaces the engine
// depends on (spec.md §4.10): BaselineStore for recorded baseline traces and
// fixture bundles, and ArtifactStore for reports, counterexample prefixes,
// and other run artifacts.
package store

import (
	"context"
	"encoding/json"

	"github.com/trajectly/trt/event"
	"github.com/trajectly/trt/fixture"
)

// Baseline is one recorded spec run: its trace, its fixture bundle entries,
// and the normalizer version they were captured under (spec.md §4.10).
type Baseline struct {
	SpecName          string
	Trace             []event.Event
	Fixtures          []fixture.Entry
	NormalizerVersion string
}

// BaselineStore resolves and persists baselines (spec.md §4.10).
type BaselineStore interface {
	// Resolve returns the baseline for specName, or ErrBaselineMissing if
	// none has been recorded.
	Resolve(ctx context.Context, specName string) (Baseline, error)
	// Write atomically replaces the baseline for b.SpecName.
	Write(ctx context.Context, b Baseline) error
	// List returns every recorded baseline's spec name.
	List(ctx context.Context) ([]string, error)
}

// ArtifactStore persists opaque run artifacts: reports, counterexample
// prefixes, repro bundles (spec.md §4.10).
type ArtifactStore interface {
	PutBytes(ctx context.Context, key string, data []byte) error
	PutFile(ctx context.Context, key string, path string) error
	GetBytes(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// MarshalBaseline and UnmarshalBaseline give BaselineStore implementations a
// shared, stable on-disk/on-wire shape without forcing every backend to
// reinvent the envelope.
type baselineDoc struct {
	SpecName          string           `json:"spec_name"`
	Trace             []event.Envelope `json:"trace"`
	Fixtures          []fixture.Entry  `json:"fixtures"`
	NormalizerVersion string           `json:"normalizer_version"`
}

// MarshalBaseline serializes b to its canonical JSON document form.
func MarshalBaseline(b Baseline) ([]byte, error) {
	doc := baselineDoc{SpecName: b.SpecName, Fixtures: b.Fixtures, NormalizerVersion: b.NormalizerVersion}
	for _, e := range b.Trace {
		env, err := e.ToEnvelope()
		if err != nil {
			return nil, err
		}
		doc.Trace = append(doc.Trace, env)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// UnmarshalBaseline parses a document produced by MarshalBaseline.
func UnmarshalBaseline(data []byte) (Baseline, error) {
	var doc baselineDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Baseline{}, err
	}
	b := Baseline{SpecName: doc.SpecName, Fixtures: doc.Fixtures, NormalizerVersion: doc.NormalizerVersion}
	for _, env := range doc.Trace {
		e, err := event.Parse(env)
		if err != nil {
			return Baseline{}, err
		}
		b.Trace = append(b.Trace, e)
	}
	return b, nil
}
