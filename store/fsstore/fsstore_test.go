package fsstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trajectly/trt/event"
	"github.com/trajectly/trt/fixture"
	"github.com/trajectly/trt/store"
)

func sampleBaseline(t *testing.T, specName string) store.Baseline {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"spec_name": specName})
	require.NoError(t, err)
	e, err := event.Parse(event.Envelope{EventType: string(event.TypeRunStarted), Seq: 1, RunID: "r1", Payload: payload})
	require.NoError(t, err)
	return store.Baseline{
		SpecName:          specName,
		Trace:             []event.Event{e},
		Fixtures:          []fixture.Entry{{Kind: fixture.KindTool, SignatureKey: "k1", Index: 1, Value: json.RawMessage(`{"ok":true}`)}},
		NormalizerVersion: "v1",
	}
}

func TestStore_WriteResolveRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	b := sampleBaseline(t, "checkout-flow")
	require.NoError(t, s.Write(context.Background(), b))

	got, err := s.Resolve(context.Background(), "checkout-flow")
	require.NoError(t, err)
	assert.Equal(t, b.SpecName, got.SpecName)
	assert.Equal(t, b.NormalizerVersion, got.NormalizerVersion)
	require.Len(t, got.Trace, 1)
	assert.Equal(t, event.TypeRunStarted, got.Trace[0].EventType)
}

func TestStore_ResolveMissingReturnsWrappedError(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Resolve(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrBaselineMissing)
}

func TestStore_ListReturnsSortedSpecNames(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Write(context.Background(), sampleBaseline(t, "zeta")))
	require.NoError(t, s.Write(context.Background(), sampleBaseline(t, "alpha")))

	names, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)
}

func TestStore_WriteOverwritesPreviousBaselineAtomically(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Write(context.Background(), sampleBaseline(t, "flow")))
	second := sampleBaseline(t, "flow")
	second.NormalizerVersion = "v2"
	require.NoError(t, s.Write(context.Background(), second))

	got, err := s.Resolve(context.Background(), "flow")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.NormalizerVersion)

	// no stray temp files left behind
	entries, err := filepath.Glob(filepath.Join(s.Dir, "tmp", "*"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestArtifactStore_PutBytesGetBytesAndList(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.PutBytes(ctx, "reports/run-1/report.json", []byte(`{"status":"fail"}`)))
	require.NoError(t, s.PutBytes(ctx, "reports/run-1/repro.json", []byte(`[]`)))

	data, err := s.GetBytes(ctx, "reports/run-1/report.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"fail"}`, string(data))

	keys, err := s.List(ctx, "reports/run-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"reports/run-1/report.json", "reports/run-1/repro.json"}, keys)
}

func TestArtifactStore_PutFileCopiesContents(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "source.bin")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	require.NoError(t, s.PutFile(ctx, "repros/run-1/blob", src))
	data, err := s.GetBytes(ctx, "repros/run-1/blob")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}
