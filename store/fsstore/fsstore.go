// Package fsstore is the default local-filesystem BaselineStore and
// ArtifactStore (spec.md §4.10): a state directory rooted layout with
// baselines/, fixtures/, reports/, repros/, tmp/ subdirectories, atomic
// writes via temp-file-then-rename.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trajectly/trt/store"
)

// ErrBaselineMissing is returned (wrapped) when no baseline is recorded for
// a spec name; callers surface this as the TOOLING code BASELINE_MISSING.
var ErrBaselineMissing = errors.New("baseline missing")

// Store implements store.BaselineStore and store.ArtifactStore rooted at
// Dir (spec.md §4.10 "Stores").
type Store struct {
	Dir string
}

// New prepares the rooted directory layout (baselines/, fixtures/, reports/,
// repros/, tmp/) under dir, creating any that don't exist.
func New(dir string) (*Store, error) {
	for _, sub := range []string{"baselines", "fixtures", "reports", "repros", "tmp"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("fsstore: create %s: %w", sub, err)
		}
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) baselinePath(specName string) string {
	return filepath.Join(s.Dir, "baselines", sanitize(specName)+".json")
}

// Resolve implements store.BaselineStore.
func (s *Store) Resolve(_ context.Context, specName string) (store.Baseline, error) {
	data, err := os.ReadFile(s.baselinePath(specName))
	if errors.Is(err, os.ErrNotExist) {
		return store.Baseline{}, fmt.Errorf("%w: spec %q", ErrBaselineMissing, specName)
	}
	if err != nil {
		return store.Baseline{}, fmt.Errorf("fsstore: read baseline: %w", err)
	}
	return store.UnmarshalBaseline(data)
}

// Write implements store.BaselineStore with temp-file+rename atomicity
// (spec.md §4.10 "Writes to final locations go through a temp file +
// rename").
func (s *Store) Write(_ context.Context, b store.Baseline) error {
	data, err := store.MarshalBaseline(b)
	if err != nil {
		return fmt.Errorf("fsstore: marshal baseline: %w", err)
	}
	return atomicWrite(s.Dir, s.baselinePath(b.SpecName), data)
}

// List implements store.BaselineStore.
func (s *Store) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.Dir, "baselines"))
	if err != nil {
		return nil, fmt.Errorf("fsstore: list baselines: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// PutBytes implements store.ArtifactStore.
func (s *Store) PutBytes(_ context.Context, key string, data []byte) error {
	return atomicWrite(s.Dir, filepath.Join(s.Dir, filepath.FromSlash(key)), data)
}

// PutFile implements store.ArtifactStore by copying path's contents to key.
func (s *Store) PutFile(ctx context.Context, key string, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("fsstore: read source file: %w", err)
	}
	return s.PutBytes(ctx, key, data)
}

// GetBytes implements store.ArtifactStore.
func (s *Store) GetBytes(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, filepath.FromSlash(key)))
	if err != nil {
		return nil, fmt.Errorf("fsstore: read %q: %w", key, err)
	}
	return data, nil
}

// List implements store.ArtifactStore, returning every key under prefix.
func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	root := filepath.Join(s.Dir, filepath.FromSlash(prefix))
	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.Dir, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fsstore: list %q: %w", prefix, err)
	}
	sort.Strings(out)
	return out, nil
}

func atomicWrite(root, finalPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("fsstore: mkdir: %w", err)
	}
	tmpDir := filepath.Join(root, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("fsstore: mkdir tmp: %w", err)
	}
	tmp := filepath.Join(tmpDir, uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("fsstore: write temp file: %w", err)
	}
	if err := os.Rename(tmp, finalPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("fsstore: rename into place: %w", err)
	}
	return nil
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
