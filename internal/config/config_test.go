package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trajectly/trt/counterexample"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TRT_STATE_DIR", "TRT_CI_OVERRIDE", "TRT_SUBPROCESS_TIMEOUT",
		"TRT_SHRINK_MAX_SECONDS", "TRT_SHRINK_MAX_ITERATIONS",
		"TRT_PRICE_PAYLOAD_PATHS", "TRT_REFUND_PATTERN",
		"TRT_TELEMETRY_BACKEND", "TRT_TEMPORAL_TASK_QUEUE", "TRT_TEMPORAL_HOST_PORT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "./.trt", cfg.StateDir)
	assert.False(t, cfg.CIOverride)
	assert.Equal(t, "clue", cfg.TelemetryBackend)
	assert.Equal(t, 500, cfg.ShrinkBudget.MaxIterations)
	assert.Nil(t, cfg.PredicateConfig.RefundPattern)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRT_STATE_DIR", "/tmp/trt-state")
	t.Setenv("TRT_CI_OVERRIDE", "true")
	t.Setenv("TRT_SHRINK_MAX_SECONDS", "5")
	t.Setenv("TRT_SHRINK_MAX_ITERATIONS", "10")
	t.Setenv("TRT_PRICE_PAYLOAD_PATHS", "args.amount_cents, args.total ,")
	t.Setenv("TRT_REFUND_PATTERN", `^refund_`)
	t.Setenv("TRT_TELEMETRY_BACKEND", "noop")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/trt-state", cfg.StateDir)
	assert.True(t, cfg.CIOverride)
	assert.Equal(t, 5.0, cfg.ShrinkBudget.MaxSeconds)
	assert.Equal(t, 10, cfg.ShrinkBudget.MaxIterations)
	assert.Equal(t, []string{"args.amount_cents", "args.total"}, cfg.PredicateConfig.PricePayloadPaths)
	require.NotNil(t, cfg.PredicateConfig.RefundPattern)
	assert.True(t, cfg.PredicateConfig.RefundPattern.MatchString("refund_issued"))
	assert.Equal(t, "noop", cfg.TelemetryBackend)
}

func TestLoad_InvalidTelemetryBackendRejected(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRT_TELEMETRY_BACKEND", "datadog")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRT_TELEMETRY_BACKEND")
}

func TestLoad_InvalidRefundPatternRejected(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRT_REFUND_PATTERN", `(unclosed`)
	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_ReadsDotEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("TRT_STATE_DIR=/from/dotenv\n"), 0o644))

	cfg, err := Load(envPath)
	require.NoError(t, err)
	assert.Equal(t, "/from/dotenv", cfg.StateDir)
}

func TestLoad_MissingDotEnvFileIsNotAnError(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.env"))
	require.NoError(t, err)
}

func TestValidate_RejectsNonPositiveShrinkBudget(t *testing.T) {
	cfg := Config{
		StateDir:          "x",
		SubprocessTimeout: time.Second,
		ShrinkBudget:      counterexample.Budget{MaxSeconds: 0, MaxIterations: 1},
		TelemetryBackend:  "noop",
	}
	assert.Error(t, cfg.Validate())
}
