// Package config loads cmd/trtd's environment configuration, adapted from
// database.LoadConfigFromEnv's getEnvOrDefault-plus-Validate shape: flat
// env-var reads with production defaults, a single Validate pass, and no
// registry machinery (TRT has one orchestrator to configure, not a fleet of
// agents/chains/MCP servers).
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/trajectly/trt/abstraction"
	"github.com/trajectly/trt/counterexample"
)

// Config is cmd/trtd's process-wide configuration.
type Config struct {
	// StateDir roots the default filesystem store (baselines/, fixtures/,
	// reports/, repros/, tmp/).
	StateDir string

	// CIOverride lets Record write a baseline even when TRAJECTLY_CI marks
	// the process as running in CI (it bypasses the CI baseline-write guard).
	CIOverride bool

	// SubprocessTimeout bounds how long the orchestrator waits for the
	// agent-under-test subprocess to exit.
	SubprocessTimeout time.Duration

	// ShrinkBudget bounds the counterexample shrinker.
	ShrinkBudget counterexample.Budget

	// PredicateConfig configures abstraction's semantic predicates.
	PredicateConfig abstraction.PredicateConfig

	// TelemetryBackend selects "noop" or "clue" (default "clue").
	TelemetryBackend string

	// TemporalTaskQueue is the queue name trtd's Temporal worker polls; a
	// non-empty value runs trtd as that worker. Empty disables the Temporal
	// backend.
	TemporalTaskQueue string

	// TemporalHostPort is the Temporal frontend address used to build the
	// client when TemporalTaskQueue is set.
	TemporalHostPort string
}

// Load reads envPath (if present) via godotenv then builds a Config from the
// environment, applying defaults and validating the result.
func Load(envPath string) (Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: load %s: %w", envPath, err)
		}
	}

	subprocessTimeout, err := parseDuration("TRT_SUBPROCESS_TIMEOUT", "5m")
	if err != nil {
		return Config{}, err
	}

	maxSeconds, err := strconv.ParseFloat(getEnvOrDefault("TRT_SHRINK_MAX_SECONDS", "30"), 64)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid TRT_SHRINK_MAX_SECONDS: %w", err)
	}
	maxIterations, err := strconv.Atoi(getEnvOrDefault("TRT_SHRINK_MAX_ITERATIONS", "500"))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid TRT_SHRINK_MAX_ITERATIONS: %w", err)
	}

	var refundPattern *regexp.Regexp
	if pattern := os.Getenv("TRT_REFUND_PATTERN"); pattern != "" {
		refundPattern, err = regexp.Compile(pattern)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid TRT_REFUND_PATTERN: %w", err)
		}
	}

	cfg := Config{
		StateDir:          getEnvOrDefault("TRT_STATE_DIR", "./.trt"),
		CIOverride:        getEnvOrDefault("TRT_CI_OVERRIDE", "false") == "true",
		SubprocessTimeout: subprocessTimeout,
		ShrinkBudget: counterexample.Budget{
			MaxSeconds:    maxSeconds,
			MaxIterations: maxIterations,
		},
		PredicateConfig: abstraction.PredicateConfig{
			PricePayloadPaths: splitNonEmpty(os.Getenv("TRT_PRICE_PAYLOAD_PATHS"), ","),
			RefundPattern:     refundPattern,
		},
		TelemetryBackend:  getEnvOrDefault("TRT_TELEMETRY_BACKEND", "clue"),
		TemporalTaskQueue: os.Getenv("TRT_TEMPORAL_TASK_QUEUE"),
		TemporalHostPort:  getEnvOrDefault("TRT_TEMPORAL_HOST_PORT", "localhost:7233"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the loaded configuration for internally-consistent values.
func (c Config) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("TRT_STATE_DIR must not be empty")
	}
	if c.SubprocessTimeout <= 0 {
		return fmt.Errorf("TRT_SUBPROCESS_TIMEOUT must be positive")
	}
	if c.ShrinkBudget.MaxSeconds <= 0 {
		return fmt.Errorf("TRT_SHRINK_MAX_SECONDS must be positive")
	}
	if c.ShrinkBudget.MaxIterations < 1 {
		return fmt.Errorf("TRT_SHRINK_MAX_ITERATIONS must be at least 1")
	}
	switch c.TelemetryBackend {
	case "noop", "clue":
	default:
		return fmt.Errorf("TRT_TELEMETRY_BACKEND must be %q or %q, got %q", "noop", "clue", c.TelemetryBackend)
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseDuration(key, defaultVal string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnvOrDefault(key, defaultVal))
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return d, nil
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
