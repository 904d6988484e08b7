// Command trtd wires the orchestrator to a storage backend and telemetry,
// then either runs a single demonstration spec or starts a Temporal worker,
// grounded on cmd/demo's "construct roots, run" style. It intentionally does
// not parse spec files or flags into a Spec (spec.md §1 Out-of-scope): the
// demonstration spec below is hardcoded the same way cmd/demo hardcodes a
// stub planner, and real deployments embed this module's packages behind
// their own spec-file driver.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"go.temporal.io/sdk/client"

	"github.com/trajectly/trt/internal/config"
	"github.com/trajectly/trt/orchestrator"
	"github.com/trajectly/trt/orchestrator/temporal"
	"github.com/trajectly/trt/policy"
	"github.com/trajectly/trt/store/fsstore"
	"github.com/trajectly/trt/telemetry"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("TRT_CONFIG_DIR", "."), "directory holding a .env file")
	flag.Parse()

	cfg, err := config.Load(filepath.Join(*configDir, ".env"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, metrics, tracer := buildTelemetry(cfg.TelemetryBackend)

	fs, err := fsstore.New(cfg.StateDir)
	if err != nil {
		log.Fatalf("init fsstore at %s: %v", cfg.StateDir, err)
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Baselines:         fs,
		Artifacts:         fs,
		StateDir:          cfg.StateDir,
		CIOverride:        cfg.CIOverride,
		SubprocessTimeout: cfg.SubprocessTimeout,
		ShrinkBudget:      cfg.ShrinkBudget,
		PredicateConfig:   cfg.PredicateConfig,
		Logger:            logger,
		Metrics:           metrics,
		Tracer:            tracer,
	})
	if err != nil {
		log.Fatalf("init orchestrator: %v", err)
	}

	ctx := context.Background()

	if cfg.TemporalTaskQueue != "" {
		runWorker(ctx, cfg, orch, logger)
		return
	}

	runDemo(ctx, orch)
}

func buildTelemetry(backend string) (telemetry.Logger, telemetry.Metrics, telemetry.Tracer) {
	if backend == "noop" {
		return telemetry.NewNoopLogger(), telemetry.NewNoopMetrics(), telemetry.NewNoopTracer()
	}
	return telemetry.NewClueLogger(), telemetry.NewClueMetrics(), telemetry.NewClueTracer()
}

// runWorker starts a Temporal worker polling cfg.TemporalTaskQueue, blocking
// until interrupted.
func runWorker(ctx context.Context, cfg config.Config, orch *orchestrator.Orchestrator, logger telemetry.Logger) {
	cli, err := client.Dial(client.Options{HostPort: cfg.TemporalHostPort})
	if err != nil {
		log.Fatalf("dial temporal at %s: %v", cfg.TemporalHostPort, err)
	}
	defer cli.Close()

	w, err := temporal.New(temporal.Options{
		Client:       cli,
		TaskQueue:    cfg.TemporalTaskQueue,
		Orchestrator: orch,
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("init temporal worker: %v", err)
	}

	logger.Info(ctx, "trtd worker starting", "task_queue", cfg.TemporalTaskQueue)
	if err := w.Start(); err != nil {
		log.Fatalf("temporal worker: %v", err)
	}
}

// runDemo records then runs a single hardcoded spec against a trivial
// well-behaved agent-under-test, printing the resulting verdict. This is
// cmd/trtd's equivalent of cmd/demo's stub-planner walkthrough: it exercises
// the wiring, not a real regression suite.
func runDemo(ctx context.Context, orch *orchestrator.Orchestrator) {
	spec := demoSpec()

	if _, err := orch.Record(ctx, spec); err != nil {
		log.Fatalf("record demo baseline: %v", err)
	}

	result, err := orch.Run(ctx, spec)
	if err != nil {
		log.Fatalf("run demo spec: %v", err)
	}

	fmt.Printf("spec=%s status=%s exit_code=%d\n", spec.Name, result.Verdict.Status, result.ExitCode)
	if result.Verdict.PrimaryViolation != nil {
		fmt.Printf("primary_violation=%s witness=%d\n", result.Verdict.PrimaryViolation.Code, result.Verdict.PrimaryViolation.EventIndex)
	}
	os.Exit(result.ExitCode)
}

func demoSpec() policy.Spec {
	s := policy.Default("trtd-demo-echo", []string{
		"/bin/sh", "-c",
		`cat <<'EOF'
{"event_type":"run_started","seq":1,"run_id":"demo-run","rel_ms":0,"payload":{"spec_name":"trtd-demo-echo"}}
{"event_type":"tool_called","seq":2,"run_id":"demo-run","rel_ms":1,"payload":{"tool_name":"echo","input":{"text":"hi"}}}
{"event_type":"tool_returned","seq":3,"run_id":"demo-run","rel_ms":2,"payload":{"tool_name":"echo","output":{"text":"hi"}}}
{"event_type":"run_finished","seq":4,"run_id":"demo-run","rel_ms":3,"payload":{"status":"ok"}}
EOF
`,
	})
	s.Refinement.AllowNewToolNames = true
	s.Budgets = policy.BudgetThresholds{MaxLatencyMS: 30000}
	return s
}
