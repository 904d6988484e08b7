// Package orchestrator drives one spec evaluation end to end (spec.md §4.9):
// recording a baseline, replaying a candidate under the fixture store and
// replay guard, running it through the pipeline (§4.1, §4.4–§4.7), shrinking
// the counterexample, and persisting the verdict and artifacts. The overall
// struct shape — a small set of injected dependencies plus noop-substituted
// telemetry — follows runtime/agent/runtime/runtime.go's Runtime/Options
// pattern, scaled down to TRT's single-pipeline scope.
//
// Subprocess contract. The agent under test runs as a genuinely separate OS
// process; spec.md describes what the orchestrator must do with it but not
// how fixture data crosses the process boundary, since fixture.Bundle is a
// plain in-memory Go type. This implementation resolves that by requiring
// the agent command to itself be an instrumented program linking this
// module's fixture and guard packages: the orchestrator writes a RunConfig
// JSON document to a temp file and points the subprocess at it via the
// TRT_RUN_CONFIG environment variable. The subprocess is expected to emit
// one event.Envelope JSON object per line on stdout as it runs and, in
// record mode, persist its recorded fixture.Entry list as a JSON array to
// RunConfig.FixturePath on exit; in replay mode it reads that same array
// back (via fixture.Load) and replays it instead of making real calls. The
// orchestrator never reaches into the subprocess's memory — it only ever
// sees the RunConfig it wrote, the fixture file the subprocess reads or
// writes, and the JSONL trace on stdout.
package orchestrator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/trajectly/trt/abstraction"
	"github.com/trajectly/trt/contract"
	"github.com/trajectly/trt/counterexample"
	"github.com/trajectly/trt/event"
	"github.com/trajectly/trt/fixture"
	"github.com/trajectly/trt/guard"
	"github.com/trajectly/trt/policy"
	"github.com/trajectly/trt/refinement"
	"github.com/trajectly/trt/store"
	"github.com/trajectly/trt/telemetry"
	"github.com/trajectly/trt/verdict"
	"github.com/trajectly/trt/violation"
)

// EnvRunConfig names the environment variable pointing the agent subprocess
// at its RunConfig document.
const EnvRunConfig = "TRT_RUN_CONFIG"

// CIEnvVar is the environment variable the CI-write guard checks
// (spec.md §4.9 "CI-write guard").
const CIEnvVar = "TRAJECTLY_CI"

// ErrCIBaselineWriteDenied is returned by Record when CI mode is detected
// and the caller did not set an explicit override.
var ErrCIBaselineWriteDenied = errors.New("baseline write denied in CI")

// Mode selects whether the agent subprocess is recording a new baseline or
// replaying against an existing one.
type Mode string

const (
	ModeRecord Mode = "record"
	ModeReplay Mode = "replay"
)

// RunConfig is the JSON document handed to the agent subprocess (see the
// package doc comment's "Subprocess contract").
type RunConfig struct {
	SpecName          string `json:"spec_name"`
	Mode              Mode   `json:"mode"`
	FixturePath       string `json:"fixture_path"`
	NormalizerVersion string `json:"normalizer_version"`
	StrictSequence    bool   `json:"strict_sequence"`
	LLMMatchMode      string `json:"llm_match_mode"`
	ToolMatchMode     string `json:"tool_match_mode"`
}

// Result is what one spec evaluation produces.
type Result struct {
	Verdict   verdict.Verdict
	Telemetry telemetry.PipelineTelemetry
	ExitCode  int
}

// Orchestrator ties fixture, guard, abstraction, contract, refinement,
// verdict, and counterexample together against the two stores (spec.md
// §4.10).
type Orchestrator struct {
	Baselines store.BaselineStore
	Artifacts store.ArtifactStore

	// StateDir roots the scratch files the orchestrator exchanges with the
	// agent subprocess (run config, staged fixtures) for the lifetime of one
	// Record/Run call; it is independent of whatever directory a
	// filesystem-backed store uses, since nothing requires them to share a
	// root when a non-filesystem backend is configured.
	StateDir string

	// CIOverride bypasses the CI-write guard for Record (spec.md §4.9
	// "CI-write guard").
	CIOverride bool

	// SubprocessTimeout bounds the agent subprocess wall clock (spec.md §5
	// "Cancellation & timeouts"); zero means unbounded.
	SubprocessTimeout time.Duration

	// ShrinkBudget bounds the counterexample shrinker (spec.md §5, §4.8).
	ShrinkBudget counterexample.Budget

	// PredicateConfig configures abstraction's predicate extraction
	// (spec.md §4.4).
	PredicateConfig abstraction.PredicateConfig

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer
}

// Options constructs an Orchestrator.
type Options struct {
	Baselines         store.BaselineStore
	Artifacts         store.ArtifactStore
	StateDir          string
	CIOverride        bool
	SubprocessTimeout time.Duration
	ShrinkBudget      counterexample.Budget
	PredicateConfig   abstraction.PredicateConfig
	Logger            telemetry.Logger
	Metrics           telemetry.Metrics
	Tracer            telemetry.Tracer
}

// New validates opts and prepares StateDir. Nil Logger/Metrics/Tracer are
// substituted with noop implementations.
func New(opts Options) (*Orchestrator, error) {
	if opts.Baselines == nil {
		return nil, errors.New("orchestrator: Baselines store is required")
	}
	if opts.Artifacts == nil {
		return nil, errors.New("orchestrator: Artifacts store is required")
	}
	if opts.StateDir == "" {
		return nil, errors.New("orchestrator: StateDir is required")
	}
	if err := os.MkdirAll(opts.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("orchestrator: create state dir: %w", err)
	}
	logger, metrics, tracer := opts.Logger, opts.Metrics, opts.Tracer
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Orchestrator{
		Baselines:         opts.Baselines,
		Artifacts:         opts.Artifacts,
		StateDir:          opts.StateDir,
		CIOverride:        opts.CIOverride,
		SubprocessTimeout: opts.SubprocessTimeout,
		ShrinkBudget:      opts.ShrinkBudget,
		PredicateConfig:   opts.PredicateConfig,
		logger:            logger,
		metrics:           metrics,
		tracer:            tracer,
	}, nil
}

// Record implements spec.md §4.9 item 1: run the agent command with its
// fixture store in write mode and no replay guard, then persist the
// resulting trace and fixture bundle as the new baseline.
func (o *Orchestrator) Record(ctx context.Context, spec policy.Spec) (store.Baseline, error) {
	if err := policy.Validate(spec); err != nil {
		return store.Baseline{}, err
	}
	if isCI() && !o.CIOverride {
		return store.Baseline{}, fmt.Errorf("%w: spec %q", ErrCIBaselineWriteDenied, spec.Name)
	}
	redactor, err := event.NewRedactor(spec.Redact)
	if err != nil {
		return store.Baseline{}, err
	}

	runDir, err := os.MkdirTemp(o.StateDir, "record-"+specKey(spec.Name)+"-")
	if err != nil {
		return store.Baseline{}, fmt.Errorf("orchestrator: create run dir: %w", err)
	}
	defer os.RemoveAll(runDir)

	fixturePath := filepath.Join(runDir, "fixtures.json")
	cfg := RunConfig{
		SpecName:          spec.Name,
		Mode:              ModeRecord,
		FixturePath:       fixturePath,
		NormalizerVersion: event.NormalizerVersion,
		StrictSequence:    spec.Replay.StrictSequence,
		LLMMatchMode:      string(spec.Replay.LLMMatchMode),
		ToolMatchMode:     string(spec.Replay.ToolMatchMode),
	}

	stdout, timedOut, runErr := o.runSubprocess(ctx, spec, cfg)
	if timedOut {
		return store.Baseline{}, fmt.Errorf("orchestrator: recording %q timed out", spec.Name)
	}

	trace, ingestViolation := ingestTrace(stdout, redactor)
	if ingestViolation != nil {
		return store.Baseline{}, fmt.Errorf("orchestrator: recording %q: %s", spec.Name, ingestViolation.Message)
	}
	if err := event.ValidateTrace(trace); err != nil {
		return store.Baseline{}, fmt.Errorf("orchestrator: recording %q produced an invalid trace: %w", spec.Name, err)
	}
	if runErr != nil {
		return store.Baseline{}, fmt.Errorf("orchestrator: agent command failed while recording %q: %w", spec.Name, runErr)
	}

	entries, err := readFixtureEntries(fixturePath)
	if err != nil {
		return store.Baseline{}, fmt.Errorf("orchestrator: read recorded fixtures for %q: %w", spec.Name, err)
	}

	b := store.Baseline{SpecName: spec.Name, Trace: trace, Fixtures: entries, NormalizerVersion: event.NormalizerVersion}
	if err := o.Baselines.Write(ctx, b); err != nil {
		return store.Baseline{}, fmt.Errorf("orchestrator: persist baseline for %q: %w", spec.Name, err)
	}
	return b, nil
}

// Run implements spec.md §4.9 items 2–3: resolve the baseline, replay the
// agent under the fixture store and replay guard, drive the pipeline, shrink
// the counterexample on FAIL, and persist everything.
func (o *Orchestrator) Run(ctx context.Context, spec policy.Spec) (Result, error) {
	tel := telemetry.PipelineTelemetry{SpecName: spec.Name}
	ctx, span := o.tracer.Start(ctx, "orchestrator.run")
	defer span.End()

	if err := policy.Validate(spec); err != nil {
		return o.persistTooling(ctx, spec, tel, violation.CodeInvalidSpec, 0, err.Error())
	}
	redactor, err := event.NewRedactor(spec.Redact)
	if err != nil {
		return o.persistTooling(ctx, spec, tel, violation.CodeInvalidSpec, 0, err.Error())
	}
	baseline, err := o.Baselines.Resolve(ctx, spec.Name)
	if err != nil {
		return o.persistTooling(ctx, spec, tel, violation.CodeBaselineMissing, 0, err.Error())
	}

	runDir, err := os.MkdirTemp(o.StateDir, "run-"+specKey(spec.Name)+"-")
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: create run dir: %w", err)
	}
	defer os.RemoveAll(runDir)

	fixturePath := filepath.Join(runDir, "fixtures.json")
	if err := writeFixtureEntries(fixturePath, baseline.Fixtures); err != nil {
		return Result{}, fmt.Errorf("orchestrator: stage fixtures: %w", err)
	}

	cfg := RunConfig{
		SpecName:          spec.Name,
		Mode:              ModeReplay,
		FixturePath:       fixturePath,
		NormalizerVersion: baseline.NormalizerVersion,
		StrictSequence:    spec.Replay.StrictSequence,
		LLMMatchMode:      string(spec.Replay.LLMMatchMode),
		ToolMatchMode:     string(spec.Replay.ToolMatchMode),
	}

	subprocessStart := time.Now()
	stdout, timedOut, runErr := o.runSubprocess(ctx, spec, cfg)
	tel.SubprocessMS = time.Since(subprocessStart).Milliseconds()

	candidate, ingestViolation := ingestTrace(stdout, redactor)
	if ingestViolation == nil {
		switch {
		case timedOut:
			ingestViolation = toolingAt(violation.CodeRunTimeout, lastSeq(candidate), "agent subprocess exceeded its wall-clock timeout")
		case len(candidate) == 0:
			ingestViolation = toolingAt(violation.CodeInternalError, 0, "agent subprocess produced no events")
		case event.ValidateTrace(candidate) != nil:
			ingestViolation = toolingAt(violation.CodeInvalidEventShape, lastSeq(candidate), event.ValidateTrace(candidate).Error())
		case runErr != nil:
			ingestViolation = toolingAt(violation.CodeInternalError, lastSeq(candidate), fmt.Sprintf("agent process exited abnormally: %v", runErr))
		}
	}

	abstractionStart := time.Now()
	baselineAlpha := abstraction.Run(baseline.Trace, spec.Refinement.IgnoreCallTools, o.PredicateConfig)
	tel.AbstractionMS = time.Since(abstractionStart).Milliseconds()

	var v verdict.Verdict
	var vacuous bool
	var reduced []event.Event
	if ingestViolation != nil {
		v = verdict.Resolve([]violation.Violation{*ingestViolation})
	} else {
		outcome := evaluate(spec, candidate, baselineAlpha.Skeleton, o.PredicateConfig)
		v = outcome.Verdict
		vacuous = outcome.Vacuous
		tel.AbstractionMS += outcome.AbstractionMS
		tel.ContractMS = outcome.ContractMS
		tel.RefinementMS = outcome.RefinementMS

		if v.Status == verdict.StatusFail && v.PrimaryViolation != nil {
			shrinkStart := time.Now()
			eval := evaluatorFor(spec, baselineAlpha.Skeleton, o.PredicateConfig)
			prefixTrace := counterexample.Prefix(candidate, v.WitnessIndex)
			reduced = counterexample.Shrink(ctx, prefixTrace, v.PrimaryViolation.FailureClass, v.PrimaryViolation.Code, eval, o.ShrinkBudget)
			tel.ShrinkMS = time.Since(shrinkStart).Milliseconds()
		}
	}

	tel.VerdictStatus = string(v.Status)
	tel.WitnessIndex = v.WitnessIndex
	if v.PrimaryViolation != nil {
		tel.PrimaryCode = v.PrimaryViolation.Code
	}

	result := Result{Verdict: v, Telemetry: tel, ExitCode: exitCode(v)}
	if err := o.persistResult(ctx, spec, v, vacuous, baseline.NormalizerVersion, candidate, reduced); err != nil {
		return result, fmt.Errorf("orchestrator: persist result: %w", err)
	}
	o.emitTelemetry(ctx, tel)
	return result, nil
}

// persistTooling builds a single-violation verdict for a failure detected
// before (or instead of) running the pipeline — an invalid spec or a missing
// baseline — persists it like any other result, and returns it.
func (o *Orchestrator) persistTooling(ctx context.Context, spec policy.Spec, tel telemetry.PipelineTelemetry, code string, witnessSeq int, message string) (Result, error) {
	v := verdict.Resolve([]violation.Violation{violation.New(code, violation.ClassTooling, witnessSeq, message, 0)})
	tel.VerdictStatus = string(v.Status)
	tel.WitnessIndex = v.WitnessIndex
	if v.PrimaryViolation != nil {
		tel.PrimaryCode = v.PrimaryViolation.Code
	}
	result := Result{Verdict: v, Telemetry: tel, ExitCode: exitCode(v)}
	if err := o.persistResult(ctx, spec, v, false, "", nil, nil); err != nil {
		return result, fmt.Errorf("orchestrator: persist tooling result: %w", err)
	}
	o.emitTelemetry(ctx, tel)
	return result, nil
}

// exitCode maps a verdict to spec.md §6.5's process exit code: PASS is
// always 0; a FAIL whose primary violation is TOOLING class is a
// infrastructure/config problem (2), not a detected regression (1).
func exitCode(v verdict.Verdict) int {
	if v.Status == verdict.StatusPass {
		return 0
	}
	if v.PrimaryViolation != nil && v.PrimaryViolation.FailureClass == violation.ClassTooling {
		return 2
	}
	return 1
}

// evalOutcome is the result of one full contract+refinement evaluation pass,
// shared by Run and the shrinker's Evaluator.
type evalOutcome struct {
	Verdict      verdict.Verdict
	Vacuous      bool
	AbstractionMS int64
	ContractMS   int64
	RefinementMS int64
}

// evaluate runs §4.4–§4.7 over an already-canonicalized candidate trace: it
// folds in any tooling markers the agent left in the trace itself (see
// recognizedToolingError), then the contract monitor, then the refinement
// checker, then resolves the final verdict.
func evaluate(spec policy.Spec, candidate []event.Event, baselineSkeleton []string, predicateCfg abstraction.PredicateConfig) evalOutcome {
	var all []violation.Violation
	for _, e := range candidate {
		if code, msg, ok := recognizedToolingError(e); ok {
			all = append(all, violation.New(code, violation.ClassTooling, e.Seq, msg, len(all)))
		}
	}

	contractStart := time.Now()
	all = append(all, contract.Evaluate(spec, candidate)...)
	contractMS := time.Since(contractStart).Milliseconds()

	abstractionStart := time.Now()
	alpha := abstraction.Run(candidate, spec.Refinement.IgnoreCallTools, predicateCfg)
	seqs := skeletonSeqs(candidate, spec.Refinement.IgnoreCallTools)
	abstractionMS := time.Since(abstractionStart).Milliseconds()

	refinementStart := time.Now()
	refReport := refinement.Check(spec.Refinement.Mode, baselineSkeleton, alpha.Skeleton, seqs, lastSeq(candidate), spec.Refinement)
	all = append(all, refReport.Violations...)
	refinementMS := time.Since(refinementStart).Milliseconds()

	return evalOutcome{
		Verdict:       verdict.Resolve(all),
		Vacuous:       refReport.Vacuous,
		AbstractionMS: abstractionMS,
		ContractMS:    contractMS,
		RefinementMS:  refinementMS,
	}
}

// evaluatorFor adapts evaluate into a counterexample.Evaluator, the oracle
// the shrinker uses to decide whether a reduced trace still fails the same
// way (spec.md §4.8 "Safety").
func evaluatorFor(spec policy.Spec, baselineSkeleton []string, predicateCfg abstraction.PredicateConfig) counterexample.Evaluator {
	return func(trace []event.Event) (bool, violation.Class, string) {
		outcome := evaluate(spec, trace, baselineSkeleton, predicateCfg)
		if outcome.Verdict.Status == verdict.StatusPass {
			return false, "", ""
		}
		return true, outcome.Verdict.PrimaryViolation.FailureClass, outcome.Verdict.PrimaryViolation.Code
	}
}

// skeletonSeqs derives the candidate event seq for each position in an
// abstraction skeleton, replicating abstraction.Run's tool_called+
// ignore-list filtering so refinement.Check's candidateSeqs stays
// index-aligned with the skeleton it embeds (abstraction.Result does not
// expose this pairing itself).
func skeletonSeqs(trace []event.Event, ignoreCallTools []string) []int {
	ignore := make(map[string]struct{}, len(ignoreCallTools))
	for _, n := range ignoreCallTools {
		ignore[n] = struct{}{}
	}
	var seqs []int
	for _, e := range trace {
		if e.EventType != event.TypeToolCalled {
			continue
		}
		name, _ := e.Payload["tool_name"].(string)
		if _, skip := ignore[name]; skip {
			continue
		}
		seqs = append(seqs, e.Seq)
	}
	return seqs
}

// Recognized error markers an instrumented agent places in a
// tool_returned/llm_returned payload's "error" field to report a tooling
// failure it detected while consulting its own fixture store or replay
// guard (spec.md §4.2, §4.3, §8 property 7). Any other "error" value is
// ordinary candidate data for the contract/refinement stages, not a tooling
// signal.
const (
	markerFixtureExhausted   = "FIXTURE_EXHAUSTED"
	markerNormalizerMismatch = "NORMALIZER_VERSION_MISMATCH"
	markerNetworkBlocked     = "REPLAY_GUARD_NETWORK_BLOCKED"
)

func recognizedToolingError(e event.Event) (code, msg string, ok bool) {
	if e.EventType != event.TypeToolReturned && e.EventType != event.TypeLLMReturned {
		return "", "", false
	}
	errMsg, _ := e.Payload["error"].(string)
	switch {
	case strings.HasPrefix(errMsg, markerFixtureExhausted):
		return violation.CodeFixtureExhausted, errMsg, true
	case strings.HasPrefix(errMsg, markerNormalizerMismatch):
		return violation.CodeNormalizerVersionMismatch, errMsg, true
	case strings.HasPrefix(errMsg, markerNetworkBlocked):
		return violation.CodeReplayNetworkBlocked, errMsg, true
	default:
		return "", "", false
	}
}

// ingestTrace decodes a JSONL byte stream into canonicalized events. It
// returns as much of the trace as it could parse plus a TOOLING violation if
// decoding failed partway (malformed line, unknown event type, or an
// unsupported schema version) — spec.md §6.1 "Unknown event types cause
// INVALID_EVENT_SHAPE".
func ingestTrace(raw []byte, redactor *event.Redactor) ([]event.Event, *violation.Violation) {
	var trace []event.Event
	lastGood := 0

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var env event.Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			return trace, toolingAt(violation.CodeInvalidEventShape, lastGood, fmt.Sprintf("malformed event line: %v", err))
		}
		e, err := event.Parse(env)
		if err != nil {
			code := violation.CodeInvalidEventShape
			if errors.Is(err, event.ErrUnsupportedSchema) {
				code = violation.CodeSchemaVersionUnsupported
			}
			return trace, toolingAt(code, lastGood, err.Error())
		}
		e = event.Canonicalize(e, redactor)
		trace = append(trace, e)
		lastGood = e.Seq
	}
	if err := scanner.Err(); err != nil {
		return trace, toolingAt(violation.CodeInvalidEventShape, lastGood, fmt.Sprintf("reading subprocess output: %v", err))
	}
	return trace, nil
}

func toolingAt(code string, seq int, message string) *violation.Violation {
	v := violation.New(code, violation.ClassTooling, seq, message, 0)
	return &v
}

func lastSeq(trace []event.Event) int {
	if len(trace) == 0 {
		return 0
	}
	return trace[len(trace)-1].Seq
}

// runSubprocess spawns the agent command with cfg staged via EnvRunConfig,
// applying the offline replay guard's best-effort proxy override
// (guard.Environ) when replaying in offline mode (spec.md §4.3, §4.9).
func (o *Orchestrator) runSubprocess(ctx context.Context, spec policy.Spec, cfg RunConfig) (stdout []byte, timedOut bool, runErr error) {
	runCtx := ctx
	if o.SubprocessTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.SubprocessTimeout)
		defer cancel()
	}

	configPath := filepath.Join(filepath.Dir(cfg.FixturePath), "run_config.json")
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, false, fmt.Errorf("orchestrator: marshal run config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return nil, false, fmt.Errorf("orchestrator: write run config: %w", err)
	}

	cmd := exec.CommandContext(runCtx, spec.Command[0], spec.Command[1:]...)
	if spec.Workdir != "" {
		cmd.Dir = spec.Workdir
	}
	env := append(os.Environ(), EnvRunConfig+"="+configPath)
	for k, val := range spec.Env {
		env = append(env, k+"="+val)
	}
	if cfg.Mode == ModeReplay && spec.Replay.Mode == policy.ReplayOffline {
		env = guard.Environ(env)
	}
	cmd.Env = env

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr = cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		timedOut = true
		runErr = nil
	} else if runErr != nil && errBuf.Len() > 0 {
		runErr = fmt.Errorf("%w (stderr: %s)", runErr, truncate(errBuf.String(), 2000))
	}
	return outBuf.Bytes(), timedOut, runErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

func writeFixtureEntries(path string, entries []fixture.Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readFixtureEntries(path string) ([]fixture.Entry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		// A subprocess that wrote no fixture file recorded no fixtures.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []fixture.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func isCI() bool {
	v := strings.TrimSpace(os.Getenv(CIEnvVar))
	return v != "" && v != "0" && !strings.EqualFold(v, "false")
}

func specKey(name string) string {
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

func (o *Orchestrator) emitTelemetry(ctx context.Context, tel telemetry.PipelineTelemetry) {
	o.logger.Info(ctx, "spec evaluated",
		"spec_name", tel.SpecName, "status", tel.VerdictStatus,
		"primary_code", tel.PrimaryCode, "witness_index", tel.WitnessIndex)
	o.metrics.IncCounter("trt_spec_evaluations_total", 1, "status", tel.VerdictStatus)
	o.metrics.RecordTimer("trt_subprocess_duration", time.Duration(tel.SubprocessMS)*time.Millisecond, "spec_name", tel.SpecName)
	o.metrics.RecordTimer("trt_contract_duration", time.Duration(tel.ContractMS)*time.Millisecond, "spec_name", tel.SpecName)
	o.metrics.RecordTimer("trt_refinement_duration", time.Duration(tel.RefinementMS)*time.Millisecond, "spec_name", tel.SpecName)
}

// ReportDocument is the persisted verdict shape (spec.md §6.4).
type ReportDocument struct {
	SpecName               string                 `json:"spec_name"`
	Status                 string                 `json:"trt_status"`
	WitnessIndex           int                    `json:"witness_index,omitempty"`
	PrimaryViolation       *violation.Violation   `json:"primary_violation,omitempty"`
	Violations             []violation.Violation  `json:"violations"`
	AllViolationsAtWitness []violation.Violation  `json:"all_violations_at_witness"`
	CounterexamplePaths    map[string]string      `json:"counterexample_paths,omitempty"`
	ReproCommand           string                 `json:"repro_command"`
	Metadata               map[string]any         `json:"metadata"`
}

// persistResult writes the candidate trace, the counterexample prefix (on
// FAIL), and the report document (spec.md §6.3). fullCandidate may be nil
// (a tooling failure discovered before any trace was captured); reduced may
// be nil even on FAIL if shrinking never ran.
func (o *Orchestrator) persistResult(ctx context.Context, spec policy.Spec, v verdict.Verdict, vacuous bool, normalizerVersion string, fullCandidate, reduced []event.Event) error {
	if len(fullCandidate) > 0 {
		if err := o.putTraceJSONL(ctx, "current/"+specKey(spec.Name)+".jsonl", fullCandidate); err != nil {
			return fmt.Errorf("persist candidate trace: %w", err)
		}
	}

	var reproKey string
	if v.Status == verdict.StatusFail && len(reduced) > 0 {
		reproKey = "repros/" + specKey(spec.Name) + ".counterexample.prefix.jsonl"
		if err := o.putTraceJSONL(ctx, reproKey, reduced); err != nil {
			return fmt.Errorf("persist counterexample prefix: %w", err)
		}
	}

	doc := buildReport(spec, v, vacuous, normalizerVersion, reproKey)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := o.Artifacts.PutBytes(ctx, "reports/"+specKey(spec.Name)+".json", data); err != nil {
		return fmt.Errorf("persist report: %w", err)
	}
	if err := o.Artifacts.PutBytes(ctx, "reports/latest.json", data); err != nil {
		return fmt.Errorf("persist latest report: %w", err)
	}
	return o.Artifacts.PutBytes(ctx, "reports/latest.md", []byte(renderMarkdown(doc)))
}

func buildReport(spec policy.Spec, v verdict.Verdict, vacuous bool, normalizerVersion, reproKey string) ReportDocument {
	doc := ReportDocument{
		SpecName:               spec.Name,
		Status:                 string(v.Status),
		Violations:             v.AllViolations,
		AllViolationsAtWitness: v.ViolationsAtWitness,
		PrimaryViolation:       v.PrimaryViolation,
		Metadata: map[string]any{
			"refinement_skeleton_vacuous": vacuous,
			"normalizer_version":         normalizerVersion,
		},
	}
	if v.Status == verdict.StatusFail {
		doc.WitnessIndex = v.WitnessIndex
	}
	if reproKey != "" {
		doc.CounterexamplePaths = map[string]string{"prefix": reproKey}
		doc.ReproCommand = fmt.Sprintf("trtd replay --spec=%s --repro=%s", spec.Name, reproKey)
	} else {
		doc.ReproCommand = fmt.Sprintf("trtd run --spec=%s", spec.Name)
	}
	return doc
}

func renderMarkdown(doc ReportDocument) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", doc.SpecName)
	fmt.Fprintf(&b, "**Status:** %s\n\n", doc.Status)
	if doc.PrimaryViolation != nil {
		fmt.Fprintf(&b, "**Primary violation:** `%s` (%s) at event %d\n\n",
			doc.PrimaryViolation.Code, doc.PrimaryViolation.FailureClass, doc.WitnessIndex)
		fmt.Fprintf(&b, "%s\n\n", doc.PrimaryViolation.Message)
	}
	fmt.Fprintf(&b, "**Violations:** %d total, %d at witness\n\n", len(doc.Violations), len(doc.AllViolationsAtWitness))
	if doc.ReproCommand != "" {
		fmt.Fprintf(&b, "Reproduce with:\n\n```\n%s\n```\n", doc.ReproCommand)
	}
	return b.String()
}

// putTraceJSONL re-serializes trace as one event.Envelope JSON object per
// line (spec.md §6.1, §6.3).
func (o *Orchestrator) putTraceJSONL(ctx context.Context, key string, trace []event.Event) error {
	var buf bytes.Buffer
	for _, e := range trace {
		env, err := e.ToEnvelope()
		if err != nil {
			return err
		}
		line, err := json.Marshal(env)
		if err != nil {
			return err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return o.Artifacts.PutBytes(ctx, key, buf.Bytes())
}
