// Package temporal adapts Orchestrator.Record/Run onto Temporal (spec.md §5
// "the orchestrator MAY parallelize across specs... each spec evaluation is
// isolated"), for fleets that want many spec evaluations running across a
// worker pool with retries and visibility instead of a single local process
// looping over specs. It is optional: cmd/trtd's default path calls
// Orchestrator directly. Grounded on runtime/agent/engine/temporal/engine.go,
// scaled down from that file's generic multi-workflow/activity registry to
// TRT's single operation (evaluate one spec) since there is no second
// workflow shape to register.
package temporal

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/trajectly/trt/orchestrator"
	"github.com/trajectly/trt/policy"
	"github.com/trajectly/trt/store"
	"github.com/trajectly/trt/telemetry"
)

const (
	// WorkflowName is the registered Temporal workflow type name.
	WorkflowName = "EvaluateSpec"
	// RunActivityName and RecordActivityName are the registered activity
	// type names.
	RunActivityName    = "RunSpec"
	RecordActivityName = "RecordSpec"
)

// Options configures the Temporal worker adapter.
type Options struct {
	// Client is a pre-configured Temporal client. If nil, ClientOptions is
	// used to lazily create one.
	Client        client.Client
	ClientOptions *client.Options

	// TaskQueue is the queue this worker polls; required.
	TaskQueue string

	// Orchestrator is the local pipeline every activity delegates to.
	Orchestrator *orchestrator.Orchestrator

	// ActivityStartToCloseTimeout bounds one Run/Record activity attempt;
	// defaults to 10 minutes, generous enough for a slow agent subprocess
	// plus the shrinker.
	ActivityStartToCloseTimeout time.Duration

	DisableTracing bool
	Logger         telemetry.Logger
}

// Worker wraps a Temporal client and worker registered for spec evaluation.
type Worker struct {
	client      client.Client
	closeClient bool
	worker      worker.Worker
	orch        *orchestrator.Orchestrator
	logger      telemetry.Logger
}

// New constructs and registers a Worker. Call Start to begin polling.
func New(opts Options) (*Worker, error) {
	if opts.TaskQueue == "" {
		return nil, fmt.Errorf("temporal: task queue is required")
	}
	if opts.Orchestrator == nil {
		return nil, fmt.Errorf("temporal: orchestrator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}

	cli := opts.Client
	closeClient := false
	if cli == nil {
		if opts.ClientOptions == nil {
			return nil, fmt.Errorf("temporal: client options are required when Client is nil")
		}
		clientOpts := *opts.ClientOptions
		if !opts.DisableTracing {
			interceptor, err := temporalotel.NewTracingInterceptor(temporalotel.TracerOptions{})
			if err != nil {
				return nil, fmt.Errorf("temporal: configure tracing interceptor: %w", err)
			}
			clientOpts.Interceptors = append(clientOpts.Interceptors, interceptor)
		}
		var err error
		cli, err = client.NewLazyClient(clientOpts)
		if err != nil {
			return nil, fmt.Errorf("temporal: create client: %w", err)
		}
		closeClient = true
	}

	w := worker.New(cli, opts.TaskQueue, worker.Options{})

	timeout := opts.ActivityStartToCloseTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	wk := &Worker{client: cli, closeClient: closeClient, worker: w, orch: opts.Orchestrator, logger: logger}

	w.RegisterWorkflowWithOptions(wk.evaluateSpecWorkflow(timeout), workflow.RegisterOptions{Name: WorkflowName})
	w.RegisterActivityWithOptions(wk.runActivity, activity.RegisterOptions{Name: RunActivityName})
	w.RegisterActivityWithOptions(wk.recordActivity, activity.RegisterOptions{Name: RecordActivityName})

	logger.Info(context.Background(), "temporal worker registered", "task_queue", opts.TaskQueue, "workflow", WorkflowName)
	return wk, nil
}

// Start begins polling TaskQueue for workflow and activity tasks, blocking
// until the process receives an interrupt signal (worker.InterruptCh) or the
// worker stops.
func (w *Worker) Start() error {
	return w.worker.Run(worker.InterruptCh())
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.worker.Stop()
}

// Close shuts down the Temporal client if this Worker created it.
func (w *Worker) Close() error {
	if w.closeClient && w.client != nil {
		w.client.Close()
	}
	return nil
}

// evaluateSpecWorkflow runs one Run activity with a bounded retry policy and
// returns its Result. Recording is a distinct, separately-invoked workflow
// input (spec.md §4.9 keeps Record and Run as separate operations) selected
// via input.Mode.
func (w *Worker) evaluateSpecWorkflow(timeout time.Duration) func(workflow.Context, WorkflowInput) (WorkflowOutput, error) {
	return func(ctx workflow.Context, input WorkflowInput) (WorkflowOutput, error) {
		activityOpts := workflow.ActivityOptions{
			StartToCloseTimeout: timeout,
			RetryPolicy: &sdktemporal.RetryPolicy{
				InitialInterval:    time.Second,
				BackoffCoefficient: 2.0,
				MaximumInterval:    time.Minute,
				MaximumAttempts:    3,
			},
		}
		ctx = workflow.WithActivityOptions(ctx, activityOpts)

		if input.Mode == orchestrator.ModeRecord {
			var baseline store.Baseline
			err := workflow.ExecuteActivity(ctx, RecordActivityName, input.Spec).Get(ctx, &baseline)
			return WorkflowOutput{Baseline: baseline}, err
		}

		var result orchestrator.Result
		err := workflow.ExecuteActivity(ctx, RunActivityName, input.Spec).Get(ctx, &result)
		return WorkflowOutput{Result: result}, err
	}
}

func (w *Worker) runActivity(ctx context.Context, spec policy.Spec) (orchestrator.Result, error) {
	return w.orch.Run(ctx, spec)
}

func (w *Worker) recordActivity(ctx context.Context, spec policy.Spec) (store.Baseline, error) {
	return w.orch.Record(ctx, spec)
}

// WorkflowInput selects record vs. run for one EvaluateSpec execution.
type WorkflowInput struct {
	Mode orchestrator.Mode
	Spec policy.Spec
}

// WorkflowOutput carries whichever of Result/Baseline the requested Mode
// produced.
type WorkflowOutput struct {
	Result   orchestrator.Result
	Baseline store.Baseline
}

// StartEvaluation kicks off one EvaluateSpec workflow execution from client
// code. cmd/trtd does not call it; it only runs the worker side.
func StartEvaluation(ctx context.Context, cli client.Client, taskQueue, workflowID string, input WorkflowInput) (client.WorkflowRun, error) {
	opts := client.StartWorkflowOptions{ID: workflowID, TaskQueue: taskQueue}
	return cli.ExecuteWorkflow(ctx, opts, WorkflowName, input)
}
