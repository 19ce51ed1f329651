// Package orchestrator coordinates multi-step agent workflows and single
// task execution against a hot-swappable agent registry.
//
// Each run clones the base shared context, so concurrent runs never observe
// each other's intermediate state; a run's accumulated context is merged
// back only when the run finishes. Step failures are isolated: a failed or
// unresolvable step marks the run CompletedWithErrors and the loop moves on.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/agent"
	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/sharedctx"
	"github.com/fyrsmithlabs/agentd/internal/stream"
)

// orchestratorName tags chunks emitted by the run loop itself rather than
// an agent.
const orchestratorName = "orchestrator"

// ErrShutdown is returned for runs submitted after Shutdown.
var ErrShutdown = errors.New("orchestrator is shut down")

// Step is one workflow entry: a named task dispatched to an agent.
type Step struct {
	Name  string `json:"name"`
	Agent string `json:"agent"`
	Task  string `json:"task"`
}

// Workflow is an ordered list of steps sharing one run context.
type Workflow struct {
	Steps []Step `json:"workflow"`
}

// RunState describes the terminal state of a workflow run.
type RunState string

const (
	StateCompleted           RunState = "completed"
	StateCompletedWithErrors RunState = "completed_with_errors"
	StateCancelled           RunState = "cancelled"
)

// RunResult summarizes a finished workflow run.
type RunResult struct {
	RunID       string
	State       RunState
	StepsTotal  int
	StepsFailed []string
	// Context is the run's final shared-context snapshot.
	Context map[string]any
}

// Options configures an Orchestrator.
type Options struct {
	Logger *zap.Logger
	Tracer trace.Tracer
	// BaseContext seeds the shared context every run clones from.
	BaseContext map[string]any
	Metrics     *Metrics
}

// Orchestrator runs workflows against the current agent registry snapshot.
type Orchestrator struct {
	registry atomic.Pointer[agent.Registry]
	base     *sharedctx.Context
	logger   *zap.Logger
	tracer   trace.Tracer
	metrics  *Metrics

	mu      sync.Mutex
	closed  bool
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an Orchestrator over the given registry.
func New(reg *agent.Registry, opts Options) *Orchestrator {
	o := &Orchestrator{
		base:    sharedctx.FromMap(opts.BaseContext),
		logger:  opts.Logger,
		tracer:  opts.Tracer,
		metrics: opts.Metrics,
		cancels: make(map[string]context.CancelFunc),
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer("")
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(nil)
	}
	o.registry.Store(reg)
	return o
}

// ReloadAgents swaps in a new registry snapshot. In-flight runs keep the
// snapshot they started with; subsequent runs see the new one.
func (o *Orchestrator) ReloadAgents(reg *agent.Registry) {
	o.registry.Store(reg)
	o.logger.Info("agent registry reloaded", zap.Strings("agents", reg.Names()))
}

// Agents returns the names in the current registry snapshot.
func (o *Orchestrator) Agents() []string {
	return o.registry.Load().Names()
}

// RunWorkflow executes every step in order, forwarding all chunks to sink.
// Each agent's payload is folded back into the run context under
// "<agentType>_output" so later steps can build on it. The only error
// returns are submission after shutdown and a failing sink; agent failures
// surface in the result state.
func (o *Orchestrator) RunWorkflow(ctx context.Context, wf Workflow, sink stream.Sink) (*RunResult, error) {
	runID := uuid.NewString()
	ctx, cancel, err := o.beginRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	defer o.endRun(runID, cancel)

	log := o.logger.With(zap.String("run_id", runID))
	ctx = logging.WithRunID(ctx, runID)
	ctx, span := o.tracer.Start(ctx, "orchestrator.run_workflow",
		trace.WithAttributes(attribute.Int("workflow.steps", len(wf.Steps))))
	defer span.End()

	start := time.Now()
	reg := o.registry.Load()
	rc := o.base.Clone()
	result := &RunResult{RunID: runID, StepsTotal: len(wf.Steps)}

	log.Info("workflow started", zap.Int("steps", len(wf.Steps)))

	for i, step := range wf.Steps {
		if ctx.Err() != nil {
			result.State = StateCancelled
			result.Context = rc.Snapshot()
			o.metrics.observeRun(result.State, time.Since(start))
			return result, nil
		}

		if step.Agent == "" || step.Task == "" {
			log.Warn("invalid step", zap.String("step", step.Name),
				zap.String("agent", step.Agent))
			result.StepsFailed = append(result.StepsFailed, step.Name)
			o.metrics.observeStep(step.Agent, "invalid_step")
			note := stream.Progress(orchestratorName,
				fmt.Sprintf("[orchestrator] step %q skipped: missing agent type or task description", step.Name))
			if err := sink.Send(ctx, note); err != nil {
				return nil, fmt.Errorf("sink failed on step %d: %w", i, err)
			}
			continue
		}

		a, ok := reg.Get(step.Agent)
		if !ok {
			log.Warn("no agent for step", zap.String("step", step.Name), zap.String("agent", step.Agent))
			result.StepsFailed = append(result.StepsFailed, step.Name)
			o.metrics.observeStep(step.Agent, "missing_agent")
			note := stream.Progress(orchestratorName,
				fmt.Sprintf("[orchestrator] step %q skipped: no agent named %q", step.Name, step.Agent))
			if err := sink.Send(ctx, note); err != nil {
				return nil, fmt.Errorf("sink failed on step %d: %w", i, err)
			}
			continue
		}

		payload, err := o.runStep(ctx, a, step, rc, sink)
		if err != nil {
			return nil, fmt.Errorf("sink failed on step %d: %w", i, err)
		}
		if payload == "" {
			// The agent's recovery failed; its terminal chunk already
			// went through the sink.
			log.Warn("step produced no payload", zap.String("step", step.Name), zap.String("agent", step.Agent))
			result.StepsFailed = append(result.StepsFailed, step.Name)
			o.metrics.observeStep(step.Agent, "failed")
			continue
		}

		rc.Set(a.Type()+"_output", payload)
		o.metrics.observeStep(step.Agent, "succeeded")
	}

	result.State = StateCompleted
	if len(result.StepsFailed) > 0 {
		result.State = StateCompletedWithErrors
	}
	result.Context = rc.Snapshot()

	done := stream.Progress(orchestratorName,
		fmt.Sprintf("[orchestrator] workflow complete: %d/%d steps succeeded",
			len(wf.Steps)-len(result.StepsFailed), len(wf.Steps)))
	if err := sink.Send(ctx, done); err != nil {
		return nil, fmt.Errorf("sink failed on completion: %w", err)
	}

	// Fold the run's accumulated context back into the base only once the
	// run is over, so concurrent runs stayed isolated throughout.
	o.base.Merge(result.Context)
	o.metrics.observeRun(result.State, time.Since(start))
	log.Info("workflow finished",
		zap.String("state", string(result.State)),
		zap.Strings("failed_steps", result.StepsFailed),
	)
	return result, nil
}

// runStep drains one agent run, forwarding every chunk to sink and
// concatenating the payload. A non-nil error means the sink failed.
func (o *Orchestrator) runStep(ctx context.Context, a agent.Agent, step Step, rc *sharedctx.Context, sink stream.Sink) (string, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.step",
		trace.WithAttributes(
			attribute.String("step.name", step.Name),
			attribute.String("step.agent", step.Agent),
		))
	defer span.End()

	var payloads []stream.Chunk
	ch := a.Run(ctx, step.Task, rc)
	var sinkErr error
	for c := range ch {
		if sinkErr == nil {
			// After a sink failure keep draining so the agent
			// goroutine can exit.
			sinkErr = sink.Send(ctx, c)
		}
		if c.Kind == stream.KindPayload {
			payloads = append(payloads, c)
		}
	}
	if sinkErr != nil {
		return "", sinkErr
	}
	return stream.ConcatPayload(payloads), nil
}

// RunSingleTask executes one task on the named agent and returns the
// payload. Progress chunks are discarded; a run that ends without a
// payload is an error carrying the agent's terminal diagnostic.
func (o *Orchestrator) RunSingleTask(ctx context.Context, agentName, task string) (string, error) {
	runID := uuid.NewString()
	ctx, cancel, err := o.beginRun(ctx, runID)
	if err != nil {
		return "", err
	}
	defer o.endRun(runID, cancel)

	ctx = logging.WithRunID(ctx, runID)
	ctx, span := o.tracer.Start(ctx, "orchestrator.run_single_task",
		trace.WithAttributes(attribute.String("agent", agentName)))
	defer span.End()

	a, ok := o.registry.Load().Get(agentName)
	if !ok {
		return "", fmt.Errorf("no agent named %q", agentName)
	}

	rc := o.base.Clone()
	var payloads []stream.Chunk
	lastProgress := ""
	for c := range a.Run(ctx, task, rc) {
		switch c.Kind {
		case stream.KindPayload:
			payloads = append(payloads, c)
		default:
			lastProgress = c.Text
		}
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if len(payloads) == 0 {
		return "", fmt.Errorf("agent %q produced no result: %s", agentName, lastProgress)
	}

	payload := stream.ConcatPayload(payloads)
	o.base.Merge(map[string]any{a.Type() + "_output": payload})
	return payload, nil
}

// Shutdown cancels in-flight runs and waits for them to drain, bounded by
// ctx. Safe to call more than once.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	for _, cancel := range o.cancels {
		cancel()
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		o.logger.Info("orchestrator shut down")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown wait: %w", ctx.Err())
	}
}

func (o *Orchestrator) beginRun(ctx context.Context, runID string) (context.Context, context.CancelFunc, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, nil, ErrShutdown
	}
	ctx, cancel := context.WithCancel(ctx)
	o.cancels[runID] = cancel
	o.wg.Add(1)
	return ctx, cancel, nil
}

func (o *Orchestrator) endRun(runID string, cancel context.CancelFunc) {
	cancel()
	o.mu.Lock()
	delete(o.cancels, runID)
	o.mu.Unlock()
	o.wg.Done()
}
