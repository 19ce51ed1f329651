package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/rules"
	"github.com/fyrsmithlabs/agentd/internal/sharedctx"
	"github.com/fyrsmithlabs/agentd/internal/stream"
)

// errorMarker in a buffered response fails validation. Providers echo it
// when an upstream tool call failed inside the completion.
const errorMarker = "[ERROR]"

// chunkBuffer sizes the per-run output channel. Progress chunks are small
// and the payload is a single chunk, so a shallow buffer is enough to keep
// the producer from stalling on a slow sink.
const chunkBuffer = 16

// persistMode selects the artifact operation after validation.
type persistMode int

const (
	persistCreate persistMode = iota
	persistUpdate
)

// persistPlan describes the optional persistence step of a lifecycle.
type persistPlan struct {
	mode persistMode
	// create
	name     string
	location string
	// update
	id   string
	kind string
}

// profile supplies the per-specialization parts of the lifecycle: prompt
// construction and the optional persistence plan. Everything else is
// identical across specializations.
type profile interface {
	agentType() string
	// buildPrompt assembles the provider prompt from the task, the shared
	// context, and the agent configuration. A nil plan skips persistence.
	buildPrompt(ctx context.Context, task string, sc *sharedctx.Context, b *base) (prompt string, plan *persistPlan, rep *ErrorReport)
	// guidance is the correction hint handed to the coordinator when this
	// profile's lifecycle fails.
	guidance() string
}

// base drives the lifecycle template for one profile.
type base struct {
	name string
	cfg  config.AgentConfig
	deps Deps
	prof profile
}

func (b *base) Name() string { return b.name }
func (b *base) Type() string { return b.prof.agentType() }

// Run implements Agent.
func (b *base) Run(ctx context.Context, task string, sc *sharedctx.Context) <-chan stream.Chunk {
	out := make(chan stream.Chunk, chunkBuffer)
	go func() {
		defer close(out)
		b.lifecycle(ctx, task, sc, b.deps.MaxCorrections, out)
	}()
	return out
}

// emit delivers a chunk unless the run has been cancelled. Returning false
// tells the caller to stop producing.
func emit(ctx context.Context, out chan<- stream.Chunk, c stream.Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// lifecycle runs one attempt and, on failure, hands off to self-correction
// with the remaining attempt budget.
func (b *base) lifecycle(ctx context.Context, task string, sc *sharedctx.Context, remaining int, out chan<- stream.Chunk) {
	log := b.deps.logger().With(zap.String("agent", b.name), zap.String("agent_type", b.Type()))

	if !emit(ctx, out, stream.Progress(b.name, fmt.Sprintf("[%s] starting %s task: %s", b.name, b.Type(), task))) {
		return
	}

	rep := b.attempt(ctx, task, sc, out)
	if rep == nil {
		return
	}
	if ctx.Err() != nil {
		// Cancellation is not a lifecycle failure; never correct it.
		log.Info("run cancelled", zap.String("task", task))
		return
	}

	log.Warn("lifecycle failed, routing to self-correction",
		zap.String("error_type", string(rep.Type)),
		zap.String("details", rep.Details),
	)
	if !emit(ctx, out, stream.Progress(b.name, fmt.Sprintf("[%s] self-correction triggered due to %s: %s", b.name, rep.Type, rep.Details))) {
		return
	}

	if b.Type() == TypeFix && rep.Timeout {
		// A fix-agent timeout must not feed another correction round.
		emit(ctx, out, stream.Progress(b.name, ErrorMessage("E005", fmt.Sprintf("fix agent %q timed out; not retrying", b.name))))
		return
	}

	selfCorrect(ctx, b, task, sc, rep, remaining, out)
}

// attempt executes lifecycle steps 2-6 once. A nil return means the payload
// was emitted; otherwise the report feeds self-correction.
func (b *base) attempt(ctx context.Context, task string, sc *sharedctx.Context, out chan<- stream.Chunk) *ErrorReport {
	prompt, plan, rep := b.prof.buildPrompt(ctx, task, sc, b)
	if rep != nil {
		return rep
	}

	if !emit(ctx, out, stream.Progress(b.name, fmt.Sprintf("[%s] generating response... (buffering)", b.name))) {
		return nil
	}

	// Fully buffer the streamed response. Partial output must never reach
	// validation or persistence.
	var buf strings.Builder
	if err := b.deps.LLM.Stream(ctx, prompt, func(fragment string) error {
		buf.WriteString(fragment)
		return nil
	}); err != nil {
		return &ErrorReport{
			Type:     ErrTransportFailure,
			Details:  fmt.Sprintf("provider call failed: %v", err),
			Guidance: b.prof.guidance(),
			Timeout:  errors.Is(err, context.DeadlineExceeded),
		}
	}
	full := buf.String()

	if !emit(ctx, out, stream.Progress(b.name, fmt.Sprintf("[%s] validating buffered response...", b.name))) {
		return nil
	}
	if strings.TrimSpace(full) == "" {
		return report(ErrValidationFailed, b.prof.guidance(), "provider response was empty")
	}
	if strings.Contains(full, errorMarker) {
		return report(ErrValidationFailed, b.prof.guidance(), "provider response contained an error marker")
	}

	violations, err := b.deps.Rules.Enforce(ctx, full, b.Type(), task)
	if err != nil {
		return report(ErrTransportFailure, b.prof.guidance(), "rule enforcement unavailable: %v", err)
	}
	if len(violations) > 0 {
		return report(ErrRuleViolation, b.prof.guidance(), "agent rules violated: %s", rules.Describe(violations))
	}

	successNote := fmt.Sprintf("[SUCCESS] [%s] task completed.", b.name)
	if plan != nil {
		if !emit(ctx, out, stream.Progress(b.name, fmt.Sprintf("[%s] validation passed, persisting artifact...", b.name))) {
			return nil
		}
		id, rep := b.persist(ctx, plan, full)
		if rep != nil {
			return rep
		}
		successNote = fmt.Sprintf("[SUCCESS] [%s] task completed, artifact saved with id %s", b.name, id)
	} else if !emit(ctx, out, stream.Progress(b.name, fmt.Sprintf("[%s] validation passed, streaming response", b.name))) {
		return nil
	}

	if !emit(ctx, out, stream.Payload(b.name, full)) {
		return nil
	}
	emit(ctx, out, stream.Progress(b.name, successNote))
	return nil
}

func (b *base) persist(ctx context.Context, plan *persistPlan, content string) (string, *ErrorReport) {
	switch plan.mode {
	case persistUpdate:
		if err := b.deps.Store.Update(ctx, plan.id, content, plan.kind); err != nil {
			return "", report(ErrPersistenceFailed, b.prof.guidance(), "failed to update artifact %s: %v", plan.id, err)
		}
		return plan.id, nil
	default:
		id, err := b.deps.Store.Write(ctx, plan.name, content, plan.location)
		if err != nil || id == "" {
			return "", report(ErrPersistenceFailed, b.prof.guidance(), "failed to write artifact %s: %v", plan.name, err)
		}
		return id, nil
	}
}

// readArtifact loads a collaborator-stored artifact during prompt
// construction, mapping failures onto the error taxonomy.
func (b *base) readArtifact(ctx context.Context, id, what string) (string, *ErrorReport) {
	content, err := b.deps.Store.Read(ctx, id)
	if err != nil {
		return "", report(ErrTransportFailure, b.prof.guidance(), "failed to read %s artifact %s: %v", what, id, err)
	}
	return content, nil
}

// render wraps template rendering, mapping failures onto the taxonomy.
func (b *base) render(name string, fields map[string]any) (string, *ErrorReport) {
	prompt, err := b.deps.Templates.Render(name, fields)
	if err != nil {
		return "", report(ErrInvalidInput, b.prof.guidance(), "failed to render template %s: %v", name, err)
	}
	return prompt, nil
}
