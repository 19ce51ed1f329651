package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/sharedctx"
	"github.com/fyrsmithlabs/agentd/internal/stream"
)

// selfCorrect recovers a failed lifecycle by re-running it through the fix
// profile with a corrective task built from the failure report. The
// corrective run keeps the failing agent's name so every chunk of one
// logical step shares a wire prefix.
//
// remaining is the attempt budget at the point of failure; each corrective
// lifecycle spends one. At zero the coordinator emits a single terminal
// recovery-failure progress chunk and stops.
func selfCorrect(ctx context.Context, failed *base, task string, sc *sharedctx.Context, rep *ErrorReport, remaining int, out chan<- stream.Chunk) {
	log := failed.deps.logger().With(
		zap.String("agent", failed.name),
		zap.String("error_type", string(rep.Type)),
	)

	if remaining <= 0 {
		terminal := report(ErrRecoveryFailed, "",
			"no correction attempts left for agent %q: %s", failed.name, rep.Details)
		log.Error("self-correction budget exhausted",
			zap.String("terminal_type", string(terminal.Type)),
			zap.String("details", rep.Details))
		emit(ctx, out, stream.Progress(failed.name, ErrorMessage("E005", terminal.Details)))
		return
	}
	if failed.deps.LLM == nil || failed.deps.Templates == nil {
		terminal := report(ErrRecoveryFailed, "",
			"correction unavailable for agent %q: %s", failed.name, rep.Details)
		log.Error("self-correction unavailable, missing collaborators",
			zap.String("terminal_type", string(terminal.Type)))
		emit(ctx, out, stream.Progress(failed.name, ErrorMessage("E005", terminal.Details)))
		return
	}

	log.Info("dispatching corrective lifecycle", zap.Int("remaining", remaining-1))

	corrective := &base{
		name: failed.name,
		cfg:  failed.cfg,
		deps: failed.deps,
		prof: fixProfile{},
	}
	corrective.lifecycle(ctx, correctiveTask(failed, task, rep), sc, remaining-1, out)
	emit(ctx, out, stream.Progress(failed.name, fmt.Sprintf("[%s] self-correction sequence finished", failed.name)))
}

// correctiveTask renders the failure report handed to the fix profile as
// its task text.
func correctiveTask(failed *base, task string, rep *ErrorReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Agent %q (type %s) failed its task.\n", failed.name, failed.Type())
	fmt.Fprintf(&b, "Original task: %s\n", task)
	fmt.Fprintf(&b, "Error type: %s\n", rep.Type)
	fmt.Fprintf(&b, "Error details: %s\n", rep.Details)
	if rep.Guidance != "" {
		fmt.Fprintf(&b, "Guidance: %s\n", rep.Guidance)
	}
	return b.String()
}
