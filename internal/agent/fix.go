package agent

import (
	"context"

	"github.com/fyrsmithlabs/agentd/internal/sharedctx"
)

// fixProfile is the corrective specialization run by the coordinator. Its
// task is a rendered failure report; the corrected artifact is stream-only
// so the original caller decides what to do with it.
type fixProfile struct{}

func (fixProfile) agentType() string { return TypeFix }

func (fixProfile) guidance() string {
	return "Address the reported error directly and produce a corrected response satisfying the original task."
}

func (p fixProfile) buildPrompt(_ context.Context, task string, sc *sharedctx.Context, b *base) (string, *persistPlan, *ErrorReport) {
	fields := map[string]any{
		"task":            task,
		"current_context": sc.Render(),
	}
	prompt, rep := b.render(b.cfg.Template("fix", "fix.tmpl"), fields)
	return prompt, nil, rep
}
