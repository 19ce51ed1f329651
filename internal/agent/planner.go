package agent

import (
	"context"

	"github.com/fyrsmithlabs/agentd/internal/sharedctx"
)

// plannerProfile decomposes a goal into an ordered list of steps, each
// naming the agent type that should execute it. The plan is stream-only.
type plannerProfile struct{}

func (plannerProfile) agentType() string { return TypePlanner }

func (plannerProfile) guidance() string {
	return "Produce a numbered plan with one concrete step per line, each step naming the agent type that executes it."
}

func (p plannerProfile) buildPrompt(_ context.Context, task string, sc *sharedctx.Context, b *base) (string, *persistPlan, *ErrorReport) {
	fields := map[string]any{
		"task":            task,
		"project_goal":    sc.StringOr("project_goal", task),
		"current_context": sc.Render(),
	}
	prompt, rep := b.render(b.cfg.Template("generate", "planner.tmpl"), fields)
	return prompt, nil, rep
}
