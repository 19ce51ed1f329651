package agent

import (
	"context"

	"github.com/fyrsmithlabs/agentd/internal/sharedctx"
)

const defaultLanguage = "Python"

// codegenProfile generates source code. It emits the artifact on the
// stream and leaves persistence to the caller, who knows where generated
// code belongs in the project tree.
type codegenProfile struct{}

func (codegenProfile) agentType() string { return TypeCodegen }

func (codegenProfile) guidance() string {
	return "Regenerate the code so it is complete, self-contained and free of error markers. Output only the code artifact."
}

func (p codegenProfile) buildPrompt(_ context.Context, task string, sc *sharedctx.Context, b *base) (string, *persistPlan, *ErrorReport) {
	fields := map[string]any{
		"task":            task,
		"requirements":    sc.StringOr("requirements", "none specified"),
		"language":        sc.StringOr("language", defaultLanguage),
		"current_context": sc.Render(),
		"file_to_modify":  sc.StringOr("file_to_modify", ""),
	}
	prompt, rep := b.render(b.cfg.Template("generate", "codegen.tmpl"), fields)
	return prompt, nil, rep
}
