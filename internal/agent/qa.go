package agent

import (
	"context"

	"github.com/fyrsmithlabs/agentd/internal/sharedctx"
)

// qaProfile reviews code or analyzes a prior report, selected by the
// operation_type context key. Findings are stream-only.
type qaProfile struct{}

func (qaProfile) agentType() string { return TypeQA }

func (qaProfile) guidance() string {
	return "Re-run the review and report findings as a numbered list ordered by severity, each with location, problem and remedy."
}

func (p qaProfile) buildPrompt(ctx context.Context, task string, sc *sharedctx.Context, b *base) (string, *persistPlan, *ErrorReport) {
	switch op := sc.StringOr("operation_type", "review_code"); op {
	case "review_code":
		id, ok := sc.GetString("artifact_id")
		if !ok || id == "" {
			return "", nil, report(ErrInvalidInput, p.guidance(), "review_code requires the artifact_id context field")
		}
		source, rep := b.readArtifact(ctx, id, "source")
		if rep != nil {
			return "", nil, rep
		}
		prompt, rep := b.render(b.cfg.Template("review", "qa_review.tmpl"), map[string]any{
			"task":   task,
			"source": source,
		})
		return prompt, nil, rep

	case "analyze_report":
		rpt, ok := sc.GetString("report")
		if !ok || rpt == "" {
			return "", nil, report(ErrInvalidInput, p.guidance(), "analyze_report requires the report context field")
		}
		prompt, rep := b.render(b.cfg.Template("report", "qa_report.tmpl"), map[string]any{
			"task":   task,
			"report": rpt,
		})
		return prompt, nil, rep

	default:
		return "", nil, report(ErrUnknownOperation, p.guidance(), "unknown qa operation %q", op)
	}
}
