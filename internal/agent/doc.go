package agent

import (
	"context"

	"github.com/fyrsmithlabs/agentd/internal/sharedctx"
)

// docProfile writes or revises documentation artifacts. generate_new reads
// the source artifact and persists a fresh document under the parent
// location; update_existing rewrites a stored document in place.
type docProfile struct{}

func (docProfile) agentType() string { return TypeDoc }

func (docProfile) guidance() string {
	return "Regenerate the documentation as complete Markdown covering the given code. Output only the document."
}

func (p docProfile) buildPrompt(ctx context.Context, task string, sc *sharedctx.Context, b *base) (string, *persistPlan, *ErrorReport) {
	switch op := sc.StringOr("operation_type", "generate_new"); op {
	case "generate_new":
		id, ok := sc.GetString("artifact_id")
		if !ok || id == "" {
			return "", nil, report(ErrInvalidInput, p.guidance(), "generate_new requires the artifact_id context field")
		}
		location, ok := sc.GetString("parent_location")
		if !ok || location == "" {
			return "", nil, report(ErrInvalidInput, p.guidance(), "generate_new requires the parent_location context field")
		}
		code, rep := b.readArtifact(ctx, id, "source")
		if rep != nil {
			return "", nil, rep
		}
		prompt, rep := b.render(b.cfg.Template("generate", "doc_generate.tmpl"), map[string]any{
			"task":          task,
			"code":          code,
			"existing_docs": sc.StringOr("existing_docs", ""),
		})
		if rep != nil {
			return "", nil, rep
		}
		plan := &persistPlan{
			mode:     persistCreate,
			name:     sc.StringOr("doc_name", "DOCUMENTATION.md"),
			location: location,
		}
		return prompt, plan, nil

	case "update_existing":
		docID, ok := sc.GetString("doc_artifact_id")
		if !ok || docID == "" {
			return "", nil, report(ErrInvalidInput, p.guidance(), "update_existing requires the doc_artifact_id context field")
		}
		existing, rep := b.readArtifact(ctx, docID, "documentation")
		if rep != nil {
			return "", nil, rep
		}
		var source string
		if id, ok := sc.GetString("artifact_id"); ok && id != "" {
			if source, rep = b.readArtifact(ctx, id, "source"); rep != nil {
				return "", nil, rep
			}
		}
		prompt, rep := b.render(b.cfg.Template("update", "doc_update.tmpl"), map[string]any{
			"task":                task,
			"update_instructions": sc.StringOr("update_instructions", task),
			"existing_docs":       existing,
			"source_code":         source,
		})
		if rep != nil {
			return "", nil, rep
		}
		return prompt, &persistPlan{mode: persistUpdate, id: docID, kind: "doc"}, nil

	default:
		return "", nil, report(ErrUnknownOperation, p.guidance(), "unknown doc operation %q", op)
	}
}
