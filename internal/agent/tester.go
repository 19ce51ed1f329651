package agent

import (
	"context"

	"github.com/fyrsmithlabs/agentd/internal/sharedctx"
)

// testProfile writes or revises test-suite artifacts, mirroring the doc
// profile's operation switch against test artifacts.
type testProfile struct{}

func (testProfile) agentType() string { return TypeTest }

func (testProfile) guidance() string {
	return "Regenerate the test suite so it covers normal paths, edge cases and failure modes of the given code. Output only the test code."
}

func (p testProfile) buildPrompt(ctx context.Context, task string, sc *sharedctx.Context, b *base) (string, *persistPlan, *ErrorReport) {
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
		prompt, rep := b.render(b.cfg.Template("generate", "test_generate.tmpl"), map[string]any{
			"task":     task,
			"language": sc.StringOr("language", defaultLanguage),
			"code":     code,
		})
		if rep != nil {
			return "", nil, rep
		}
		plan := &persistPlan{
			mode:     persistCreate,
			name:     sc.StringOr("test_name", "generated_tests"),
			location: location,
		}
		return prompt, plan, nil

	case "update_existing":
		testID, ok := sc.GetString("test_artifact_id")
		if !ok || testID == "" {
			return "", nil, report(ErrInvalidInput, p.guidance(), "update_existing requires the test_artifact_id context field")
		}
		existing, rep := b.readArtifact(ctx, testID, "test")
		if rep != nil {
			return "", nil, rep
		}
		var source string
		if id, ok := sc.GetString("artifact_id"); ok && id != "" {
			if source, rep = b.readArtifact(ctx, id, "source"); rep != nil {
				return "", nil, rep
			}
		}
		prompt, rep := b.render(b.cfg.Template("update", "test_update.tmpl"), map[string]any{
			"task":           task,
			"existing_tests": existing,
			"source_code":    source,
		})
		if rep != nil {
			return "", nil, rep
		}
		return prompt, &persistPlan{mode: persistUpdate, id: testID, kind: "test"}, nil

	default:
		return "", nil, report(ErrUnknownOperation, p.guidance(), "unknown test operation %q", op)
	}
}
