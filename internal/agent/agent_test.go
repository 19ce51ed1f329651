package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/prompts"
	"github.com/fyrsmithlabs/agentd/internal/rules"
	"github.com/fyrsmithlabs/agentd/internal/sharedctx"
	"github.com/fyrsmithlabs/agentd/internal/stream"
)

// scriptedLLM returns one scripted reply per call, in order. A reply with a
// non-nil err fails the call instead of streaming.
type scriptedLLM struct {
	mu      sync.Mutex
	replies []scriptedReply
	calls   int
	prompts []string
}

type scriptedReply struct {
	fragments []string
	err       error
}

func (s *scriptedLLM) Stream(ctx context.Context, prompt string, fn func(string) error) error {
	s.mu.Lock()
	idx := s.calls
	s.calls++
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	if idx >= len(s.replies) {
		return fmt.Errorf("unexpected call %d", idx)
	}
	r := s.replies[idx]
	if r.err != nil {
		return r.err
	}
	for _, f := range r.fragments {
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeStore is an in-memory Store with switchable failure modes.
type fakeStore struct {
	mu       sync.Mutex
	content  map[string]string
	writes   int
	failNext error
}

func newFakeStore() *fakeStore {
	return &fakeStore{content: map[string]string{}}
}

func (f *fakeStore) Read(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.content[id]
	if !ok {
		return "", errors.New("artifact not found")
	}
	return c, nil
}

func (f *fakeStore) Write(_ context.Context, name, content, location string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return "", err
	}
	f.writes++
	id := fmt.Sprintf("id-%d", f.writes)
	f.content[id] = content
	return id, nil
}

func (f *fakeStore) Update(_ context.Context, id, content, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	if _, ok := f.content[id]; !ok {
		return errors.New("artifact not found")
	}
	f.content[id] = content
	return nil
}

// forbidRules fails any output containing the needle.
type forbidRules struct{ needle string }

func (r forbidRules) Enforce(_ context.Context, output, _, _ string) ([]rules.Violation, error) {
	if r.needle != "" && strings.Contains(output, r.needle) {
		return []rules.Violation{{Rule: "forbid", Message: "forbidden content"}}, nil
	}
	return nil, nil
}

func testDeps(t *testing.T, llm LLM, store Store) Deps {
	t.Helper()
	renderer, err := prompts.NewRenderer()
	require.NoError(t, err)
	return Deps{
		LLM:            llm,
		Rules:          forbidRules{},
		Store:          store,
		Templates:      renderer,
		Logger:         logging.NewTestLogger().Logger,
		MaxCorrections: 1,
	}
}

func newTestAgent(t *testing.T, name, agentType string, deps Deps) Agent {
	t.Helper()
	a, err := New(name, config.AgentConfig{Type: agentType}, deps)
	require.NoError(t, err)
	return a
}

func collect(t *testing.T, ch <-chan stream.Chunk) []stream.Chunk {
	t.Helper()
	var out []stream.Chunk
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, c)
		case <-deadline:
			t.Fatal("stream did not close")
		}
	}
}

func payloads(chunks []stream.Chunk) []stream.Chunk {
	var out []stream.Chunk
	for _, c := range chunks {
		if c.Kind == stream.KindPayload {
			out = append(out, c)
		}
	}
	return out
}

func progressTexts(chunks []stream.Chunk) []string {
	var out []string
	for _, c := range chunks {
		if c.Kind == stream.KindProgress {
			out = append(out, c.Text)
		}
	}
	return out
}

func TestLifecycleSuccess(t *testing.T) {
	llm := &scriptedLLM{replies: []scriptedReply{
		{fragments: []string{"func main() {", "}\n"}},
	}}
	a := newTestAgent(t, "codegen", TypeCodegen, testDeps(t, llm, newFakeStore()))

	sc := sharedctx.FromMap(map[string]any{"language": "Go"})
	chunks := collect(t, a.Run(context.Background(), "write main", sc))

	pay := payloads(chunks)
	require.Len(t, pay, 1)
	assert.Equal(t, "func main() {}\n", pay[0].Text)
	assert.Equal(t, "codegen", pay[0].Agent)

	// The payload arrives only after every progress chunk of the attempt.
	prog := progressTexts(chunks)
	require.NotEmpty(t, prog)
	assert.Contains(t, prog[0], "starting codegen task")
	assert.Contains(t, prog[len(prog)-1], "[SUCCESS]")
	assert.Equal(t, stream.KindPayload, chunks[len(chunks)-2].Kind)

	// Prompt carries the shared context fields.
	require.Equal(t, 1, llm.callCount())
	assert.Contains(t, llm.prompts[0], "Go")
	assert.Contains(t, llm.prompts[0], "write main")
}

func TestLifecycleDoesNotWriteSharedContext(t *testing.T) {
	llm := &scriptedLLM{replies: []scriptedReply{{fragments: []string{"plan"}}}}
	a := newTestAgent(t, "planner", TypePlanner, testDeps(t, llm, newFakeStore()))

	sc := sharedctx.FromMap(map[string]any{"project_goal": "ship it"})
	before := sc.Version()
	collect(t, a.Run(context.Background(), "plan the release", sc))
	assert.Equal(t, before, sc.Version())
}

func TestEmptyResponseTriggersCorrection(t *testing.T) {
	llm := &scriptedLLM{replies: []scriptedReply{
		{fragments: []string{"   \n"}},
		{fragments: []string{"corrected output"}},
	}}
	a := newTestAgent(t, "codegen", TypeCodegen, testDeps(t, llm, newFakeStore()))

	chunks := collect(t, a.Run(context.Background(), "write code", sharedctx.New()))

	pay := payloads(chunks)
	require.Len(t, pay, 1)
	assert.Equal(t, "corrected output", pay[0].Text)
	// All chunks, corrective run included, keep the failing agent's name.
	for _, c := range chunks {
		assert.Equal(t, "codegen", c.Agent)
	}
	assert.True(t, containsSubstring(progressTexts(chunks), "self-correction triggered"))
	require.Equal(t, 2, llm.callCount())
	// The corrective prompt embeds the failure report.
	assert.Contains(t, llm.prompts[1], "validation_failed")
	assert.Contains(t, llm.prompts[1], "write code")
}

func TestErrorMarkerTriggersCorrection(t *testing.T) {
	llm := &scriptedLLM{replies: []scriptedReply{
		{fragments: []string{"partial [ERROR] upstream tool failed"}},
		{fragments: []string{"clean output"}},
	}}
	a := newTestAgent(t, "qa", TypeQA, testDeps(t, llm, newFakeStore()))

	sc := sharedctx.FromMap(map[string]any{
		"operation_type": "analyze_report",
		"report":         "coverage dropped",
	})
	chunks := collect(t, a.Run(context.Background(), "analyze", sc))

	pay := payloads(chunks)
	require.Len(t, pay, 1)
	assert.Equal(t, "clean output", pay[0].Text)
}

func TestRuleViolationTriggersCorrection(t *testing.T) {
	llm := &scriptedLLM{replies: []scriptedReply{
		{fragments: []string{"code with SECRET inside"}},
		{fragments: []string{"sanitized code"}},
	}}
	deps := testDeps(t, llm, newFakeStore())
	deps.Rules = forbidRules{needle: "SECRET"}
	a := newTestAgent(t, "codegen", TypeCodegen, deps)

	chunks := collect(t, a.Run(context.Background(), "write code", sharedctx.New()))

	pay := payloads(chunks)
	require.Len(t, pay, 1)
	assert.Equal(t, "sanitized code", pay[0].Text)
	assert.Contains(t, llm.prompts[1], "rule_violation")
}

func TestCorrectionDepthExhausted(t *testing.T) {
	llm := &scriptedLLM{replies: []scriptedReply{
		{fragments: []string{""}},
	}}
	deps := testDeps(t, llm, newFakeStore())
	deps.MaxCorrections = 0
	tl := logging.NewTestLogger()
	deps.Logger = tl.Logger
	a := newTestAgent(t, "codegen", TypeCodegen, deps)

	chunks := collect(t, a.Run(context.Background(), "write code", sharedctx.New()))

	assert.Empty(t, payloads(chunks))
	require.Equal(t, 1, llm.callCount())
	terminal := 0
	for _, text := range progressTexts(chunks) {
		if strings.Contains(text, "[E005]") {
			terminal++
		}
	}
	assert.Equal(t, 1, terminal)

	// The terminal entry carries the recovery-failed classification.
	tl.AssertLogged(t, zapcore.ErrorLevel, "self-correction budget exhausted")
	var classified bool
	for _, e := range tl.All() {
		for _, f := range e.Context {
			if f.Key == "terminal_type" && f.String == string(ErrRecoveryFailed) {
				classified = true
			}
		}
	}
	assert.True(t, classified)
}

func TestCorrectionBudgetSpansChain(t *testing.T) {
	// First attempt fails, the corrective attempt fails too; depth 1
	// allows exactly one corrective lifecycle.
	llm := &scriptedLLM{replies: []scriptedReply{
		{fragments: []string{""}},
		{fragments: []string{""}},
	}}
	a := newTestAgent(t, "codegen", TypeCodegen, testDeps(t, llm, newFakeStore()))

	chunks := collect(t, a.Run(context.Background(), "write code", sharedctx.New()))

	assert.Empty(t, payloads(chunks))
	assert.Equal(t, 2, llm.callCount())
	assert.True(t, containsSubstring(progressTexts(chunks), "[E005]"))
}

func TestFixTimeoutDoesNotRecurse(t *testing.T) {
	llm := &scriptedLLM{replies: []scriptedReply{
		{err: fmt.Errorf("llm call failed: %w", context.DeadlineExceeded)},
	}}
	deps := testDeps(t, llm, newFakeStore())
	deps.MaxCorrections = 3
	a := newTestAgent(t, "fixer", TypeFix, deps)

	chunks := collect(t, a.Run(context.Background(), "repair the build", sharedctx.New()))

	assert.Empty(t, payloads(chunks))
	require.Equal(t, 1, llm.callCount())
	assert.True(t, containsSubstring(progressTexts(chunks), "timed out"))
}

func TestCancellationSkipsCorrection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	llm := &scriptedLLM{replies: []scriptedReply{
		{err: context.Canceled},
	}}
	cancel()
	a := newTestAgent(t, "codegen", TypeCodegen, testDeps(t, llm, newFakeStore()))

	chunks := collect(t, a.Run(ctx, "write code", sharedctx.New()))

	assert.Empty(t, payloads(chunks))
	assert.False(t, containsSubstring(progressTexts(chunks), "self-correction triggered"))
	assert.LessOrEqual(t, llm.callCount(), 1)
}

func TestDocGenerateNewPersists(t *testing.T) {
	store := newFakeStore()
	store.content["src-1"] = "package demo"
	llm := &scriptedLLM{replies: []scriptedReply{
		{fragments: []string{"# Demo\n\nUsage docs."}},
	}}
	a := newTestAgent(t, "doc", TypeDoc, testDeps(t, llm, store))

	sc := sharedctx.FromMap(map[string]any{
		"artifact_id":     "src-1",
		"parent_location": "docs/",
	})
	chunks := collect(t, a.Run(context.Background(), "document demo", sc))

	pay := payloads(chunks)
	require.Len(t, pay, 1)
	assert.Equal(t, "# Demo\n\nUsage docs.", store.content["id-1"])
	assert.True(t, containsSubstring(progressTexts(chunks), "artifact saved with id id-1"))
	assert.Contains(t, llm.prompts[0], "package demo")
}

func TestDocUpdateExistingRewritesInPlace(t *testing.T) {
	store := newFakeStore()
	store.content["doc-1"] = "old docs"
	llm := &scriptedLLM{replies: []scriptedReply{
		{fragments: []string{"new docs"}},
	}}
	a := newTestAgent(t, "doc", TypeDoc, testDeps(t, llm, store))

	sc := sharedctx.FromMap(map[string]any{
		"operation_type":  "update_existing",
		"doc_artifact_id": "doc-1",
	})
	chunks := collect(t, a.Run(context.Background(), "refresh docs", sc))

	require.Len(t, payloads(chunks), 1)
	assert.Equal(t, "new docs", store.content["doc-1"])
}

func TestPersistenceFailureTriggersCorrection(t *testing.T) {
	store := newFakeStore()
	store.content["src-1"] = "code under test"
	store.failNext = errors.New("disk full")
	llm := &scriptedLLM{replies: []scriptedReply{
		{fragments: []string{"func TestDemo(t *testing.T) {}"}},
		{fragments: []string{"corrected tests"}},
	}}
	a := newTestAgent(t, "test", TypeTest, testDeps(t, llm, store))

	sc := sharedctx.FromMap(map[string]any{
		"artifact_id":     "src-1",
		"parent_location": "tests/",
	})
	chunks := collect(t, a.Run(context.Background(), "write tests", sc))

	// The corrective run goes through the fix profile, which never
	// persists; its payload still reaches the stream.
	pay := payloads(chunks)
	require.Len(t, pay, 1)
	assert.Equal(t, "corrected tests", pay[0].Text)
	assert.Contains(t, llm.prompts[1], "persistence_failed")
}

func TestMissingContextFieldIsInvalidInput(t *testing.T) {
	llm := &scriptedLLM{}
	deps := testDeps(t, llm, newFakeStore())
	deps.MaxCorrections = 0
	a := newTestAgent(t, "qa", TypeQA, deps)

	chunks := collect(t, a.Run(context.Background(), "review", sharedctx.New()))

	assert.Empty(t, payloads(chunks))
	assert.Equal(t, 0, llm.callCount())
	assert.True(t, containsSubstring(progressTexts(chunks), "artifact_id"))
}

func TestUnknownOperationType(t *testing.T) {
	llm := &scriptedLLM{}
	deps := testDeps(t, llm, newFakeStore())
	deps.MaxCorrections = 0
	a := newTestAgent(t, "doc", TypeDoc, deps)

	sc := sharedctx.FromMap(map[string]any{"operation_type": "compile"})
	chunks := collect(t, a.Run(context.Background(), "document", sc))

	assert.Empty(t, payloads(chunks))
	assert.True(t, containsSubstring(progressTexts(chunks), `unknown doc operation "compile"`))
}

func TestRegistryBuildSkipsUnknownType(t *testing.T) {
	tl := logging.NewTestLogger()
	deps := Deps{Logger: tl.Logger}
	reg := Build(config.AgentsConfig{
		MaxCorrectionDepth: 2,
		Definitions: map[string]config.AgentConfig{
			"codegen": {Type: "codegen"},
			"weird":   {Type: "quantum"},
		},
	}, deps, nil)

	assert.Equal(t, 1, reg.Len())
	_, ok := reg.Get("codegen")
	assert.True(t, ok)
	_, ok = reg.Get("weird")
	assert.False(t, ok)
	tl.AssertLogged(t, zapcore.ErrorLevel, "skipping agent definition")
}

func TestRegistryNamesSorted(t *testing.T) {
	reg := Build(config.Default().Agents, Deps{}, nil)
	assert.Equal(t, []string{"codegen", "doc", "fix", "planner", "qa", "test"}, reg.Names())
}

func containsSubstring(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
