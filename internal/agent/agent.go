// Package agent implements the buffer-validate-emit lifecycle shared by all
// agent specializations, the self-correction coordinator, and the registry
// that maps agent names to live instances.
//
// Every agent buffers the full provider response before validation; no
// payload chunk reaches the stream until the response has passed local
// validation, rule enforcement, and (where applicable) persistence. A
// lifecycle failure never propagates as an error to the caller: it is
// recovered locally by re-running the lifecycle through the fix profile
// with a corrective task, bounded by the correction depth.
//
// Agents read the run-scoped shared context but never write it; folding an
// agent's payload back under "<agent>_output" is the orchestrator's job.
package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/rules"
	"github.com/fyrsmithlabs/agentd/internal/sharedctx"
	"github.com/fyrsmithlabs/agentd/internal/stream"
)

// Agent capability types.
const (
	TypeCodegen = "codegen"
	TypePlanner = "planner"
	TypeQA      = "qa"
	TypeDoc     = "doc"
	TypeTest    = "test"
	TypeFix     = "fix"
)

// Agent is one task specialization behind the standard lifecycle.
type Agent interface {
	// Name is the agent's identity in progress chunks.
	Name() string
	// Type is the stable capability identifier.
	Type() string
	// Run executes the lifecycle for task against the run-scoped context.
	// The returned channel is closed when the stream ends. Run never
	// fails with an error: failures surface inside the stream, either as
	// a corrected payload or as a recovery-failure progress chunk.
	Run(ctx context.Context, task string, sc *sharedctx.Context) <-chan stream.Chunk
}

// LLM is the provider collaborator. Satisfied by llm.Client.
type LLM interface {
	Stream(ctx context.Context, prompt string, fn func(fragment string) error) error
}

// Templates renders named prompt templates. Satisfied by prompts.Renderer.
type Templates interface {
	Render(name string, fields map[string]any) (string, error)
}

// Store is the artifact persistence collaborator. Mirrors artifacts.Store;
// redeclared here so lifecycle tests can mock it without importing the
// backend package.
type Store interface {
	Read(ctx context.Context, id string) (string, error)
	Write(ctx context.Context, name, content, location string) (string, error)
	Update(ctx context.Context, id, content, kind string) error
}

// Deps bundles the external collaborators shared by all agents.
type Deps struct {
	LLM       LLM
	Rules     rules.Engine
	Store     Store
	Templates Templates
	Logger    *zap.Logger
	// MaxCorrections bounds recursive self-correction. Zero disables
	// correction entirely: the first failure reports recovery failure.
	MaxCorrections int
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
