package agent

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/config"
)

// Registry is an immutable name-to-agent snapshot. Hot reload builds a new
// Registry and swaps it in atomically; readers holding an old snapshot are
// unaffected.
type Registry struct {
	agents map[string]Agent
}

// NewRegistry wraps an explicit agent map. Used by tests.
func NewRegistry(agents map[string]Agent) *Registry {
	m := make(map[string]Agent, len(agents))
	for name, a := range agents {
		m[name] = a
	}
	return &Registry{agents: m}
}

// Build constructs a Registry from agent definitions. Definitions with an
// unknown type are logged and skipped so one bad entry cannot take down a
// reload. perModel, when non-nil, supplies a provider bound to a
// definition's model override.
func Build(cfg config.AgentsConfig, deps Deps, perModel func(model string) LLM) *Registry {
	log := deps.logger()
	deps.MaxCorrections = cfg.MaxCorrectionDepth

	agents := make(map[string]Agent, len(cfg.Definitions))
	for name, def := range cfg.Definitions {
		prof, err := profileFor(def.Type)
		if err != nil {
			log.Error("skipping agent definition", zap.String("agent", name), zap.Error(err))
			continue
		}
		d := deps
		if def.Model != "" && perModel != nil {
			d.LLM = perModel(def.Model)
		}
		agents[name] = &base{name: name, cfg: def, deps: d, prof: prof}
	}
	return &Registry{agents: agents}
}

// New constructs a single agent instance.
func New(name string, cfg config.AgentConfig, deps Deps) (Agent, error) {
	prof, err := profileFor(cfg.Type)
	if err != nil {
		return nil, err
	}
	return &base{name: name, cfg: cfg, deps: deps, prof: prof}, nil
}

func profileFor(agentType string) (profile, error) {
	switch agentType {
	case TypeCodegen:
		return codegenProfile{}, nil
	case TypePlanner:
		return plannerProfile{}, nil
	case TypeQA:
		return qaProfile{}, nil
	case TypeDoc:
		return docProfile{}, nil
	case TypeTest:
		return testProfile{}, nil
	case TypeFix:
		return fixProfile{}, nil
	default:
		return nil, fmt.Errorf("unknown agent type %q", agentType)
	}
}

// Get returns the agent registered under name.
func (r *Registry) Get(name string) (Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// Names lists registered agent names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of registered agents.
func (r *Registry) Len() int { return len(r.agents) }
