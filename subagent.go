package axon

import (
	"context"
	"sync"
)

// Agent is a unit of work that takes a task string and returns an
// answer string. The driver implements it; scripted agents in tests and
// remote agents behind adapters implement it too.
type Agent interface {
	// Name returns the agent's identifier.
	Name() string
	// Execute runs the agent on the given task and returns its answer.
	Execute(ctx context.Context, task string) (string, error)
}

// subAgentHandle pairs an agent with its own mutual-exclusion lock so
// concurrent dispatches to the same target queue instead of interleaving.
type subAgentHandle struct {
	mu    sync.Mutex
	agent Agent
}

// SubAgentRegistry maps names to sub-agent handles. Each handle carries
// its own lock: a sub-agent observes tasks serially even when the
// parent issues concurrent calls to the same target, while calls to
// different targets proceed in parallel.
type SubAgentRegistry struct {
	mu      sync.RWMutex
	handles map[string]*subAgentHandle
}

// NewSubAgentRegistry creates an empty registry.
func NewSubAgentRegistry() *SubAgentRegistry {
	return &SubAgentRegistry{handles: make(map[string]*subAgentHandle)}
}

// Register adds or replaces a sub-agent under the given name.
func (r *SubAgentRegistry) Register(name string, agent Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[name] = &subAgentHandle{agent: agent}
}

// Names returns the registered sub-agent names.
func (r *SubAgentRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	return names
}

// Dispatch acquires the target's lock, invokes Execute, and releases on
// all exit paths. The only information crossing the boundary is the
// task string in and the answer string out — the parent's buffer,
// tools, and memory namespace stay invisible to the sub-agent.
func (r *SubAgentRegistry) Dispatch(ctx context.Context, name, task string) (string, error) {
	r.mu.RLock()
	handle, ok := r.handles[name]
	r.mu.RUnlock()
	if !ok {
		return "", &ErrTool{Tool: "agent_tool", Kind: ToolErrInvalidArguments, Message: "unknown sub-agent " + name}
	}

	handle.mu.Lock()
	defer handle.mu.Unlock()
	return handle.agent.Execute(ctx, task)
}
