// Package agent implements the "virtual agents" of spec.md §3/§4.6: typed
// capability sets the task queue spawns to execute a QueuedTask. No pack
// example models this concept (godex's harnesses are vendor adapters, not
// capability-typed workers), so the registration/selection shape here is
// grounded on the same ordered-registration-with-RWMutex pattern used
// throughout the teacher (pkg/router.Router) and generalized to
// spec.md §4.6's "max-cardinality capability overlap, ties broken by
// registration order" selection rule.
package agent

import (
	"context"
	"sync"

	"github.com/codeforge/codeforge/internal/errs"
	"github.com/codeforge/codeforge/internal/orchestrator"
	"github.com/codeforge/codeforge/internal/orchestrator/taskqueue"
	"github.com/codeforge/codeforge/internal/registry"
	"github.com/codeforge/codeforge/internal/tool"
)

// Type is one registered virtual-agent type: the capability set it
// satisfies and the model it runs on.
type Type struct {
	Name         string
	Capabilities []string
	ProviderID   string // empty selects get_best_model
	Model        string
}

// Manager selects an agent Type by capability overlap and executes
// QueuedTask entries against it, implementing taskqueue.Executor.
type Manager struct {
	registry *registry.Registry
	tools    *tool.Registry

	mu    sync.RWMutex
	types []Type // registration order, the tie-break for equal-cardinality matches
}

// New constructs a Manager backed by reg for model resolution and tools
// for dispatch.
func New(reg *registry.Registry, tools *tool.Registry) *Manager {
	return &Manager{registry: reg, tools: tools}
}

// Register appends an agent type; types are not keyed by Name, so a
// repeated Name adds a second entry.
func (m *Manager) Register(t Type) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types = append(m.types, t)
}

// selectType picks the agent type whose Capabilities overlap required by
// the largest count, breaking ties by registration order, per spec.md
// §4.6's task-queue scheduling rule.
func (m *Manager) selectType(required []string) (Type, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	need := make(map[string]bool, len(required))
	for _, c := range required {
		need[c] = true
	}

	best := -1
	bestScore := -1
	for i, t := range m.types {
		score := 0
		for _, c := range t.Capabilities {
			if need[c] {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best < 0 {
		return Type{}, false
	}
	return m.types[best], true
}

// Execute resolves an agent type and model for task, then drives the
// conversation loop against it to completion, implementing
// taskqueue.Executor.
func (m *Manager) Execute(ctx context.Context, task *taskqueue.QueuedTask) (string, error) {
	agentType, ok := m.selectType(task.Capabilities)
	if !ok {
		return "", errs.New(errs.KindInvalidParameters, "no agent type registered for task "+task.ID)
	}

	var handle registry.ModelHandle
	var err error
	if agentType.ProviderID != "" {
		handle, err = m.registry.GetModel(agentType.ProviderID, agentType.Model)
	} else {
		handle, err = m.registry.GetBestModel(agentType.Model)
	}
	if err != nil {
		return "", err
	}

	session := orchestrator.NewSession(task.ID)
	ectx := tool.ExecutionContext{SessionID: task.ID, WorkingDir: ".", Abort: tool.NewAbortSignal()}

	go func() {
		<-ctx.Done()
		ectx.Abort.Abort()
	}()

	return orchestrator.Loop(ctx, session, handle.Provider, handle.ModelID, m.tools, task.Prompt, orchestrator.Options{
		ExecutionContext: ectx,
	})
}
