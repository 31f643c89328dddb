package tool

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/codeforge/codeforge/internal/errs"
)

// writingTools identifies tool ids whose calls are serialized per target
// path: calls naming the same file_path take one mutex in arrival order.
// Each call locks only its own path, so no cross-path (lexicographic)
// lock ordering is applied.
var writingTools = map[string]bool{
	"write":     true,
	"edit":      true,
	"multiedit": true,
}

// Registry holds every registered tool and threads the permission gate
// and audit sink around each Execute call.
type Registry struct {
	tools      map[string]Tool
	permission PermissionProvider
	audit      *AuditSink

	pathLocksMu sync.Mutex
	pathLocks   map[string]*sync.Mutex
}

// NewRegistry constructs an empty registry. A nil PermissionProvider
// defaults to AllowAllPermissions; a nil AuditSink discards records.
func NewRegistry(permission PermissionProvider, audit *AuditSink) *Registry {
	if permission == nil {
		permission = AllowAllPermissions{}
	}
	if audit == nil {
		audit = NewDiscardAuditSink()
	}
	return &Registry{
		tools:      make(map[string]Tool),
		permission: permission,
		audit:      audit,
		pathLocks:  make(map[string]*sync.Mutex),
	}
}

// Register adds a tool, keyed by its own ID().
func (r *Registry) Register(t Tool) {
	r.tools[t.ID()] = t
}

// Get returns a tool by id, or nil if unregistered.
func (r *Registry) Get(id string) Tool {
	return r.tools[id]
}

// All returns every registered tool, for building the model's tool list.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// targetPath extracts a write target for path-order serialization, if the
// args contain a recognizable file_path field.
func targetPath(args map[string]any) (string, bool) {
	if v, ok := args["file_path"].(string); ok && v != "" {
		return v, true
	}
	return "", false
}

func (r *Registry) lockFor(path string) *sync.Mutex {
	r.pathLocksMu.Lock()
	defer r.pathLocksMu.Unlock()
	m, ok := r.pathLocks[path]
	if !ok {
		m = &sync.Mutex{}
		r.pathLocks[path] = m
	}
	return m
}

// Execute runs the named tool through the permission gate and audit log.
// Concurrent calls to file-writing tools with the same file_path argument
// (compared as given, not cleaned) are serialized; different paths
// proceed concurrently.
func (r *Registry) Execute(ctx context.Context, id string, args map[string]any, ectx ExecutionContext) (Result, error) {
	t := r.Get(id)
	if t == nil {
		return Result{}, errs.New(errs.KindInvalidParameters, "unknown tool: "+id)
	}

	risk := RiskOf(id)
	decision, err := r.permission.Decide(ctx, PermissionRequest{
		ToolID: id, Args: args, Risk: risk, ExecutionContext: ectx,
	})
	if err != nil {
		return Result{}, errs.Wrap(errs.KindInternal, "permission check failed", err)
	}
	if decision == DecisionDeny {
		return Result{}, errs.New(errs.KindPermissionDenied, "permission denied for tool "+id)
	}

	var unlock func()
	if writingTools[id] {
		if path, ok := targetPath(args); ok {
			mu := r.lockFor(path)
			mu.Lock()
			unlock = mu.Unlock
		}
	}
	if unlock != nil {
		defer unlock()
	}

	auditID, auditErr := r.audit.Start(ectx.SessionID, ectx.MessageID, id, args, risk)
	start := time.Now()

	if ectx.Abort != nil && ectx.Abort.Aborted() {
		abortErr := errs.New(errs.KindAborted, "aborted before execution")
		if auditErr == nil {
			_ = r.audit.EndFailure(auditID, time.Since(start), string(errs.KindAborted), abortErr.Error())
		}
		return Result{}, abortErr
	}

	result, execErr := t.Execute(ctx, args, ectx)
	duration := time.Since(start)

	if auditErr == nil {
		if execErr != nil {
			_ = r.audit.EndFailure(auditID, duration, string(errs.KindOf(execErr)), execErr.Error())
		} else {
			_ = r.audit.EndSuccess(auditID, duration, result.Metadata)
		}
	}

	return result, execErr
}
