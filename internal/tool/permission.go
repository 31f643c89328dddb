package tool

import "context"

// Decision is the outcome a PermissionProvider returns for one call.
type Decision string

const (
	DecisionAllow       Decision = "Allow"
	DecisionDeny        Decision = "Deny"
	DecisionAllowOnce   Decision = "AllowOnce"
	DecisionAllowAlways Decision = "AllowAlways"
)

// PermissionRequest describes one pending tool call for approval.
type PermissionRequest struct {
	ToolID string
	Args   map[string]any
	Risk   RiskLevel
	ExecutionContext
}

// PermissionProvider answers permission requests. Implementations may
// prompt a human, consult a policy file, or auto-approve by risk level.
type PermissionProvider interface {
	Decide(ctx context.Context, req PermissionRequest) (Decision, error)
}

// AllowAllPermissions is a PermissionProvider that always allows — used
// when no permission gate is configured (spec's hooks are optional).
type AllowAllPermissions struct{}

func (AllowAllPermissions) Decide(context.Context, PermissionRequest) (Decision, error) {
	return DecisionAllow, nil
}

// rememberingPermissions tracks AllowAlways decisions so repeat calls to the same
// tool id skip re-prompting within one process.
type rememberingPermissions struct {
	inner     PermissionProvider
	alwaysOK  map[string]bool
}

// NewRememberingPermissions wraps inner so that an AllowAlways decision
// for a tool id is cached and returned without re-consulting inner.
func NewRememberingPermissions(inner PermissionProvider) PermissionProvider {
	return &rememberingPermissions{inner: inner, alwaysOK: make(map[string]bool)}
}

func (r *rememberingPermissions) Decide(ctx context.Context, req PermissionRequest) (Decision, error) {
	if r.alwaysOK[req.ToolID] {
		return DecisionAllow, nil
	}
	d, err := r.inner.Decide(ctx, req)
	if err != nil {
		return d, err
	}
	if d == DecisionAllowAlways {
		r.alwaysOK[req.ToolID] = true
	}
	return d, nil
}
