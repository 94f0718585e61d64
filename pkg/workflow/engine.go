package workflow

import (
	"context"

	"github.com/m-mizutani/cony/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

// regoPrintHook implements print.Hook interface for Rego print() statements
type regoPrintHook struct{}

func (h *regoPrintHook) Print(ctx print.Context, message string) error {
	logging.Default().Debug("rego print", "message", message)
	return nil
}

// Engine evaluates Rego policies that gate routing decisions. A nil
// Engine (or a phase without a policy) defaults to permissive behavior.
type Engine struct {
	routePolicy *rego.PreparedEvalQuery
	readyPolicy *rego.PreparedEvalQuery
}

// New creates a new policy engine. An empty policyDir or a directory
// without .rego files yields a nil engine.
func New(ctx context.Context, policyDir string) (*Engine, error) {
	if policyDir == "" {
		return nil, nil
	}

	route, ready, err := loadPolicies(ctx, policyDir)
	if err != nil {
		return nil, err
	}
	if route == nil && ready == nil {
		return nil, nil
	}

	return &Engine{
		routePolicy: route,
		readyPolicy: ready,
	}, nil
}

// AllowExternal evaluates data.route against the query input. External
// lookup is denied only when the policy sets deny_external to true.
func (e *Engine) AllowExternal(ctx context.Context, input map[string]any) (bool, error) {
	if e == nil || e.routePolicy == nil {
		return true, nil
	}

	rs, err := e.routePolicy.Eval(ctx, rego.EvalInput(input), rego.EvalPrintHook(&regoPrintHook{}))
	if err != nil {
		return false, goerr.Wrap(err, "failed to evaluate route policy")
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return true, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return true, nil
	}
	if deny, ok := data["deny_external"].(bool); ok && deny {
		return false, nil
	}
	return true, nil
}

// ReadyOverride evaluates data.ready against a pending-request input.
// The second return reports whether the policy expressed an opinion at
// all; without one the caller keeps its built-in readiness rule.
func (e *Engine) ReadyOverride(ctx context.Context, input map[string]any) (bool, bool, error) {
	if e == nil || e.readyPolicy == nil {
		return false, false, nil
	}

	rs, err := e.readyPolicy.Eval(ctx, rego.EvalInput(input), rego.EvalPrintHook(&regoPrintHook{}))
	if err != nil {
		return false, false, goerr.Wrap(err, "failed to evaluate ready policy")
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, false, nil
	}

	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return false, false, nil
	}
	if ready, ok := data["ready"].(bool); ok {
		return ready, true, nil
	}
	return false, false, nil
}
