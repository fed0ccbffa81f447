// Package policy decides whether a release may be installed.
package policy

import (
	"context"
	"fmt"

	"github.com/adamancini/upkeep/internal/config"
	"github.com/adamancini/upkeep/internal/release"
	"github.com/adamancini/upkeep/internal/types"
)

// Outcome is the kind of a policy decision.
type Outcome string

const (
	Allowed          Outcome = "allowed"
	Denied           Outcome = "denied"
	RequiresApproval Outcome = "requires_approval"
)

// Decision is the result of evaluating a release against a policy.
type Decision struct {
	Outcome Outcome `json:"outcome" yaml:"outcome"`
	Reason  string  `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Allow returns an Allowed decision.
func Allow() Decision { return Decision{Outcome: Allowed} }

// Deny returns a Denied decision with reason.
func Deny(reason string) Decision { return Decision{Outcome: Denied, Reason: reason} }

// NeedApproval returns a RequiresApproval decision.
func NeedApproval(reason string) Decision {
	return Decision{Outcome: RequiresApproval, Reason: reason}
}

func (d Decision) String() string {
	if d.Reason == "" {
		return string(d.Outcome)
	}
	return fmt.Sprintf("%s: %s", d.Outcome, d.Reason)
}

// Evaluator gates updates before any side effect.
type Evaluator interface {
	EvaluateUpdate(ctx context.Context, channel string, sizeMB float64, tags release.ComplianceTags) (Decision, error)
	SignatureRequired() bool
}

// New builds the evaluator selected by cfg.Engine.
func New(ctx context.Context, cfg config.PolicyConfig) (Evaluator, error) {
	switch cfg.Engine.Default() {
	case types.PolicyEngineStatic:
		return NewStatic(cfg), nil
	case types.PolicyEngineRego:
		return NewRego(ctx, cfg.RegoPath, cfg.RegoQuery, cfg.RequireSignature)
	default:
		return nil, fmt.Errorf("unsupported policy engine '%s'", cfg.Engine)
	}
}
