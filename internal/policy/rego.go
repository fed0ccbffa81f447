package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/adamancini/upkeep/internal/config"
	"github.com/adamancini/upkeep/internal/release"
)

// Rego evaluates an OPA policy. The query must produce an object of the form
// {"allow": bool, "reason": string, "requires_approval": bool}.
type Rego struct {
	query             rego.PreparedEvalQuery
	signatureRequired bool
}

type regoInput struct {
	Channel    string          `json:"channel"`
	SizeMB     float64         `json:"size_mb"`
	SizeKnown  bool            `json:"size_known"`
	Compliance map[string]bool `json:"compliance"`
	Enabled    []string        `json:"compliance_enabled"`
}

type regoDecision struct {
	Allow            bool   `json:"allow"`
	Reason           string `json:"reason"`
	RequiresApproval bool   `json:"requires_approval"`
}

// NewRego loads the policy files or directories at path and prepares query.
func NewRego(ctx context.Context, path, query string, signatureRequired bool) (*Rego, error) {
	if path == "" {
		return nil, errors.New("rego policy path is required")
	}
	if query == "" {
		query = config.DefaultRegoQuery
	}

	r := rego.New(
		rego.Query(query),
		rego.StrictBuiltinErrors(true),
		rego.Load([]string{path}, nil),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego policy: %w", err)
	}

	return &Rego{query: prepared, signatureRequired: signatureRequired}, nil
}

// EvaluateUpdate implements Evaluator. An undefined or malformed result is an
// error, never an implicit allow.
func (e *Rego) EvaluateUpdate(ctx context.Context, channel string, sizeMB float64, tags release.ComplianceTags) (Decision, error) {
	compliance := map[string]bool{}
	for k, v := range tags {
		compliance[k] = v
	}
	input := regoInput{
		Channel:    channel,
		SizeMB:     sizeMB,
		SizeKnown:  sizeMB > 0,
		Compliance: compliance,
		Enabled:    tags.Enabled(),
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("rego evaluation failed: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{}, errors.New("rego policy returned no decision")
	}

	decision, err := decodeRegoDecision(results[0].Expressions[0].Value)
	if err != nil {
		return Decision{}, err
	}

	switch {
	case !decision.Allow:
		reason := decision.Reason
		if reason == "" {
			reason = "denied by policy"
		}
		return Deny(reason), nil
	case decision.RequiresApproval:
		reason := decision.Reason
		if reason == "" {
			reason = "policy requires approval"
		}
		return NeedApproval(reason), nil
	default:
		return Allow(), nil
	}
}

// SignatureRequired implements Evaluator.
func (e *Rego) SignatureRequired() bool {
	return e.signatureRequired
}

func decodeRegoDecision(value any) (regoDecision, error) {
	if _, ok := value.(map[string]any); !ok {
		return regoDecision{}, fmt.Errorf("rego decision must be an object, got %T", value)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return regoDecision{}, err
	}
	var d regoDecision
	if err := json.Unmarshal(payload, &d); err != nil {
		return regoDecision{}, fmt.Errorf("malformed rego decision: %w", err)
	}
	return d, nil
}
