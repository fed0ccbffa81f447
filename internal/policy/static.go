package policy

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/adamancini/upkeep/internal/config"
	"github.com/adamancini/upkeep/internal/release"
)

// DefaultDenyReason is used for denied channels configured without a reason.
const DefaultDenyReason = "channel not permitted"

// Static evaluates the rules declared in the policy section of the config.
//
// Rules are checked in order: denied channels, allowed channels, size limit,
// required compliance regimes, approval channels.
type Static struct {
	cfg config.PolicyConfig
}

// NewStatic creates a static evaluator.
func NewStatic(cfg config.PolicyConfig) *Static {
	return &Static{cfg: cfg}
}

// EvaluateUpdate implements Evaluator.
func (s *Static) EvaluateUpdate(_ context.Context, channel string, sizeMB float64, tags release.ComplianceTags) (Decision, error) {
	if reason, denied := s.cfg.DeniedChannels[channel]; denied {
		if reason == "" {
			reason = DefaultDenyReason
		}
		return Deny(reason), nil
	}

	if len(s.cfg.AllowedChannels) > 0 && !slices.Contains(s.cfg.AllowedChannels, channel) {
		return Deny(DefaultDenyReason), nil
	}

	if s.cfg.MaxSizeMB > 0 {
		// A declared size of 0 means unknown and cannot be held to the limit.
		if sizeMB <= 0 {
			return Deny(fmt.Sprintf("artifact size unknown; policy limits artifacts to %.1f MB", s.cfg.MaxSizeMB)), nil
		}
		if sizeMB > s.cfg.MaxSizeMB {
			return Deny(fmt.Sprintf("artifact size %.1f MB exceeds limit of %.1f MB", sizeMB, s.cfg.MaxSizeMB)), nil
		}
	}

	var missing []string
	for _, regime := range s.cfg.RequiredCompliance {
		if !tags.Has(regime) {
			missing = append(missing, strings.ToLower(regime))
		}
	}
	if len(missing) > 0 {
		return Deny(fmt.Sprintf("release is missing required compliance: %s", strings.Join(missing, ", "))), nil
	}

	if slices.Contains(s.cfg.ApprovalChannels, channel) {
		return NeedApproval(fmt.Sprintf("channel '%s' requires approval", channel)), nil
	}

	return Allow(), nil
}

// SignatureRequired implements Evaluator.
func (s *Static) SignatureRequired() bool {
	return s.cfg.RequireSignature
}
