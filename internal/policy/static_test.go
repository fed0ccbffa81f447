package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamancini/upkeep/internal/config"
	"github.com/adamancini/upkeep/internal/release"
)

func TestStaticEvaluateUpdate(t *testing.T) {
	cfg := config.PolicyConfig{
		AllowedChannels:    []string{"stable", "beta", "lts"},
		DeniedChannels:     map[string]string{"nightly": "channel not permitted", "canary": ""},
		ApprovalChannels:   []string{"beta"},
		MaxSizeMB:          100,
		RequiredCompliance: []string{"SOC2"},
	}
	compliant := release.ComplianceTags{"soc2": true}

	tests := []struct {
		name    string
		channel string
		sizeMB  float64
		tags    release.ComplianceTags
		want    Decision
	}{
		{"allowed", "stable", 10, compliant, Allow()},
		{"denied with reason", "nightly", 10, compliant, Deny("channel not permitted")},
		{"denied default reason", "canary", 10, compliant, Deny(DefaultDenyReason)},
		{"not in allow list", "edge", 10, compliant, Deny(DefaultDenyReason)},
		{"too large", "stable", 150, compliant, Deny("artifact size 150.0 MB exceeds limit of 100.0 MB")},
		{"missing compliance", "stable", 10, release.ComplianceTags{"soc2": false, "gdpr": true}, Deny("release is missing required compliance: soc2")},
		{"approval channel", "beta", 10, compliant, NeedApproval("channel 'beta' requires approval")},
		{"at size limit", "lts", 100, compliant, Allow()},
		{"undeclared size", "stable", 0, compliant, Deny("artifact size unknown; policy limits artifacts to 100.0 MB")},
	}

	s := NewStatic(cfg)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.EvaluateUpdate(context.Background(), tt.channel, tt.sizeMB, tt.tags)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStaticEmptyPolicyAllowsEverything(t *testing.T) {
	s := NewStatic(config.PolicyConfig{})
	got, err := s.EvaluateUpdate(context.Background(), "nightly", 5000, nil)
	require.NoError(t, err)
	assert.Equal(t, Allowed, got.Outcome)

	got, err = s.EvaluateUpdate(context.Background(), "stable", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, Allowed, got.Outcome, "unknown size is fine without a limit")
	assert.False(t, s.SignatureRequired())
}

func TestStaticSignatureRequired(t *testing.T) {
	s := NewStatic(config.PolicyConfig{RequireSignature: true})
	assert.True(t, s.SignatureRequired())
}

func TestNewSelectsEngine(t *testing.T) {
	e, err := New(context.Background(), config.PolicyConfig{})
	require.NoError(t, err)
	assert.IsType(t, &Static{}, e)

	_, err = New(context.Background(), config.PolicyConfig{Engine: "cel"})
	assert.Error(t, err)
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "allowed", Allow().String())
	assert.Equal(t, "denied: no", Deny("no").String())
}
