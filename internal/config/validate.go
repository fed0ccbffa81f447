// Package config handles upkeep configuration loading and location resolution.
//
// Validation rules:
//   - keep_backups: at least 1 (the pre-update backup must survive pruning)
//   - download_timeout: positive
//   - policy.engine: static or rego; rego requires rego_path
//   - policy.max_size_mb: non-negative
//   - a channel may not be both allowed and denied
//   - signing keys: ed25519 key is 32 bytes of hex; only one minisign key source
//   - log.level: debug, info, warn, error; log.format: text, json, logfmt
package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/adamancini/upkeep/internal/types"
)

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the config for required fields and valid values.
func Validate(c *Config) error {
	var errors []string

	if err := validateInstall(c); err != nil {
		errors = append(errors, err.Error())
	}

	if err := validatePolicy(c.Policy); err != nil {
		errors = append(errors, err.Error())
	}

	if err := validateSigning(c.Signing); err != nil {
		errors = append(errors, err.Error())
	}

	if err := validateLog(c.Log); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func validateInstall(c *Config) error {
	if c.KeepBackups < 1 {
		return ValidationError{
			Field:   "keep_backups",
			Message: "must be at least 1",
		}
	}

	if c.DownloadTimeout.Std() <= 0 {
		return ValidationError{
			Field:   "download_timeout",
			Message: "must be positive",
		}
	}

	if strings.ContainsAny(c.BinaryName, `/\`) {
		return ValidationError{
			Field:   "binary_name",
			Message: fmt.Sprintf("'%s' must be a file name, not a path", c.BinaryName),
		}
	}

	return nil
}

func validatePolicy(p PolicyConfig) error {
	if err := p.Engine.Validate(); err != nil {
		return ValidationError{
			Field:   "policy.engine",
			Message: err.Error(),
		}
	}

	if p.Engine == types.PolicyEngineRego && p.RegoPath == "" {
		return ValidationError{
			Field:   "policy.rego_path",
			Message: "rego_path is required for the rego engine",
		}
	}

	if p.MaxSizeMB < 0 {
		return ValidationError{
			Field:   "policy.max_size_mb",
			Message: "must be non-negative",
		}
	}

	for _, ch := range p.AllowedChannels {
		if _, denied := p.DeniedChannels[ch]; denied {
			return ValidationError{
				Field:   "policy.denied_channels",
				Message: fmt.Sprintf("channel '%s' is both allowed and denied", ch),
			}
		}
	}

	return nil
}

func validateSigning(s SigningConfig) error {
	if s.MinisignPublicKey != "" && s.MinisignPublicKeyFile != "" {
		return ValidationError{
			Field:   "signing.minisign_public_key_file",
			Message: "set either minisign_public_key or minisign_public_key_file, not both",
		}
	}

	if s.Ed25519PublicKey != "" {
		key, err := hex.DecodeString(strings.TrimSpace(s.Ed25519PublicKey))
		if err != nil || len(key) != 32 {
			return ValidationError{
				Field:   "signing.ed25519_public_key",
				Message: "must be 64 hex characters (32 bytes)",
			}
		}
	}

	return nil
}

func validateLog(l LogConfig) error {
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s' (must be debug, info, warn, or error)", l.Level),
		}
	}

	switch strings.ToLower(l.Format) {
	case "", "text", "json", "logfmt":
	default:
		return ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("invalid format '%s' (must be text, json, or logfmt)", l.Format),
		}
	}

	return nil
}
