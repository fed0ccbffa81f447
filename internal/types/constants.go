// Package types provides type-safe constants for the upkeep update engine.
//
// This package centralizes the enumerated types shared by the release loader,
// the configuration layer, and the orchestrator, replacing magic strings with
// typed constants that provide validation methods.
//
// SYNC REQUIREMENT: ArchiveFormat values must stay in sync with:
//   - internal/release/release.schema.json (artifact "format" enum)
//   - internal/update/extract.go (extraction dispatch)
package types

import (
	"fmt"
	"strings"
)

// Status is a state of the update operation state machine.
type Status string

const (
	// StatusPending is the initial state before any step has run.
	StatusPending Status = "pending"
	// StatusDownloading means the artifact transfer is in progress.
	StatusDownloading Status = "downloading"
	// StatusDownloaded means the artifact is staged but not yet installed.
	StatusDownloaded Status = "downloaded"
	// StatusInstalling means the binary swap is in progress.
	StatusInstalling Status = "installing"
	// StatusInstalled is the terminal success state.
	StatusInstalled Status = "installed"
	// StatusFailed is the terminal failure state.
	StatusFailed Status = "failed"
	// StatusRolledBack is the terminal state after an automatic restore.
	StatusRolledBack Status = "rolled_back"
)

// AllStatuses returns every status in state machine order.
func AllStatuses() []Status {
	return []Status{
		StatusPending, StatusDownloading, StatusDownloaded, StatusInstalling,
		StatusInstalled, StatusFailed, StatusRolledBack,
	}
}

// IsTerminal returns true for Installed, Failed and RolledBack.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusInstalled, StatusFailed, StatusRolledBack:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the state machine allows s -> next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusDownloading || next == StatusFailed
	case StatusDownloading:
		return next == StatusDownloaded || next == StatusFailed
	case StatusDownloaded:
		return next == StatusInstalling || next == StatusFailed
	case StatusInstalling:
		return next == StatusInstalled || next == StatusFailed
	case StatusFailed:
		return next == StatusRolledBack
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (s Status) String() string {
	return string(s)
}

// ArchiveFormat is the container format of a release artifact.
type ArchiveFormat string

const (
	// ArchiveRaw is a bare executable with no container.
	ArchiveRaw ArchiveFormat = "raw"
	// ArchiveTarGz is a gzip-compressed tarball.
	ArchiveTarGz ArchiveFormat = "tar.gz"
	// ArchiveTarZst is a zstd-compressed tarball.
	ArchiveTarZst ArchiveFormat = "tar.zst"
	// ArchiveZip is a zip archive.
	ArchiveZip ArchiveFormat = "zip"
)

// AllArchiveFormats returns all supported archive formats.
func AllArchiveFormats() []ArchiveFormat {
	return []ArchiveFormat{ArchiveRaw, ArchiveTarGz, ArchiveTarZst, ArchiveZip}
}

// Validate checks if the ArchiveFormat is a valid value.
// Empty is valid and means "infer from the artifact URL".
func (f ArchiveFormat) Validate() error {
	switch f {
	case ArchiveRaw, ArchiveTarGz, ArchiveTarZst, ArchiveZip, "":
		return nil
	default:
		return fmt.Errorf("invalid archive format '%s' (must be raw, tar.gz, tar.zst, or zip)", f)
	}
}

// String returns the string representation of the ArchiveFormat.
func (f ArchiveFormat) String() string {
	return string(f)
}

// IsTar returns true for the tarball formats.
func (f ArchiveFormat) IsTar() bool {
	return f == ArchiveTarGz || f == ArchiveTarZst
}

// ParseArchiveFormat parses a string into an ArchiveFormat.
// "tgz" is accepted as an alias for tar.gz.
func ParseArchiveFormat(s string) (ArchiveFormat, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	if lower == "tgz" {
		return ArchiveTarGz, nil
	}
	f := ArchiveFormat(lower)
	if err := f.Validate(); err != nil {
		return "", err
	}
	return f, nil
}

// DetectArchiveFormat infers the archive format from an artifact URL or file
// name. Anything without a known archive suffix is treated as a raw binary.
func DetectArchiveFormat(name string) ArchiveFormat {
	lower := strings.ToLower(name)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return ArchiveTarGz
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return ArchiveTarZst
	case strings.HasSuffix(lower, ".zip"):
		return ArchiveZip
	default:
		return ArchiveRaw
	}
}

// SignatureScheme identifies how an artifact signature is encoded.
type SignatureScheme string

const (
	// SignatureMinisign is a minisign signature file ("untrusted comment:" header).
	SignatureMinisign SignatureScheme = "minisign"
	// SignatureEd25519 is a raw 64-byte ed25519 signature in hex or base64.
	SignatureEd25519 SignatureScheme = "ed25519"
	// SignatureUnknown is anything that could not be classified.
	SignatureUnknown SignatureScheme = "unknown"
)

// String returns the string representation of the SignatureScheme.
func (s SignatureScheme) String() string {
	return string(s)
}

// PolicyEngine selects the policy evaluator implementation.
type PolicyEngine string

const (
	// PolicyEngineStatic evaluates rules declared in the config file.
	PolicyEngineStatic PolicyEngine = "static"
	// PolicyEngineRego evaluates an OPA Rego module.
	PolicyEngineRego PolicyEngine = "rego"
)

// Validate checks if the PolicyEngine is a valid value.
// Empty is valid and defaults to static.
func (p PolicyEngine) Validate() error {
	switch p {
	case PolicyEngineStatic, PolicyEngineRego, "":
		return nil
	default:
		return fmt.Errorf("invalid policy engine '%s' (must be static or rego)", p)
	}
}

// Default returns static when empty.
func (p PolicyEngine) Default() PolicyEngine {
	if p == "" {
		return PolicyEngineStatic
	}
	return p
}

// String returns the string representation of the PolicyEngine.
func (p PolicyEngine) String() string {
	return string(p)
}

// FailureKind classifies the step at which an update operation failed.
type FailureKind string

const (
	FailureNone     FailureKind = ""
	FailureRelease  FailureKind = "release"
	FailurePolicy   FailureKind = "policy"
	FailureLock     FailureKind = "lock"
	FailureBackup   FailureKind = "backup"
	FailureDownload FailureKind = "download"
	FailureSecurity FailureKind = "security"
	FailureInstall  FailureKind = "install"
	FailureRollback FailureKind = "rollback"
	FailureInternal FailureKind = "internal"
)

// BeforeInstall returns true when the failure happened before the live
// installation could have been touched.
func (k FailureKind) BeforeInstall() bool {
	switch k {
	case FailureRelease, FailurePolicy, FailureLock, FailureBackup, FailureDownload, FailureSecurity:
		return true
	default:
		return false
	}
}

// String returns the string representation of the FailureKind.
func (k FailureKind) String() string {
	return string(k)
}
