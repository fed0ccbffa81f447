// Package release models release descriptors and loads them from files and
// release feeds.
//
// SYNC REQUIREMENT: the Descriptor and ArtifactRef fields must stay in sync
// with release.schema.json.
package release

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/adamancini/upkeep/internal/types"
)

// Descriptor describes one published release. It is treated as immutable
// once loaded; accessors return copies.
type Descriptor struct {
	Version    string                 `yaml:"version" toml:"version" json:"version"`
	Channel    string                 `yaml:"channel" toml:"channel" json:"channel"`
	Notes      string                 `yaml:"notes,omitempty" toml:"notes,omitempty" json:"notes,omitempty"`
	Artifacts  map[string]ArtifactRef `yaml:"artifacts" toml:"artifacts" json:"artifacts"`
	Compliance ComplianceTags         `yaml:"compliance,omitempty" toml:"compliance,omitempty" json:"compliance,omitempty"`
}

// ArtifactRef points at the platform-specific payload of a release.
type ArtifactRef struct {
	URL       string              `yaml:"url" toml:"url" json:"url"`
	Size      int64               `yaml:"size" toml:"size" json:"size"`
	SHA256    string              `yaml:"sha256" toml:"sha256" json:"sha256"`
	Signature string              `yaml:"signature,omitempty" toml:"signature,omitempty" json:"signature,omitempty"`
	Format    types.ArchiveFormat `yaml:"format,omitempty" toml:"format,omitempty" json:"format,omitempty"`
}

// ArchiveFormat returns the declared format, or the one inferred from the URL.
func (a ArtifactRef) ArchiveFormat() types.ArchiveFormat {
	if a.Format != "" {
		return a.Format
	}
	return types.DetectArchiveFormat(a.URL)
}

// SizeMB returns the declared size in mebibytes.
func (a ArtifactRef) SizeMB() float64 {
	return float64(a.Size) / (1024 * 1024)
}

// HasSignature reports whether a non-blank signature is attached.
func (a ArtifactRef) HasSignature() bool {
	return strings.TrimSpace(a.Signature) != ""
}

// ComplianceTags maps a compliance regime (soc2, gdpr, hipaa, ...) to whether
// the release satisfies it.
type ComplianceTags map[string]bool

// Enabled returns the regimes flagged true, sorted.
func (c ComplianceTags) Enabled() []string {
	out := make([]string, 0, len(c))
	for regime, ok := range c {
		if ok {
			out = append(out, regime)
		}
	}
	sort.Strings(out)
	return out
}

// Has reports whether regime is flagged true (case-insensitive).
func (c ComplianceTags) Has(regime string) bool {
	for k, v := range c {
		if v && strings.EqualFold(k, regime) {
			return true
		}
	}
	return false
}

// Platforms returns the platform keys that have artifacts, sorted.
func (d *Descriptor) Platforms() []string {
	keys := make([]string, 0, len(d.Artifacts))
	for k := range d.Artifacts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Artifact returns the artifact for an exact platform key.
func (d *Descriptor) Artifact(platformKey string) (ArtifactRef, bool) {
	a, ok := d.Artifacts[platformKey]
	return a, ok
}

// fullVersion rejects the vMAJOR and vMAJOR.MINOR shorthands semver.IsValid
// accepts; the installer only takes complete versions.
var fullVersion = regexp.MustCompile(`^v\d+\.\d+\.\d+`)

// Validate performs the semantic checks the schema cannot express.
func (d *Descriptor) Validate() error {
	if d.Version == "" {
		return fmt.Errorf("release version is required")
	}
	v := strings.TrimSpace(d.Version)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) || !fullVersion.MatchString(v) {
		return fmt.Errorf("invalid release version '%s' (want MAJOR.MINOR.PATCH)", d.Version)
	}

	if d.Channel == "" {
		return fmt.Errorf("release channel is required")
	}

	if len(d.Artifacts) == 0 {
		return fmt.Errorf("release %s has no artifacts", d.Version)
	}

	for key, a := range d.Artifacts {
		if a.URL == "" {
			return fmt.Errorf("artifact %s: url is required", key)
		}
		if a.Size < 0 {
			return fmt.Errorf("artifact %s: size must be non-negative", key)
		}
		if err := a.Format.Validate(); err != nil {
			return fmt.Errorf("artifact %s: %w", key, err)
		}
	}

	return nil
}
