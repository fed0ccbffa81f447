package update

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is a semantic version. The zero value is invalid.
type Version struct {
	canonical string // "v"-prefixed, as understood by x/mod/semver
}

// ParseVersion parses a semantic version string.
// Supports formats like "0.8.2", "v0.8.2", "0.9.0-rc.1", "1.0.0+build.5".
func ParseVersion(s string) (Version, error) {
	norm := strings.TrimSpace(s)
	if !strings.HasPrefix(norm, "v") {
		norm = "v" + norm
	}
	if !semver.IsValid(norm) || !fullVersion.MatchString(norm) {
		return Version{}, fmt.Errorf("invalid version format: %s", s)
	}
	return Version{canonical: norm}, nil
}

// fullVersion rejects the vMAJOR and vMAJOR.MINOR shorthands semver accepts.
var fullVersion = regexp.MustCompile(`^v\d+\.\d+\.\d+`)

// String returns the version without the "v" prefix.
func (v Version) String() string {
	return strings.TrimPrefix(v.canonical, "v")
}

// IsZero reports whether v was never parsed.
func (v Version) IsZero() bool {
	return v.canonical == ""
}

// Prerelease returns the prerelease suffix without the leading "-".
func (v Version) Prerelease() string {
	return strings.TrimPrefix(semver.Prerelease(v.canonical), "-")
}

// Compare returns 1 if v > other, 0 if equal, -1 if v < other. Build
// metadata is ignored.
func (v Version) Compare(other Version) int {
	return semver.Compare(v.canonical, other.canonical)
}

// IsGreaterThan returns true if v > other
func (v Version) IsGreaterThan(other Version) bool {
	return v.Compare(other) > 0
}

// IsLessThan returns true if v < other
func (v Version) IsLessThan(other Version) bool {
	return v.Compare(other) < 0
}

// IsEqual returns true if v == other
func (v Version) IsEqual(other Version) bool {
	return v.Compare(other) == 0
}

// CompareVersions compares two version strings.
func CompareVersions(v1, v2 string) (int, error) {
	ver1, err := ParseVersion(v1)
	if err != nil {
		return 0, fmt.Errorf("invalid version v1: %w", err)
	}

	ver2, err := ParseVersion(v2)
	if err != nil {
		return 0, fmt.Errorf("invalid version v2: %w", err)
	}

	return ver1.Compare(ver2), nil
}

// NormalizeVersion removes the 'v' prefix if present
func NormalizeVersion(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "v")
}

// versionToken finds the first semver-looking token in free-form output such
// as "upkeep version 1.2.3 (abc123)".
var versionToken = regexp.MustCompile(`v?\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?`)

// ExtractVersion returns the first parseable version in output.
func ExtractVersion(output string) (Version, error) {
	for _, tok := range versionToken.FindAllString(output, -1) {
		if v, err := ParseVersion(tok); err == nil {
			return v, nil
		}
	}
	return Version{}, fmt.Errorf("no version found in %q", truncate(output, 80))
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
