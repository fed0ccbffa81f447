package update

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/adamancini/upkeep/internal/release"
)

// archAliases lists the equivalent spellings of each architecture as they
// appear in release artifact keys.
var archAliases = map[string][]string{
	"amd64": {"amd64", "x86_64"},
	"arm64": {"arm64", "aarch64"},
	"386":   {"386", "i686", "x86"},
}

// Detect returns the current platform (OS and architecture)
func Detect() Platform {
	return Platform{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
}

// Key returns the artifact key for this platform, e.g. "linux-amd64".
func (p Platform) Key() string {
	return fmt.Sprintf("%s-%s", p.OS, p.Arch)
}

// String returns the platform key.
func (p Platform) String() string {
	return p.Key()
}

// Candidates returns every artifact key that identifies this platform, the
// canonical key first.
func (p Platform) Candidates() []string {
	arch := canonicalArch(p.Arch)
	names, ok := archAliases[arch]
	if !ok {
		names = []string{arch}
	}
	keys := make([]string, 0, len(names))
	for _, a := range names {
		keys = append(keys, fmt.Sprintf("%s-%s", strings.ToLower(p.OS), a))
	}
	return keys
}

// BinaryName returns the executable file name for this platform.
func (p Platform) BinaryName(name string) string {
	if p.OS == "windows" && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		return name + ".exe"
	}
	return name
}

func canonicalArch(arch string) string {
	lower := strings.ToLower(arch)
	for canonical, names := range archAliases {
		for _, n := range names {
			if n == lower {
				return canonical
			}
		}
	}
	return lower
}

// ResolveArtifact picks the artifact for p from desc, accepting any alias of
// the architecture. It returns the matched key.
func ResolveArtifact(desc *release.Descriptor, p Platform) (release.ArtifactRef, string, error) {
	for _, key := range p.Candidates() {
		if art, ok := desc.Artifact(key); ok {
			return art, key, nil
		}
	}
	return release.ArtifactRef{}, "", fmt.Errorf("%w: no artifact for platform %s (available: %s)",
		ErrDownloadFailed, p.Key(), strings.Join(desc.Platforms(), ", "))
}
