package update

import (
	"context"
	"io"
	"net/url"

	"github.com/adamancini/upkeep/internal/policy"
	"github.com/adamancini/upkeep/internal/release"
)

// Platform describes the current system platform
type Platform struct {
	OS   string // Operating system (darwin, linux, windows)
	Arch string // Architecture (amd64, arm64, 386)
}

// Transport opens the artifact at u for reading. Implementations exist per
// URL scheme; see Downloader.
type Transport interface {
	Open(ctx context.Context, u *url.URL) (io.ReadCloser, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, u *url.URL) (io.ReadCloser, error)

// Open calls f.
func (f TransportFunc) Open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	return f(ctx, u)
}

// Approver decides releases whose policy decision requires approval.
type Approver interface {
	Approve(ctx context.Context, rel *release.Descriptor, decision policy.Decision) (bool, error)
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, rel *release.Descriptor, decision policy.Decision) (bool, error)

// Approve calls f.
func (f ApproverFunc) Approve(ctx context.Context, rel *release.Descriptor, decision policy.Decision) (bool, error) {
	return f(ctx, rel, decision)
}

// VersionSource reports where CurrentVersion found the version.
type VersionSource string

const (
	// SourceMarker means the version came from version.txt.
	SourceMarker VersionSource = "marker"
	// SourceBinary means version.txt was absent and the binary was asked.
	SourceBinary VersionSource = "binary"
)

// String returns the string representation of the VersionSource.
func (s VersionSource) String() string {
	return string(s)
}
