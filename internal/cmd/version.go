package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// versionReport is the output of the version command.
type versionReport struct {
	Upkeep     buildInfo `json:"upkeep" yaml:"upkeep"`
	InstallDir string    `json:"install_dir,omitempty" yaml:"install_dir,omitempty"`
	Binary     string    `json:"binary,omitempty" yaml:"binary,omitempty"`
	Installed  string    `json:"installed,omitempty" yaml:"installed,omitempty"`
	Source     string    `json:"source,omitempty" yaml:"source,omitempty"`
	Platform   string    `json:"platform,omitempty" yaml:"platform,omitempty"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
}

func (r versionReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "upkeep version %s (commit %s, built %s)", r.Upkeep.Version, r.Upkeep.Commit, r.Upkeep.Date)
	if r.Binary != "" {
		fmt.Fprintf(&b, "\nManaged binary: %s (%s)", r.Binary, r.InstallDir)
	}
	switch {
	case r.Installed != "":
		fmt.Fprintf(&b, "\nInstalled version: %s", r.Installed)
		if r.Source != "" && r.Source != "marker" {
			fmt.Fprintf(&b, " (from %s, version marker missing)", r.Source)
		}
	case r.Error != "":
		fmt.Fprintf(&b, "\nInstalled version: unknown (%s)", r.Error)
	}
	if r.Platform != "" {
		fmt.Fprintf(&b, "\nPlatform: %s", r.Platform)
	}
	return b.String()
}

func newVersionCmd(build buildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the upkeep version and the installed version of the managed binary.

The installed version comes from the version marker written by every
update. Without a marker, the binary itself is asked with --version.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd, build)
		},
	}
}

func runVersion(cmd *cobra.Command, build buildInfo) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	report := versionReport{
		Upkeep:     build,
		InstallDir: e.cfg.InstallDir,
		Binary:     e.cfg.BinaryName,
		Platform:   e.updater.Platform().String(),
	}
	current, src, err := e.updater.CurrentVersion(commandContext(cmd))
	if err != nil {
		report.Error = err.Error()
	} else {
		report.Installed = current.String()
		report.Source = src.String()
	}

	return e.out.Write(report)
}
