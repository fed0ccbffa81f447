package cmd

import (
	"github.com/spf13/cobra"

	"github.com/adamancini/upkeep/internal/output"
)

var (
	// Global flags
	outputFormat string
	configPath   string
	installDir   string
	verbose      bool
	quiet        bool
)

// buildInfo is the version of the upkeep binary itself.
type buildInfo struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
	Date    string `json:"date" yaml:"date"`
}

func Execute(version, commit, date string) error {
	return newRootCmd(buildInfo{Version: version, Commit: commit, Date: date}).Execute()
}

func newRootCmd(build buildInfo) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "upkeep",
		Short: "Verified self-updates with automatic rollback",
		Long: `upkeep installs new releases of a binary only after checking them against
policy, their SHA-256 digest and an optional signature.

Every update backs up the installation first. If installing fails, the
backup is restored automatically; 'upkeep rollback' restores one by hand.`,
		Version:       build.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json, yaml")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&installDir, "install-dir", "", "Installation directory (default: directory of the upkeep binary)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (errors only)")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	// Add subcommands
	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newRollbackCmd())
	rootCmd.AddCommand(newVersionCmd(build))
	rootCmd.AddCommand(newBackupCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newCompletionCmd())

	// Register completion function for output flag
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return output.Formats(), cobra.ShellCompDirectiveNoFileComp
	})

	return rootCmd
}
