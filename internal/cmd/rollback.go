package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/adamancini/upkeep/internal/interactive"
	"github.com/adamancini/upkeep/internal/update"
)

func newRollbackCmd() *cobra.Command {
	var (
		backupRef string
		yes       bool
	)

	cmd := &cobra.Command{
		Use:   "rollback [version]",
		Short: "Restore a previous version from backup",
		Long: `Rollback restores the installation from a backup taken before an update.

Give the version to restore its newest backup, or --backup with a backup name,
a path, or 'latest' for the most recent backup. Once started, a rollback runs
to completion even if interrupted.

Examples:
  upkeep rollback 1.4.2
  upkeep rollback --backup latest
  upkeep rollback --backup upkeep-1.4.2-backup-20260301-101500`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version := ""
			if len(args) == 1 {
				version = args[0]
			}
			return runRollback(cmd, version, backupRef, yes)
		},
	}

	cmd.Flags().StringVar(&backupRef, "backup", "", "Backup name, path, or 'latest'")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")

	return cmd
}

func runRollback(cmd *cobra.Command, version, backupRef string, yes bool) error {
	if (version == "") == (backupRef == "") {
		return errors.New("specify either a version or --backup")
	}

	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	target := version
	if target == "" {
		target = backupRef
	}
	if !yes && interactive.IsTerminal() && !newPrompter(cmd).Confirm("Restore %s into %s?", target, e.cfg.InstallDir) {
		_, _ = cmd.ErrOrStderr().Write([]byte("Rollback cancelled.\n"))
		return nil
	}

	ctx := commandContext(cmd)
	var info *update.RollbackInfo
	if version != "" {
		info, err = e.updater.Rollback(ctx, version)
	} else {
		info, err = e.updater.RestoreBackup(ctx, backupRef)
	}
	if err != nil {
		return rollbackExit(err)
	}

	if e.out.Structured() {
		return e.out.Write(info)
	}
	if !quiet {
		printRollback(e.stdout, info)
	}
	return nil
}
