package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamancini/upkeep/internal/backup"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage installation backups",
		Long: `Backup manages the snapshots taken before each update.

Backups are stored in the backups/ directory of the installation and are
named <binary>-<version>-backup-<timestamp>. Use 'upkeep rollback' to
restore one.`,
	}

	cmd.AddCommand(newBackupListCmd())
	cmd.AddCommand(newBackupDeleteCmd())
	cmd.AddCommand(newBackupPruneCmd())

	return cmd
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all backups",
		Long:  `List displays all available backups, newest first, with their version, creation time and size.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupList(cmd)
		},
	}
}

func newBackupDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a backup",
		Long:  `Delete removes a backup by its name, or 'latest' for the most recent one.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupDelete(cmd, args[0])
		},
	}
}

func newBackupPruneCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old backups",
		Long: `Prune deletes old backups, keeping only the most recent N backups.

By default, keeps keep_backups from the config (5 unless set).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupPrune(cmd, keep)
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 0, "Number of backups to keep (default: keep_backups from config)")

	return cmd
}

// runBackupList lists all backups.
func runBackupList(cmd *cobra.Command) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	manager := e.updater.Backups()
	backups, err := manager.List()
	if err != nil {
		return err
	}

	if !e.out.Structured() && len(backups) == 0 {
		_, _ = fmt.Fprintln(e.stdout, "No backups found.")
		_, _ = fmt.Fprintf(e.stdout, "Backup directory: %s\n", manager.BackupDir())
		return nil
	}

	rows := make([][]string, 0, len(backups))
	for _, b := range backups {
		rows = append(rows, []string{
			b.Name,
			b.Version,
			b.CreatedAt.Format("2006-01-02 15:04:05"),
			formatSize(b.Size),
		})
	}
	if backups == nil {
		backups = []backup.Backup{}
	}
	return e.out.Table(backups, []string{"Name", "Version", "Created", "Size"}, rows)
}

// runBackupDelete deletes a backup.
func runBackupDelete(cmd *cobra.Command, name string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	manager := e.updater.Backups()
	b, err := manager.Get(name)
	if err != nil {
		return err
	}
	if err := manager.Delete(b.Name); err != nil {
		return err
	}

	if e.out.Structured() {
		return e.out.Write(b)
	}
	_, _ = fmt.Fprintf(e.stdout, "Backup deleted: %s\n", b.Name)
	return nil
}

// runBackupPrune removes old backups.
func runBackupPrune(cmd *cobra.Command, keep int) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	if keep <= 0 {
		keep = e.cfg.KeepBackups
	}

	result, pruneErr := e.updater.Backups().Prune(keep)
	if result == nil {
		return pruneErr
	}

	if e.out.Structured() {
		if err := e.out.Write(result); err != nil {
			return err
		}
		return pruneErr
	}

	if len(result.Deleted) == 0 && pruneErr == nil {
		_, _ = fmt.Fprintf(e.stdout, "No backups to prune. Keeping %d backups.\n", result.Kept)
		return nil
	}

	_, _ = fmt.Fprintf(e.stdout, "Pruned %d backup(s), keeping %d:\n", len(result.Deleted), result.Kept)
	for _, b := range result.Deleted {
		_, _ = fmt.Fprintf(e.stdout, "  - %s (%s)\n", b.Name, b.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if result.Freed > 0 {
		_, _ = fmt.Fprintf(e.stdout, "Freed %s.\n", formatSize(result.Freed))
	}
	return pruneErr
}
