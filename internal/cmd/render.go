package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/adamancini/upkeep/internal/update"
)

// printOperation writes the human summary of a finished update operation.
func printOperation(w io.Writer, op *update.Operation) {
	previous := op.PreviousVersion
	if previous == "" {
		previous = "unknown"
	}

	switch {
	case op.Succeeded():
		_, _ = fmt.Fprintf(w, "✓ Updated %s -> %s\n", previous, op.TargetVersion)
		if op.BackupPath != "" {
			_, _ = fmt.Fprintf(w, "  Backup: %s\n", filepath.Base(op.BackupPath))
		}
	case op.SafelyAborted():
		_, _ = fmt.Fprintf(w, "✗ Update to %s failed (%s): %s\n", op.TargetVersion, op.FailureKind, op.ErrorMessage)
		_, _ = fmt.Fprintln(w, "  The installation was not changed.")
	case op.Restored():
		_, _ = fmt.Fprintf(w, "✗ Update to %s failed: %s\n", op.TargetVersion, op.ErrorMessage)
		if info := op.RollbackInfo; info != nil {
			_, _ = fmt.Fprintf(w, "  Restored %s from %s\n", info.PreviousVersion, filepath.Base(info.BackupPath))
		}
	default:
		_, _ = fmt.Fprintf(w, "✗ Update to %s failed (%s): %s\n", op.TargetVersion, op.FailureKind, op.ErrorMessage)
		_, _ = fmt.Fprintln(w, "  The installation may be inconsistent.")
		if op.BackupPath != "" {
			_, _ = fmt.Fprintf(w, "  Restore it with: upkeep rollback --backup %s\n", filepath.Base(op.BackupPath))
		}
	}
	_, _ = fmt.Fprintf(w, "  Operation: %s\n", op.ID)
}

// printRollback writes the human summary of a manual rollback.
func printRollback(w io.Writer, info *update.RollbackInfo) {
	_, _ = fmt.Fprintf(w, "✓ Restored %s from %s\n", info.PreviousVersion, filepath.Base(info.BackupPath))
}

// formatSize formats a byte size as a human-readable string.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
