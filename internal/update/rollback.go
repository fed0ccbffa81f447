package update

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/adamancini/upkeep/internal/backup"
	"github.com/adamancini/upkeep/internal/logging"
)

// Rollbacker restores the installation from backups. Its methods take no
// context: once a restore starts it runs to completion.
type Rollbacker struct {
	backups    *backup.Manager
	installDir string
	logger     *log.Logger
	now        func() time.Time
}

// NewRollbacker creates a Rollbacker over backups for installDir.
func NewRollbacker(backups *backup.Manager, installDir string, logger *log.Logger) *Rollbacker {
	return &Rollbacker{
		backups:    backups,
		installDir: installDir,
		logger:     logging.OrDiscard(logger),
		now:        time.Now,
	}
}

// RollbackToBackup restores the backup at backupPath. Errors wrap
// ErrRollbackFailed.
func (r *Rollbacker) RollbackToBackup(backupPath, reason string) (*RollbackInfo, error) {
	if backupPath == "" {
		return nil, fmt.Errorf("%w: no backup recorded", ErrRollbackFailed)
	}

	r.logger.Warn("Rolling back", "path", backupPath, "reason", reason)
	if err := r.backups.Restore(backupPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRollbackFailed, err)
	}

	return &RollbackInfo{
		PreviousVersion: r.backupVersion(backupPath),
		BackupPath:      backupPath,
		Reason:          reason,
		Timestamp:       r.now(),
	}, nil
}

// RollbackToVersion restores the newest backup of version and rewrites the
// version marker to it.
func (r *Rollbacker) RollbackToVersion(version string) (*RollbackInfo, error) {
	b, err := r.backups.FindForVersion(version)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRollbackFailed, err)
	}

	info, err := r.RollbackToBackup(b.Path, fmt.Sprintf("manual rollback to %s", NormalizeVersion(version)))
	if err != nil {
		return nil, err
	}

	if _, err := ParseVersion(b.Version); err != nil {
		// Backups of unversioned installs keep whatever marker they hold.
		return info, nil
	}
	if err := WriteMarker(r.installDir, b.Version); err != nil {
		return info, fmt.Errorf("%w: restored %s but %w", ErrRollbackFailed, b.Name, err)
	}
	info.PreviousVersion = b.Version
	return info, nil
}

// backupVersion reads the version a backup holds: its marker if it has one,
// otherwise the version in its name.
func (r *Rollbacker) backupVersion(backupPath string) string {
	if v, err := ReadMarker(backupPath); err == nil {
		return v.String()
	}
	if b, err := r.backups.Get(filepath.Base(backupPath)); err == nil {
		return b.Version
	}
	return backup.UnknownVersion
}
