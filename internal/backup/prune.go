package backup

import (
	"errors"
	"fmt"
)

// DefaultKeepCount is how many backups an installation retains unless
// keep_backups says otherwise.
const DefaultKeepCount = 5

// PruneResult reports one retention pass.
type PruneResult struct {
	Deleted []Backup `json:"deleted" yaml:"deleted"`
	Kept    int      `json:"kept" yaml:"kept"`
	Freed   int64    `json:"freed_bytes" yaml:"freed_bytes"`
}

// Prune deletes everything but the keep newest backups. The newest backup is
// the rollback target of the last update, so keep must be at least one.
//
// A backup that cannot be deleted does not stop the pass; the failures are
// joined into the returned error and the result still lists what went.
func (m *Manager) Prune(keep int) (*PruneResult, error) {
	if keep < 1 {
		return nil, fmt.Errorf("must keep at least one backup, got %d", keep)
	}

	backups, err := m.List()
	if err != nil {
		return nil, err
	}

	result := &PruneResult{Kept: min(len(backups), keep)}
	if len(backups) <= keep {
		return result, nil
	}

	var errs []error
	for _, b := range backups[keep:] {
		if err := m.Delete(b.Name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name, err))
			result.Kept++
			continue
		}
		result.Deleted = append(result.Deleted, b)
		result.Freed += b.Size
	}

	if len(result.Deleted) > 0 {
		m.logger.Debug("Pruned backups", "deleted", len(result.Deleted), "kept", result.Kept, "freed", result.Freed)
	}
	return result, errors.Join(errs...)
}
