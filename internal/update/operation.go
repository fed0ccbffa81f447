package update

import (
	"errors"
	"fmt"
	"time"

	"github.com/adamancini/upkeep/internal/types"
	"github.com/adamancini/upkeep/internal/verify"
)

// RollbackInfo records an executed rollback.
type RollbackInfo struct {
	PreviousVersion string    `json:"previous_version" yaml:"previous_version"`
	BackupPath      string    `json:"backup_path" yaml:"backup_path"`
	Reason          string    `json:"reason" yaml:"reason"`
	Timestamp       time.Time `json:"timestamp" yaml:"timestamp"`
}

// Transition is one entry of an operation's status history.
type Transition struct {
	Status types.Status `json:"status" yaml:"status"`
	At     time.Time    `json:"at" yaml:"at"`
}

// Operation is the record of one update attempt. InstallUpdate always
// returns it in a terminal status.
type Operation struct {
	ID                 string            `json:"id" yaml:"id"`
	TargetVersion      string            `json:"target_version" yaml:"target_version"`
	PreviousVersion    string            `json:"previous_version,omitempty" yaml:"previous_version,omitempty"`
	Channel            string            `json:"channel,omitempty" yaml:"channel,omitempty"`
	Platform           string            `json:"platform,omitempty" yaml:"platform,omitempty"`
	Status             types.Status      `json:"status" yaml:"status"`
	StartedAt          time.Time         `json:"started_at" yaml:"started_at"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	ErrorMessage       string            `json:"error,omitempty" yaml:"error,omitempty"`
	FailureKind        types.FailureKind `json:"failure_kind,omitempty" yaml:"failure_kind,omitempty"`
	BackupPath         string            `json:"backup_path,omitempty" yaml:"backup_path,omitempty"`
	RollbackInfo       *RollbackInfo     `json:"rollback,omitempty" yaml:"rollback,omitempty"`
	SecurityValidation *verify.Result    `json:"security_validation,omitempty" yaml:"security_validation,omitempty"`
	Transitions        []Transition      `json:"transitions" yaml:"transitions"`

	err error
}

func newOperation(id, target string, now time.Time) *Operation {
	return &Operation{
		ID:            id,
		TargetVersion: target,
		Status:        types.StatusPending,
		StartedAt:     now,
		Transitions:   []Transition{{Status: types.StatusPending, At: now}},
	}
}

// Err returns the failure as an error wrapping the package sentinel for its
// kind, or nil when the operation installed.
func (o *Operation) Err() error {
	if o.Status == types.StatusInstalled {
		return nil
	}
	if o.err != nil {
		return o.err
	}
	if o.ErrorMessage != "" {
		return errors.New(o.ErrorMessage)
	}
	return nil
}

// Succeeded reports whether the new version is installed.
func (o *Operation) Succeeded() bool {
	return o.Status == types.StatusInstalled
}

// SafelyAborted reports whether the operation failed before the live
// installation was touched.
func (o *Operation) SafelyAborted() bool {
	return o.Status == types.StatusFailed && o.FailureKind.BeforeInstall()
}

// Restored reports whether a failed install was rolled back to the backup.
func (o *Operation) Restored() bool {
	return o.Status == types.StatusRolledBack
}

// NeedsAttention reports whether the installation may be in an inconsistent
// state.
func (o *Operation) NeedsAttention() bool {
	return o.Status == types.StatusFailed && !o.FailureKind.BeforeInstall()
}

// transition moves the operation to next and stamps completion for terminal
// states.
func (o *Operation) transition(next types.Status, at time.Time) error {
	if !o.Status.CanTransition(next) {
		return fmt.Errorf("invalid status transition %s -> %s", o.Status, next)
	}
	o.Status = next
	o.Transitions = append(o.Transitions, Transition{Status: next, At: at})
	if next.IsTerminal() {
		done := at
		o.CompletedAt = &done
	}
	return nil
}
