package cmd

import (
	"context"
	"errors"

	"github.com/adamancini/upkeep/internal/backup"
	"github.com/adamancini/upkeep/internal/update"
)

// Process exit codes.
const (
	ExitOK             = 0 // installed, or nothing to do
	ExitAborted        = 1 // failed before the installation was touched
	ExitRolledBack     = 2 // install failed and the backup was restored
	ExitNeedsAttention = 3 // the installation may be inconsistent
)

// ExitError carries the exit code for an error returned by Execute.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode returns the process exit code for an error returned by Execute.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitAborted
}

// operationExit maps a finished operation to its exit error.
func operationExit(op *update.Operation) error {
	switch {
	case op.Succeeded():
		return nil
	case op.SafelyAborted():
		return &ExitError{Code: ExitAborted, Err: op.Err()}
	case op.Restored():
		return &ExitError{Code: ExitRolledBack, Err: op.Err()}
	default:
		return &ExitError{Code: ExitNeedsAttention, Err: op.Err()}
	}
}

// rollbackExit maps a manual rollback error to its exit error. Failures that
// happen before the restore starts leave the installation untouched.
func rollbackExit(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, update.ErrUpdateInProgress) ||
		errors.Is(err, backup.ErrNoBackup) ||
		errors.Is(err, backup.ErrAmbiguousBackup) ||
		errors.Is(err, context.Canceled) {
		return &ExitError{Code: ExitAborted, Err: err}
	}
	return &ExitError{Code: ExitNeedsAttention, Err: err}
}
