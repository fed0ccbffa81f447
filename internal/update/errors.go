package update

import "errors"

// Sentinel errors for each failure class of an update operation. Errors
// returned by this package wrap one of these, so callers classify with
// errors.Is.
var (
	// ErrPolicyViolation means the policy denied the update or withheld approval.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrBackupFailed means the pre-update backup could not be created.
	ErrBackupFailed = errors.New("backup failed")

	// ErrDownloadFailed covers transport, HTTP status, truncation and timeouts.
	ErrDownloadFailed = errors.New("download failed")

	// ErrSecurityValidation means the checksum or signature did not verify.
	ErrSecurityValidation = errors.New("security validation failed")

	// ErrInstallFailed means staging or swapping the binary failed.
	ErrInstallFailed = errors.New("installation failed")

	// ErrExtractionFailed means the binary could not be taken out of the
	// artifact. It is an installation failure.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrRollbackFailed means a restore was requested and did not happen.
	ErrRollbackFailed = errors.New("rollback failed")

	// ErrUpdateInProgress means another operation holds the install lock.
	ErrUpdateInProgress = errors.New("update already in progress")

	// ErrNoMarker means the version marker file does not exist.
	ErrNoMarker = errors.New("version marker not found")
)
