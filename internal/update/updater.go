// Package update installs verified releases and rolls them back.
//
// An Updater drives one operation through
//
//	pending -> downloading -> downloaded -> installing -> installed | failed
//
// with failed -> rolled_back after an automatic restore. Every step before
// installing leaves the live installation untouched.
package update

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/adamancini/upkeep/internal/backup"
	"github.com/adamancini/upkeep/internal/config"
	"github.com/adamancini/upkeep/internal/lock"
	"github.com/adamancini/upkeep/internal/logging"
	"github.com/adamancini/upkeep/internal/policy"
	"github.com/adamancini/upkeep/internal/release"
	"github.com/adamancini/upkeep/internal/types"
	"github.com/adamancini/upkeep/internal/verify"
)

// ApprovalRequiredMessage is the error message of an operation whose policy
// required approval that was not given.
const ApprovalRequiredMessage = "update requires approval"

// Updater orchestrates update and rollback operations for one installation.
type Updater struct {
	installDir      string
	keepBackups     int
	downloadTimeout time.Duration

	platform   Platform
	policy     policy.Evaluator
	validator  *verify.Validator
	approver   Approver
	backups    *backup.Manager
	downloader *Downloader
	installer  *Installer
	rollbacker *Rollbacker

	httpClient *http.Client
	transports map[string]Transport
	logger     *log.Logger
	now        func() time.Time
	newID      func() string
}

// Option configures an Updater.
type Option func(*Updater)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(u *Updater) { u.logger = logging.OrDiscard(l) }
}

// WithApprover sets who decides releases that require approval. Without one
// such releases fail.
func WithApprover(a Approver) Option {
	return func(u *Updater) { u.approver = a }
}

// WithPlatform overrides the detected platform.
func WithPlatform(p Platform) Option {
	return func(u *Updater) { u.platform = p }
}

// WithHTTPClient sets the client used for http and https artifacts.
func WithHTTPClient(c *http.Client) Option {
	return func(u *Updater) { u.httpClient = c }
}

// WithTransport registers a transport for an additional URL scheme.
func WithTransport(scheme string, t Transport) Option {
	return func(u *Updater) { u.transports[strings.ToLower(scheme)] = t }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(u *Updater) { u.now = now }
}

// New creates an Updater for the installation described by cfg.
func New(cfg *config.Config, evaluator policy.Evaluator, validator *verify.Validator, opts ...Option) (*Updater, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if evaluator == nil {
		return nil, errors.New("policy evaluator is required")
	}
	if validator == nil {
		return nil, errors.New("security validator is required")
	}
	if cfg.InstallDir == "" || cfg.BinaryName == "" {
		return nil, errors.New("install_dir and binary_name are required")
	}

	u := &Updater{
		installDir:      cfg.InstallDir,
		keepBackups:     cfg.KeepBackups,
		downloadTimeout: cfg.DownloadTimeout.Std(),
		platform:        Detect(),
		policy:          evaluator,
		validator:       validator,
		transports:      map[string]Transport{},
		logger:          logging.Discard(),
		now:             time.Now,
		newID:           uuid.NewString,
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.keepBackups < 1 {
		u.keepBackups = backup.DefaultKeepCount
	}
	if u.downloadTimeout <= 0 {
		u.downloadTimeout = config.DefaultDownloadTimeout
	}

	staging := cfg.StagingPath()
	u.backups = backup.NewManager(cfg.InstallDir, cfg.BinaryName,
		backup.WithLogger(u.logger),
		backup.WithClock(u.now),
		backup.WithExclude(lock.FileName, stagingEntry(cfg.InstallDir, staging)),
	)
	u.downloader = NewDownloader(staging, u.httpClient, u.logger)
	u.downloader.LimitUndeclared(int64(cfg.Policy.MaxSizeMB * (1 << 20)))
	for scheme, t := range u.transports {
		u.downloader.Register(scheme, t)
	}
	u.installer = NewInstaller(cfg.InstallDir, cfg.BinaryName, cfg.VerifyAfterInstall, u.logger)
	u.rollbacker = NewRollbacker(u.backups, cfg.InstallDir, u.logger)
	u.rollbacker.now = u.now

	return u, nil
}

// stagingEntry returns the top-level entry of installDir that holds the
// staging directory, or "" when staging lives elsewhere.
func stagingEntry(installDir, staging string) string {
	rel, err := filepath.Rel(filepath.Clean(installDir), filepath.Clean(staging))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return first
}

// Backups returns the backup manager of the installation.
func (u *Updater) Backups() *backup.Manager {
	return u.backups
}

// Platform returns the platform artifacts are resolved for.
func (u *Updater) Platform() Platform {
	return u.platform
}

// CurrentVersion returns the installed version. The marker file is
// authoritative; only when it is absent is the binary asked, and that
// degraded source is reported as SourceBinary.
func (u *Updater) CurrentVersion(ctx context.Context) (Version, VersionSource, error) {
	v, err := ReadMarker(u.installDir)
	if err == nil {
		return v, SourceMarker, nil
	}
	if !errors.Is(err, ErrNoMarker) {
		return Version{}, SourceMarker, err
	}

	u.logger.Warn("Version marker missing, asking the binary", "path", u.installer.BinaryPath(), "source", SourceBinary)
	v, err = binaryVersion(ctx, u.installer.BinaryPath())
	if err != nil {
		return Version{}, SourceBinary, fmt.Errorf("failed to determine current version: %w", err)
	}
	return v, SourceBinary, nil
}

// InstallUpdate runs one update operation for rel. It never panics and the
// returned operation is always in a terminal status; inspect it with
// Succeeded, SafelyAborted, Restored and NeedsAttention.
func (u *Updater) InstallUpdate(ctx context.Context, rel *release.Descriptor) (op *Operation) {
	target := ""
	if rel != nil {
		target = NormalizeVersion(rel.Version)
	}
	op = newOperation(u.newID(), target, u.now())
	op.Platform = u.platform.Key()
	logger := u.logger.With("op", op.ID)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("internal error: %v", r)
			logger.Error("Update panicked", "panic", r, "status", op.Status)
			switch {
			case op.Status == types.StatusInstalling:
				u.recoverInstall(op, err, logger)
			case !op.Status.IsTerminal():
				u.fail(op, types.FailureInternal, err, err.Error(), logger)
			}
		}
		if !op.Status.IsTerminal() {
			err := fmt.Errorf("update stopped in %s state", op.Status)
			u.fail(op, types.FailureInternal, err, err.Error(), logger)
		}
	}()

	u.run(ctx, op, rel, logger)
	return op
}

func (u *Updater) run(ctx context.Context, op *Operation, rel *release.Descriptor, logger *log.Logger) {
	if rel == nil {
		err := errors.New("release descriptor is required")
		u.fail(op, types.FailureRelease, err, err.Error(), logger)
		return
	}
	op.Channel = rel.Channel
	if err := rel.Validate(); err != nil {
		u.fail(op, types.FailureRelease, err, err.Error(), logger)
		return
	}

	// The artifact size feeds the policy, so resolve before evaluating it.
	declared, key, err := ResolveArtifact(rel, u.platform)
	if err != nil {
		u.fail(op, types.FailureDownload, err, err.Error(), logger)
		return
	}
	op.Platform = key
	logger = logger.With("version", op.TargetVersion)
	logger.Info("Starting update", "channel", rel.Channel, "platform", key)

	// 1. Policy, before any side effect
	if !u.checkPolicy(ctx, op, rel, declared, logger) {
		return
	}

	// 2. One operation per installation
	l, err := lock.Acquire(u.installDir)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			u.fail(op, types.FailureLock, fmt.Errorf("%w: %w", ErrUpdateInProgress, err), ErrUpdateInProgress.Error(), logger)
		} else {
			u.fail(op, types.FailureLock, err, fmt.Sprintf("failed to lock installation: %v", err), logger)
		}
		return
	}
	defer func() {
		if err := l.Release(); err != nil {
			logger.Warn("Failed to release install lock", "error", err)
		}
	}()

	// 3. Backup
	op.PreviousVersion = backup.UnknownVersion
	if cur, source, err := u.CurrentVersion(ctx); err != nil {
		logger.Warn("Could not determine current version", "error", err)
	} else {
		op.PreviousVersion = cur.String()
		logger.Debug("Current version", "current", op.PreviousVersion, "source", source)
	}

	b, err := u.backups.Create(ctx, op.PreviousVersion)
	if err != nil {
		u.fail(op, types.FailureBackup, fmt.Errorf("%w: %w", ErrBackupFailed, err), fmt.Sprintf("%s: %v", ErrBackupFailed, err), logger)
		return
	}
	op.BackupPath = b.Path

	// 4. Download
	u.advance(op, types.StatusDownloading, logger)
	defer u.downloader.Discard(op.ID)

	dctx, cancel := context.WithTimeout(ctx, u.downloadTimeout)
	staged, art, err := u.downloader.Fetch(dctx, rel, u.platform, op.ID)
	cancel()
	if err != nil {
		u.fail(op, types.FailureDownload, err, err.Error(), logger)
		return
	}
	u.advance(op, types.StatusDownloaded, logger)

	// 5. Validate
	res := u.validator.Validate(staged, art, u.policy.SignatureRequired())
	op.SecurityValidation = res
	if !res.Passed {
		os.Remove(staged)
		verr := res.Err()
		u.fail(op, types.FailureSecurity, fmt.Errorf("%w: %w", ErrSecurityValidation, verr),
			fmt.Sprintf("%s: %v", ErrSecurityValidation, verr), logger)
		return
	}

	// 6. Install
	u.advance(op, types.StatusInstalling, logger)
	if err := u.installer.Install(ctx, staged, art, rel.Version); err != nil {
		u.recoverInstall(op, err, logger)
		return
	}
	u.advance(op, types.StatusInstalled, logger)
	logger.Info("Update installed", "previous", op.PreviousVersion)

	u.prune(logger)
}

// checkPolicy evaluates the policy and asks the approver when needed. It
// fails op and returns false when the update may not proceed.
func (u *Updater) checkPolicy(ctx context.Context, op *Operation, rel *release.Descriptor, art release.ArtifactRef, logger *log.Logger) bool {
	decision, err := u.policy.EvaluateUpdate(ctx, rel.Channel, art.SizeMB(), rel.Compliance)
	if err != nil {
		u.fail(op, types.FailurePolicy, fmt.Errorf("%w: %w", ErrPolicyViolation, err),
			fmt.Sprintf("policy evaluation failed: %v", err), logger)
		return false
	}
	logger.Debug("Policy decision", "decision", decision.String())

	switch decision.Outcome {
	case policy.Allowed:
		return true
	case policy.Denied:
		reason := decision.Reason
		if reason == "" {
			reason = "update denied by policy"
		}
		u.fail(op, types.FailurePolicy, fmt.Errorf("%w: %s", ErrPolicyViolation, reason), reason, logger)
		return false
	case policy.RequiresApproval:
		if u.approver == nil {
			u.fail(op, types.FailurePolicy, fmt.Errorf("%w: %s", ErrPolicyViolation, ApprovalRequiredMessage), ApprovalRequiredMessage, logger)
			return false
		}
		approved, err := u.approver.Approve(ctx, rel, decision)
		if err != nil {
			u.fail(op, types.FailurePolicy, fmt.Errorf("%w: approval failed: %w", ErrPolicyViolation, err),
				fmt.Sprintf("%s: %v", ApprovalRequiredMessage, err), logger)
			return false
		}
		if !approved {
			u.fail(op, types.FailurePolicy, fmt.Errorf("%w: %s", ErrPolicyViolation, ApprovalRequiredMessage), ApprovalRequiredMessage, logger)
			return false
		}
		logger.Info("Update approved", "reason", decision.Reason)
		return true
	default:
		err := fmt.Errorf("unknown policy outcome %q", decision.Outcome)
		u.fail(op, types.FailurePolicy, fmt.Errorf("%w: %w", ErrPolicyViolation, err), err.Error(), logger)
		return false
	}
}

// recoverInstall restores the operation's backup after a failed install.
func (u *Updater) recoverInstall(op *Operation, installErr error, logger *log.Logger) {
	logger.Error("Installation failed, rolling back", "error", installErr, "backup", op.BackupPath)

	info, rbErr := u.rollbacker.RollbackToBackup(op.BackupPath, "installation failed")
	if rbErr != nil {
		u.fail(op, types.FailureRollback, fmt.Errorf("%w; %w", installErr, rbErr),
			fmt.Sprintf("%v; %v", installErr, rbErr), logger)
		return
	}

	u.fail(op, types.FailureInstall, installErr, installErr.Error(), logger)
	op.RollbackInfo = info
	u.advance(op, types.StatusRolledBack, logger)
	logger.Warn("Rolled back", "restored", info.PreviousVersion)
}

func (u *Updater) fail(op *Operation, kind types.FailureKind, err error, msg string, logger *log.Logger) {
	op.FailureKind = kind
	op.ErrorMessage = msg
	op.err = err
	u.advance(op, types.StatusFailed, logger)
	logger.Error("Update failed", "kind", kind, "error", msg)
}

func (u *Updater) advance(op *Operation, next types.Status, logger *log.Logger) {
	if err := op.transition(next, u.now()); err != nil {
		logger.Error("Invalid status transition", "error", err)
		return
	}
	logger.Debug("Status changed", "status", next)
}

func (u *Updater) prune(logger *log.Logger) {
	res, err := u.backups.Prune(u.keepBackups)
	if err != nil {
		logger.Warn("Failed to prune backups", "error", err)
	}
	if res != nil && len(res.Deleted) > 0 {
		logger.Info("Pruned backups", "deleted", len(res.Deleted), "kept", res.Kept)
	}
}

// Rollback restores the newest backup of version under the install lock.
// ctx is only checked before the restore starts; a started rollback is not
// cancellable.
func (u *Updater) Rollback(ctx context.Context, version string) (*RollbackInfo, error) {
	unlock, err := u.lockForRollback(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	info, err := u.rollbacker.RollbackToVersion(version)
	if err != nil {
		return nil, err
	}
	u.logger.Info("Rolled back", "version", info.PreviousVersion, "path", info.BackupPath)
	return info, nil
}

// RestoreBackup restores a backup given by path or by name ("latest" for
// the newest) under the install lock.
func (u *Updater) RestoreBackup(ctx context.Context, ref string) (*RollbackInfo, error) {
	path := ref
	if !strings.ContainsAny(ref, `/\`) {
		b, err := u.backups.Get(ref)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRollbackFailed, err)
		}
		path = b.Path
	}

	unlock, err := u.lockForRollback(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return u.rollbacker.RollbackToBackup(path, "manual restore of "+filepath.Base(path))
}

func (u *Updater) lockForRollback(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l, err := lock.Acquire(u.installDir)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return nil, fmt.Errorf("%w: %w", ErrUpdateInProgress, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrRollbackFailed, err)
	}
	return func() {
		if err := l.Release(); err != nil {
			u.logger.Warn("Failed to release install lock", "error", err)
		}
	}, nil
}
