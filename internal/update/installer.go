package update

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/charmbracelet/log"

	"github.com/adamancini/upkeep/internal/logging"
	"github.com/adamancini/upkeep/internal/release"
)

// OldSuffix is appended to the live binary name for the copy kept by Install.
const OldSuffix = ".old"

const verifyTimeout = 30 * time.Second

// Installer swaps a verified artifact into the installation directory.
type Installer struct {
	installDir string
	binaryName string
	smokeTest  bool
	logger     *log.Logger
}

// NewInstaller creates an installer for binaryName in installDir. With
// smokeTest set, the staged binary must answer --version before it replaces
// the live one.
func NewInstaller(installDir, binaryName string, smokeTest bool, logger *log.Logger) *Installer {
	return &Installer{
		installDir: installDir,
		binaryName: binaryName,
		smokeTest:  smokeTest,
		logger:     logging.OrDiscard(logger),
	}
}

// BinaryPath returns the live binary path.
func (i *Installer) BinaryPath() string {
	return filepath.Join(i.installDir, i.binaryName)
}

// Install extracts the staged artifact and replaces the live binary with it,
// then records version in the marker file. Errors wrap ErrInstallFailed.
// Until the final rename the live binary is untouched.
func (i *Installer) Install(ctx context.Context, stagedPath string, artifact release.ArtifactRef, version string) error {
	if _, err := ParseVersion(version); err != nil {
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}

	// 1. Extract into a private work directory next to the staged file
	work, err := os.MkdirTemp(filepath.Dir(stagedPath), "extract-")
	if err != nil {
		return fmt.Errorf("%w: failed to create work directory: %w", ErrInstallFailed, err)
	}
	defer os.RemoveAll(work)

	bin, err := Extract(stagedPath, artifact.ArchiveFormat(), i.binaryName, work)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}

	// 2. Set executable permissions
	if runtime.GOOS != "windows" {
		if err := os.Chmod(bin, 0755); err != nil {
			return fmt.Errorf("%w: failed to set permissions: %w", ErrInstallFailed, err)
		}
	}

	// 3. Verify new binary works
	if i.smokeTest {
		if err := verifyBinary(ctx, bin); err != nil {
			return fmt.Errorf("%w: staged %w", ErrInstallFailed, err)
		}
	}

	live := i.BinaryPath()

	// 4. Keep a copy of the current binary
	if _, err := os.Lstat(live); err == nil {
		if err := copyAtomic(live, live+OldSuffix, 0); err != nil {
			return fmt.Errorf("%w: failed to keep previous binary: %w", ErrInstallFailed, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("%w: failed to stat current binary: %w", ErrInstallFailed, err)
	}

	// 5. Replace with new binary (atomic rename)
	if err := copyAtomic(bin, live, 0755); err != nil {
		return fmt.Errorf("%w: failed to replace binary: %w", ErrInstallFailed, err)
	}
	i.logger.Info("Replaced binary", "path", live, "version", version)

	// 6. Record the installed version
	if err := WriteMarker(i.installDir, version); err != nil {
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}
	return nil
}

// copyAtomic copies src to a temporary sibling of dst, syncs it, and renames
// it over dst. perm 0 keeps the source permissions.
func copyAtomic(src, dst string, perm os.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if perm == 0 {
		info, err := in.Stat()
		if err != nil {
			return err
		}
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".new-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	return replace(tmpPath, dst)
}

// replace renames src over dst. A running executable cannot be overwritten on
// Windows, but it can be renamed out of the way.
func replace(src, dst string) error {
	if runtime.GOOS != "windows" {
		return os.Rename(src, dst)
	}

	aside := dst + ".replaced"
	os.Remove(aside)
	hadDst := true
	if err := os.Rename(dst, aside); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		hadDst = false
	}
	if err := os.Rename(src, dst); err != nil {
		if hadDst {
			os.Rename(aside, dst)
		}
		return err
	}
	os.Remove(aside)
	return nil
}

// verifyBinary verifies a binary works by running --version
func verifyBinary(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "--version")
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("binary verification failed: %w (output: %s)", err, truncate(out.String(), 200))
	}
	return nil
}

// binaryVersion runs path --version and parses the first version it prints.
func binaryVersion(ctx context.Context, path string) (Version, error) {
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return Version{}, fmt.Errorf("failed to run %s --version: %w", filepath.Base(path), err)
	}
	return ExtractVersion(string(out))
}
