package update

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/adamancini/upkeep/internal/release"
	"github.com/adamancini/upkeep/internal/types"
)

func versionScript(version string) string {
	return `#!/bin/sh
if [ "$1" = "--version" ]; then
	echo "upkeep version ` + version + `"
	exit 0
fi
exit 1
`
}

const brokenScript = `#!/bin/sh
exit 1
`

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script binaries are not supported on windows")
	}
}

// stageRaw writes content as a staged raw artifact and returns its path.
func stageRaw(t *testing.T, content string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "op")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "upkeep-linux-amd64")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

var rawArtifact = release.ArtifactRef{URL: "https://example.com/upkeep-linux-amd64", Format: types.ArchiveRaw}

func TestInstall_Success(t *testing.T) {
	skipWithoutShell(t)

	installDir := t.TempDir()
	live := filepath.Join(installDir, "upkeep")
	current := versionScript("1.0.0")
	if err := os.WriteFile(live, []byte(current), 0755); err != nil {
		t.Fatalf("Failed to create current binary: %v", err)
	}

	next := versionScript("2.0.0")
	staged := stageRaw(t, next)

	inst := NewInstaller(installDir, "upkeep", true, nil)
	if err := inst.Install(context.Background(), staged, rawArtifact, "2.0.0"); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	content, err := os.ReadFile(live)
	if err != nil {
		t.Fatalf("Failed to read replaced binary: %v", err)
	}
	if string(content) != next {
		t.Error("Binary was not replaced")
	}

	info, err := os.Stat(live)
	if err != nil {
		t.Fatalf("Failed to stat binary: %v", err)
	}
	if info.Mode().Perm() != 0755 {
		t.Errorf("Binary permissions = %o, want 0755", info.Mode().Perm())
	}

	old, err := os.ReadFile(live + OldSuffix)
	if err != nil {
		t.Fatalf("Failed to read previous binary copy: %v", err)
	}
	if string(old) != current {
		t.Error("Previous binary should be kept as upkeep.old")
	}

	v, err := ReadMarker(installDir)
	if err != nil {
		t.Fatalf("ReadMarker() error = %v", err)
	}
	if v.String() != "2.0.0" {
		t.Errorf("marker = %s, want 2.0.0", v)
	}

	entries, _ := os.ReadDir(installDir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".new-") {
			t.Errorf("temporary file left in install dir: %s", e.Name())
		}
	}
	work, _ := filepath.Glob(filepath.Join(filepath.Dir(staged), "extract-*"))
	if len(work) != 0 {
		t.Errorf("work directory not cleaned: %v", work)
	}
}

func TestInstall_FirstInstall(t *testing.T) {
	installDir := t.TempDir()
	staged := stageRaw(t, "binary")

	inst := NewInstaller(installDir, "upkeep", false, nil)
	if err := inst.Install(context.Background(), staged, rawArtifact, "1.0.0"); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(installDir, "upkeep"+OldSuffix)); !os.IsNotExist(err) {
		t.Error("no previous binary copy expected on first install")
	}
	if _, err := os.Stat(filepath.Join(installDir, "upkeep")); err != nil {
		t.Errorf("binary not installed: %v", err)
	}
}

func TestInstall_VerificationFails(t *testing.T) {
	skipWithoutShell(t)

	installDir := t.TempDir()
	live := filepath.Join(installDir, "upkeep")
	current := versionScript("1.0.0")
	if err := os.WriteFile(live, []byte(current), 0755); err != nil {
		t.Fatal(err)
	}
	if err := WriteMarker(installDir, "1.0.0"); err != nil {
		t.Fatal(err)
	}

	staged := stageRaw(t, brokenScript)

	inst := NewInstaller(installDir, "upkeep", true, nil)
	err := inst.Install(context.Background(), staged, rawArtifact, "2.0.0")
	if err == nil {
		t.Fatal("Expected error for broken binary")
	}
	if !errors.Is(err, ErrInstallFailed) {
		t.Errorf("error should wrap ErrInstallFailed, got %v", err)
	}

	content, _ := os.ReadFile(live)
	if string(content) != current {
		t.Error("Live binary should be untouched when the smoke test fails")
	}
	if v, _ := ReadMarker(installDir); v.String() != "1.0.0" {
		t.Errorf("marker = %s, want 1.0.0", v)
	}
}

func TestInstall_ExtractionFails(t *testing.T) {
	installDir := t.TempDir()
	live := filepath.Join(installDir, "upkeep")
	if err := os.WriteFile(live, []byte("current"), 0755); err != nil {
		t.Fatal(err)
	}

	staged := stageRaw(t, "not a tarball")
	art := release.ArtifactRef{URL: "https://example.com/upkeep.tar.gz"}

	inst := NewInstaller(installDir, "upkeep", false, nil)
	err := inst.Install(context.Background(), staged, art, "2.0.0")
	if !errors.Is(err, ErrInstallFailed) || !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("error should wrap ErrInstallFailed and ErrExtractionFailed, got %v", err)
	}

	content, _ := os.ReadFile(live)
	if string(content) != "current" {
		t.Error("Live binary should be untouched when extraction fails")
	}
}

func TestInstall_InvalidVersion(t *testing.T) {
	installDir := t.TempDir()
	staged := stageRaw(t, "binary")

	inst := NewInstaller(installDir, "upkeep", false, nil)
	err := inst.Install(context.Background(), staged, rawArtifact, "latest")
	if !errors.Is(err, ErrInstallFailed) {
		t.Fatalf("error should wrap ErrInstallFailed, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(installDir, "upkeep")); !os.IsNotExist(err) {
		t.Error("nothing should be installed for an invalid version")
	}
}

func TestInstall_MarkerWriteFails(t *testing.T) {
	installDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(installDir, "version.txt"), 0755); err != nil {
		t.Fatal(err)
	}
	staged := stageRaw(t, "binary")

	inst := NewInstaller(installDir, "upkeep", false, nil)
	err := inst.Install(context.Background(), staged, rawArtifact, "2.0.0")
	if !errors.Is(err, ErrInstallFailed) {
		t.Fatalf("error should wrap ErrInstallFailed, got %v", err)
	}
}

func TestVerifyBinary(t *testing.T) {
	skipWithoutShell(t)

	tests := []struct {
		name    string
		script  string
		mode    os.FileMode
		wantErr bool
	}{
		{name: "success", script: versionScript("1.0.0"), mode: 0755},
		{name: "fails", script: brokenScript, mode: 0755, wantErr: true},
		{name: "not executable", script: versionScript("1.0.0"), mode: 0644, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "test")
			if err := os.WriteFile(path, []byte(tt.script), tt.mode); err != nil {
				t.Fatal(err)
			}
			err := verifyBinary(context.Background(), path)
			if (err != nil) != tt.wantErr {
				t.Errorf("verifyBinary() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	t.Run("not found", func(t *testing.T) {
		if err := verifyBinary(context.Background(), "/path/that/does/not/exist"); err == nil {
			t.Error("Expected error for non-existent binary")
		}
	})
}

func TestBinaryVersion(t *testing.T) {
	skipWithoutShell(t)

	path := filepath.Join(t.TempDir(), "upkeep")
	if err := os.WriteFile(path, []byte(versionScript("v1.7.3")), 0755); err != nil {
		t.Fatal(err)
	}

	v, err := binaryVersion(context.Background(), path)
	if err != nil {
		t.Fatalf("binaryVersion() error = %v", err)
	}
	if v.String() != "1.7.3" {
		t.Errorf("binaryVersion() = %s, want 1.7.3", v)
	}
}
