package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adamancini/upkeep/internal/config"
)

func runRoot(args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	root := newRootCmd(buildInfo{Version: "dev"})
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.Execute()
	return stdout.String(), err
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf", "upkeep.yaml")

	stdout, err := runRoot("init", "--install-dir", dir, "--file", path, "--template", "signed", "--feed", "https://feed.internal/app")
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !strings.Contains(stdout, "Created "+path) || !strings.Contains(stdout, "Next steps:") {
		t.Errorf("stdout = %q", stdout)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.InstallDir != dir {
		t.Errorf("install_dir = %q, want %q", cfg.InstallDir, dir)
	}
	if cfg.Feed.URL != "https://feed.internal/app" {
		t.Errorf("feed.url = %q", cfg.Feed.URL)
	}
	if !cfg.Policy.RequireSignature {
		t.Error("signed template should require signatures")
	}
}

func TestInitCommand_DefaultPath(t *testing.T) {
	dir := t.TempDir()

	if _, err := runRoot("init", "--install-dir", dir); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	path := filepath.Join(dir, "upkeep.yaml")
	found, err := config.Find("", dir)
	if err != nil || found != path {
		t.Errorf("config.Find() = %q, %v, want %q", found, err, path)
	}
}

func TestInitCommand_Existing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upkeep.yaml")
	if err := os.WriteFile(path, []byte("keep_backups: 9\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := runRoot("init", "--install-dir", dir); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("error = %v, want 'already exists'", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "keep_backups: 9\n" {
		t.Error("existing config was overwritten without --force")
	}

	if _, err := runRoot("init", "--install-dir", dir, "--force"); err != nil {
		t.Fatalf("init --force failed: %v", err)
	}
	data, _ = os.ReadFile(path)
	if !strings.Contains(string(data), "binary_name:") {
		t.Error("--force did not overwrite the config")
	}
}

func TestInitCommand_UnknownTemplate(t *testing.T) {
	if _, err := runRoot("init", "--install-dir", t.TempDir(), "--template", "bogus"); err == nil {
		t.Error("init with an unknown template should fail")
	}
}

func TestInitCommand_List(t *testing.T) {
	stdout, err := runRoot("init", "--list")
	if err != nil {
		t.Fatalf("init --list failed: %v", err)
	}
	for _, name := range []string{"minimal", "signed", "s3", "rego"} {
		if !strings.Contains(stdout, name) {
			t.Errorf("template list missing %s:\n%s", name, stdout)
		}
	}
}
