package update

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/adamancini/upkeep/internal/types"
)

type archiveEntry struct {
	name string
	body string
	dir  bool
	link string
}

func writeTar(t *testing.T, w io.Writer, entries []archiveEntry) {
	t.Helper()
	tw := tar.NewWriter(w)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0755, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		switch {
		case e.dir:
			hdr.Typeflag, hdr.Size = tar.TypeDir, 0
		case e.link != "":
			hdr.Typeflag, hdr.Size, hdr.Linkname = tar.TypeSymlink, 0, e.link
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if hdr.Size > 0 {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
}

func buildTarGz(t *testing.T, path string, entries []archiveEntry) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	writeTar(t, gz, entries)
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func buildTarZst(t *testing.T, path string, entries []archiveEntry) {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	writeTar(t, zw, entries)
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func buildZip(t *testing.T, path string, entries []archiveEntry) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		name := e.name
		if e.dir {
			name += "/"
		}
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if !e.dir {
			if _, err := w.Write([]byte(e.body)); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestExtract(t *testing.T) {
	nested := []archiveEntry{
		{name: "upkeep_2.0.0_linux_amd64", dir: true},
		{name: "upkeep_2.0.0_linux_amd64/README.md", body: "docs"},
		{name: "upkeep_2.0.0_linux_amd64/upkeep", body: "new binary"},
	}

	tests := []struct {
		name    string
		file    string
		format  types.ArchiveFormat
		build   func(t *testing.T, path string)
		want    string
		wantErr bool
	}{
		{
			name:   "raw",
			file:   "upkeep-linux-amd64",
			format: types.ArchiveRaw,
			build: func(t *testing.T, path string) {
				if err := os.WriteFile(path, []byte("raw binary"), 0644); err != nil {
					t.Fatal(err)
				}
			},
			want: "raw binary",
		},
		{
			name:   "tar.gz nested",
			file:   "upkeep.tar.gz",
			format: types.ArchiveTarGz,
			build:  func(t *testing.T, path string) { buildTarGz(t, path, nested) },
			want:   "new binary",
		},
		{
			name:   "tar.zst",
			file:   "upkeep.tar.zst",
			format: types.ArchiveTarZst,
			build:  func(t *testing.T, path string) { buildTarZst(t, path, nested) },
			want:   "new binary",
		},
		{
			name:   "zip with exe",
			file:   "upkeep.zip",
			format: types.ArchiveZip,
			build: func(t *testing.T, path string) {
				buildZip(t, path, []archiveEntry{{name: "bin", dir: true}, {name: "bin/upkeep.exe", body: "windows binary"}})
			},
			want: "windows binary",
		},
		{
			name:   "format inferred from name",
			file:   "upkeep.tgz",
			format: "",
			build:  func(t *testing.T, path string) { buildTarGz(t, path, nested) },
			want:   "new binary",
		},
		{
			name:   "symlink entry skipped",
			file:   "upkeep.tar.gz",
			format: types.ArchiveTarGz,
			build: func(t *testing.T, path string) {
				buildTarGz(t, path, []archiveEntry{{name: "upkeep", link: "/etc/passwd"}, {name: "dist/upkeep", body: "real"}})
			},
			want: "real",
		},
		{
			name:   "binary missing from tar",
			file:   "upkeep.tar.gz",
			format: types.ArchiveTarGz,
			build: func(t *testing.T, path string) {
				buildTarGz(t, path, []archiveEntry{{name: "other-tool", body: "nope"}})
			},
			wantErr: true,
		},
		{
			name:   "prefix is not a match",
			file:   "upkeep.zip",
			format: types.ArchiveZip,
			build: func(t *testing.T, path string) {
				buildZip(t, path, []archiveEntry{{name: "upkeep-helper", body: "nope"}})
			},
			wantErr: true,
		},
		{
			name:   "corrupt gzip",
			file:   "upkeep.tar.gz",
			format: types.ArchiveTarGz,
			build: func(t *testing.T, path string) {
				if err := os.WriteFile(path, []byte("not gzip"), 0644); err != nil {
					t.Fatal(err)
				}
			},
			wantErr: true,
		},
		{
			name:   "empty raw binary",
			file:   "upkeep",
			format: types.ArchiveRaw,
			build: func(t *testing.T, path string) {
				if err := os.WriteFile(path, nil, 0644); err != nil {
					t.Fatal(err)
				}
			},
			wantErr: true,
		},
		{
			name:   "unsupported format",
			file:   "upkeep.rar",
			format: types.ArchiveFormat("rar"),
			build: func(t *testing.T, path string) {
				if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
					t.Fatal(err)
				}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			staged := filepath.Join(dir, tt.file)
			tt.build(t, staged)
			work := filepath.Join(dir, "work")
			if err := os.Mkdir(work, 0700); err != nil {
				t.Fatal(err)
			}

			got, err := Extract(staged, tt.format, "upkeep", work)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Extract() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrExtractionFailed) {
					t.Errorf("error should wrap ErrExtractionFailed, got %v", err)
				}
				if _, statErr := os.Stat(filepath.Join(work, "upkeep")); !os.IsNotExist(statErr) {
					t.Error("failed extraction should not leave a binary behind")
				}
				return
			}

			if got != filepath.Join(work, "upkeep") {
				t.Errorf("Extract() path = %s", got)
			}
			data, err := os.ReadFile(got)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.want {
				t.Errorf("extracted content = %q, want %q", data, tt.want)
			}
		})
	}
}

func TestMatchesBinary(t *testing.T) {
	tests := []struct {
		entry string
		want  bool
	}{
		{"upkeep", true},
		{"dist/upkeep", true},
		{"dist/upkeep.exe", true},
		{`dist\upkeep.exe`, true},
		{"upkeep.sha256", false},
		{"dist/upkeepd", false},
	}

	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			if got := matchesBinary(tt.entry, "upkeep"); got != tt.want {
				t.Errorf("matchesBinary(%q) = %v, want %v", tt.entry, got, tt.want)
			}
		})
	}
}
