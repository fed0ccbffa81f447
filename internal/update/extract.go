package update

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/adamancini/upkeep/internal/types"
)

// maxBinaryBytes is the upper bound on extracted binary size (500 MB).
const maxBinaryBytes = 500 << 20

var errBinaryNotFound = errors.New("binary not found in archive")

// Extract takes the executable named binaryName out of the staged artifact
// and writes it to workDir. Archive entries are matched by base name, with
// or without an .exe suffix. Errors wrap ErrExtractionFailed.
func Extract(stagedPath string, format types.ArchiveFormat, binaryName, workDir string) (string, error) {
	if format == "" {
		format = types.DetectArchiveFormat(stagedPath)
	}
	dst := filepath.Join(workDir, binaryName)

	var err error
	switch format {
	case types.ArchiveRaw:
		err = extractRaw(stagedPath, dst)
	case types.ArchiveTarGz:
		err = extractTar(stagedPath, dst, binaryName, func(r io.Reader) (io.Reader, func(), error) {
			gz, err := gzip.NewReader(r)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to create gzip reader: %w", err)
			}
			return gz, func() { gz.Close() }, nil
		})
	case types.ArchiveTarZst:
		err = extractTar(stagedPath, dst, binaryName, func(r io.Reader) (io.Reader, func(), error) {
			zr, err := zstd.NewReader(r)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to create zstd reader: %w", err)
			}
			return zr, zr.Close, nil
		})
	case types.ArchiveZip:
		err = extractZip(stagedPath, dst, binaryName)
	default:
		err = fmt.Errorf("unsupported archive format %q", format)
	}

	if err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	return dst, nil
}

func extractRaw(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer in.Close()
	return writeCapped(in, dst)
}

type decompressor func(io.Reader) (io.Reader, func(), error)

func extractTar(src, dst, binaryName string, open decompressor) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	r, closeFn, err := open(f)
	if err != nil {
		return err
	}
	defer closeFn()

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %s", errBinaryNotFound, binaryName)
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || !matchesBinary(hdr.Name, binaryName) {
			continue
		}
		return writeCapped(tr, dst)
	}
}

func extractZip(src, dst, binaryName string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || !zf.Mode().IsRegular() || !matchesBinary(zf.Name, binaryName) {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s in archive: %w", zf.Name, err)
		}
		err = writeCapped(rc, dst)
		rc.Close()
		return err
	}
	return fmt.Errorf("%w: %s", errBinaryNotFound, binaryName)
}

// matchesBinary compares the base name of an archive entry against the
// binary name, tolerating a Windows .exe suffix on either side.
func matchesBinary(entry, binaryName string) bool {
	base := path.Base(strings.ReplaceAll(entry, `\`, "/"))
	want := strings.TrimSuffix(binaryName, ".exe")
	return base == want || base == want+".exe"
}

// writeCapped copies at most maxBinaryBytes into dst and fails when the
// source is larger.
func writeCapped(r io.Reader, dst string) error {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0700)
	if err != nil {
		return fmt.Errorf("failed to create extracted binary: %w", err)
	}

	n, copyErr := io.Copy(out, io.LimitReader(r, maxBinaryBytes+1))
	closeErr := out.Close()
	switch {
	case copyErr != nil:
		return fmt.Errorf("failed to extract binary: %w", copyErr)
	case closeErr != nil:
		return fmt.Errorf("failed to write extracted binary: %w", closeErr)
	case n > maxBinaryBytes:
		return fmt.Errorf("binary exceeds %d bytes", maxBinaryBytes)
	case n == 0:
		return errors.New("extracted binary is empty")
	}
	return nil
}
