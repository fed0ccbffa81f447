package update

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adamancini/upkeep/internal/config"
)

// ReadMarker reads the version recorded in <installDir>/version.txt. It
// returns an error wrapping ErrNoMarker when the file does not exist.
func ReadMarker(installDir string) (Version, error) {
	path := filepath.Join(installDir, config.MarkerFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Version{}, fmt.Errorf("%w: %s", ErrNoMarker, path)
		}
		return Version{}, fmt.Errorf("failed to read version marker: %w", err)
	}

	line, _, _ := strings.Cut(string(data), "\n")
	v, err := ParseVersion(line)
	if err != nil {
		return Version{}, fmt.Errorf("corrupt version marker %s: %w", path, err)
	}
	return v, nil
}

// WriteMarker records version in <installDir>/version.txt. The file is
// written to a temporary sibling and renamed, so readers never see a partial
// marker.
func WriteMarker(installDir, version string) error {
	v, err := ParseVersion(version)
	if err != nil {
		return fmt.Errorf("refusing to write version marker: %w", err)
	}

	path := filepath.Join(installDir, config.MarkerFileName)
	tmp, err := os.CreateTemp(installDir, "."+config.MarkerFileName+"-*")
	if err != nil {
		return fmt.Errorf("failed to create version marker: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(v.String() + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write version marker: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync version marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close version marker: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set version marker permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace version marker: %w", err)
	}
	return nil
}
