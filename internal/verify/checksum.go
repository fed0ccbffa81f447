// Package verify checks the integrity and authenticity of staged release
// artifacts.
package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	// ErrChecksumMismatch indicates the computed SHA256 does not match the declared digest.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrMalformedDigest indicates the declared digest is not 64 hex characters.
	ErrMalformedDigest = errors.New("malformed sha256 digest")
)

// ChecksumError provides details about a checksum verification failure.
// It wraps ErrChecksumMismatch so callers can use errors.Is.
type ChecksumError struct {
	Filename string
	Expected string
	Got      string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Filename, e.Expected, e.Got)
}

// Unwrap returns ErrChecksumMismatch.
func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }

// ComputeFileHash streams the file at path through SHA256 and returns the
// lowercase hex digest.
func ComputeFileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing file %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyFile compares the SHA256 of the file at path with expectedHash,
// case-insensitively. A malformed expectedHash fails with ErrMalformedDigest.
func VerifyFile(path, expectedHash string) error {
	expected := strings.TrimSpace(expectedHash)
	if !IsHexDigest(expected, sha256.Size*2) {
		return fmt.Errorf("%w: %q", ErrMalformedDigest, expectedHash)
	}

	got, err := ComputeFileHash(path)
	if err != nil {
		return err
	}

	if !strings.EqualFold(got, expected) {
		return &ChecksumError{
			Filename: path,
			Expected: strings.ToLower(expected),
			Got:      got,
		}
	}

	return nil
}

// IsHexDigest reports whether value is hex of exactly expectedLen characters.
func IsHexDigest(value string, expectedLen int) bool {
	if len(value) != expectedLen || len(value)%2 != 0 {
		return false
	}
	for _, ch := range value {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') && (ch < 'A' || ch > 'F') {
			return false
		}
	}
	return true
}
