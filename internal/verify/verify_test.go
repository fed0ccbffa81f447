package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adamancini/upkeep/internal/release"
	"github.com/adamancini/upkeep/internal/types"
)

func writeArtifact(t *testing.T, content []byte) (string, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(content)
	return path, hex.EncodeToString(sum[:])
}

func TestVerifyFile(t *testing.T) {
	path, digest := writeArtifact(t, []byte("upkeep 2.0.0"))

	if err := VerifyFile(path, digest); err != nil {
		t.Errorf("VerifyFile() error = %v", err)
	}
	if err := VerifyFile(path, strings.ToUpper(digest)); err != nil {
		t.Errorf("VerifyFile() should be case-insensitive, got %v", err)
	}

	err := VerifyFile(path, strings.Repeat("0", 64))
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("VerifyFile() error = %v, want ErrChecksumMismatch", err)
	}
	var ce *ChecksumError
	if !errors.As(err, &ce) || ce.Got != digest {
		t.Errorf("expected ChecksumError with Got=%s, got %v", digest, err)
	}

	if err := VerifyFile(path, "c3ab8ff"); !errors.Is(err, ErrMalformedDigest) {
		t.Errorf("VerifyFile() error = %v, want ErrMalformedDigest", err)
	}
}

func TestDetectScheme(t *testing.T) {
	s := newTestSigner(t)
	content := []byte("payload")

	tests := []struct {
		name string
		sig  string
		want types.SignatureScheme
	}{
		{"minisign", s.minisign(content), types.SignatureMinisign},
		{"ed25519 hex", s.ed25519Hex(content), types.SignatureEd25519},
		{"ed25519 base64", s.ed25519Base64(content), types.SignatureEd25519},
		{"pgp", "-----BEGIN PGP SIGNATURE-----\nabc\n", types.SignatureUnknown},
		{"short hex", "deadbeef", types.SignatureUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectScheme(tt.sig); got != tt.want {
				t.Errorf("DetectScheme() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	signer := newTestSigner(t)
	other := newTestSigner(t)
	content := []byte("#!/bin/sh\necho upkeep 2.0.0\n")
	path, digest := writeArtifact(t, content)
	badDigest := strings.Repeat("a", 64)

	withBoth := Keys{Minisign: signer.minisignPublicKey(), Ed25519: signer.hexKey()}

	tests := []struct {
		name          string
		keys          Keys
		artifact      release.ArtifactRef
		required      bool
		wantPassed    bool
		wantChecksum  bool
		wantSignature *bool
	}{
		{
			name:         "checksum only, not required",
			keys:         Keys{},
			artifact:     release.ArtifactRef{SHA256: digest},
			wantPassed:   true,
			wantChecksum: true,
		},
		{
			name:         "checksum mismatch",
			keys:         Keys{},
			artifact:     release.ArtifactRef{SHA256: badDigest},
			wantPassed:   false,
			wantChecksum: false,
		},
		{
			name:         "malformed digest fails closed",
			keys:         Keys{},
			artifact:     release.ArtifactRef{SHA256: "c3ab8ff"},
			wantPassed:   false,
			wantChecksum: false,
		},
		{
			name:          "required but missing",
			keys:          withBoth,
			artifact:      release.ArtifactRef{SHA256: digest},
			required:      true,
			wantPassed:    false,
			wantChecksum:  true,
			wantSignature: boolPtr(false),
		},
		{
			name:          "minisign valid",
			keys:          withBoth,
			artifact:      release.ArtifactRef{SHA256: digest, Signature: signer.minisign(content)},
			required:      true,
			wantPassed:    true,
			wantChecksum:  true,
			wantSignature: boolPtr(true),
		},
		{
			name:          "ed25519 hex valid",
			keys:          withBoth,
			artifact:      release.ArtifactRef{SHA256: digest, Signature: signer.ed25519Hex(content)},
			required:      true,
			wantPassed:    true,
			wantChecksum:  true,
			wantSignature: boolPtr(true),
		},
		{
			name:          "ed25519 base64 valid",
			keys:          Keys{Ed25519: signer.hexKey()},
			artifact:      release.ArtifactRef{SHA256: digest, Signature: signer.ed25519Base64(content)},
			required:      true,
			wantPassed:    true,
			wantChecksum:  true,
			wantSignature: boolPtr(true),
		},
		{
			name:          "signed by another key",
			keys:          withBoth,
			artifact:      release.ArtifactRef{SHA256: digest, Signature: other.ed25519Hex(content)},
			required:      true,
			wantPassed:    false,
			wantChecksum:  true,
			wantSignature: boolPtr(false),
		},
		{
			name:          "minisign without key",
			keys:          Keys{Ed25519: signer.hexKey()},
			artifact:      release.ArtifactRef{SHA256: digest, Signature: signer.minisign(content)},
			required:      true,
			wantPassed:    false,
			wantChecksum:  true,
			wantSignature: boolPtr(false),
		},
		{
			name:          "unknown scheme",
			keys:          withBoth,
			artifact:      release.ArtifactRef{SHA256: digest, Signature: "-----BEGIN PGP SIGNATURE-----"},
			required:      true,
			wantPassed:    false,
			wantChecksum:  true,
			wantSignature: boolPtr(false),
		},
		{
			name:          "invalid optional signature still passes",
			keys:          withBoth,
			artifact:      release.ArtifactRef{SHA256: digest, Signature: other.ed25519Hex(content)},
			required:      false,
			wantPassed:    true,
			wantChecksum:  true,
			wantSignature: boolPtr(false),
		},
		{
			name:          "valid signature cannot rescue bad checksum",
			keys:          withBoth,
			artifact:      release.ArtifactRef{SHA256: badDigest, Signature: signer.ed25519Hex(content)},
			required:      true,
			wantPassed:    false,
			wantChecksum:  false,
			wantSignature: boolPtr(true),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewValidator(tt.keys, nil)
			if err != nil {
				t.Fatalf("NewValidator() error = %v", err)
			}

			res := v.Validate(path, tt.artifact, tt.required)

			if res.Passed != tt.wantPassed {
				t.Errorf("Passed = %v, want %v (details %v)", res.Passed, tt.wantPassed, res.Details)
			}
			if res.ChecksumValid != tt.wantChecksum {
				t.Errorf("ChecksumValid = %v, want %v", res.ChecksumValid, tt.wantChecksum)
			}
			switch {
			case tt.wantSignature == nil && res.SignatureValid != nil:
				t.Errorf("SignatureValid = %v, want nil", *res.SignatureValid)
			case tt.wantSignature != nil && res.SignatureValid == nil:
				t.Errorf("SignatureValid = nil, want %v", *tt.wantSignature)
			case tt.wantSignature != nil && *res.SignatureValid != *tt.wantSignature:
				t.Errorf("SignatureValid = %v, want %v", *res.SignatureValid, *tt.wantSignature)
			}
			if res.EvaluatedAt.IsZero() {
				t.Error("EvaluatedAt not set")
			}
			if (res.Err() == nil) != res.Passed {
				t.Errorf("Err() = %v inconsistent with Passed = %v", res.Err(), res.Passed)
			}
		})
	}
}

func TestValidateRequiredMissingError(t *testing.T) {
	path, digest := writeArtifact(t, []byte("x"))
	v, err := NewValidator(Keys{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	res := v.Validate(path, release.ArtifactRef{SHA256: digest}, true)
	if !errors.Is(res.Err(), ErrSignatureMissing) {
		t.Errorf("Err() = %v, want ErrSignatureMissing", res.Err())
	}
}

func TestDerivePassed(t *testing.T) {
	tests := []struct {
		checksum bool
		sig      *bool
		required bool
		want     bool
	}{
		{true, nil, false, true},
		{true, nil, true, false},
		{true, boolPtr(true), true, true},
		{true, boolPtr(false), true, false},
		{true, boolPtr(false), false, true},
		{false, boolPtr(true), false, false},
		{false, nil, false, false},
	}

	for _, tt := range tests {
		if got := derivePassed(tt.checksum, tt.sig, tt.required); got != tt.want {
			t.Errorf("derivePassed(%v, %v, %v) = %v, want %v", tt.checksum, tt.sig, tt.required, got, tt.want)
		}
	}
}

func TestNewValidatorKeyErrors(t *testing.T) {
	tests := []struct {
		name string
		keys Keys
	}{
		{"short ed25519", Keys{Ed25519: "abcd"}},
		{"pem ed25519", Keys{Ed25519: "-----BEGIN PUBLIC KEY-----"}},
		{"garbage minisign", Keys{Minisign: "not-a-key"}},
		{"missing minisign file", Keys{MinisignFile: filepath.Join(t.TempDir(), "missing.pub")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewValidator(tt.keys, nil); err == nil {
				t.Error("NewValidator() expected error")
			}
		})
	}
}

func TestMinisignKeyFromFile(t *testing.T) {
	signer := newTestSigner(t)
	keyPath := filepath.Join(t.TempDir(), "upkeep.pub")
	if err := os.WriteFile(keyPath, []byte(signer.minisignPublicKey()), 0644); err != nil {
		t.Fatal(err)
	}

	content := []byte("payload")
	path, digest := writeArtifact(t, content)

	v, err := NewValidator(Keys{MinisignFile: keyPath}, nil)
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}
	res := v.Validate(path, release.ArtifactRef{SHA256: digest, Signature: signer.minisign(content)}, true)
	if !res.Passed {
		t.Errorf("expected pass, details = %v", res.Details)
	}
}

func boolPtr(b bool) *bool { return &b }
