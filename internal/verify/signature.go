package verify

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedisct1/go-minisign"

	"github.com/adamancini/upkeep/internal/types"
)

// maxSignedBytes caps how much of an artifact is read into memory for
// signature verification.
const maxSignedBytes = 500 << 20

var (
	// ErrSignatureMissing indicates a required signature was not provided.
	ErrSignatureMissing = errors.New("signature required but missing")

	// ErrSignatureInvalid indicates a signature was present but did not verify.
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrNoPublicKey indicates no key is configured for the signature's scheme.
	ErrNoPublicKey = errors.New("no public key configured")
)

// Keys holds the configured verification keys as they appear in config.
type Keys struct {
	// Minisign is the base64 minisign public key, or the full contents of a
	// minisign .pub file.
	Minisign string
	// MinisignFile is a path to a minisign .pub file.
	MinisignFile string
	// Ed25519 is a 64-character hex public key.
	Ed25519 string
}

type keyring struct {
	minisign *minisign.PublicKey
	ed25519  ed25519.PublicKey
}

func loadKeyring(k Keys) (*keyring, error) {
	ring := &keyring{}

	minisignKey := k.Minisign
	if k.MinisignFile != "" {
		data, err := os.ReadFile(k.MinisignFile)
		if err != nil {
			return nil, fmt.Errorf("read minisign pubkey: %w", err)
		}
		minisignKey = string(data)
	}
	if strings.TrimSpace(minisignKey) != "" {
		pk, err := minisign.NewPublicKey(lastLine(minisignKey))
		if err != nil {
			return nil, fmt.Errorf("parse minisign pubkey: %w", err)
		}
		ring.minisign = &pk
	}

	if strings.TrimSpace(k.Ed25519) != "" {
		hexKey, err := NormalizeHexKey(k.Ed25519)
		if err != nil {
			return nil, err
		}
		raw, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("decode ed25519 key: %w", err)
		}
		ring.ed25519 = ed25519.PublicKey(raw)
	}

	return ring, nil
}

// lastLine returns the last non-empty line, so a whole .pub file (with its
// untrusted comment header) can be used as a key.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// NormalizeHexKey validates and lowercases a hex ed25519 public key.
func NormalizeHexKey(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	upper := strings.ToUpper(trimmed)
	if strings.Contains(upper, "BEGIN") || strings.Contains(upper, "PRIVATE") {
		return "", fmt.Errorf("ed25519 keys must be provided as 64-character hex strings, not PEM/PGP blobs")
	}
	expectedLen := ed25519.PublicKeySize * 2
	if !IsHexDigest(trimmed, expectedLen) {
		return "", fmt.Errorf("ed25519 key must be %d hex characters", expectedLen)
	}
	return strings.ToLower(trimmed), nil
}

// DetectScheme classifies a signature string.
func DetectScheme(sig string) types.SignatureScheme {
	trimmed := strings.TrimSpace(sig)
	if strings.HasPrefix(trimmed, "untrusted comment:") {
		return types.SignatureMinisign
	}
	if _, err := decodeEd25519Signature(trimmed); err == nil {
		return types.SignatureEd25519
	}
	return types.SignatureUnknown
}

// decodeEd25519Signature accepts hex or standard base64 of a 64-byte signature.
func decodeEd25519Signature(s string) ([]byte, error) {
	if decoded, err := hex.DecodeString(s); err == nil && len(decoded) == ed25519.SignatureSize {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil && len(decoded) == ed25519.SignatureSize {
		return decoded, nil
	}
	return nil, fmt.Errorf("not a %d-byte ed25519 signature", ed25519.SignatureSize)
}

// verifySignature checks sig over the contents of path.
func (r *keyring) verifySignature(path, sig string) (types.SignatureScheme, error) {
	scheme := DetectScheme(sig)

	switch scheme {
	case types.SignatureMinisign:
		if r.minisign == nil {
			return scheme, fmt.Errorf("%w for minisign", ErrNoPublicKey)
		}
		decoded, err := minisign.DecodeSignature(strings.TrimSpace(sig) + "\n")
		if err != nil {
			return scheme, fmt.Errorf("%w: decode minisign signature: %v", ErrSignatureInvalid, err)
		}
		content, err := readCapped(path)
		if err != nil {
			return scheme, err
		}
		valid, err := r.minisign.Verify(content, decoded)
		if err != nil {
			return scheme, fmt.Errorf("%w: minisign: %v", ErrSignatureInvalid, err)
		}
		if !valid {
			return scheme, fmt.Errorf("%w: minisign verification failed", ErrSignatureInvalid)
		}
		return scheme, nil

	case types.SignatureEd25519:
		if r.ed25519 == nil {
			return scheme, fmt.Errorf("%w for ed25519", ErrNoPublicKey)
		}
		raw, err := decodeEd25519Signature(strings.TrimSpace(sig))
		if err != nil {
			return scheme, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		content, err := readCapped(path)
		if err != nil {
			return scheme, err
		}
		if !ed25519.Verify(r.ed25519, content, raw) {
			return scheme, fmt.Errorf("%w: ed25519 verification failed", ErrSignatureInvalid)
		}
		return scheme, nil

	default:
		return scheme, fmt.Errorf("%w: unrecognised signature scheme", ErrSignatureInvalid)
	}
}

func readCapped(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSignedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	if len(data) > maxSignedBytes {
		return nil, fmt.Errorf("artifact exceeds %d bytes", maxSignedBytes)
	}
	return data, nil
}
