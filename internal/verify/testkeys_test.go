package verify

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"testing"
)

type testSigner struct {
	pub   ed25519.PublicKey
	priv  ed25519.PrivateKey
	keyID [8]byte
}

func newTestSigner(t *testing.T) *testSigner {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	s := &testSigner{pub: pub, priv: priv}
	copy(s.keyID[:], []byte{1, 2, 3, 4, 5, 6, 7, 8})
	return s
}

func (s *testSigner) hexKey() string {
	return hex.EncodeToString(s.pub)
}

// minisignPublicKey returns the key in minisign .pub format.
func (s *testSigner) minisignPublicKey() string {
	raw := append([]byte("Ed"), s.keyID[:]...)
	raw = append(raw, s.pub...)
	return "untrusted comment: upkeep test key\n" + base64.StdEncoding.EncodeToString(raw) + "\n"
}

// minisign produces a legacy (non-prehashed) minisign signature of content.
func (s *testSigner) minisign(content []byte) string {
	sig := ed25519.Sign(s.priv, content)
	raw := append([]byte("Ed"), s.keyID[:]...)
	raw = append(raw, sig...)

	trusted := "timestamp:1700000000\tfile:upkeep"
	global := ed25519.Sign(s.priv, append(append([]byte{}, sig...), []byte(trusted)...))

	return "untrusted comment: signature from upkeep test key\n" +
		base64.StdEncoding.EncodeToString(raw) + "\n" +
		"trusted comment: " + trusted + "\n" +
		base64.StdEncoding.EncodeToString(global) + "\n"
}

func (s *testSigner) ed25519Hex(content []byte) string {
	return hex.EncodeToString(ed25519.Sign(s.priv, content))
}

func (s *testSigner) ed25519Base64(content []byte) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.priv, content))
}
