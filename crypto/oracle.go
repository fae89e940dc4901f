package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// OracleKeyLength is the size of an oracle public key.
const OracleKeyLength = ed25519.PublicKeySize

// OracleSignatureLength is the size of an oracle attestation signature.
const OracleSignatureLength = ed25519.SignatureSize

// OracleKey is the ed25519 public key of the credit oracle.
type OracleKey [OracleKeyLength]byte

// OracleSigner holds the oracle private key. It is only used by tooling and
// tests; the protocol itself only ever verifies.
type OracleSigner struct {
	priv ed25519.PrivateKey
}

var errOracleKeyLength = errors.New("crypto: oracle key must be 32 bytes")

func (k OracleKey) String() string { return hex.EncodeToString(k[:]) }

// MarshalText renders the key as hex.
func (k OracleKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText parses a hex encoded key.
func (k *OracleKey) UnmarshalText(text []byte) error {
	parsed, err := ParseOracleKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// IsZero reports whether the key is unset.
func (k OracleKey) IsZero() bool { return k == OracleKey{} }

// ParseOracleKey decodes a hex encoded oracle public key, with or without a
// 0x prefix.
func ParseOracleKey(s string) (OracleKey, error) {
	var key OracleKey
	raw, err := hexDecode(s)
	if err != nil {
		return key, fmt.Errorf("crypto: oracle key: %w", err)
	}
	if len(raw) != OracleKeyLength {
		return key, errOracleKeyLength
	}
	copy(key[:], raw)
	return key, nil
}

// VerifyOracle checks an ed25519 signature over msg. Malformed keys or
// signatures report false rather than panicking.
func VerifyOracle(pub, msg, sig []byte) bool {
	if len(pub) != OracleKeyLength || len(sig) != OracleSignatureLength {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

// GenerateOracleSigner creates a fresh oracle key pair from rand.
func GenerateOracleSigner(rand io.Reader) (*OracleSigner, error) {
	_, priv, err := ed25519.GenerateKey(rand)
	if err != nil {
		return nil, err
	}
	return &OracleSigner{priv: priv}, nil
}

// OracleSignerFromSeed derives the oracle key pair from a 32-byte seed.
func OracleSignerFromSeed(seed []byte) (*OracleSigner, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto: oracle seed must be %d bytes", ed25519.SeedSize)
	}
	return &OracleSigner{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// PublicKey returns the verifying key.
func (s *OracleSigner) PublicKey() OracleKey {
	var key OracleKey
	copy(key[:], s.priv.Public().(ed25519.PublicKey))
	return key
}

// Seed returns the 32-byte private seed.
func (s *OracleSigner) Seed() []byte {
	return append([]byte(nil), s.priv.Seed()...)
}

// Sign attests msg.
func (s *OracleSigner) Sign(msg []byte) []byte {
	return ed25519.Sign(s.priv, msg)
}

func hexDecode(s string) ([]byte, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	return hex.DecodeString(trimmed)
}
