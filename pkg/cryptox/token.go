package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// Token size constants (in bytes before encoding).
const (
	// TokenSize128 provides 128 bits of entropy (22 chars base64url).
	// Minimum for single-use credentials such as backup codes.
	TokenSize128 = 16
	// TokenSize256 provides 256 bits of entropy (43 chars base64url).
	// Used for invite and password-reset tokens.
	TokenSize256 = 32
)

// MintToken generates a cryptographically secure random token together with
// its storable fingerprint. The plaintext leaves this function exactly once;
// callers persist only the fingerprint.
func MintToken(size int) (plaintext, fingerprint string, err error) {
	plaintext, err = GenerateToken(size)
	if err != nil {
		return "", "", err
	}
	return plaintext, FingerprintToken(plaintext), nil
}

// GenerateToken creates a cryptographically secure random token of the
// specified byte length. The token is returned as a base64url-encoded string
// (URL-safe, no padding).
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FingerprintToken returns a deterministic SHA-256 fingerprint of a token,
// base64url encoded (43 chars). Only fingerprints are ever stored, so a
// leaked table cannot be replayed against the service.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyToken reports whether plaintext matches the stored fingerprint.
// The comparison is constant time: a caller cannot tell "wrong token" from
// "unknown token" by latency.
func VerifyToken(plaintext, fingerprint string) bool {
	computed := FingerprintToken(plaintext)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(fingerprint)) == 1
}
