package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 100_000
	saltBytes        = 16
	keyBytes         = 32
	tokenBytes       = 32
)

// HashPassword derives a PBKDF2-SHA256 hash and returns it as "salt$hash"
// with both parts base64 encoded.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password is empty")
	}

	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keyBytes, sha256.New)

	return base64.RawStdEncoding.EncodeToString(salt) + "$" +
		base64.RawStdEncoding.EncodeToString(hash), nil
}

// VerifyPassword checks a plaintext password against a stored hash. Stored
// values are either "salt$hash" (current scheme) or a bare hex SHA-256 digest
// left behind by old installs. The second return value reports whether the
// match came through the legacy path, so callers can re-hash.
func VerifyPassword(password, stored string) (ok, legacy bool) {
	if password == "" || stored == "" {
		return false, false
	}

	if salt, want, found := splitStored(stored); found {
		got := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, len(want), sha256.New)
		return subtle.ConstantTimeCompare(got, want) == 1, false
	}

	return verifyLegacy(password, stored), true
}

func splitStored(stored string) (salt, hash []byte, ok bool) {
	saltStr, hashStr, found := strings.Cut(stored, "$")
	if !found {
		return nil, nil, false
	}
	salt, err := base64.RawStdEncoding.DecodeString(saltStr)
	if err != nil {
		return nil, nil, false
	}
	hash, err = base64.RawStdEncoding.DecodeString(hashStr)
	if err != nil {
		return nil, nil, false
	}
	return salt, hash, true
}

// verifyLegacy handles hashes written as unsalted SHA-256 hex digests.
func verifyLegacy(password, stored string) bool {
	want, err := hex.DecodeString(stored)
	if err != nil || len(want) != sha256.Size {
		return false
	}
	got := sha256.Sum256([]byte(password))
	return subtle.ConstantTimeCompare(got[:], want) == 1
}

// NewSessionToken returns a URL-safe random token for session cookies.
func NewSessionToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
