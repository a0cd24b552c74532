package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

const (
	bearerPrefix   = "Bearer "
	tokenSeparator = "|"
	secretBytes    = 32
)

// NewTokenSecret returns a random secret for a bearer token and the hash
// that gets persisted.
func NewTokenSecret() (secret, hash string, err error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("read token secret: %w", err)
	}
	secret = base64.RawURLEncoding.EncodeToString(buf)
	return secret, HashSecret(secret), nil
}

func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// SecretMatches compares a presented secret to a stored hash in constant
// time.
func SecretMatches(storedHash, secret string) bool {
	got := HashSecret(secret)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(got)) == 1
}

// FormatToken builds the plaintext handed to the client: "<id>|<secret>".
func FormatToken(id, secret string) string {
	return id + tokenSeparator + secret
}

// ParseToken splits a plaintext token. ok is false for anything that is not
// exactly two non-empty parts.
func ParseToken(plaintext string) (id, secret string, ok bool) {
	id, secret, found := strings.Cut(plaintext, tokenSeparator)
	if !found || id == "" || secret == "" || strings.Contains(secret, tokenSeparator) {
		return "", "", false
	}
	return id, secret, true
}

// BearerToken extracts the credential from an Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) <= len(bearerPrefix) || !strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(bearerPrefix):])
	return tok, tok != ""
}
