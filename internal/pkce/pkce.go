// Package pkce implements RFC 7636 code verifier and challenge handling
// for the authorization code flow.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	MethodS256  = "S256"
	MethodPlain = "plain"

	MinVerifierLength = 43
	MaxVerifierLength = 128
)

// Unreserved characters allowed in a code verifier (RFC 7636 section 4.1).
const verifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

var (
	ErrInvalidLength     = errors.New("pkce: verifier length must be between 43 and 128")
	ErrInvalidCharacter  = errors.New("pkce: verifier contains characters outside the unreserved set")
	ErrUnsupportedMethod = errors.New("pkce: unsupported code challenge method")
)

// GenerateVerifier returns a random code verifier of the given length over
// the unreserved character set.
func GenerateVerifier(length int) (string, error) {
	if length < MinVerifierLength || length > MaxVerifierLength {
		return "", ErrInvalidLength
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	for i, b := range buf {
		buf[i] = verifierAlphabet[int(b)%len(verifierAlphabet)]
	}

	return string(buf), nil
}

// ValidateVerifier enforces the verifier shape rules before a value from an
// untrusted client is used.
func ValidateVerifier(verifier string) error {
	if len(verifier) < MinVerifierLength || len(verifier) > MaxVerifierLength {
		return ErrInvalidLength
	}

	for i := 0; i < len(verifier); i++ {
		c := verifier[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == '_' || c == '~':
		default:
			return ErrInvalidCharacter
		}
	}

	return nil
}

// ComputeChallenge derives the code challenge for a verifier using the
// given method.
func ComputeChallenge(verifier string, method string) (string, error) {
	switch method {
	case MethodS256:
		sum := sha256.Sum256([]byte(verifier))
		return base64.RawURLEncoding.EncodeToString(sum[:]), nil
	case MethodPlain:
		return verifier, nil
	default:
		return "", ErrUnsupportedMethod
	}
}

// VerifyChallenge recomputes the challenge from the verifier and compares it
// against the stored challenge in constant time. A length mismatch is
// compared against a same-length dummy instead of returning early so the
// comparison cost does not leak the stored challenge length.
func VerifyChallenge(verifier string, storedChallenge string, method string) bool {
	computed, err := ComputeChallenge(verifier, method)
	if err != nil {
		return false
	}

	if len(computed) != len(storedChallenge) {
		dummy := make([]byte, len(computed))
		subtle.ConstantTimeCompare([]byte(computed), dummy)
		return false
	}

	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedChallenge)) == 1
}
