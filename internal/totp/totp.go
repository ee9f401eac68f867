// Package totp wraps RFC 4226/6238 one-time password computation and the
// backup-code scheme used for MFA recovery.
package totp

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	otphotp "github.com/pquerna/otp/hotp"
	otptotp "github.com/pquerna/otp/totp"
)

const (
	// Period is the TOTP time step in seconds.
	Period = 30

	// DefaultDriftSteps is the symmetric verification window, matching
	// common authenticator clock skew of one step in either direction.
	DefaultDriftSteps = 1

	secretBytes = 20 // 160 bits
)

// GenerateSecret returns a fresh Base32-encoded 160-bit shared secret
// without padding.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// HOTPCode computes the RFC 4226 code for a counter value. Codes are always
// exactly six ASCII digits with leading zeros preserved.
func HOTPCode(secret string, counter uint64) (string, error) {
	code, err := otphotp.GenerateCodeCustom(secret, counter, otphotp.ValidateOpts{
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to compute hotp code: %w", err)
	}
	return code, nil
}

// Code computes the RFC 6238 code for the given time using the standard
// 30 second step.
func Code(secret string, at time.Time) (string, error) {
	code, err := otptotp.GenerateCodeCustom(secret, at, otptotp.ValidateOpts{
		Period:    Period,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to compute totp code: %w", err)
	}
	return code, nil
}

// Verify checks a code against the secret, accepting any counter within
// driftSteps steps of the current one. Comparisons are constant-time.
func Verify(secret string, code string, at time.Time, driftSteps uint) bool {
	ok, err := otptotp.ValidateCustom(code, secret, at, otptotp.ValidateOpts{
		Period:    Period,
		Skew:      driftSteps,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return ok
}

// KeyURI builds the otpauth://totp/ enrollment URI for authenticator apps.
// Algorithm, digits and period are spelled out explicitly for compatibility.
func KeyURI(secret string, issuer string, account string) (string, error) {
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("invalid base32 secret: %w", err)
	}

	key, err := otptotp.Generate(otptotp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Secret:      raw,
		Period:      Period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build key uri: %w", err)
	}

	return key.URL(), nil
}
