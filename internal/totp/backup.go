package totp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// DefaultBackupCodeCount is the size of a freshly generated batch.
	DefaultBackupCodeCount = 10

	backupAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	backupGroupSize  = 4
	backupGroupCount = 2
)

// GenerateBackupCodes returns n single-use recovery codes formatted as
// XXXX-XXXX. The plaintext codes are returned to the caller exactly once;
// only their hashes are ever persisted.
func GenerateBackupCodes(n int) ([]string, error) {
	if n <= 0 {
		n = DefaultBackupCodeCount
	}

	codes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		buf := make([]byte, backupGroupSize*backupGroupCount)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to read random bytes: %w", err)
		}

		chars := make([]byte, len(buf))
		for j, b := range buf {
			chars[j] = backupAlphabet[int(b)%len(backupAlphabet)]
		}

		codes = append(codes, fmt.Sprintf("%s-%s", chars[:backupGroupSize], chars[backupGroupSize:]))
	}

	return codes, nil
}

// HashBackupCode normalizes a code (uppercase, hyphen stripped) and returns
// the hex-encoded SHA-256 of the result.
func HashBackupCode(code string) string {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// VerifyBackupCode performs a constant-time membership test of the code's
// hash against the stored hash list. It returns the matched hash so the
// caller can remove it; a backup code is valid exactly once.
func VerifyBackupCode(code string, hashes []string) (string, bool) {
	candidate := HashBackupCode(code)

	// Walk the whole list regardless of where the match is found
	matched := ""
	for _, h := range hashes {
		if len(h) == len(candidate) && subtle.ConstantTimeCompare([]byte(h), []byte(candidate)) == 1 {
			matched = h
		}
	}

	return matched, matched != ""
}
