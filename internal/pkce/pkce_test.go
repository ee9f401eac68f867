package pkce_test

import (
	"strings"
	"testing"

	"github.com/keygate-dev/keygate/internal/pkce"

	"gotest.tools/v3/assert"
)

func TestGenerateVerifier(t *testing.T) {
	verifier, err := pkce.GenerateVerifier(43)
	assert.NilError(t, err)
	assert.Equal(t, len(verifier), 43)
	assert.NilError(t, pkce.ValidateVerifier(verifier))

	verifier, err = pkce.GenerateVerifier(128)
	assert.NilError(t, err)
	assert.Equal(t, len(verifier), 128)
	assert.NilError(t, pkce.ValidateVerifier(verifier))

	_, err = pkce.GenerateVerifier(42)
	assert.ErrorIs(t, err, pkce.ErrInvalidLength)

	_, err = pkce.GenerateVerifier(129)
	assert.ErrorIs(t, err, pkce.ErrInvalidLength)
}

func TestValidateVerifier(t *testing.T) {
	assert.NilError(t, pkce.ValidateVerifier(strings.Repeat("a", 43)))
	assert.NilError(t, pkce.ValidateVerifier(strings.Repeat("A0-._~", 8)))
	assert.ErrorIs(t, pkce.ValidateVerifier("short"), pkce.ErrInvalidLength)
	assert.ErrorIs(t, pkce.ValidateVerifier(strings.Repeat("a", 42)+"!"), pkce.ErrInvalidCharacter)
	assert.ErrorIs(t, pkce.ValidateVerifier(strings.Repeat("a", 42)+" "), pkce.ErrInvalidCharacter)
}

func TestComputeChallenge(t *testing.T) {
	// Reference pair from RFC 7636 appendix B
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge, err := pkce.ComputeChallenge(verifier, pkce.MethodS256)
	assert.NilError(t, err)
	assert.Equal(t, challenge, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM")

	plain, err := pkce.ComputeChallenge(verifier, pkce.MethodPlain)
	assert.NilError(t, err)
	assert.Equal(t, plain, verifier)

	_, err = pkce.ComputeChallenge(verifier, "S512")
	assert.ErrorIs(t, err, pkce.ErrUnsupportedMethod)
}

func TestVerifyChallengeRoundTrip(t *testing.T) {
	for _, length := range []int{43, 64, 128} {
		verifier, err := pkce.GenerateVerifier(length)
		assert.NilError(t, err)

		challenge, err := pkce.ComputeChallenge(verifier, pkce.MethodS256)
		assert.NilError(t, err)

		assert.Assert(t, pkce.VerifyChallenge(verifier, challenge, pkce.MethodS256))
	}
}

func TestVerifyChallengeMutation(t *testing.T) {
	verifier, err := pkce.GenerateVerifier(43)
	assert.NilError(t, err)

	challenge, err := pkce.ComputeChallenge(verifier, pkce.MethodS256)
	assert.NilError(t, err)

	// Every single-character mutation of the verifier must fail
	for i := 0; i < len(verifier); i++ {
		mutated := []byte(verifier)
		if mutated[i] == 'a' {
			mutated[i] = 'b'
		} else {
			mutated[i] = 'a'
		}
		assert.Assert(t, !pkce.VerifyChallenge(string(mutated), challenge, pkce.MethodS256))
	}
}

func TestVerifyChallengeLengthMismatch(t *testing.T) {
	verifier, err := pkce.GenerateVerifier(43)
	assert.NilError(t, err)

	assert.Assert(t, !pkce.VerifyChallenge(verifier, "tooshort", pkce.MethodS256))
	assert.Assert(t, !pkce.VerifyChallenge(verifier, "", pkce.MethodS256))
	assert.Assert(t, !pkce.VerifyChallenge(verifier, verifier+"x", pkce.MethodPlain))
}

func TestVerifyChallengePlain(t *testing.T) {
	verifier, err := pkce.GenerateVerifier(64)
	assert.NilError(t, err)

	assert.Assert(t, pkce.VerifyChallenge(verifier, verifier, pkce.MethodPlain))
	assert.Assert(t, !pkce.VerifyChallenge(verifier, strings.ToUpper(verifier), pkce.MethodPlain) || verifier == strings.ToUpper(verifier))
}
