package service

import "errors"

// OAuth2 protocol failures. Controllers map these onto the wire vocabulary;
// the messages are deliberately generic so callers cannot probe for code or
// client existence.
var (
	ErrUnknownClient           = errors.New("client not found")
	ErrDisabledClient          = errors.New("client is disabled")
	ErrInvalidClientSecret     = errors.New("invalid client credentials")
	ErrInvalidRedirectURI      = errors.New("redirect uri is not registered for this client")
	ErrInvalidScope            = errors.New("requested scope exceeds the client's allowed scopes")
	ErrUnsupportedResponseType = errors.New("unsupported response type")
	ErrUnsupportedGrantType    = errors.New("unsupported grant type")
	ErrUnauthorizedClient      = errors.New("client is not allowed to use this grant type")
	ErrMissingCodeChallenge    = errors.New("client requires pkce but no code challenge was provided")
	ErrInvalidChallengeMethod  = errors.New("unsupported code challenge method")
	ErrInvalidGrant            = errors.New("invalid, expired or already used authorization code")
	ErrPKCEFailed              = errors.New("code verifier does not match the stored challenge")
)

// MFA lifecycle failures.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrMfaAlreadyEnabled  = errors.New("mfa is already enabled for this user")
	ErrMfaNotEnabled      = errors.New("mfa is not enabled for this user")
	ErrInvalidCode        = errors.New("invalid one-time code")
	ErrBackupCodeConflict = errors.New("backup codes were modified concurrently")
)
