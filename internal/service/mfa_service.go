package service

import (
	"fmt"
	"time"

	"github.com/keygate-dev/keygate/internal/totp"
)

// LowBackupCodeThreshold is the remaining count at or below which callers
// should warn the user to regenerate.
const LowBackupCodeThreshold = 2

type MfaServiceConfig struct {
	Issuer     string
	DriftSteps uint
}

// MfaService orchestrates the TOTP engine against a user's enrollment
// state. Enrollment only becomes active once the user proves possession of
// the secret by completing setup with a valid code.
type MfaService struct {
	config MfaServiceConfig
	users  *UserService
	audit  *AuditService
}

// SetupResponse is returned by InitiateSetup. MFA is not active until
// CompleteSetup succeeds with a code derived from this secret.
type SetupResponse struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

// MfaStatus summarizes a user's enrollment.
type MfaStatus struct {
	Enabled              bool  `json:"enabled"`
	BackupCodesRemaining int   `json:"backup_codes_remaining"`
	EnabledAt            int64 `json:"enabled_at,omitempty"`
}

func NewMfaService(config MfaServiceConfig, users *UserService, audit *AuditService) *MfaService {
	if config.DriftSteps == 0 {
		config.DriftSteps = totp.DefaultDriftSteps
	}
	return &MfaService{
		config: config,
		users:  users,
		audit:  audit,
	}
}

// InitiateSetup generates a candidate secret and enrollment URI.
func (mfa *MfaService) InitiateSetup(userID string) (*SetupResponse, error) {
	user, err := mfa.users.GetByID(userID)
	if err != nil {
		return nil, err
	}

	if user.MfaEnabled {
		return nil, ErrMfaAlreadyEnabled
	}

	secret, err := totp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp secret: %w", err)
	}

	uri, err := totp.KeyURI(secret, mfa.config.Issuer, user.Username)
	if err != nil {
		return nil, err
	}

	mfa.audit.Success(AuditMfaSetupStarted, user.Username, userID, "")

	return &SetupResponse{
		Secret: secret,
		URI:    uri,
	}, nil
}

// CompleteSetup activates MFA once the user proves the authenticator works.
// On success the secret and ten hashed backup codes are stored atomically
// and the plaintext codes are returned exactly once.
func (mfa *MfaService) CompleteSetup(userID string, secret string, code string) ([]string, error) {
	user, err := mfa.users.GetByID(userID)
	if err != nil {
		return nil, err
	}

	if user.MfaEnabled {
		return nil, ErrMfaAlreadyEnabled
	}

	if !totp.Verify(secret, code, time.Now(), mfa.config.DriftSteps) {
		mfa.audit.Failure(AuditMfaSetupFailed, user.Username, userID, "invalid code")
		return nil, ErrInvalidCode
	}

	backupCodes, err := totp.GenerateBackupCodes(totp.DefaultBackupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("failed to generate backup codes: %w", err)
	}

	hashes := make([]string, len(backupCodes))
	for i, backupCode := range backupCodes {
		hashes[i] = totp.HashBackupCode(backupCode)
	}

	if err := mfa.users.EnableMFA(userID, secret, hashes); err != nil {
		return nil, err
	}

	mfa.audit.Success(AuditMfaSetupCompleted, user.Username, userID, "")

	return backupCodes, nil
}

// VerifyLoginCode checks a TOTP code after a successful password check.
func (mfa *MfaService) VerifyLoginCode(userID string, code string) error {
	user, err := mfa.users.GetByID(userID)
	if err != nil {
		return err
	}

	if !user.MfaEnabled {
		return ErrMfaNotEnabled
	}

	if !totp.Verify(user.MfaSecret, code, time.Now(), mfa.config.DriftSteps) {
		mfa.audit.Failure(AuditMfaVerifyFailed, user.Username, userID, "invalid totp code")
		return ErrInvalidCode
	}

	mfa.audit.Success(AuditMfaVerified, user.Username, userID, "totp")
	return nil
}

// VerifyLoginBackupCode spends a single-use recovery code and returns the
// number of codes left so callers can warn the user when few remain.
func (mfa *MfaService) VerifyLoginBackupCode(userID string, code string) (int, error) {
	user, err := mfa.users.GetByID(userID)
	if err != nil {
		return 0, err
	}

	if !user.MfaEnabled {
		return 0, ErrMfaNotEnabled
	}

	matched, ok := totp.VerifyBackupCode(code, mfa.users.BackupCodeHashes(user))
	if !ok {
		mfa.audit.Failure(AuditMfaBackupFailed, user.Username, userID, "invalid backup code")
		return 0, ErrInvalidCode
	}

	remaining, err := mfa.users.ConsumeBackupCodeHash(userID, matched)
	if err != nil {
		mfa.audit.Failure(AuditMfaBackupFailed, user.Username, userID, "backup code already spent")
		return 0, ErrInvalidCode
	}

	mfa.audit.Success(AuditMfaBackupUsed, user.Username, userID, fmt.Sprintf("%d remaining", remaining))
	return remaining, nil
}

// Disable turns MFA off given a valid TOTP or backup code and clears all
// enrollment fields atomically.
func (mfa *MfaService) Disable(userID string, code string) error {
	user, err := mfa.users.GetByID(userID)
	if err != nil {
		return err
	}

	if !user.MfaEnabled {
		return ErrMfaNotEnabled
	}

	valid := totp.Verify(user.MfaSecret, code, time.Now(), mfa.config.DriftSteps)
	if !valid {
		if matched, ok := totp.VerifyBackupCode(code, mfa.users.BackupCodeHashes(user)); ok {
			if _, err := mfa.users.ConsumeBackupCodeHash(userID, matched); err == nil {
				valid = true
			}
		}
	}

	if !valid {
		mfa.audit.Failure(AuditMfaDisableFailed, user.Username, userID, "invalid code")
		return ErrInvalidCode
	}

	if err := mfa.users.DisableMFA(userID); err != nil {
		return err
	}

	mfa.audit.Success(AuditMfaDisabled, user.Username, userID, "")
	return nil
}

// RegenerateBackupCodes replaces the whole hash list. A current TOTP code
// is required; backup codes cannot mint more backup codes.
func (mfa *MfaService) RegenerateBackupCodes(userID string, code string) ([]string, error) {
	user, err := mfa.users.GetByID(userID)
	if err != nil {
		return nil, err
	}

	if !user.MfaEnabled {
		return nil, ErrMfaNotEnabled
	}

	if !totp.Verify(user.MfaSecret, code, time.Now(), mfa.config.DriftSteps) {
		mfa.audit.Failure(AuditMfaRegenerateFailed, user.Username, userID, "invalid totp code")
		return nil, ErrInvalidCode
	}

	backupCodes, err := totp.GenerateBackupCodes(totp.DefaultBackupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("failed to generate backup codes: %w", err)
	}

	hashes := make([]string, len(backupCodes))
	for i, backupCode := range backupCodes {
		hashes[i] = totp.HashBackupCode(backupCode)
	}

	if err := mfa.users.ReplaceBackupCodes(userID, hashes); err != nil {
		return nil, err
	}

	mfa.audit.Success(AuditMfaCodesRegenerated, user.Username, userID, "")
	return backupCodes, nil
}

// Status reports enrollment state without exposing secrets.
func (mfa *MfaService) Status(userID string) (*MfaStatus, error) {
	user, err := mfa.users.GetByID(userID)
	if err != nil {
		return nil, err
	}

	status := MfaStatus{
		Enabled:              user.MfaEnabled,
		BackupCodesRemaining: len(mfa.users.BackupCodeHashes(user)),
	}

	if user.MfaEnabledAt != nil {
		status.EnabledAt = *user.MfaEnabledAt
	}

	return &status, nil
}
