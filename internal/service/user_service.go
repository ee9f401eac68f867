package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/keygate-dev/keygate/internal/config"
	"github.com/keygate-dev/keygate/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type UserServiceConfig struct {
	Database *gorm.DB
}

// UserService is the user-and-role directory the core consumes: lookup by
// id or username, password verification and the MFA enrollment fields on
// the user record.
type UserService struct {
	config UserServiceConfig
}

func NewUserService(config UserServiceConfig) *UserService {
	return &UserService{
		config: config,
	}
}

func (users *UserService) GetByID(id string) (*model.User, error) {
	var user model.User
	err := users.config.Database.Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return &user, nil
}

func (users *UserService) GetByUsername(username string) (*model.User, error) {
	var user model.User
	err := users.config.Database.Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return &user, nil
}

func (users *UserService) CheckPassword(user *model.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

// Roles decodes the JSON role list on a user row.
func (users *UserService) Roles(user *model.User) []string {
	if user.Roles == "" {
		return []string{}
	}

	var roles []string
	if err := json.Unmarshal([]byte(user.Roles), &roles); err != nil {
		log.Error().Err(err).Str("username", user.Username).Msg("Failed to unmarshal user roles")
		return []string{}
	}
	return roles
}

// BackupCodeHashes decodes the stored hash list. An empty column means no
// codes remain.
func (users *UserService) BackupCodeHashes(user *model.User) []string {
	if user.MfaBackupCodes == "" {
		return []string{}
	}

	var hashes []string
	if err := json.Unmarshal([]byte(user.MfaBackupCodes), &hashes); err != nil {
		log.Error().Err(err).Str("username", user.Username).Msg("Failed to unmarshal backup code hashes")
		return []string{}
	}
	return hashes
}

// EnableMFA flips the enrollment flag, stores the secret and the hashed
// backup codes in a single statement so a failure cannot leave a partially
// enrolled user.
func (users *UserService) EnableMFA(userID string, secret string, backupCodeHashes []string) error {
	hashesJSON, err := json.Marshal(backupCodeHashes)
	if err != nil {
		return fmt.Errorf("failed to marshal backup code hashes: %w", err)
	}

	now := time.Now().Unix()

	res := users.config.Database.Model(&model.User{}).
		Where("id = ? AND mfa_enabled = ?", userID, false).
		Updates(map[string]any{
			"mfa_enabled":      true,
			"mfa_secret":       secret,
			"mfa_backup_codes": string(hashesJSON),
			"mfa_enabled_at":   now,
			"updated_at":       now,
		})

	if res.Error != nil {
		return fmt.Errorf("failed to enable mfa: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrMfaAlreadyEnabled
	}

	return nil
}

// DisableMFA clears every enrollment field atomically with the flag.
func (users *UserService) DisableMFA(userID string) error {
	res := users.config.Database.Model(&model.User{}).
		Where("id = ? AND mfa_enabled = ?", userID, true).
		Updates(map[string]any{
			"mfa_enabled":      false,
			"mfa_secret":       "",
			"mfa_backup_codes": "",
			"mfa_enabled_at":   nil,
			"updated_at":       time.Now().Unix(),
		})

	if res.Error != nil {
		return fmt.Errorf("failed to disable mfa: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrMfaNotEnabled
	}

	return nil
}

// ReplaceBackupCodes swaps the whole hash list.
func (users *UserService) ReplaceBackupCodes(userID string, backupCodeHashes []string) error {
	hashesJSON, err := json.Marshal(backupCodeHashes)
	if err != nil {
		return fmt.Errorf("failed to marshal backup code hashes: %w", err)
	}

	res := users.config.Database.Model(&model.User{}).
		Where("id = ? AND mfa_enabled = ?", userID, true).
		Updates(map[string]any{
			"mfa_backup_codes": string(hashesJSON),
			"updated_at":       time.Now().Unix(),
		})

	if res.Error != nil {
		return fmt.Errorf("failed to replace backup codes: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrMfaNotEnabled
	}

	return nil
}

// ConsumeBackupCodeHash removes one hash from the user's list. The update
// is guarded by the previous column value, so two logins racing on the same
// code cannot both spend it: the loser's guard no longer matches and the
// compare-and-swap reports a conflict. Returns the remaining count.
func (users *UserService) ConsumeBackupCodeHash(userID string, matchedHash string) (int, error) {
	user, err := users.GetByID(userID)
	if err != nil {
		return 0, err
	}

	hashes := users.BackupCodeHashes(user)
	remaining := make([]string, 0, len(hashes))
	found := false
	for _, h := range hashes {
		if h == matchedHash && !found {
			found = true
			continue
		}
		remaining = append(remaining, h)
	}

	if !found {
		return 0, ErrInvalidCode
	}

	remainingJSON, err := json.Marshal(remaining)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal backup code hashes: %w", err)
	}

	res := users.config.Database.Model(&model.User{}).
		Where("id = ? AND mfa_backup_codes = ?", userID, user.MfaBackupCodes).
		Updates(map[string]any{
			"mfa_backup_codes": string(remainingJSON),
			"updated_at":       time.Now().Unix(),
		})

	if res.Error != nil {
		return 0, fmt.Errorf("failed to consume backup code: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return 0, ErrBackupCodeConflict
	}

	return len(remaining), nil
}

// SeedFromConfig upserts users declared in configuration. Passwords arrive
// pre-hashed (username:bcrypt-hash), matching the operator CLI output.
func (users *UserService) SeedFromConfig(configUsers []config.User) error {
	for _, configUser := range configUsers {
		rolesJSON, err := json.Marshal(configUser.Roles)
		if err != nil {
			return fmt.Errorf("failed to marshal roles for %s: %w", configUser.Username, err)
		}

		now := time.Now().Unix()

		var existing model.User
		err = users.config.Database.Where("username = ?", configUser.Username).First(&existing).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			user := model.User{
				ID:           uuid.New().String(),
				Username:     configUser.Username,
				PasswordHash: configUser.PasswordHash,
				Roles:        string(rolesJSON),
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := users.config.Database.Create(&user).Error; err != nil {
				return fmt.Errorf("failed to create user %s: %w", configUser.Username, err)
			}
			log.Info().Str("username", configUser.Username).Msg("Created user from config")
			continue
		}

		if err != nil {
			return fmt.Errorf("failed to check existing user %s: %w", configUser.Username, err)
		}

		updates := map[string]any{
			"password_hash": configUser.PasswordHash,
			"roles":         string(rolesJSON),
			"updated_at":    now,
		}
		if err := users.config.Database.Model(&model.User{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update user %s: %w", configUser.Username, err)
		}
		log.Info().Str("username", configUser.Username).Msg("Updated user from config")
	}

	return nil
}
