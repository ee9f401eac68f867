package service

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/keygate-dev/keygate/internal/model"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	// DefaultCodeExpiry is the authorization code lifetime in seconds.
	DefaultCodeExpiry = 600

	codeBytes = 32
)

type CodeServiceConfig struct {
	Database      *gorm.DB
	CodeExpiry    int
	SweepInterval int
}

// CodeService is the authorization code store. Redemption is a single
// conditional UPDATE, so two token exchanges racing on the same code can
// never both succeed, even across processes sharing the store.
type CodeService struct {
	config CodeServiceConfig
	stop   chan struct{}
}

func NewCodeService(config CodeServiceConfig) *CodeService {
	if config.CodeExpiry <= 0 {
		config.CodeExpiry = DefaultCodeExpiry
	}
	return &CodeService{
		config: config,
		stop:   make(chan struct{}),
	}
}

// Create mints a fresh high-entropy code bound to the originating request.
func (codes *CodeService) Create(client *model.Client, userID string, username string, redirectURI string, scope string, codeChallenge string, codeChallengeMethod string, nonce string) (*model.AuthorizationCode, error) {
	buf := make([]byte, codeBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}

	now := time.Now()

	authCode := model.AuthorizationCode{
		Code:                base64.RawURLEncoding.EncodeToString(buf),
		ClientID:            client.ClientID,
		UserID:              userID,
		Username:            username,
		RedirectURI:         redirectURI,
		Scope:               scope,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
		Nonce:               nonce,
		Used:                false,
		IssuedAt:            now.Unix(),
		ExpiresAt:           now.Add(time.Duration(codes.config.CodeExpiry) * time.Second).Unix(),
	}

	if err := codes.config.Database.Create(&authCode).Error; err != nil {
		return nil, fmt.Errorf("failed to store authorization code: %w", err)
	}

	return &authCode, nil
}

// Redeem marks the code used and returns it. The used flag is flipped by a
// conditional UPDATE guarded on used = false and expires_at > now; zero
// rows affected means the code is missing, expired or already spent, and
// the caller cannot tell which.
func (codes *CodeService) Redeem(code string, now time.Time) (*model.AuthorizationCode, error) {
	res := codes.config.Database.Model(&model.AuthorizationCode{}).
		Where("code = ? AND used = ? AND expires_at > ?", code, false, now.Unix()).
		Updates(map[string]any{
			"used":    true,
			"used_at": now.Unix(),
		})

	if res.Error != nil {
		return nil, fmt.Errorf("failed to redeem authorization code: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return nil, ErrInvalidGrant
	}

	var authCode model.AuthorizationCode
	if err := codes.config.Database.Where("code = ?", code).First(&authCode).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, fmt.Errorf("failed to load redeemed authorization code: %w", err)
	}

	return &authCode, nil
}

// SweepExpired deletes rows past their expiry. Redemption already rejects
// expired codes; the sweep only bounds storage growth.
func (codes *CodeService) SweepExpired(now time.Time) (int64, error) {
	res := codes.config.Database.
		Where("expires_at <= ?", now.Unix()).
		Delete(&model.AuthorizationCode{})

	if res.Error != nil {
		return 0, fmt.Errorf("failed to sweep expired codes: %w", res.Error)
	}

	return res.RowsAffected, nil
}

// RevokeForClient drops every outstanding code for a client, used when the
// client is disabled or deleted.
func (codes *CodeService) RevokeForClient(clientID string) error {
	res := codes.config.Database.
		Where("client_id = ?", clientID).
		Delete(&model.AuthorizationCode{})

	if res.Error != nil {
		return fmt.Errorf("failed to revoke codes for client: %w", res.Error)
	}

	if res.RowsAffected > 0 {
		log.Info().Str("client_id", clientID).Int64("count", res.RowsAffected).Msg("Revoked authorization codes")
	}

	return nil
}

// StartSweeper runs the periodic expiry sweep until Stop is called.
func (codes *CodeService) StartSweeper() {
	if codes.config.SweepInterval <= 0 {
		return
	}

	interval := time.Duration(codes.config.SweepInterval) * time.Second

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-codes.stop:
				return
			case <-ticker.C:
				swept, err := codes.SweepExpired(time.Now())
				if err != nil {
					log.Error().Err(err).Msg("Failed to sweep expired authorization codes")
					continue
				}
				if swept > 0 {
					log.Debug().Int64("count", swept).Msg("Swept expired authorization codes")
				}
			}
		}
	}()
}

func (codes *CodeService) Stop() {
	close(codes.stop)
}
