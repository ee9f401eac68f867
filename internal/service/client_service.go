package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/keygate-dev/keygate/internal/config"
	"github.com/keygate-dev/keygate/internal/model"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"

	DefaultAccessTokenTTL  = 3600
	DefaultRefreshTokenTTL = 2592000
)

var DefaultScopes = []string{"openid", "profile", "email"}

type ClientServiceConfig struct {
	Database *gorm.DB
}

// ClientService is the registry of OAuth2 clients and their policy. Rows
// are created at registration and only the enabled/policy fields change
// afterwards.
type ClientService struct {
	config ClientServiceConfig
	codes  *CodeService
}

func NewClientService(config ClientServiceConfig, codes *CodeService) *ClientService {
	return &ClientService{
		config: config,
		codes:  codes,
	}
}

func (clients *ClientService) GetClient(clientID string) (*model.Client, error) {
	var client model.Client
	err := clients.config.Database.Where("client_id = ?", clientID).First(&client).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownClient
		}
		return nil, fmt.Errorf("failed to look up client: %w", err)
	}
	return &client, nil
}

// VerifySecret compares the presented secret against the stored bcrypt
// hash. Public clients carry no secret and never pass this check.
func (clients *ClientService) VerifySecret(client *model.Client, secret string) bool {
	if client.SecretHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(secret)) == nil
}

func (clients *ClientService) ValidateRedirectURI(client *model.Client, redirectURI string) bool {
	var redirectURIs []string
	if err := json.Unmarshal([]byte(client.RedirectURIs), &redirectURIs); err != nil {
		log.Error().Err(err).Str("client_id", client.ClientID).Msg("Failed to unmarshal redirect URIs")
		return false
	}

	for _, uri := range redirectURIs {
		if uri == redirectURI {
			return true
		}
	}
	return false
}

func (clients *ClientService) ValidateGrantType(client *model.Client, grantType string) bool {
	var grantTypes []string
	if err := json.Unmarshal([]byte(client.AllowedGrantTypes), &grantTypes); err != nil {
		log.Error().Err(err).Str("client_id", client.ClientID).Msg("Failed to unmarshal grant types")
		return false
	}

	for _, gt := range grantTypes {
		if gt == grantType {
			return true
		}
	}
	return false
}

// ValidateScope checks that every requested scope is allowed for the
// client and returns the granted list.
func (clients *ClientService) ValidateScope(client *model.Client, requestedScopes []string) ([]string, error) {
	var allowedScopes []string
	if err := json.Unmarshal([]byte(client.AllowedScopes), &allowedScopes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scopes: %w", err)
	}

	allowed := map[string]bool{}
	for _, scope := range allowedScopes {
		allowed[scope] = true
	}

	granted := make([]string, 0, len(requestedScopes))
	for _, scope := range requestedScopes {
		if !allowed[scope] {
			return nil, ErrInvalidScope
		}
		granted = append(granted, scope)
	}

	return granted, nil
}

// SetEnabled flips the administrative enabled flag. Disabling a client
// revokes its outstanding authorization codes so nothing references a
// client that can no longer redeem.
func (clients *ClientService) SetEnabled(clientID string, enabled bool) error {
	res := clients.config.Database.Model(&model.Client{}).
		Where("client_id = ?", clientID).
		Updates(map[string]any{
			"enabled":    enabled,
			"updated_at": time.Now().Unix(),
		})

	if res.Error != nil {
		return fmt.Errorf("failed to update client: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrUnknownClient
	}

	if !enabled {
		if err := clients.codes.RevokeForClient(clientID); err != nil {
			return err
		}
	}

	return nil
}

// Delete removes a client after revoking every code that references it.
func (clients *ClientService) Delete(clientID string) error {
	if err := clients.codes.RevokeForClient(clientID); err != nil {
		return err
	}

	res := clients.config.Database.Where("client_id = ?", clientID).Delete(&model.Client{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete client: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrUnknownClient
	}

	return nil
}

// Register creates a client row. The plaintext secret is hashed here and
// never stored; public clients are always required to use PKCE.
func (clients *ClientService) Register(clientID string, clientName string, secret string, redirectURIs []string, scopes []string, grantTypes []string, requirePKCE bool, accessTokenTTL int, refreshTokenTTL int) (*model.Client, error) {
	if len(redirectURIs) == 0 {
		return nil, errors.New("at least one redirect uri is required")
	}

	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	if len(grantTypes) == 0 {
		grantTypes = []string{GrantTypeAuthorizationCode}
	}

	if accessTokenTTL <= 0 {
		accessTokenTTL = DefaultAccessTokenTTL
	}

	if refreshTokenTTL <= 0 {
		refreshTokenTTL = DefaultRefreshTokenTTL
	}

	confidential := secret != ""

	// Public clients cannot hold a secret, so the code is their only
	// credential and PKCE is not optional for them.
	if !confidential {
		requirePKCE = true
	}

	secretHash := ""
	if confidential {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash client secret: %w", err)
		}
		secretHash = string(hash)
	}

	redirectURIsJSON, err := json.Marshal(redirectURIs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal redirect URIs: %w", err)
	}

	scopesJSON, err := json.Marshal(scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scopes: %w", err)
	}

	grantTypesJSON, err := json.Marshal(grantTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal grant types: %w", err)
	}

	now := time.Now().Unix()

	client := model.Client{
		ClientID:          clientID,
		ClientName:        clientName,
		SecretHash:        secretHash,
		Confidential:      confidential,
		RedirectURIs:      string(redirectURIsJSON),
		AllowedScopes:     string(scopesJSON),
		AllowedGrantTypes: string(grantTypesJSON),
		RequirePKCE:       requirePKCE,
		AccessTokenTTL:    accessTokenTTL,
		RefreshTokenTTL:   refreshTokenTTL,
		Enabled:           true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := clients.config.Database.Create(&client).Error; err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &client, nil
}

// SyncFromConfig upserts clients declared in configuration. Existing rows
// keep their creation time; policy fields follow the config.
func (clients *ClientService) SyncFromConfig(configClients map[string]config.ClientConfig, getSecret func(conf string, file string) string) error {
	for clientID, clientConfig := range configClients {
		secret := getSecret(clientConfig.ClientSecret, clientConfig.ClientSecretFile)

		if secret == "" && !clientConfig.Public {
			log.Warn().Str("client_id", clientID).Msg("Confidential client has no secret, skipping")
			continue
		}

		if len(clientConfig.RedirectURIs) == 0 {
			log.Warn().Str("client_id", clientID).Msg("No redirect URIs configured for client, skipping")
			continue
		}

		clientName := clientConfig.ClientName
		if clientName == "" {
			clientName = clientID
		}

		requirePKCE := true
		if clientConfig.RequirePKCE != nil {
			requirePKCE = *clientConfig.RequirePKCE
		}

		var existing model.Client
		err := clients.config.Database.Where("client_id = ?", clientID).First(&existing).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			if _, err := clients.Register(clientID, clientName, secret, clientConfig.RedirectURIs, clientConfig.Scopes, clientConfig.GrantTypes, requirePKCE, clientConfig.AccessTokenTTL, clientConfig.RefreshTokenTTL); err != nil {
				return fmt.Errorf("failed to register client %s: %w", clientID, err)
			}
			log.Info().Str("client_id", clientID).Str("client_name", clientName).Msg("Created OAuth client from config")
			continue
		}

		if err != nil {
			return fmt.Errorf("failed to check existing client %s: %w", clientID, err)
		}

		if err := clients.updateFromConfig(&existing, clientName, secret, clientConfig, requirePKCE); err != nil {
			return fmt.Errorf("failed to update client %s: %w", clientID, err)
		}
		log.Info().Str("client_id", clientID).Str("client_name", clientName).Msg("Updated OAuth client from config")
	}

	return nil
}

func (clients *ClientService) updateFromConfig(existing *model.Client, clientName string, secret string, clientConfig config.ClientConfig, requirePKCE bool) error {
	scopes := clientConfig.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	grantTypes := clientConfig.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{GrantTypeAuthorizationCode}
	}

	redirectURIsJSON, err := json.Marshal(clientConfig.RedirectURIs)
	if err != nil {
		return err
	}

	scopesJSON, err := json.Marshal(scopes)
	if err != nil {
		return err
	}

	grantTypesJSON, err := json.Marshal(grantTypes)
	if err != nil {
		return err
	}

	confidential := secret != ""
	if !confidential {
		requirePKCE = true
	}

	secretHash := ""
	if confidential {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		secretHash = string(hash)
	}

	accessTokenTTL := clientConfig.AccessTokenTTL
	if accessTokenTTL <= 0 {
		accessTokenTTL = DefaultAccessTokenTTL
	}

	refreshTokenTTL := clientConfig.RefreshTokenTTL
	if refreshTokenTTL <= 0 {
		refreshTokenTTL = DefaultRefreshTokenTTL
	}

	return clients.config.Database.Model(&model.Client{}).
		Where("client_id = ?", existing.ClientID).
		Updates(map[string]any{
			"client_name":         clientName,
			"secret_hash":         secretHash,
			"confidential":        confidential,
			"redirect_uris":       string(redirectURIsJSON),
			"allowed_scopes":      string(scopesJSON),
			"allowed_grant_types": string(grantTypesJSON),
			"require_pkce":        requirePKCE,
			"access_token_ttl":    accessTokenTTL,
			"refresh_token_ttl":   refreshTokenTTL,
			"updated_at":          time.Now().Unix(),
		}).Error
}
