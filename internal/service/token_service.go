package service

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/keygate-dev/keygate/internal/config"
	"github.com/keygate-dev/keygate/internal/model"
	"github.com/keygate-dev/keygate/internal/pkce"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	DefaultSessionExpiry = 86400
	DefaultPendingExpiry = 300

	refreshTokenBytes = 32
	rsaKeyBits        = 2048
)

var (
	SupportedScopes           = []string{"openid", "profile", "email"}
	SupportedResponseTypes    = []string{"code"}
	SupportedGrantTypes       = []string{GrantTypeAuthorizationCode}
	SupportedChallengeMethods = []string{pkce.MethodS256, pkce.MethodPlain}
)

type TokenServiceConfig struct {
	Issuer        string
	SessionSecret string
	SessionExpiry int
	PendingExpiry int
	Database      *gorm.DB
}

// TokenService owns the signing key, mints access/refresh/ID tokens and
// session credentials, and runs the authorization code exchange.
type TokenService struct {
	config     TokenServiceConfig
	clients    *ClientService
	codes      *CodeService
	audit      *AuditService
	privateKey *rsa.PrivateKey
	keyID      string
}

// TokenRequest carries the parsed parameters of a token endpoint call.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
}

// TokenResponse is the success body of the token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token,omitempty"`
}

func NewTokenService(config TokenServiceConfig, clients *ClientService, codes *CodeService, audit *AuditService) *TokenService {
	if config.SessionExpiry <= 0 {
		config.SessionExpiry = DefaultSessionExpiry
	}
	if config.PendingExpiry <= 0 {
		config.PendingExpiry = DefaultPendingExpiry
	}
	return &TokenService{
		config:  config,
		clients: clients,
		codes:   codes,
		audit:   audit,
	}
}

// Init loads the RSA signing key from the store, generating and persisting
// one on first start so the JWKS stays stable across restarts.
func (tokens *TokenService) Init() error {
	var row model.SigningKey
	err := tokens.config.Database.Order("id").First(&row).Error

	if err == nil {
		block, _ := pem.Decode([]byte(row.PrivateKey))
		if block == nil {
			return errors.New("stored signing key is not valid PEM")
		}
		privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return fmt.Errorf("failed to parse stored signing key: %w", err)
		}
		tokens.privateKey = privateKey
		tokens.keyID = keyFingerprint(&privateKey.PublicKey)
		return nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load signing key: %w", err)
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return fmt.Errorf("failed to generate signing key: %w", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})

	row = model.SigningKey{
		PrivateKey: string(keyPEM),
		CreatedAt:  time.Now().Unix(),
	}

	if err := tokens.config.Database.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to persist signing key: %w", err)
	}

	tokens.privateKey = privateKey
	tokens.keyID = keyFingerprint(&privateKey.PublicKey)

	log.Info().Str("kid", tokens.keyID).Msg("Generated new RSA signing key")
	return nil
}

func keyFingerprint(publicKey *rsa.PublicKey) string {
	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "default"
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:8])
}

func (tokens *TokenService) GetIssuer() string {
	return tokens.config.Issuer
}

// Exchange redeems an authorization code for tokens. The steps run in a
// fixed order; any miss after redemption maps to the same invalid_grant so
// callers cannot distinguish expired from reused from never-existed codes.
func (tokens *TokenService) Exchange(req TokenRequest, now time.Time) (*TokenResponse, error) {
	if req.GrantType != GrantTypeAuthorizationCode {
		return nil, ErrUnsupportedGrantType
	}

	authCode, err := tokens.codes.Redeem(req.Code, now)
	if err != nil {
		if errors.Is(err, ErrInvalidGrant) {
			tokens.audit.Failure(AuditCodeRedeemFailed, req.ClientID, "", "code missing, expired or already used")
		}
		return nil, err
	}

	if authCode.ClientID != req.ClientID || authCode.RedirectURI != req.RedirectURI {
		tokens.audit.Failure(AuditCodeRedeemFailed, req.ClientID, authCode.UserID, "client or redirect uri mismatch")
		return nil, ErrInvalidGrant
	}

	client, err := tokens.clients.GetClient(req.ClientID)
	if err != nil {
		return nil, err
	}

	if !client.Enabled {
		return nil, ErrDisabledClient
	}

	if client.Confidential && !tokens.clients.VerifySecret(client, req.ClientSecret) {
		return nil, ErrInvalidClientSecret
	}

	if !tokens.clients.ValidateGrantType(client, req.GrantType) {
		return nil, ErrUnauthorizedClient
	}

	// The controller collapses PKCE failures into the same invalid_grant
	// answer as redemption misses; the distinct sentinel only drives the
	// audit trail and tests.
	if authCode.CodeChallenge != "" {
		if req.CodeVerifier == "" {
			tokens.audit.Failure(AuditPKCEFailed, req.ClientID, authCode.UserID, "code verifier missing")
			return nil, ErrPKCEFailed
		}
		if err := pkce.ValidateVerifier(req.CodeVerifier); err != nil {
			tokens.audit.Failure(AuditPKCEFailed, req.ClientID, authCode.UserID, "malformed code verifier")
			return nil, ErrPKCEFailed
		}
		if !pkce.VerifyChallenge(req.CodeVerifier, authCode.CodeChallenge, authCode.CodeChallengeMethod) {
			tokens.audit.Failure(AuditPKCEFailed, req.ClientID, authCode.UserID, "challenge mismatch")
			return nil, ErrPKCEFailed
		}
	}

	tokens.audit.Success(AuditCodeRedeemed, req.ClientID, authCode.UserID, "")

	accessToken, err := tokens.MintAccessToken(authCode.UserID, authCode.Username, client, authCode.Scope, now)
	if err != nil {
		return nil, err
	}

	refreshToken, err := tokens.NewRefreshToken()
	if err != nil {
		return nil, err
	}

	response := TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    client.AccessTokenTTL,
		RefreshToken: refreshToken,
		Scope:        authCode.Scope,
	}

	if hasScope(authCode.Scope, "openid") {
		idToken, err := tokens.MintIDToken(authCode.UserID, authCode.Username, client, authCode.Nonce, now)
		if err != nil {
			return nil, err
		}
		response.IDToken = idToken
	}

	tokens.audit.Success(AuditTokenIssued, req.ClientID, authCode.UserID, authCode.Scope)

	return &response, nil
}

func (tokens *TokenService) MintAccessToken(userID string, username string, client *model.Client, scope string, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":      userID,
		"iss":      tokens.config.Issuer,
		"aud":      client.ClientID,
		"iat":      now.Unix(),
		"exp":      now.Add(time.Duration(client.AccessTokenTTL) * time.Second).Unix(),
		"scope":    scope,
		"username": username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = tokens.keyID

	accessToken, err := token.SignedString(tokens.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return accessToken, nil
}

func (tokens *TokenService) MintIDToken(userID string, username string, client *model.Client, nonce string, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":                userID,
		"iss":                tokens.config.Issuer,
		"aud":                client.ClientID,
		"iat":                now.Unix(),
		"exp":                now.Add(time.Duration(client.AccessTokenTTL) * time.Second).Unix(),
		"auth_time":          now.Unix(),
		"preferred_username": username,
	}

	if nonce != "" {
		claims["nonce"] = nonce
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = tokens.keyID

	idToken, err := token.SignedString(tokens.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign id token: %w", err)
	}

	return idToken, nil
}

// NewRefreshToken returns an opaque random token. The refresh_token grant
// itself is a documented extension point and is rejected at the endpoint.
func (tokens *TokenService) NewRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ValidateAccessToken verifies signature, issuer and expiry and returns the
// caller identity carried by the token.
func (tokens *TokenService) ValidateAccessToken(accessToken string) (*config.UserContext, string, error) {
	token, err := jwt.Parse(accessToken, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &tokens.privateKey.PublicKey, nil
	}, jwt.WithIssuer(tokens.config.Issuer), jwt.WithExpirationRequired())

	if err != nil {
		return nil, "", fmt.Errorf("failed to parse access token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, "", errors.New("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, "", errors.New("missing sub claim")
	}

	username, _ := claims["username"].(string)
	scope, _ := claims["scope"].(string)

	return &config.UserContext{
		UserID:     sub,
		Username:   username,
		IsLoggedIn: true,
	}, scope, nil
}

// MintSessionToken issues the signed session credential for the login path.
// A pending credential carries mfa_pending=true, a short expiry, and is
// only honored by the MFA verification endpoints.
func (tokens *TokenService) MintSessionToken(userID string, username string, roles []string, mfaPending bool, now time.Time) (string, int, error) {
	expiry := tokens.config.SessionExpiry
	if mfaPending {
		expiry = tokens.config.PendingExpiry
	}

	claims := jwt.MapClaims{
		"sub":         userID,
		"iss":         tokens.config.Issuer,
		"iat":         now.Unix(),
		"exp":         now.Add(time.Duration(expiry) * time.Second).Unix(),
		"username":    username,
		"roles":       roles,
		"mfa_pending": mfaPending,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	sessionToken, err := token.SignedString([]byte(tokens.config.SessionSecret))
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign session token: %w", err)
	}

	return sessionToken, expiry, nil
}

// ParseSessionToken validates a session or pending credential.
func (tokens *TokenService) ParseSessionToken(sessionToken string) (*config.UserContext, error) {
	token, err := jwt.Parse(sessionToken, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tokens.config.SessionSecret), nil
	}, jwt.WithIssuer(tokens.config.Issuer), jwt.WithExpirationRequired())

	if err != nil {
		return nil, fmt.Errorf("failed to parse session token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	username, _ := claims["username"].(string)
	mfaPending, _ := claims["mfa_pending"].(bool)

	if sub == "" {
		return nil, errors.New("missing sub claim")
	}

	roles := []string{}
	if rolesClaim, ok := claims["roles"].([]any); ok {
		for _, r := range rolesClaim {
			if role, ok := r.(string); ok {
				roles = append(roles, role)
			}
		}
	}

	return &config.UserContext{
		UserID:     sub,
		Username:   username,
		Roles:      roles,
		IsLoggedIn: true,
		MfaPending: mfaPending,
	}, nil
}

// JWKS returns the public key set served at /.well-known/jwks.json.
func (tokens *TokenService) JWKS() (jwk.Set, error) {
	key, err := jwk.FromRaw(&tokens.privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build jwk: %w", err)
	}

	if err := key.Set(jwk.KeyIDKey, tokens.keyID); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		return nil, err
	}

	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, fmt.Errorf("failed to build jwk set: %w", err)
	}

	return set, nil
}

func hasScope(scope string, want string) bool {
	for _, s := range strings.Fields(scope) {
		if s == want {
			return true
		}
	}
	return false
}
