package service

import (
	"sync"
	"time"

	"github.com/keygate-dev/keygate/internal/model"

	"github.com/rs/zerolog/log"
)

type LoginAttempt struct {
	FailedAttempts int
	LastAttempt    time.Time
	LockedUntil    time.Time
}

type AuthServiceConfig struct {
	LoginTimeout    int
	LoginMaxRetries int
}

// AuthService handles the password step of the login path and tracks
// failed attempts per identifier.
type AuthService struct {
	config        AuthServiceConfig
	users         *UserService
	audit         *AuditService
	loginAttempts map[string]*LoginAttempt
	loginMutex    sync.RWMutex
}

func NewAuthService(config AuthServiceConfig, users *UserService, audit *AuditService) *AuthService {
	return &AuthService{
		config:        config,
		users:         users,
		audit:         audit,
		loginAttempts: make(map[string]*LoginAttempt),
	}
}

// VerifyCredentials returns the user when the username/password pair is
// valid. A missing user and a wrong password are indistinguishable to the
// caller.
func (auth *AuthService) VerifyCredentials(username string, password string) (*model.User, bool) {
	user, err := auth.users.GetByUsername(username)
	if err != nil {
		auth.audit.Failure(AuditLoginFailed, username, "", "unknown user")
		return nil, false
	}

	if !auth.users.CheckPassword(user, password) {
		auth.audit.Failure(AuditLoginFailed, username, user.ID, "wrong password")
		return nil, false
	}

	auth.audit.Success(AuditLoginSucceeded, username, user.ID, "")
	return user, true
}

func (auth *AuthService) IsAccountLocked(identifier string) (bool, int) {
	auth.loginMutex.RLock()
	defer auth.loginMutex.RUnlock()

	// Lockout disabled when not configured
	if auth.config.LoginMaxRetries <= 0 || auth.config.LoginTimeout <= 0 {
		return false, 0
	}

	attempt, exists := auth.loginAttempts[identifier]
	if !exists {
		return false, 0
	}

	if attempt.LockedUntil.After(time.Now()) {
		remaining := int(time.Until(attempt.LockedUntil).Seconds())
		return true, remaining
	}

	return false, 0
}

func (auth *AuthService) RecordLoginAttempt(identifier string, success bool) {
	if auth.config.LoginMaxRetries <= 0 || auth.config.LoginTimeout <= 0 {
		return
	}

	auth.loginMutex.Lock()
	defer auth.loginMutex.Unlock()

	attempt, exists := auth.loginAttempts[identifier]
	if !exists {
		attempt = &LoginAttempt{}
		auth.loginAttempts[identifier] = attempt
	}

	attempt.LastAttempt = time.Now()

	if success {
		attempt.FailedAttempts = 0
		attempt.LockedUntil = time.Time{}
		return
	}

	attempt.FailedAttempts++

	if attempt.FailedAttempts >= auth.config.LoginMaxRetries {
		attempt.LockedUntil = time.Now().Add(time.Duration(auth.config.LoginTimeout) * time.Second)
		log.Warn().Str("identifier", identifier).Int("timeout", auth.config.LoginTimeout).Msg("Account locked due to too many failed login attempts")
	}
}
