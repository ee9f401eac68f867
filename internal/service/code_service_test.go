package service_test

import (
	"sync"
	"testing"
	"time"

	"github.com/keygate-dev/keygate/internal/service"

	"gotest.tools/v3/assert"
)

func setupCodeService(t *testing.T) (*service.CodeService, *service.ClientService) {
	t.Helper()

	database := newDatabase(t)
	codes := service.NewCodeService(service.CodeServiceConfig{
		Database:   database,
		CodeExpiry: 600,
	})
	clients := service.NewClientService(service.ClientServiceConfig{Database: database}, codes)

	return codes, clients
}

func TestCodeRedeemAtMostOnce(t *testing.T) {
	codes, clients := setupCodeService(t)

	client, err := clients.Register("test-client", "Test", "supersecret", []string{"http://localhost:8080/callback"}, nil, nil, false, 0, 0)
	assert.NilError(t, err)

	authCode, err := codes.Create(client, "user-1", "testuser", "http://localhost:8080/callback", "openid", "", "", "")
	assert.NilError(t, err)

	now := time.Now()

	redeemed, err := codes.Redeem(authCode.Code, now)
	assert.NilError(t, err)
	assert.Equal(t, redeemed.UserID, "user-1")
	assert.Equal(t, redeemed.Used, true)

	_, err = codes.Redeem(authCode.Code, now)
	assert.ErrorIs(t, err, service.ErrInvalidGrant)
}

func TestCodeRedeemConcurrent(t *testing.T) {
	codes, clients := setupCodeService(t)

	client, err := clients.Register("test-client", "Test", "supersecret", []string{"http://localhost:8080/callback"}, nil, nil, false, 0, 0)
	assert.NilError(t, err)

	authCode, err := codes.Create(client, "user-1", "testuser", "http://localhost:8080/callback", "openid", "", "", "")
	assert.NilError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := codes.Redeem(authCode.Code, time.Now()); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, successes, 1)
}

func TestCodeRedeemExpiry(t *testing.T) {
	codes, clients := setupCodeService(t)

	client, err := clients.Register("test-client", "Test", "supersecret", []string{"http://localhost:8080/callback"}, nil, nil, false, 0, 0)
	assert.NilError(t, err)

	authCode, err := codes.Create(client, "user-1", "testuser", "http://localhost:8080/callback", "openid", "", "", "")
	assert.NilError(t, err)

	expiresAt := time.Unix(authCode.ExpiresAt, 0)

	// At the expiry instant the code is already dead
	_, err = codes.Redeem(authCode.Code, expiresAt)
	assert.ErrorIs(t, err, service.ErrInvalidGrant)

	authCode, err = codes.Create(client, "user-1", "testuser", "http://localhost:8080/callback", "openid", "", "", "")
	assert.NilError(t, err)

	// One second before expiry it still redeems
	_, err = codes.Redeem(authCode.Code, time.Unix(authCode.ExpiresAt-1, 0))
	assert.NilError(t, err)
}

func TestCodeSweepExpired(t *testing.T) {
	codes, clients := setupCodeService(t)

	client, err := clients.Register("test-client", "Test", "supersecret", []string{"http://localhost:8080/callback"}, nil, nil, false, 0, 0)
	assert.NilError(t, err)

	authCode, err := codes.Create(client, "user-1", "testuser", "http://localhost:8080/callback", "openid", "", "", "")
	assert.NilError(t, err)

	swept, err := codes.SweepExpired(time.Unix(authCode.ExpiresAt, 0))
	assert.NilError(t, err)
	assert.Equal(t, swept, int64(1))

	_, err = codes.Redeem(authCode.Code, time.Now())
	assert.ErrorIs(t, err, service.ErrInvalidGrant)
}

func TestCodeRevokeForClient(t *testing.T) {
	codes, clients := setupCodeService(t)

	client, err := clients.Register("test-client", "Test", "supersecret", []string{"http://localhost:8080/callback"}, nil, nil, false, 0, 0)
	assert.NilError(t, err)

	authCode, err := codes.Create(client, "user-1", "testuser", "http://localhost:8080/callback", "openid", "", "", "")
	assert.NilError(t, err)

	assert.NilError(t, codes.RevokeForClient(client.ClientID))

	_, err = codes.Redeem(authCode.Code, time.Now())
	assert.ErrorIs(t, err, service.ErrInvalidGrant)
}
