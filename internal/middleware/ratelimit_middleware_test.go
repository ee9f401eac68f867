package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/keygate-dev/keygate/internal/middleware"

	"github.com/gin-gonic/gin"
	"gotest.tools/v3/assert"
)

func setupRateLimitedRouter(t *testing.T, rps int, burst int) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	engine := gin.New()

	rateLimit := middleware.NewRateLimitMiddleware(middleware.RateLimitMiddlewareConfig{
		RequestsPerSecond: rps,
		Burst:             burst,
	})
	assert.NilError(t, rateLimit.Init())

	engine.Use(rateLimit.Middleware())
	engine.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	return engine
}

func TestRateLimitBlocksAfterBurst(t *testing.T) {
	engine := setupRateLimitedRouter(t, 1, 3)

	for i := 0; i < 3; i++ {
		recorder := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		engine.ServeHTTP(recorder, req)
		assert.Equal(t, recorder.Code, http.StatusOK)
	}

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	engine.ServeHTTP(recorder, req)
	assert.Equal(t, recorder.Code, http.StatusTooManyRequests)

	// A different address has its own bucket
	recorder = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/ping", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	engine.ServeHTTP(recorder, req)
	assert.Equal(t, recorder.Code, http.StatusOK)
}

func TestRateLimitDisabledWhenZero(t *testing.T) {
	engine := setupRateLimitedRouter(t, 0, 0)

	for i := 0; i < 20; i++ {
		recorder := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		engine.ServeHTTP(recorder, req)
		assert.Equal(t, recorder.Code, http.StatusOK)
	}
}
