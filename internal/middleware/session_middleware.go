package middleware

import (
	"strings"

	"github.com/keygate-dev/keygate/internal/config"
	"github.com/keygate-dev/keygate/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ContextKey is the gin context key holding the resolved caller identity.
const ContextKey = "context"

type SessionMiddlewareConfig struct {
	CookieName string
}

// SessionMiddleware resolves the caller identity from a Bearer session
// credential or the session cookie and stores it in the request context.
// Requests without a valid credential proceed anonymously; enforcement is
// up to the handlers.
type SessionMiddleware struct {
	config SessionMiddlewareConfig
	tokens *service.TokenService
}

func NewSessionMiddleware(config SessionMiddlewareConfig, tokens *service.TokenService) *SessionMiddleware {
	return &SessionMiddleware{
		config: config,
		tokens: tokens,
	}
}

func (m *SessionMiddleware) Init() error {
	return nil
}

func (m *SessionMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c)
		if token == "" {
			c.Next()
			return
		}

		userContext, err := m.tokens.ParseSessionToken(token)
		if err != nil {
			log.Debug().Err(err).Msg("Invalid session credential")
			c.Next()
			return
		}

		c.Set(ContextKey, *userContext)
		c.Next()
	}
}

func (m *SessionMiddleware) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	cookie, err := c.Cookie(m.config.CookieName)
	if err != nil {
		return ""
	}
	return cookie
}

// GetUserContext returns the caller identity stored by the middleware, or
// an anonymous context when none was resolved.
func GetUserContext(c *gin.Context) config.UserContext {
	value, exists := c.Get(ContextKey)
	if !exists {
		return config.UserContext{}
	}

	userContext, ok := value.(config.UserContext)
	if !ok {
		return config.UserContext{}
	}

	return userContext
}
