package config

// Version information, set at build time

var Version = "development"
var CommitHash = "development"
var BuildTimestamp = "0000-00-00T00:00:00Z"

// Session cookie name

var SessionCookieName = "keygate-session"

// Main app config

type Config struct {
	Port              int                     `mapstructure:"port" validate:"required"`
	Address           string                  `mapstructure:"address" validate:"required,ip4_addr"`
	AppURL            string                  `mapstructure:"app-url" validate:"required,url"`
	Issuer            string                  `mapstructure:"issuer"`
	DatabasePath      string                  `mapstructure:"database-path" validate:"required"`
	Users             string                  `mapstructure:"users"`
	UsersFile         string                  `mapstructure:"users-file"`
	SessionSecret     string                  `mapstructure:"session-secret"`
	SessionSecretFile string                  `mapstructure:"session-secret-file"`
	SecureCookie      bool                    `mapstructure:"secure-cookie"`
	SessionExpiry     int                     `mapstructure:"session-expiry"`
	PendingExpiry     int                     `mapstructure:"pending-expiry"`
	CodeExpiry        int                     `mapstructure:"code-expiry"`
	SweepInterval     int                     `mapstructure:"sweep-interval"`
	LoginTimeout      int                     `mapstructure:"login-timeout"`
	LoginMaxRetries   int                     `mapstructure:"login-max-retries"`
	RateLimit         int                     `mapstructure:"rate-limit"`
	RateLimitBurst    int                     `mapstructure:"rate-limit-burst"`
	TrustedProxies    string                  `mapstructure:"trusted-proxies"`
	LogLevel          string                  `mapstructure:"log-level" validate:"oneof=trace debug info warn error fatal panic"`
	LogJSON           bool                    `mapstructure:"log-json"`
	Clients           map[string]ClientConfig `mapstructure:"clients"`
}

// ClientConfig declares an OAuth2 client in configuration. Clients are
// upserted into the registry at startup.

type ClientConfig struct {
	ClientName       string   `mapstructure:"client-name"`
	ClientSecret     string   `mapstructure:"client-secret"`
	ClientSecretFile string   `mapstructure:"client-secret-file"`
	RedirectURIs     []string `mapstructure:"redirect-uris"`
	Scopes           []string `mapstructure:"scopes"`
	GrantTypes       []string `mapstructure:"grant-types"`
	Public           bool     `mapstructure:"public"`
	RequirePKCE      *bool    `mapstructure:"require-pkce"`
	AccessTokenTTL   int      `mapstructure:"access-token-ttl"`
	RefreshTokenTTL  int      `mapstructure:"refresh-token-ttl"`
}

// User is a local user parsed from config (username:bcrypt-hash), seeded
// into the user directory at startup.

type User struct {
	Username     string
	PasswordHash string
	Roles        []string
}

// UserContext is the resolved identity of the caller for the current
// request, derived from a session or pending credential.

type UserContext struct {
	UserID     string
	Username   string
	Roles      []string
	IsLoggedIn bool
	MfaPending bool
}

// ErrorResponse is the tagged OAuth2/OIDC error body.

type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
}
