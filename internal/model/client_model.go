package model

// Client is a registered OAuth2 client and its policy. SecretHash is empty
// for public clients, which are always held to the PKCE requirement.
type Client struct {
	ClientID          string `gorm:"column:client_id;primaryKey"`
	ClientName        string `gorm:"column:client_name"`
	SecretHash        string `gorm:"column:secret_hash"`
	Confidential      bool   `gorm:"column:confidential"`
	RedirectURIs      string `gorm:"column:redirect_uris"`       // JSON array
	AllowedScopes     string `gorm:"column:allowed_scopes"`      // JSON array
	AllowedGrantTypes string `gorm:"column:allowed_grant_types"` // JSON array
	RequirePKCE       bool   `gorm:"column:require_pkce"`
	AccessTokenTTL    int    `gorm:"column:access_token_ttl"`
	RefreshTokenTTL   int    `gorm:"column:refresh_token_ttl"`
	Enabled           bool   `gorm:"column:enabled"`
	CreatedAt         int64  `gorm:"column:created_at"`
	UpdatedAt         int64  `gorm:"column:updated_at"`
}

func (Client) TableName() string {
	return "oauth_clients"
}
