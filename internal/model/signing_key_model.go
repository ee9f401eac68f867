package model

// SigningKey holds the PEM-encoded RSA private key used for RS256 token
// signatures. Persisting it keeps the JWKS stable across restarts.
type SigningKey struct {
	ID         int    `gorm:"column:id;primaryKey;autoIncrement"`
	PrivateKey string `gorm:"column:private_key;not null"`
	CreatedAt  int64  `gorm:"column:created_at"`
}

func (SigningKey) TableName() string {
	return "signing_keys"
}
