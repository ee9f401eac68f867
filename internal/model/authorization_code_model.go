package model

// AuthorizationCode is a short-lived single-use credential minted by the
// authorize endpoint. A row transitions unused to used exactly once; the
// guard lives in the UPDATE statement that redeems it.
type AuthorizationCode struct {
	Code                string `gorm:"column:code;primaryKey"`
	ClientID            string `gorm:"column:client_id;not null"`
	UserID              string `gorm:"column:user_id;not null"`
	Username            string `gorm:"column:username;not null"`
	RedirectURI         string `gorm:"column:redirect_uri;not null"`
	Scope               string `gorm:"column:scope"`
	CodeChallenge       string `gorm:"column:code_challenge"`
	CodeChallengeMethod string `gorm:"column:code_challenge_method"`
	Nonce               string `gorm:"column:nonce"`
	Used                bool   `gorm:"column:used;default:false"`
	UsedAt              *int64 `gorm:"column:used_at"`
	IssuedAt            int64  `gorm:"column:issued_at;not null"`
	ExpiresAt           int64  `gorm:"column:expires_at;not null"`
}

func (AuthorizationCode) TableName() string {
	return "authorization_codes"
}
