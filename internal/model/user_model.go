package model

// User is a directory entry with its MFA enrollment state. MfaSecret and
// MfaBackupCodes are set iff MfaEnabled is true; disabling clears them in
// the same statement that flips the flag.
type User struct {
	ID             string  `gorm:"column:id;primaryKey"`
	Username       string  `gorm:"column:username;unique;not null"`
	PasswordHash   string  `gorm:"column:password_hash;not null"`
	Roles          string  `gorm:"column:roles"` // JSON array
	MfaEnabled     bool    `gorm:"column:mfa_enabled"`
	MfaSecret      string  `gorm:"column:mfa_secret"`
	MfaBackupCodes string  `gorm:"column:mfa_backup_codes"` // JSON array of SHA-256 hex hashes
	MfaEnabledAt   *int64  `gorm:"column:mfa_enabled_at"`
	CreatedAt      int64   `gorm:"column:created_at"`
	UpdatedAt      int64   `gorm:"column:updated_at"`
}

func (User) TableName() string {
	return "users"
}
