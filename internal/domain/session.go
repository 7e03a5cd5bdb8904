package domain

import "time"

// RefreshToken is one authenticated device session. At most one row exists
// per (user, device); rotation deletes the row and inserts a new one.
type RefreshToken struct {
	ID         string    `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID     string    `gorm:"type:uuid;not null;uniqueIndex:idx_refresh_tokens_user_device" json:"user_id"`
	DeviceID   string    `gorm:"type:text;not null;uniqueIndex:idx_refresh_tokens_user_device" json:"device_id"`
	TokenHash  string    `gorm:"type:text;not null;uniqueIndex" json:"-"`
	JTI        string    `gorm:"column:jti;type:text;not null;uniqueIndex" json:"-"`
	UserAgent  string    `gorm:"type:text;not null" json:"user_agent"`
	IPAddress  string    `gorm:"type:text;not null" json:"ip_address"`
	IssuedAt   time.Time `gorm:"not null" json:"issued_at"`
	ExpiresAt  time.Time `gorm:"not null;index" json:"expires_at"`
	LastUsedAt time.Time `gorm:"not null" json:"last_used_at"`
}

func (RefreshToken) TableName() string { return "refresh_tokens" }

func (t *RefreshToken) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }
