package domain

import "time"

type OTPType string

const OTPEmailVerification OTPType = "email_verification"

// OTP is the single pending one-time code slot of a user. The three columns
// are always written together.
type OTP struct {
	Hash   string
	Type   OTPType
	Expiry time.Time
}

type User struct {
	ID           string     `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	FirstName    string     `gorm:"not null" json:"first_name"`
	LastName     string     `gorm:"not null" json:"last_name"`
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"column:password;not null" json:"-"`
	IsVerified   bool       `gorm:"not null;default:false" json:"is_verified"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`
	IsDeleted    bool       `gorm:"not null;default:false" json:"-"`
	DeletedAt    *time.Time `json:"-"`
	OTPHash      *string    `gorm:"column:otp" json:"-"`
	OTPType      *OTPType   `gorm:"column:otp_type;type:text" json:"-"`
	OTPExpiry    *time.Time `gorm:"column:otp_expiry" json:"-"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Sessions []RefreshToken `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Datasets []Dataset      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (User) TableName() string { return "users" }

// PendingOTP returns the stored code slot, or nil when any part of it is unset.
func (u *User) PendingOTP() *OTP {
	if u.OTPHash == nil || u.OTPType == nil || u.OTPExpiry == nil {
		return nil
	}
	return &OTP{Hash: *u.OTPHash, Type: *u.OTPType, Expiry: *u.OTPExpiry}
}

func (u *User) SetOTP(otp OTP) {
	hash, typ, expiry := otp.Hash, otp.Type, otp.Expiry
	u.OTPHash, u.OTPType, u.OTPExpiry = &hash, &typ, &expiry
}

// Suspended reports whether the account may no longer use the record API.
func (u *User) Suspended() bool { return !u.IsActive || u.IsDeleted }
