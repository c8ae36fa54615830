package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an identity record. Email and Phone are optional but each is unique
// when present.
type User struct {
	ID              string  `gorm:"primaryKey;size:36"`
	Email           *string `gorm:"uniqueIndex;size:320"`
	Phone           *string `gorm:"uniqueIndex;size:32"`
	Username        string  `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash    string  `gorm:"size:255"`
	EmailVerified   bool    `gorm:"not null"`
	PhoneVerified   bool    `gorm:"not null"`
	Active          bool    `gorm:"not null;index"`
	LastLoginAt     *time.Time
	CurrentPlatform string `gorm:"size:16"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Verified reports whether at least one contact channel is verified.
func (u *User) Verified() bool {
	return u.EmailVerified || u.PhoneVerified
}

// HasEmail reports whether the user has a non-empty email address.
func (u *User) HasEmail() bool { return u.Email != nil && *u.Email != "" }

// HasPhone reports whether the user has a non-empty phone number.
func (u *User) HasPhone() bool { return u.Phone != nil && *u.Phone != "" }

// Role is a named permission bundle.
type Role struct {
	ID          string `gorm:"primaryKey;size:36"`
	Name        string `gorm:"uniqueIndex;size:64;not null"`
	Description string `gorm:"size:255"`
	CreatedAt   time.Time
}

func (Role) TableName() string { return "roles" }

func (r *Role) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Permission is a (resource, action) pair. Action "manage" grants every
// action on the resource.
type Permission struct {
	ID        string `gorm:"primaryKey;size:36"`
	Resource  string `gorm:"uniqueIndex:idx_permission_resource_action;size:64;not null"`
	Action    string `gorm:"uniqueIndex:idx_permission_resource_action;size:64;not null"`
	CreatedAt time.Time
}

func (Permission) TableName() string { return "permissions" }

func (p *Permission) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

type RolePermission struct {
	RoleID       string `gorm:"primaryKey;size:36"`
	PermissionID string `gorm:"primaryKey;size:36;index"`
	CreatedAt    time.Time
}

func (RolePermission) TableName() string { return "role_permissions" }

type UserRole struct {
	UserID    string `gorm:"primaryKey;size:36"`
	RoleID    string `gorm:"primaryKey;size:36;index"`
	CreatedAt time.Time
}

func (UserRole) TableName() string { return "user_roles" }

// Session is a server-side login record for session-using platforms.
type Session struct {
	ID           string    `gorm:"primaryKey;size:36"`
	UserID       string    `gorm:"index;size:36;not null"`
	Token        string    `gorm:"uniqueIndex;size:64;not null"`
	Platform     string    `gorm:"size:16;not null"`
	DeviceID     *string   `gorm:"size:128"`
	IP           *string   `gorm:"size:64"`
	UserAgent    *string   `gorm:"size:512"`
	ExpiresAt    time.Time `gorm:"index;not null"`
	Valid        bool      `gorm:"not null"`
	LastActiveAt time.Time
	CreatedAt    time.Time
}

func (Session) TableName() string { return "sessions" }

func (s *Session) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// RefreshToken persists the SHA-256 hex digest of an opaque refresh token.
type RefreshToken struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"index;size:36;not null"`
	TokenHash string    `gorm:"uniqueIndex;size:64;not null"`
	Platform  string    `gorm:"size:16;not null"`
	DeviceID  *string   `gorm:"size:128"`
	SessionID *string   `gorm:"size:36;index"`
	ExpiresAt time.Time `gorm:"index;not null"`
	Revoked   bool      `gorm:"not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}

func (RefreshToken) TableName() string { return "refresh_tokens" }

func (t *RefreshToken) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// OTP is a one-time code record. CodeHash holds the SHA-256 hex of the code.
type OTP struct {
	ID          string    `gorm:"primaryKey;size:36"`
	UserID      string    `gorm:"index:idx_otp_user_purpose;size:36;not null"`
	Purpose     string    `gorm:"index:idx_otp_user_purpose;size:32;not null"`
	CodeHash    string    `gorm:"size:64;not null"`
	ExpiresAt   time.Time `gorm:"not null"`
	Used        bool      `gorm:"not null"`
	Attempts    int       `gorm:"not null"`
	MaxAttempts int       `gorm:"not null"`
	CreatedAt   time.Time `gorm:"index"`
}

func (OTP) TableName() string { return "otps" }

func (o *OTP) BeforeCreate(*gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

func allModels() []any {
	return []any{
		&User{}, &Role{}, &Permission{}, &RolePermission{}, &UserRole{},
		&Session{}, &RefreshToken{}, &OTP{},
	}
}
