package authcore

import (
	"time"

	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/otp"
	"github.com/MrEthical07/authcore/platform"
	"github.com/MrEthical07/authcore/store"
)

// Identity is a user whose credentials were checked by
// [Engine.ValidateCredentials]. It can only be produced by the Engine, so
// holding one proves the password step happened.
type Identity struct {
	UserID   string
	Username string

	user *store.User
}

// UserInfo is the public view of a user returned by login and registration.
type UserInfo struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	EmailVerified bool       `json:"email_verified"`
	PhoneVerified bool       `json:"phone_verified"`
	Roles         []string   `json:"roles,omitempty"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	Platform      string     `json:"platform,omitempty"`
}

// LoginRequest carries the optional client metadata of a login. Empty
// fields fall back to the values attached with WithClientIP, WithUserAgent
// and WithDeviceID.
type LoginRequest struct {
	Platform  platform.Platform
	DeviceID  string
	IP        string
	UserAgent string
}

// LoginResult is either a full credential set or, when VerificationRequired
// is true, a marker that a verification code was sent on
// VerificationChannel and no tokens were issued.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	ExpiresAt    time.Time
	SessionID    string
	// SessionToken is the raw session token on session-using platforms. It
	// is not stored and is accepted by [Engine.ValidateSessionToken].
	SessionToken string
	User         UserInfo

	VerificationRequired bool
	VerificationChannel  notify.Channel
}

// RegisterRequest describes a new account. At least one of Email and Phone
// is required.
type RegisterRequest struct {
	Username string
	Email    string
	Phone    string
	Password string
	Platform platform.Platform
}

// RegisterResult reports the created user and which verification codes were
// dispatched. A channel missing from CodesSent either was not supplied or
// failed to generate; the user can request another with ResendOTP.
type RegisterResult struct {
	User      UserInfo
	CodesSent []otp.Purpose
}

// RefreshResult carries a new access token. RefreshToken is only set when
// the presented token was rotated; otherwise the caller keeps using it.
type RefreshResult struct {
	AccessToken  string
	ExpiresIn    time.Duration
	ExpiresAt    time.Time
	RefreshToken string
	Rotated      bool
}

// LogoutRequest names what to revoke. Every field is optional.
type LogoutRequest struct {
	UserID       string
	SessionID    string
	RefreshToken string
	Platform     *platform.Platform
}

// CodeDelivery describes where a verification or reset code was sent. The code
// itself is never returned to callers.
type CodeDelivery struct {
	UserID    string
	Channel   notify.Channel
	ExpiresAt time.Time
}

// PasswordResetInit is returned by [Engine.InitiatePasswordReset].
type PasswordResetInit struct {
	UserID string
	Method notify.Channel
}

// AuthResult is the verified content of an access token.
type AuthResult struct {
	UserID    string
	Username  string
	Email     string
	Roles     []string
	Platform  platform.Platform
	SessionID string
	ExpiresAt time.Time
}

// CleanupReport counts rows touched by [Engine.Cleanup].
type CleanupReport struct {
	SessionsInvalidated  int64
	RefreshTokensDeleted int64
	OTPsDeleted          int64
}

func userInfo(u *store.User, roles []string) UserInfo {
	info := UserInfo{
		ID:            u.ID,
		Username:      u.Username,
		EmailVerified: u.EmailVerified,
		PhoneVerified: u.PhoneVerified,
		Roles:         roles,
		LastLoginAt:   u.LastLoginAt,
		Platform:      u.CurrentPlatform,
	}
	if u.HasEmail() {
		info.Email = *u.Email
	}
	if u.HasPhone() {
		info.Phone = *u.Phone
	}
	return info
}
