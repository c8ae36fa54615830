package otp

import (
	"time"

	"github.com/MrEthical07/authcore/store"
)

// Purpose identifies what a code proves.
type Purpose string

const (
	PurposeEmailVerification Purpose = "EMAIL_VERIFICATION"
	PurposePhoneVerification Purpose = "PHONE_VERIFICATION"
	PurposePasswordReset     Purpose = "PASSWORD_RESET"
	PurposeTwoFactor         Purpose = "TWO_FACTOR_AUTH"
)

// Policy is the lifetime and attempt budget of codes issued for a purpose.
type Policy struct {
	TTL         time.Duration
	MaxAttempts int
	TemplateID  string
}

var policies = map[Purpose]Policy{
	PurposeEmailVerification: {TTL: 60 * time.Minute, MaxAttempts: 5, TemplateID: "otp.email_verification"},
	PurposePhoneVerification: {TTL: 15 * time.Minute, MaxAttempts: 5, TemplateID: "otp.phone_verification"},
	PurposePasswordReset:     {TTL: 30 * time.Minute, MaxAttempts: 5, TemplateID: "otp.password_reset"},
	PurposeTwoFactor:         {TTL: 10 * time.Minute, MaxAttempts: 3, TemplateID: "otp.two_factor"},
}

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	_, ok := policies[p]
	return ok
}

// PolicyFor returns the policy of p. Unknown purposes return false.
func PolicyFor(p Purpose) (Policy, bool) {
	pol, ok := policies[p]
	return pol, ok
}

func (p Purpose) verification() store.Verification {
	switch p {
	case PurposeEmailVerification:
		return store.VerifyEmail
	case PurposePhoneVerification:
		return store.VerifyPhone
	default:
		return store.VerifyNone
	}
}
