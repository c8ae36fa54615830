package authcore

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the Engine wraps exactly one of them,
// so callers map responses with errors.Is(err, ErrBadRequest) and friends.
var (
	// ErrUnauthorized covers bad credentials and invalid, expired or revoked
	// sessions and refresh tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBadRequest covers duplicate registration fields, missing contact
	// channels, invalid OTPs and unsupported platforms.
	ErrBadRequest = errors.New("bad request")
	// ErrForbidden is returned when an authenticated user lacks a permission.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned when a referenced user, role or permission is absent.
	ErrNotFound = errors.New("not found")
)

var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrAccountInactive    = fmt.Errorf("%w: account inactive", ErrUnauthorized)
	ErrSessionInvalid     = fmt.Errorf("%w: session invalid", ErrUnauthorized)
	ErrTokenInvalid       = fmt.Errorf("%w: access token invalid", ErrUnauthorized)
	ErrRefreshInvalid     = fmt.Errorf("%w: refresh token invalid", ErrUnauthorized)
	ErrLoginRateLimited   = fmt.Errorf("%w: login rate limited", ErrUnauthorized)

	ErrContactRequired     = fmt.Errorf("%w: email or phone required", ErrBadRequest)
	ErrEmailTaken          = fmt.Errorf("%w: email already registered", ErrBadRequest)
	ErrPhoneTaken          = fmt.Errorf("%w: phone already registered", ErrBadRequest)
	ErrUsernameTaken       = fmt.Errorf("%w: username already registered", ErrBadRequest)
	ErrInvalidRegistration = fmt.Errorf("%w: invalid registration", ErrBadRequest)
	ErrUnsupportedPlatform = fmt.Errorf("%w: unsupported platform", ErrBadRequest)
	ErrNoContactChannel    = fmt.Errorf("%w: no contact channel", ErrBadRequest)
	ErrAccountNotFound     = fmt.Errorf("%w: account not found", ErrBadRequest)
	ErrAlreadyVerified     = fmt.Errorf("%w: channel already verified", ErrBadRequest)
	ErrOTPNoActiveCode     = fmt.Errorf("%w: no active code", ErrBadRequest)
	ErrOTPAttemptsExceeded = fmt.Errorf("%w: code attempts exceeded", ErrBadRequest)
	ErrOTPInvalid          = fmt.Errorf("%w: invalid code", ErrBadRequest)
	ErrOTPUnknownPurpose   = fmt.Errorf("%w: unknown code purpose", ErrBadRequest)
	ErrOTPRateLimited      = fmt.Errorf("%w: code issuance rate limited", ErrBadRequest)
	ErrInvalidPermission   = fmt.Errorf("%w: invalid permission", ErrBadRequest)
	ErrPasswordPolicy      = fmt.Errorf("%w: password does not meet policy", ErrBadRequest)

	ErrPermissionDenied = fmt.Errorf("%w: permission denied", ErrForbidden)

	ErrUserNotFound       = fmt.Errorf("%w: user", ErrNotFound)
	ErrRoleNotFound       = fmt.Errorf("%w: role", ErrNotFound)
	ErrPermissionNotFound = fmt.Errorf("%w: permission", ErrNotFound)
)
