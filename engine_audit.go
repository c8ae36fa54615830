package authcore

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventVerificationRequired = "login_verification_required"
	auditEventRegisterSuccess      = "register_success"
	auditEventRegisterFailure      = "register_failure"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventLogoutSession        = "logout_session"
	auditEventLogoutAll            = "logout_all"
	auditEventOTPVerified          = "otp_verified"
	auditEventOTPFailure           = "otp_failure"
	auditEventOTPResent            = "otp_resent"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
	auditEventAccountDeactivated   = "account_deactivated"
	auditEventRoleAssigned         = "role_assigned"
	auditEventRoleRemoved          = "role_removed"
	auditEventPermissionGranted    = "permission_granted"
	auditEventPermissionRevoked    = "permission_revoked"
	auditEventAuthorizationDenied  = "authorization_denied"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
	auditEventOTPRateLimited       = "otp_issuance_rate_limited"
)

// AuditErrorCode is the stable, non-leaking error label stored on audit events.
type AuditErrorCode string

const (
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountInactive    AuditErrorCode = "account_inactive"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrSessionInvalid     AuditErrorCode = "session_invalid"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrNoContact          AuditErrorCode = "no_contact_channel"
	auditErrCodeInvalid        AuditErrorCode = "code_invalid"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrBadRequest         AuditErrorCode = "bad_request"
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	platformName string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		Platform:  platformName,
		IP:        ClientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope, userID string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, userID, "", "", nil, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountInactive):
		return auditErrAccountInactive
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrOTPRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrRefreshInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionInvalid):
		return auditErrSessionInvalid
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrAccountNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrEmailTaken),
		errors.Is(err, ErrPhoneTaken),
		errors.Is(err, ErrUsernameTaken):
		return auditErrDuplicate
	case errors.Is(err, ErrContactRequired),
		errors.Is(err, ErrNoContactChannel):
		return auditErrNoContact
	case errors.Is(err, ErrOTPInvalid),
		errors.Is(err, ErrOTPNoActiveCode):
		return auditErrCodeInvalid
	case errors.Is(err, ErrOTPAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrBadRequest):
		return auditErrBadRequest
	case errors.Is(err, ErrNotFound):
		return auditErrNotFound
	default:
		return auditErrInternal
	}
}
