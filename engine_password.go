package authcore

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/otp"
	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
)

// InitiatePasswordReset sends a reset code to the account named by
// identifier, an email address when it contains "@" and a phone number
// otherwise. The code goes to preferred when the account has that contact
// and to the email address, then the phone, otherwise.
func (e *Engine) InitiatePasswordReset(ctx context.Context, identifier string, preferred notify.Channel) (*PasswordResetInit, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrAccountNotFound
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	var (
		user *store.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = e.store.FindUserByEmail(ctx, normalizeEmail(identifier))
	} else {
		user, err = e.store.FindUserByPhone(ctx, identifier)
	}
	if errors.Is(err, store.ErrNotFound) || (err == nil && !user.Active) {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", "", ErrAccountNotFound, nil)
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, e.internal("password reset: load user", ErrBadRequest, err)
	}

	issued, err := e.issueCode(ctx, user.ID, otp.PurposePasswordReset, otp.WithChannel(preferred))
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, user.ID, "", "", err, nil)
		return nil, err
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.ID, "", "", nil, func() map[string]string {
		return map[string]string{"channel": string(issued.Channel)}
	})
	return &PasswordResetInit{UserID: user.ID, Method: issued.Channel}, nil
}

// ResetPassword redeems a reset code and replaces the password. Every
// refresh token and session of the user is revoked, so all devices must
// authenticate again. A password that fails the length policy is rejected
// before the code is checked and does not consume an attempt.
func (e *Engine) ResetPassword(ctx context.Context, userID, code, newPassword string) error {
	if utf8.RuneCountInString(newPassword) < e.config.Security.MinPasswordLength {
		return e.resetFailure(ctx, userID, ErrPasswordPolicy)
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	user, err := e.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !user.Active) {
		return e.resetFailure(ctx, userID, ErrAccountNotFound)
	}
	if err != nil {
		return e.internal("reset password: load user", ErrBadRequest, err, zap.String("user_id", userID))
	}

	if err := e.otps.Verify(ctx, user.ID, code, otp.PurposePasswordReset); err != nil {
		err = e.mapOTPError("reset password: verify", err, zap.String("user_id", user.ID))
		e.otpFailure(ctx, user.ID, otp.PurposePasswordReset, err)
		return e.resetFailure(ctx, user.ID, err)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return e.internal("reset password: hash", ErrBadRequest, err, zap.String("user_id", user.ID))
	}
	if err := e.store.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return e.internal("reset password: store hash", ErrBadRequest, err, zap.String("user_id", user.ID))
	}

	if err := e.revokeEverything(ctx, "reset password", user.ID); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, user.ID, "", "", nil, nil)
	return nil
}

func (e *Engine) resetFailure(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricPasswordResetFailure)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, false, userID, "", "", err, nil)
	return err
}
