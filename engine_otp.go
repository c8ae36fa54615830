package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/otp"
	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
)

// VerifyOTP redeems a verification or two-factor code. A successful email or
// phone verification code marks that channel verified. Password reset codes
// are only redeemed by [Engine.ResetPassword].
func (e *Engine) VerifyOTP(ctx context.Context, userID, code string, purpose otp.Purpose) error {
	if !purpose.Valid() || purpose == otp.PurposePasswordReset {
		return ErrOTPUnknownPurpose
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	err := e.otps.Verify(ctx, userID, code, purpose)
	if err != nil {
		err = e.mapOTPError("verify otp", err)
		e.otpFailure(ctx, userID, purpose, err)
		return err
	}

	e.metricInc(MetricOTPVerified)
	e.emitAudit(ctx, auditEventOTPVerified, true, userID, "", "", nil, purposeMetadata(purpose))
	return nil
}

// ResendOTP issues a fresh code for purpose, invalidating the previous one.
// For two-factor codes preferred selects the channel; verification purposes
// always use their own channel. The code itself is only sent to the user.
func (e *Engine) ResendOTP(ctx context.Context, userID string, purpose otp.Purpose, preferred notify.Channel) (*CodeDelivery, error) {
	if !purpose.Valid() || purpose == otp.PurposePasswordReset {
		return nil, ErrOTPUnknownPurpose
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	user, err := e.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, e.internal("resend otp: load user", ErrBadRequest, err, zap.String("user_id", userID))
	}
	if !user.Active {
		return nil, ErrAccountInactive
	}
	if (purpose == otp.PurposeEmailVerification && user.EmailVerified) ||
		(purpose == otp.PurposePhoneVerification && user.PhoneVerified) {
		return nil, ErrAlreadyVerified
	}

	issued, err := e.issueCode(ctx, user.ID, purpose, otp.WithChannel(preferred))
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventOTPResent, true, user.ID, "", "", nil, func() map[string]string {
		return map[string]string{"purpose": string(purpose), "channel": string(issued.Channel)}
	})
	return &CodeDelivery{UserID: user.ID, Channel: issued.Channel, ExpiresAt: issued.ExpiresAt}, nil
}

// issueCode applies the issuance throttle and generates a code.
func (e *Engine) issueCode(ctx context.Context, userID string, purpose otp.Purpose, opts ...otp.GenerateOption) (*otp.Issued, error) {
	if e.limiter != nil {
		err := e.limiter.AllowOTPIssuance(ctx, userID, string(purpose))
		switch {
		case err == nil:
		case errors.Is(err, rate.ErrRateLimited):
			e.emitRateLimit(ctx, "otp_issuance", userID)
			e.emitAudit(ctx, auditEventOTPRateLimited, false, userID, "", "", ErrOTPRateLimited, purposeMetadata(purpose))
			return nil, ErrOTPRateLimited
		default:
			e.logger.Warn("authcore: code issuance throttle unavailable",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}

	issued, err := e.otps.Generate(ctx, userID, purpose, opts...)
	if err != nil {
		return nil, e.mapOTPError("generate otp", err, zap.String("user_id", userID), zap.String("purpose", string(purpose)))
	}
	e.metricInc(MetricOTPIssued)
	return issued, nil
}

func (e *Engine) otpFailure(ctx context.Context, userID string, purpose otp.Purpose, err error) {
	if errors.Is(err, ErrOTPAttemptsExceeded) {
		e.metricInc(MetricOTPAttemptsExceeded)
	} else {
		e.metricInc(MetricOTPFailure)
	}
	e.emitAudit(ctx, auditEventOTPFailure, false, userID, "", "", err, purposeMetadata(purpose))
}

func (e *Engine) mapOTPError(op string, err error, fields ...zap.Field) error {
	switch {
	case errors.Is(err, otp.ErrUnknownPurpose):
		return ErrOTPUnknownPurpose
	case errors.Is(err, otp.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, otp.ErrChannelMissing):
		return ErrNoContactChannel
	case errors.Is(err, otp.ErrNoActiveCode):
		return ErrOTPNoActiveCode
	case errors.Is(err, otp.ErrAttemptsExceeded):
		return ErrOTPAttemptsExceeded
	case errors.Is(err, otp.ErrInvalidCode):
		return ErrOTPInvalid
	default:
		return e.internal(op, ErrBadRequest, err, fields...)
	}
}

func purposeMetadata(purpose otp.Purpose) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"purpose": string(purpose)}
	}
}
