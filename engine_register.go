package authcore

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/MrEthical07/authcore/otp"
	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
)

const maxUsernameLength = 64

// Register creates an active, unverified account, grants it the default
// role and sends a verification code to each supplied contact. The two codes
// are generated independently; a failure of one is logged and does not
// affect the other or the registration.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = normalizeEmail(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)

	if err := e.validateRegistration(req); err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", req.Platform.String(), err, nil)
		return nil, err
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	if err := e.registrationConflict(ctx, req); err != nil {
		return nil, e.registerFailure(ctx, req, err)
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, e.internal("register: hash password", ErrInvalidRegistration, err)
	}

	user := &store.User{
		Username:        req.Username,
		Email:           optional(req.Email),
		Phone:           optional(req.Phone),
		PasswordHash:    hash,
		Active:          true,
		CurrentPlatform: req.Platform.String(),
		CreatedAt:       e.now().UTC(),
	}
	if err := e.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost a race with a concurrent registration.
			if cerr := e.registrationConflict(ctx, req); cerr != nil {
				return nil, e.registerFailure(ctx, req, cerr)
			}
			return nil, e.registerFailure(ctx, req, ErrInvalidRegistration)
		}
		return nil, e.internal("register: create user", ErrInvalidRegistration, err)
	}

	roles := e.assignDefaultRole(ctx, user.ID)

	result := &RegisterResult{User: userInfo(user, roles)}
	if user.HasEmail() {
		if _, err := e.issueCode(ctx, user.ID, otp.PurposeEmailVerification); err != nil {
			e.logger.Warn("authcore: email verification code not issued",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		} else {
			result.CodesSent = append(result.CodesSent, otp.PurposeEmailVerification)
		}
	}
	if user.HasPhone() {
		if _, err := e.issueCode(ctx, user.ID, otp.PurposePhoneVerification); err != nil {
			e.logger.Warn("authcore: phone verification code not issued",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		} else {
			result.CodesSent = append(result.CodesSent, otp.PurposePhoneVerification)
		}
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, user.ID, "", req.Platform.String(), nil, nil)
	return result, nil
}

func (e *Engine) validateRegistration(req RegisterRequest) error {
	switch {
	case req.Email == "" && req.Phone == "":
		return ErrContactRequired
	case req.Username == "", utf8.RuneCountInString(req.Username) > maxUsernameLength,
		strings.Contains(req.Username, "@"):
		return ErrInvalidRegistration
	case req.Email != "" && !strings.Contains(req.Email, "@"):
		return ErrInvalidRegistration
	case !req.Platform.Valid():
		return ErrUnsupportedPlatform
	case utf8.RuneCountInString(req.Password) < e.config.Security.MinPasswordLength:
		return ErrPasswordPolicy
	}
	return nil
}

// registrationConflict reports the first of email, phone and username that
// already belongs to a user, active or not.
func (e *Engine) registrationConflict(ctx context.Context, req RegisterRequest) error {
	checks := []struct {
		value string
		find  func(context.Context, string) (*store.User, error)
		taken error
	}{
		{req.Email, e.store.FindUserByEmail, ErrEmailTaken},
		{req.Phone, e.store.FindUserByPhone, ErrPhoneTaken},
		{req.Username, e.store.FindUserByUsername, ErrUsernameTaken},
	}
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		_, err := c.find(ctx, c.value)
		switch {
		case err == nil:
			return c.taken
		case errors.Is(err, store.ErrNotFound):
		default:
			return e.internal("register: collision check", ErrInvalidRegistration, err)
		}
	}
	return nil
}

func (e *Engine) registerFailure(ctx context.Context, req RegisterRequest, err error) error {
	if errors.Is(err, ErrEmailTaken) || errors.Is(err, ErrPhoneTaken) || errors.Is(err, ErrUsernameTaken) {
		e.metricInc(MetricRegisterDuplicate)
	}
	e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", req.Platform.String(), err, nil)
	return err
}

// assignDefaultRole grants Config.DefaultRole. The account already exists at
// this point, so failures are logged rather than returned.
func (e *Engine) assignDefaultRole(ctx context.Context, userID string) []string {
	role, err := e.store.EnsureRole(ctx, e.config.DefaultRole)
	if err == nil {
		err = e.perms.AssignRoleToUser(ctx, userID, role.ID)
	}
	if err != nil {
		e.logger.Error("authcore: default role not assigned",
			zap.String("user_id", userID),
			zap.String("role", e.config.DefaultRole),
			zap.Error(err),
		)
		return nil
	}
	return []string{role.Name}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
