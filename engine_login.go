package authcore

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/otp"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
)

// ValidateCredentials checks identifier and pass against the stored hash of
// exactly one active user. An identifier containing "@" is an email address,
// anything else a username. Unknown users and users without a password cost
// the same hash work as a wrong password and fail with ErrInvalidCredentials.
func (e *Engine) ValidateCredentials(ctx context.Context, identifier, pass string) (*Identity, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	identifier = strings.TrimSpace(identifier)
	ip := ClientIPFromContext(ctx)

	if err := e.checkLoginThrottle(ctx, identifier, ip); err != nil {
		return nil, err
	}

	var (
		user *store.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = e.store.FindActiveUserByEmail(ctx, normalizeEmail(identifier))
	} else {
		user, err = e.store.FindActiveUserByUsername(ctx, identifier)
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, e.internal("validate credentials", ErrUnauthorized, err)
	}

	if user == nil || user.PasswordHash == "" {
		_, _ = e.hasher.Verify(pass, e.dummyHash)
		return nil, e.credentialFailure(ctx, identifier, ip, "")
	}

	ok, err := e.hasher.Verify(pass, user.PasswordHash)
	if err != nil {
		e.logger.Warn("authcore: stored password hash unusable",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}
	if !ok {
		return nil, e.credentialFailure(ctx, identifier, ip, user.ID)
	}

	if e.limiter != nil {
		if err := e.limiter.ResetLogin(ctx, identifier); err != nil {
			e.logger.Warn("authcore: login throttle reset failed", zap.Error(err))
		}
	}
	e.upgradeHash(ctx, user, pass)

	return &Identity{UserID: user.ID, Username: user.Username, user: user}, nil
}

func (e *Engine) checkLoginThrottle(ctx context.Context, identifier, ip string) error {
	if e.limiter == nil {
		return nil
	}
	err := e.limiter.CheckLogin(ctx, identifier, ip)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		e.metricInc(MetricLoginRateLimited)
		e.emitRateLimit(ctx, "login", "")
		failures, ferr := e.limiter.LoginFailures(ctx, identifier)
		if ferr != nil {
			e.logger.Warn("authcore: login failure count unavailable", zap.Error(ferr))
		}
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", "", ErrLoginRateLimited, func() map[string]string {
			return map[string]string{"failures": strconv.Itoa(failures)}
		})
		return ErrLoginRateLimited
	default:
		// Fails open while Redis is unavailable.
		e.logger.Warn("authcore: login throttle unavailable", zap.Error(err))
		return nil
	}
}

// upgradeHash re-hashes pass under the current cost parameters when the stored
// hash was made with weaker ones. Failures leave the old hash in place.
func (e *Engine) upgradeHash(ctx context.Context, user *store.User, pass string) {
	stale, err := e.hasher.NeedsRehash(user.PasswordHash)
	if err != nil || !stale {
		return
	}
	hash, err := e.hasher.Hash(pass)
	if err != nil {
		e.logger.Warn("authcore: password rehash failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	if err := e.store.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		e.logger.Warn("authcore: upgraded password hash not stored", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	user.PasswordHash = hash
}

func (e *Engine) credentialFailure(ctx context.Context, identifier, ip, userID string) error {
	if e.limiter != nil {
		if err := e.limiter.RecordLoginFailure(ctx, identifier, ip); err != nil {
			e.logger.Warn("authcore: login failure not recorded", zap.Error(err))
		}
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", "", ErrInvalidCredentials, nil)
	return ErrInvalidCredentials
}

// LoginWithPassword is ValidateCredentials followed by Login.
func (e *Engine) LoginWithPassword(ctx context.Context, identifier, pass string, req LoginRequest) (*LoginResult, error) {
	id, err := e.ValidateCredentials(ctx, identifier, pass)
	if err != nil {
		return nil, err
	}
	return e.Login(ctx, id, req)
}

// Login turns a validated identity into credentials for req.Platform.
//
// A user with neither a verified email nor a verified phone gets a
// verification code (email preferred) and a result with
// VerificationRequired set and no tokens. Otherwise Login opens a session
// when the platform uses one, signs an access token, issues a refresh token
// and records the login.
func (e *Engine) Login(ctx context.Context, id *Identity, req LoginRequest) (*LoginResult, error) {
	start := time.Now()
	defer e.observe(MetricLoginLatency, start)

	if id == nil || id.user == nil {
		return nil, ErrInvalidCredentials
	}
	if !req.Platform.Valid() {
		return nil, ErrUnsupportedPlatform
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	user, err := e.store.GetUser(ctx, id.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, e.internal("login: load user", ErrUnauthorized, err, zap.String("user_id", id.UserID))
	}
	if !user.Active {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", req.Platform.String(), ErrAccountInactive, nil)
		return nil, ErrAccountInactive
	}

	if !user.Verified() {
		return e.requireVerification(ctx, user, req)
	}

	policy := e.policies.Resolve(req.Platform)
	deviceID := firstNonEmpty(req.DeviceID, DeviceIDFromContext(ctx))

	var sessionID, sessionToken string
	if policy.UsesSession {
		issued, err := e.sessions.Create(ctx, session.Params{
			UserID:    user.ID,
			Platform:  req.Platform,
			DeviceID:  deviceID,
			IP:        firstNonEmpty(req.IP, ClientIPFromContext(ctx)),
			UserAgent: firstNonEmpty(req.UserAgent, UserAgentFromContext(ctx)),
		})
		if err != nil {
			return nil, e.internal("login: create session", ErrUnauthorized, err, zap.String("user_id", user.ID))
		}
		sessionID, sessionToken = issued.Session.ID, issued.Token
		e.metricInc(MetricSessionCreated)
	}

	abandon := func() {
		if sessionID == "" {
			return
		}
		if err := e.sessions.Invalidate(ctx, sessionID); err != nil {
			e.logger.Warn("authcore: abandoned session not invalidated",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}

	roles, err := e.store.UserRoleNames(ctx, user.ID)
	if err != nil {
		abandon()
		return nil, e.internal("login: load roles", ErrUnauthorized, err, zap.String("user_id", user.ID))
	}

	access, expiresAt, err := e.tokens.CreateAccess(jwt.Subject{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     deref(user.Email),
		Roles:     roles,
		Platform:  req.Platform.String(),
		SessionID: sessionID,
	}, policy.AccessTokenTTL)
	if err != nil {
		abandon()
		return nil, e.internal("login: sign access token", ErrUnauthorized, err, zap.String("user_id", user.ID))
	}

	rt, err := e.refreshes.Create(ctx, refresh.Params{
		UserID:    user.ID,
		Platform:  req.Platform,
		DeviceID:  deviceID,
		SessionID: sessionID,
	})
	if err != nil {
		abandon()
		return nil, e.internal("login: issue refresh token", ErrUnauthorized, err, zap.String("user_id", user.ID))
	}

	now := e.now().UTC()
	if err := e.store.RecordLogin(ctx, user.ID, req.Platform.String(), now); err != nil {
		e.logger.Warn("authcore: last login not recorded",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	} else {
		user.LastLoginAt = &now
		user.CurrentPlatform = req.Platform.String()
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, sessionID, req.Platform.String(), nil, nil)

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: rt.Token,
		ExpiresIn:    policy.AccessTokenTTL,
		ExpiresAt:    expiresAt,
		SessionID:    sessionID,
		SessionToken: sessionToken,
		User:         userInfo(user, roles),
	}, nil
}

func (e *Engine) requireVerification(ctx context.Context, user *store.User, req LoginRequest) (*LoginResult, error) {
	purpose := otp.PurposeEmailVerification
	channel := notify.ChannelEmail
	switch {
	case user.HasEmail():
	case user.HasPhone():
		purpose = otp.PurposePhoneVerification
		channel = notify.ChannelSMS
	default:
		return nil, ErrNoContactChannel
	}

	// A throttled re-issue keeps the previous code live.
	if _, err := e.issueCode(ctx, user.ID, purpose); err != nil && !errors.Is(err, ErrOTPRateLimited) {
		return nil, err
	}

	e.metricInc(MetricLoginVerificationRequired)
	e.emitAudit(ctx, auditEventVerificationRequired, false, user.ID, "", req.Platform.String(), nil, func() map[string]string {
		return map[string]string{"channel": string(channel)}
	})

	return &LoginResult{
		User:                 userInfo(user, nil),
		VerificationRequired: true,
		VerificationChannel:  channel,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
