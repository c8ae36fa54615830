package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/platform"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
)

// RefreshToken exchanges a live refresh token for a new access token on
// platform p. When less than a quarter of the token's lifetime remains it is
// rotated: the successor is returned and the presented token stops working.
// Tokens issued to another platform are rejected.
func (e *Engine) RefreshToken(ctx context.Context, token string, p platform.Platform) (*RefreshResult, error) {
	if !p.Valid() {
		return nil, ErrUnsupportedPlatform
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	rec, err := e.refreshes.Validate(ctx, token)
	if err != nil {
		if errors.Is(err, refresh.ErrInvalid) {
			return nil, e.refreshFailure(ctx, "", p, ErrRefreshInvalid)
		}
		return nil, e.internal("refresh: validate", ErrUnauthorized, err)
	}
	if rec.Platform != p.String() {
		return nil, e.refreshFailure(ctx, rec.UserID, p, ErrRefreshInvalid)
	}

	user, err := e.store.GetUser(ctx, rec.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, e.refreshFailure(ctx, rec.UserID, p, ErrRefreshInvalid)
	}
	if err != nil {
		return nil, e.internal("refresh: load user", ErrUnauthorized, err, zap.String("user_id", rec.UserID))
	}
	if !user.Active {
		return nil, e.refreshFailure(ctx, user.ID, p, ErrAccountInactive)
	}

	sessionID := deref(rec.SessionID)
	if sessionID != "" {
		ok, err := e.sessions.Validate(ctx, sessionID)
		if err != nil {
			return nil, e.internal("refresh: validate session", ErrUnauthorized, err, zap.String("session_id", sessionID))
		}
		if !ok {
			return nil, e.refreshFailure(ctx, user.ID, p, ErrSessionInvalid)
		}
		if err := e.sessions.Touch(ctx, sessionID); err != nil {
			e.logger.Warn("authcore: session touch failed",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}

	roles, err := e.store.UserRoleNames(ctx, user.ID)
	if err != nil {
		return nil, e.internal("refresh: load roles", ErrUnauthorized, err, zap.String("user_id", user.ID))
	}

	policy := e.policies.Resolve(p)
	access, expiresAt, err := e.tokens.CreateAccess(jwt.Subject{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     deref(user.Email),
		Roles:     roles,
		Platform:  p.String(),
		SessionID: sessionID,
	}, policy.AccessTokenTTL)
	if err != nil {
		return nil, e.internal("refresh: sign access token", ErrUnauthorized, err, zap.String("user_id", user.ID))
	}

	next, rotated, err := e.refreshes.Rotate(ctx, rec)
	if err != nil {
		if errors.Is(err, refresh.ErrInvalid) {
			// Another request rotated this token first.
			return nil, e.refreshFailure(ctx, user.ID, p, ErrRefreshInvalid)
		}
		return nil, e.internal("refresh: rotate", ErrUnauthorized, err, zap.String("user_id", user.ID))
	}

	result := &RefreshResult{
		AccessToken: access,
		ExpiresIn:   policy.AccessTokenTTL,
		ExpiresAt:   expiresAt,
		Rotated:     rotated,
	}
	if rotated {
		result.RefreshToken = next.Token
		e.metricInc(MetricRefreshRotated)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.ID, sessionID, p.String(), nil, func() map[string]string {
		if rotated {
			return map[string]string{"rotated": "true"}
		}
		return nil
	})
	return result, nil
}

func (e *Engine) refreshFailure(ctx context.Context, userID string, p platform.Platform, err error) error {
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, "", p.String(), err, nil)
	return err
}
