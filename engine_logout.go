package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
)

// Logout ends what req names: the session when SessionID is set and the
// refresh token when RefreshToken is set. Credentials belonging to a user
// other than req.UserID are left untouched. Logout never returns an error;
// the result reports whether every requested revocation succeeded.
func (e *Engine) Logout(ctx context.Context, req LogoutRequest) bool {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	ok := true
	if req.SessionID != "" {
		if !e.logoutSession(ctx, req.UserID, req.SessionID) {
			ok = false
		}
	}
	if req.RefreshToken != "" {
		if !e.logoutRefreshToken(ctx, req.UserID, req.RefreshToken) {
			ok = false
		}
	}

	platformName := ""
	if req.Platform != nil {
		platformName = req.Platform.String()
	}
	if ok {
		e.metricInc(MetricLogout)
	}
	e.emitAudit(ctx, auditEventLogoutSession, ok, req.UserID, req.SessionID, platformName, nil, nil)
	return ok
}

func (e *Engine) logoutSession(ctx context.Context, userID, sessionID string) bool {
	sess, err := e.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return true
	}
	if err != nil {
		e.logger.Warn("authcore: logout session lookup failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return false
	}
	if userID != "" && sess.UserID != userID {
		return false
	}
	if err := e.sessions.Invalidate(ctx, sessionID); err != nil {
		e.logger.Warn("authcore: logout session invalidation failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return false
	}
	e.metricInc(MetricSessionInvalidated)
	return true
}

func (e *Engine) logoutRefreshToken(ctx context.Context, userID, token string) bool {
	if userID != "" {
		rec, err := e.refreshes.Validate(ctx, token)
		if err != nil {
			// Unknown, revoked and expired tokens are already logged out.
			return true
		}
		if rec.UserID != userID {
			return false
		}
	}
	if err := e.refreshes.Revoke(ctx, token); err != nil {
		e.logger.Warn("authcore: logout refresh revocation failed", zap.Error(err))
		return false
	}
	return true
}

// LogoutAll revokes every refresh token and invalidates every session of
// userID.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	if err := e.revokeEverything(ctx, "logout all", userID); err != nil {
		return err
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", "", nil, nil)
	return nil
}

// revokeEverything forces userID to authenticate again on every device.
func (e *Engine) revokeEverything(ctx context.Context, op, userID string) error {
	if _, err := e.refreshes.RevokeAll(ctx, userID); err != nil {
		return e.internal(op+": revoke refresh tokens", ErrUnauthorized, err, zap.String("user_id", userID))
	}
	n, err := e.sessions.InvalidateAll(ctx, userID)
	if err != nil {
		return e.internal(op+": invalidate sessions", ErrUnauthorized, err, zap.String("user_id", userID))
	}
	if n > 0 {
		e.metrics.Add(MetricSessionInvalidated, uint64(n))
	}
	return nil
}
