package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/platform"
	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
)

// ValidateAccess verifies a signed access token. A token that names a
// session is only accepted while that session is valid, and each accepted
// request bumps the session's last-active time.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*AuthResult, error) {
	start := time.Now()
	defer e.observe(MetricValidateLatency, start)

	claims, err := e.tokens.ParseAccess(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	p, err := platform.Parse(claims.Platform)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	result := &AuthResult{
		UserID:    claims.Subject,
		Username:  claims.Username,
		Email:     claims.Email,
		Roles:     claims.Roles,
		Platform:  p,
		SessionID: claims.SessionID,
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.SessionID == "" {
		return result, nil
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	ok, err := e.sessions.Validate(ctx, claims.SessionID)
	if err != nil {
		return nil, e.internal("validate access: session", ErrUnauthorized, err, zap.String("session_id", claims.SessionID))
	}
	if !ok {
		return nil, ErrSessionInvalid
	}
	if err := e.sessions.Touch(ctx, claims.SessionID); err != nil {
		e.logger.Warn("authcore: session touch failed",
			zap.String("session_id", claims.SessionID),
			zap.Error(err),
		)
	}
	return result, nil
}

// ValidateSessionToken authenticates a raw session token, as handed out in
// [LoginResult.SessionToken], and bumps the session's last-active time. The
// result's ExpiresAt is the session expiry.
func (e *Engine) ValidateSessionToken(ctx context.Context, token string) (*AuthResult, error) {
	start := time.Now()
	defer e.observe(MetricValidateLatency, start)

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	sess, ok, err := e.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, e.internal("validate session token", ErrUnauthorized, err)
	}
	if !ok {
		return nil, ErrSessionInvalid
	}
	p, err := platform.Parse(sess.Platform)
	if err != nil {
		return nil, ErrSessionInvalid
	}

	user, err := e.store.GetUser(ctx, sess.UserID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !user.Active) {
		return nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, e.internal("validate session token: load user", ErrUnauthorized, err, zap.String("session_id", sess.ID))
	}
	roles, err := e.store.UserRoleNames(ctx, user.ID)
	if err != nil {
		return nil, e.internal("validate session token: load roles", ErrUnauthorized, err, zap.String("session_id", sess.ID))
	}

	if err := e.sessions.Touch(ctx, sess.ID); err != nil {
		e.logger.Warn("authcore: session touch failed",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
	}
	return &AuthResult{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     deref(user.Email),
		Roles:     roles,
		Platform:  p,
		SessionID: sess.ID,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// Authorize returns nil when userID holds action on resource and
// ErrPermissionDenied otherwise.
func (e *Engine) Authorize(ctx context.Context, userID, resource, action string) error {
	ok, err := e.UserHasPermission(ctx, userID, resource, action)
	if err != nil {
		return err
	}
	if !ok {
		e.emitAudit(ctx, auditEventAuthorizationDenied, false, userID, "", "", ErrPermissionDenied, func() map[string]string {
			return map[string]string{"permission": permission.K(resource, action).String()}
		})
		return ErrPermissionDenied
	}
	return nil
}

// UserHasPermission reports whether userID holds action on resource, directly
// or through the manage wildcard.
func (e *Engine) UserHasPermission(ctx context.Context, userID, resource, action string) (bool, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	ok, err := e.perms.UserHasPermission(ctx, userID, resource, action)
	return e.permissionResult("user has permission", userID, ok, err)
}

// UserHasAll reports whether userID holds every key. An empty list is true.
func (e *Engine) UserHasAll(ctx context.Context, userID string, keys ...permission.Key) (bool, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	ok, err := e.perms.UserHasAll(ctx, userID, keys...)
	return e.permissionResult("user has all", userID, ok, err)
}

// UserHasAny reports whether userID holds at least one key. An empty list is
// false.
func (e *Engine) UserHasAny(ctx context.Context, userID string, keys ...permission.Key) (bool, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	ok, err := e.perms.UserHasAny(ctx, userID, keys...)
	return e.permissionResult("user has any", userID, ok, err)
}

func (e *Engine) permissionResult(op, userID string, ok bool, err error) (bool, error) {
	switch {
	case err == nil:
	case errors.Is(err, permission.ErrInvalidKey):
		return false, ErrInvalidPermission
	default:
		return false, e.internal(op, ErrForbidden, err, zap.String("user_id", userID))
	}
	if ok {
		e.metricInc(MetricPermissionAllowed)
	} else {
		e.metricInc(MetricPermissionDenied)
	}
	return ok, nil
}

// EnsureRole returns the role called name, creating it when missing.
func (e *Engine) EnsureRole(ctx context.Context, name string) (*store.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrBadRequest
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	role, err := e.store.EnsureRole(ctx, name)
	if err != nil {
		return nil, e.internal("ensure role", ErrBadRequest, err, zap.String("role", name))
	}
	return role, nil
}

// EnsurePermission returns the (resource, action) permission, creating it
// when missing.
func (e *Engine) EnsurePermission(ctx context.Context, resource, action string) (*store.Permission, error) {
	if err := permission.K(resource, action).Validate(); err != nil {
		return nil, ErrInvalidPermission
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	perm, err := e.store.EnsurePermission(ctx, resource, action)
	if err != nil {
		return nil, e.internal("ensure permission", ErrBadRequest, err)
	}
	return perm, nil
}

// GrantPermission gives roleName the (resource, action) permission. Both must
// already exist. Holders of the role see the change on their next check.
func (e *Engine) GrantPermission(ctx context.Context, roleName, resource, action string) error {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	role, perm, err := e.resolveGrant(ctx, roleName, resource, action)
	if err != nil {
		return err
	}
	if err := e.perms.AssignPermissionToRole(ctx, role.ID, perm.ID); err != nil {
		return e.mapAdminError("grant permission", err)
	}
	e.emitAudit(ctx, auditEventPermissionGranted, true, "", "", "", nil, grantMetadata(roleName, resource, action))
	return nil
}

// RevokePermission withdraws the (resource, action) permission from roleName.
func (e *Engine) RevokePermission(ctx context.Context, roleName, resource, action string) error {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	role, perm, err := e.resolveGrant(ctx, roleName, resource, action)
	if err != nil {
		return err
	}
	if err := e.perms.RemovePermissionFromRole(ctx, role.ID, perm.ID); err != nil {
		return e.mapAdminError("revoke permission", err)
	}
	e.emitAudit(ctx, auditEventPermissionRevoked, true, "", "", "", nil, grantMetadata(roleName, resource, action))
	return nil
}

// AssignRole adds roleName to userID.
func (e *Engine) AssignRole(ctx context.Context, userID, roleName string) error {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	role, err := e.findRole(ctx, roleName)
	if err != nil {
		return err
	}
	if err := e.perms.AssignRoleToUser(ctx, userID, role.ID); err != nil {
		if errors.Is(err, permission.ErrNotFound) {
			return ErrUserNotFound
		}
		return e.mapAdminError("assign role", err)
	}
	e.emitAudit(ctx, auditEventRoleAssigned, true, userID, "", "", nil, roleMetadata(roleName))
	return nil
}

// RemoveRole removes roleName from userID.
func (e *Engine) RemoveRole(ctx context.Context, userID, roleName string) error {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	role, err := e.findRole(ctx, roleName)
	if err != nil {
		return err
	}
	if err := e.perms.RemoveRoleFromUser(ctx, userID, role.ID); err != nil {
		return e.mapAdminError("remove role", err)
	}
	e.emitAudit(ctx, auditEventRoleRemoved, true, userID, "", "", nil, roleMetadata(roleName))
	return nil
}

func (e *Engine) findRole(ctx context.Context, name string) (*store.Role, error) {
	role, err := e.store.FindRoleByName(ctx, strings.TrimSpace(name))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, e.internal("find role", ErrBadRequest, err, zap.String("role", name))
	}
	return role, nil
}

func (e *Engine) resolveGrant(ctx context.Context, roleName, resource, action string) (*store.Role, *store.Permission, error) {
	if err := permission.K(resource, action).Validate(); err != nil {
		return nil, nil, ErrInvalidPermission
	}
	role, err := e.findRole(ctx, roleName)
	if err != nil {
		return nil, nil, err
	}
	perm, err := e.store.FindPermission(ctx, resource, action)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrPermissionNotFound
	}
	if err != nil {
		return nil, nil, e.internal("find permission", ErrBadRequest, err)
	}
	return role, perm, nil
}

func (e *Engine) mapAdminError(op string, err error) error {
	if errors.Is(err, permission.ErrNotFound) {
		return ErrNotFound
	}
	return e.internal(op, ErrBadRequest, err)
}

func grantMetadata(role, resource, action string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{
			"role":       role,
			"permission": permission.K(resource, action).String(),
		}
	}
}

func roleMetadata(role string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"role": role}
	}
}

// DeactivateUser soft-removes userID. The account can no longer log in,
// refresh or reset its password. Every session, refresh token and live code it
// held is revoked.
func (e *Engine) DeactivateUser(ctx context.Context, userID string) error {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	err := e.store.SetUserActive(ctx, userID, false)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return e.internal("deactivate user", ErrBadRequest, err, zap.String("user_id", userID))
	}
	if err := e.revokeEverything(ctx, "deactivate user", userID); err != nil {
		return err
	}
	e.perms.InvalidateUser(ctx, userID)
	if _, err := e.otps.Revoke(ctx, userID); err != nil {
		e.logger.Warn("authcore: burn codes of deactivated user failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	e.metricInc(MetricAccountDeactivated)
	e.emitAudit(ctx, auditEventAccountDeactivated, true, userID, "", "", nil, nil)
	return nil
}

// Cleanup invalidates expired sessions and deletes stale refresh tokens and
// codes. It is safe to run from several instances at once. Each step runs
// even when an earlier one fails; the first failure is returned.
func (e *Engine) Cleanup(ctx context.Context) (CleanupReport, error) {
	var (
		report   CleanupReport
		firstErr error
	)
	note := func(step string, err error) {
		e.logger.Error("authcore: cleanup step failed", zap.String("step", step), zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}

	steps := []struct {
		name string
		run  func(context.Context) (int64, error)
		dst  *int64
	}{
		{"sessions", e.sessions.Cleanup, &report.SessionsInvalidated},
		{"refresh_tokens", e.refreshes.Cleanup, &report.RefreshTokensDeleted},
		{"otps", e.otps.Cleanup, &report.OTPsDeleted},
	}
	for _, step := range steps {
		stepCtx, cancel := e.withTimeout(ctx)
		n, err := step.run(stepCtx)
		cancel()
		if err != nil {
			note(step.name, err)
			continue
		}
		*step.dst = n
	}
	return report, firstErr
}
