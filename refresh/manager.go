package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/platform"
	"github.com/MrEthical07/authcore/store"
)

// RevokedRetention is how long revoked rows are kept before Cleanup deletes them.
const RevokedRetention = 30 * 24 * time.Hour

// ErrInvalid covers unknown, revoked and expired tokens.
var ErrInvalid = errors.New("refresh: invalid token")

// Store is the record access the manager needs. *store.Store implements it.
type Store interface {
	CreateRefreshToken(ctx context.Context, t *store.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (*store.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, hash string, at time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID string, at time.Time) (int64, error)
	RotateRefreshToken(ctx context.Context, oldID string, next *store.RefreshToken, at time.Time) error
	DeleteStaleRefreshTokens(ctx context.Context, now, revokedBefore time.Time) (int64, error)
}

// Issued pairs the raw token string with its stored record.
type Issued struct {
	Token  string
	Record *store.RefreshToken
}

// Params describes a new token. SessionID links the token to the session it
// was issued alongside, if any.
type Params struct {
	UserID    string
	Platform  platform.Platform
	DeviceID  string
	SessionID string
}

// Manager owns refresh-token lifecycle.
type Manager struct {
	store    Store
	policies *platform.Resolver
	now      func() time.Time
}

// NewManager returns a Manager. A nil now uses time.Now.
func NewManager(st Store, policies *platform.Resolver, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{store: st, policies: policies, now: now}
}

// Create issues a token for p.UserID expiring after the platform's
// refresh-token lifetime.
func (m *Manager) Create(ctx context.Context, p Params) (*Issued, error) {
	issued, err := m.build(p, m.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := m.store.CreateRefreshToken(ctx, issued.Record); err != nil {
		return nil, err
	}
	return issued, nil
}

// Validate returns the live record for token, or ErrInvalid.
func (m *Manager) Validate(ctx context.Context, token string) (*store.RefreshToken, error) {
	if token == "" {
		return nil, ErrInvalid
	}
	rec, err := m.store.GetRefreshTokenByHash(ctx, internal.HashSecret(token))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalid
	}
	if err != nil {
		return nil, err
	}
	if rec.Revoked || !m.now().Before(rec.ExpiresAt) {
		return nil, ErrInvalid
	}
	return rec, nil
}

// Revoke revokes token. Unknown or already-revoked tokens are not an error.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.RevokeRefreshToken(ctx, internal.HashSecret(token), m.now())
}

// RevokeAll revokes every live token of userID.
func (m *Manager) RevokeAll(ctx context.Context, userID string) (int64, error) {
	return m.store.RevokeUserRefreshTokens(ctx, userID, m.now())
}

// ShouldRotate reports whether less than a quarter of rec's original lifetime
// remains at now.
func ShouldRotate(rec *store.RefreshToken, now time.Time) bool {
	lifetime := rec.ExpiresAt.Sub(rec.CreatedAt)
	remaining := rec.ExpiresAt.Sub(now)
	return remaining*4 < lifetime
}

// Rotate applies the rotation policy to a validated record. When rotation is
// due it returns the successor and true; otherwise it returns nil and false
// and current stays valid. Losing a concurrent rotation yields ErrInvalid.
func (m *Manager) Rotate(ctx context.Context, current *store.RefreshToken) (*Issued, bool, error) {
	now := m.now().UTC()
	if !ShouldRotate(current, now) {
		return nil, false, nil
	}

	// Parse falls back to web for rows written by an older enum.
	p, _ := platform.Parse(current.Platform)
	next, err := m.build(Params{
		UserID:    current.UserID,
		Platform:  p,
		DeviceID:  deref(current.DeviceID),
		SessionID: deref(current.SessionID),
	}, now)
	if err != nil {
		return nil, false, err
	}
	err = m.store.RotateRefreshToken(ctx, current.ID, next.Record, now)
	if errors.Is(err, store.ErrStale) {
		return nil, false, ErrInvalid
	}
	if err != nil {
		return nil, false, err
	}
	return next, true, nil
}

// Cleanup deletes tokens that have expired or were revoked more than
// RevokedRetention ago.
func (m *Manager) Cleanup(ctx context.Context) (int64, error) {
	now := m.now().UTC()
	return m.store.DeleteStaleRefreshTokens(ctx, now, now.Add(-RevokedRetention))
}

func (m *Manager) build(p Params, now time.Time) (*Issued, error) {
	token, err := internal.NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("refresh: token: %w", err)
	}

	rec := &store.RefreshToken{
		UserID:    p.UserID,
		TokenHash: internal.HashSecret(token),
		Platform:  p.Platform.String(),
		DeviceID:  optional(p.DeviceID),
		SessionID: optional(p.SessionID),
		ExpiresAt: now.Add(m.policies.Resolve(p.Platform).RefreshTokenTTL),
		CreatedAt: now,
	}
	return &Issued{Token: token, Record: rec}, nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
