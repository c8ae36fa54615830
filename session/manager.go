package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/platform"
	"github.com/MrEthical07/authcore/store"
)

// ErrSessionlessPlatform is returned by Create for a platform whose policy
// does not use sessions.
var ErrSessionlessPlatform = errors.New("session: platform does not use sessions")

// Store is the record access the manager needs. *store.Store implements it.
type Store interface {
	CreateSession(ctx context.Context, sess *store.Session) error
	GetSession(ctx context.Context, id string) (*store.Session, error)
	GetSessionByToken(ctx context.Context, hash string) (*store.Session, error)
	TouchSession(ctx context.Context, id string, at time.Time) error
	InvalidateSession(ctx context.Context, id string) error
	InvalidateUserSessions(ctx context.Context, userID string) (int64, error)
	InvalidateExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Params describes a new session.
type Params struct {
	UserID    string
	Platform  platform.Platform
	DeviceID  string
	IP        string
	UserAgent string
}

// Issued is a created session with its raw token. Only the token's digest is
// stored, so Token is shown to the caller once.
type Issued struct {
	Token   string
	Session *store.Session
}

// Manager creates and validates sessions.
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

// Create opens a valid session for p.UserID expiring after the platform's
// refresh-token lifetime.
func (m *Manager) Create(ctx context.Context, p Params) (*Issued, error) {
	pol := m.policies.Resolve(p.Platform)
	if !pol.UsesSession {
		return nil, ErrSessionlessPlatform
	}

	token, err := internal.NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("session: token: %w", err)
	}

	now := m.now().UTC()
	sess := &store.Session{
		UserID:       p.UserID,
		Token:        internal.HashSecret(token),
		Platform:     p.Platform.String(),
		DeviceID:     optional(p.DeviceID),
		IP:           optional(p.IP),
		UserAgent:    optional(p.UserAgent),
		ExpiresAt:    now.Add(pol.RefreshTokenTTL),
		Valid:        true,
		LastActiveAt: now,
		CreatedAt:    now,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return &Issued{Token: token, Session: sess}, nil
}

// Validate reports whether id names a valid, unexpired session. An unknown id
// is reported as invalid without an error.
func (m *Manager) Validate(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	sess, err := m.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sess.Valid && m.now().Before(sess.ExpiresAt), nil
}

// Resolve returns the valid, unexpired session presented by token. ok is false
// for an unknown, invalidated or expired token.
func (m *Manager) Resolve(ctx context.Context, token string) (sess *store.Session, ok bool, err error) {
	if token == "" {
		return nil, false, nil
	}
	sess, err = m.store.GetSessionByToken(ctx, internal.HashSecret(token))
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !sess.Valid || !m.now().Before(sess.ExpiresAt) {
		return nil, false, nil
	}
	return sess, true, nil
}

// Touch records activity on the session.
func (m *Manager) Touch(ctx context.Context, id string) error {
	return m.store.TouchSession(ctx, id, m.now())
}

// Invalidate ends one session. Repeated calls are no-ops.
func (m *Manager) Invalidate(ctx context.Context, id string) error {
	return m.store.InvalidateSession(ctx, id)
}

// InvalidateAll ends every session of userID and returns how many were live.
func (m *Manager) InvalidateAll(ctx context.Context, userID string) (int64, error) {
	return m.store.InvalidateUserSessions(ctx, userID)
}

// Cleanup marks expired sessions that are still flagged valid as invalid. It
// is one set-based update and safe to run concurrently.
func (m *Manager) Cleanup(ctx context.Context) (int64, error) {
	return m.store.InvalidateExpiredSessions(ctx, m.now())
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
