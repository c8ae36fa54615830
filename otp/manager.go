package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
)

const defaultDigits = 6

var (
	ErrUnknownPurpose   = errors.New("otp: unknown purpose")
	ErrUserNotFound     = errors.New("otp: user not found")
	ErrChannelMissing   = errors.New("otp: user has no contact for the required channel")
	ErrNoActiveCode     = errors.New("otp: no active code")
	ErrAttemptsExceeded = errors.New("otp: attempts exceeded")
	ErrInvalidCode      = errors.New("otp: invalid code")
)

// Store is the record access the manager needs. *store.Store implements it.
type Store interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	ReplaceOTP(ctx context.Context, o *store.OTP) error
	LatestActiveOTP(ctx context.Context, userID, purpose string, now time.Time) (*store.OTP, error)
	IncrementOTPAttempts(ctx context.Context, id string) (remaining int, ok bool, err error)
	BurnOTP(ctx context.Context, id string) error
	BurnUserOTPs(ctx context.Context, userID string) (int64, error)
	ConsumeOTP(ctx context.Context, id string, verify store.Verification) (bool, error)
	DeleteExpiredOTPs(ctx context.Context, before time.Time) (int64, error)
}

// Config wires a Manager. Zero values select defaults.
type Config struct {
	Sender notify.Sender
	Logger *zap.Logger
	Digits int
	Now    func() time.Time
}

// Issued describes a freshly generated code.
type Issued struct {
	ID        string
	Code      string
	ExpiresAt time.Time
	Channel   notify.Channel
}

// GenerateOption adjusts a single Generate call.
type GenerateOption func(*generateOptions)

type generateOptions struct {
	channel notify.Channel
}

// WithChannel selects the delivery channel for purposes that accept either,
// such as password reset and two-factor codes. Verification purposes ignore it.
func WithChannel(ch notify.Channel) GenerateOption {
	return func(o *generateOptions) { o.channel = ch }
}

// Manager generates and verifies codes.
type Manager struct {
	store  Store
	sender notify.Sender
	logger *zap.Logger
	digits int
	now    func() time.Time
}

// NewManager returns a Manager over st.
func NewManager(st Store, cfg Config) *Manager {
	m := &Manager{
		store:  st,
		sender: cfg.Sender,
		logger: cfg.Logger,
		digits: cfg.Digits,
		now:    cfg.Now,
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.sender == nil {
		m.sender = notify.NewLogSender(m.logger)
	}
	if m.digits == 0 {
		m.digits = defaultDigits
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Generate invalidates the user's live codes for purpose, stores a new one and
// dispatches it. Delivery failures are logged and do not fail the call.
func (m *Manager) Generate(ctx context.Context, userID string, purpose Purpose, opts ...GenerateOption) (*Issued, error) {
	pol, ok := PolicyFor(purpose)
	if !ok {
		return nil, ErrUnknownPurpose
	}

	var o generateOptions
	for _, opt := range opts {
		opt(&o)
	}

	user, err := m.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	channel, to, err := route(user, purpose, o.channel)
	if err != nil {
		return nil, err
	}

	code, err := internal.NewOTP(m.digits)
	if err != nil {
		return nil, fmt.Errorf("otp: generate code: %w", err)
	}

	now := m.now().UTC()
	rec := &store.OTP{
		UserID:      user.ID,
		Purpose:     string(purpose),
		CodeHash:    internal.HashSecret(code),
		ExpiresAt:   now.Add(pol.TTL),
		MaxAttempts: pol.MaxAttempts,
		CreatedAt:   now,
	}
	if err := m.store.ReplaceOTP(ctx, rec); err != nil {
		return nil, err
	}

	m.dispatch(ctx, user.ID, notify.Message{
		Channel:    channel,
		To:         to,
		TemplateID: pol.TemplateID,
		Variables: map[string]string{
			"code":               code,
			"purpose":            string(purpose),
			"expires_in_minutes": strconv.Itoa(int(pol.TTL / time.Minute)),
		},
	})

	return &Issued{ID: rec.ID, Code: code, ExpiresAt: rec.ExpiresAt, Channel: channel}, nil
}

// Verify checks code against the newest live code for (userID, purpose). On
// success the code is consumed and, for verification purposes, the user's
// matching verification flag is set.
func (m *Manager) Verify(ctx context.Context, userID, code string, purpose Purpose) error {
	if !purpose.Valid() {
		return ErrUnknownPurpose
	}

	rec, err := m.store.LatestActiveOTP(ctx, userID, string(purpose), m.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoActiveCode
	}
	if err != nil {
		return err
	}
	if rec.Attempts >= rec.MaxAttempts {
		return ErrAttemptsExceeded
	}

	remaining, spent, err := m.store.IncrementOTPAttempts(ctx, rec.ID)
	if err != nil {
		return err
	}
	if !spent {
		return ErrAttemptsExceeded
	}

	if !internal.EqualHash(internal.HashSecret(code), rec.CodeHash) {
		if remaining <= 0 {
			if err := m.store.BurnOTP(ctx, rec.ID); err != nil {
				m.logger.Error("otp: burn exhausted code failed",
					zap.String("user_id", userID),
					zap.String("purpose", string(purpose)),
					zap.Error(err),
				)
			}
		}
		return ErrInvalidCode
	}

	consumed, err := m.store.ConsumeOTP(ctx, rec.ID, purpose.verification())
	if err != nil {
		return err
	}
	if !consumed {
		return ErrNoActiveCode
	}
	return nil
}

// Revoke burns every live code of userID so none can be redeemed later.
func (m *Manager) Revoke(ctx context.Context, userID string) (int64, error) {
	return m.store.BurnUserOTPs(ctx, userID)
}

// Cleanup deletes codes that expired before now.
func (m *Manager) Cleanup(ctx context.Context) (int64, error) {
	return m.store.DeleteExpiredOTPs(ctx, m.now().UTC())
}

func (m *Manager) dispatch(ctx context.Context, userID string, msg notify.Message) {
	if err := m.sender.Send(ctx, msg); err != nil {
		m.logger.Warn("otp: dispatch failed",
			zap.String("user_id", userID),
			zap.String("channel", string(msg.Channel)),
			zap.String("template_id", msg.TemplateID),
			zap.Error(err),
		)
	}
}

func route(u *store.User, purpose Purpose, preferred notify.Channel) (notify.Channel, string, error) {
	switch purpose {
	case PurposeEmailVerification:
		if !u.HasEmail() {
			return "", "", ErrChannelMissing
		}
		return notify.ChannelEmail, *u.Email, nil
	case PurposePhoneVerification:
		if !u.HasPhone() {
			return "", "", ErrChannelMissing
		}
		return notify.ChannelSMS, *u.Phone, nil
	}

	switch {
	case preferred == notify.ChannelEmail && u.HasEmail():
		return notify.ChannelEmail, *u.Email, nil
	case preferred == notify.ChannelSMS && u.HasPhone():
		return notify.ChannelSMS, *u.Phone, nil
	case u.HasEmail():
		return notify.ChannelEmail, *u.Email, nil
	case u.HasPhone():
		return notify.ChannelSMS, *u.Phone, nil
	default:
		return "", "", ErrChannelMissing
	}
}
