package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/otp"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/platform"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
)

// Store is the record access the Engine needs. *store.Store implements it.
type Store interface {
	otp.Store
	session.Store
	refresh.Store
	permission.Store

	CreateUser(ctx context.Context, u *store.User) error
	FindActiveUserByEmail(ctx context.Context, email string) (*store.User, error)
	FindActiveUserByUsername(ctx context.Context, username string) (*store.User, error)
	FindUserByEmail(ctx context.Context, email string) (*store.User, error)
	FindUserByPhone(ctx context.Context, phone string) (*store.User, error)
	FindUserByUsername(ctx context.Context, username string) (*store.User, error)
	UpdateUserPassword(ctx context.Context, id, hash string) error
	RecordLogin(ctx context.Context, id, platform string, at time.Time) error
	SetUserActive(ctx context.Context, id string, active bool) error

	EnsureRole(ctx context.Context, name string) (*store.Role, error)
	FindRoleByName(ctx context.Context, name string) (*store.Role, error)
	EnsurePermission(ctx context.Context, resource, action string) (*store.Permission, error)
	FindPermission(ctx context.Context, resource, action string) (*store.Permission, error)
	UserRoleNames(ctx context.Context, userID string) ([]string, error)
}

// Engine runs the authentication flows. It is safe for concurrent use.
type Engine struct {
	config    Config
	store     Store
	logger    *zap.Logger
	now       func() time.Time
	policies  *platform.Resolver
	hasher    password.Hasher
	dummyHash string
	tokens    *jwt.Manager
	otps      *otp.Manager
	sessions  *session.Manager
	refreshes *refresh.Manager
	perms     *permission.Resolver
	limiter   *rate.Limiter
	audit     *audit.Dispatcher
	metrics   *Metrics
	closers   []func() error
}

// Close flushes queued audit events and releases connections the Builder
// opened. Supplied stores and clients stay open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Warn("authcore: close failed", zap.Error(err))
		}
	}
	e.closers = nil
}

// AuditDropped reports how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Policy returns the lifetimes that apply to p.
func (e *Engine) Policy(p platform.Platform) platform.Policy {
	return e.policies.Resolve(p)
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(id, time.Since(start))
	}
}

// withTimeout bounds a flow's datastore calls by Config.Database.QueryTimeout.
func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Database.QueryTimeout)
}

// internal logs an unexpected failure with its context and returns kind, so
// datastore and dispatch details never reach the caller.
func (e *Engine) internal(op string, kind error, err error, fields ...zap.Field) error {
	fields = append(fields, zap.String("op", op), zap.Error(err))
	e.logger.Error("authcore: internal failure", fields...)
	return kind
}
