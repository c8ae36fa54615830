package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/audit/kafkasink"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/otp"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/platform"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	dummyPassword = "authcore-timing-equalizer"
	openTimeout   = 10 * time.Second
)

// Builder assembles an [Engine]. Configure it during initialization; Build
// can only be called once.
type Builder struct {
	config    Config
	store     Store
	redis     redis.UniversalClient
	logger    *zap.Logger
	sender    notify.Sender
	auditSink AuditSink
	cache     permission.Cache
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore supplies the record store. Without it Build dials
// Config.Database.DSN.
func (b *Builder) WithStore(st Store) *Builder {
	b.store = st
	return b
}

// WithRedis supplies the Redis client used for the permission cache and the
// login and code-issuance throttles. Without it Build dials Config.Redis.Addr
// when set.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. The default discards output.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithSender sets the email/SMS collaborator. It is wrapped in a circuit
// breaker configured by Config.Notify. The default logs messages.
func (b *Builder) WithSender(sender notify.Sender) *Builder {
	b.sender = sender
	return b
}

// WithAuditSink overrides the audit destination. Without it events go to
// Kafka when Config.Audit.KafkaBrokers is set and to the logger otherwise.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithPermissionCache overrides the permission decision cache.
func (b *Builder) WithPermissionCache(cache permission.Cache) *Builder {
	b.cache = cache
	return b
}

// WithClock replaces time.Now for session, refresh-token and code lifetimes.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component. Resources the
// Builder opened itself are released by [Engine.Close].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		config:  cfg,
		logger:  b.logger,
		now:     b.now,
		metrics: NewMetrics(cfg.Metrics),
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}

	fail := func(err error) (*Engine, error) {
		e.Close()
		return nil, err
	}

	// -------- STORE --------
	e.store = b.store
	if e.store == nil {
		if cfg.Database.DSN == "" {
			return fail(errors.New("store or Database DSN required"))
		}
		ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
		st, err := store.Open(ctx, cfg.Database.DSN, cfg.Database.Pool)
		cancel()
		if err != nil {
			return fail(err)
		}
		e.store = st
		e.closers = append(e.closers, st.Close)
	}

	// -------- REDIS --------
	rdb := b.redis
	if rdb == nil && cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rdb = client
		e.closers = append(e.closers, client.Close)
	}

	// -------- CREDENTIALS --------
	policies, err := platform.NewResolver(cfg.Platforms)
	if err != nil {
		return fail(err)
	}
	e.policies = policies

	hasher, err := password.NewArgon2(cfg.Password)
	if err != nil {
		return fail(err)
	}
	e.hasher = hasher
	if e.dummyHash, err = hasher.Hash(dummyPassword); err != nil {
		return fail(fmt.Errorf("dummy hash: %w", err))
	}

	e.tokens, err = jwt.NewManager(jwt.Config{
		SigningMethod: cfg.JWT.SigningMethod,
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
	})
	if err != nil {
		return fail(err)
	}

	// -------- CODES, SESSIONS, REFRESH TOKENS --------
	sender := b.sender
	if sender == nil {
		sender = notify.NewLogSender(e.logger)
	}
	e.otps = otp.NewManager(e.store, otp.Config{
		Sender: notify.NewBreaker(sender, cfg.Notify, e.logger),
		Logger: e.logger,
		Digits: cfg.OTP.Digits,
		Now:    e.now,
	})
	e.sessions = session.NewManager(e.store, policies, e.now)
	e.refreshes = refresh.NewManager(e.store, policies, e.now)

	// -------- PERMISSIONS --------
	// A zero CacheTTL disables caching.
	cache := b.cache
	if cache == nil && cfg.Permission.CacheTTL > 0 {
		if rdb != nil {
			cache = permission.NewRedisCache(rdb, permission.RedisCacheConfig{
				Prefix: cfg.Permission.CachePrefix,
				TTL:    cfg.Permission.CacheTTL,
			})
		} else {
			cache = permission.NewMemoryCache(permission.MemoryCacheConfig{
				TTL: cfg.Permission.CacheTTL,
				Now: e.now,
			})
		}
	}
	e.perms = permission.NewResolver(e.store, cache, e.logger)

	// -------- THROTTLING --------
	if rdb != nil {
		e.limiter = rate.New(rdb, rate.Config{
			Prefix:            cfg.Redis.Prefix,
			EnableIPThrottle:  cfg.Security.EnableIPThrottle,
			MaxLoginAttempts:  cfg.Security.MaxLoginAttempts,
			LoginCooldown:     cfg.Security.LoginCooldown,
			MaxOTPIssuance:    cfg.OTP.MaxIssuance,
			OTPIssuanceWindow: cfg.OTP.IssuanceWindow,
		})
	}

	// -------- AUDIT --------
	if cfg.Audit.Enabled {
		sink := b.auditSink
		if sink == nil && len(cfg.Audit.KafkaBrokers) > 0 {
			ks, err := kafkasink.New(kafkasink.Config{
				Brokers: cfg.Audit.KafkaBrokers,
				Topic:   cfg.Audit.KafkaTopic,
			}, e.logger)
			if err != nil {
				return fail(err)
			}
			sink = ks
			e.closers = append(e.closers, ks.Close)
		}
		if sink == nil {
			sink = audit.NewZapSink(e.logger)
		}
		e.audit = audit.NewDispatcher(audit.Config{
			Enabled:     true,
			BufferSize:  cfg.Audit.BufferSize,
			DropIfFull:  cfg.Audit.DropIfFull,
			SinkTimeout: cfg.Audit.SinkTimeout,
		}, sink)
	}

	return e, nil
}
