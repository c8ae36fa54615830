package authcore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/platform"
	"github.com/MrEthical07/authcore/store"
)

// Config is the complete Engine configuration. Start from [DefaultConfig]
// and override fields; [Config.Validate] runs again inside Build.
type Config struct {
	JWT        JWTConfig
	Platforms  map[platform.Platform]platform.Policy
	Password   password.Config
	OTP        OTPConfig
	Permission PermissionConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Security   SecurityConfig
	Notify     notify.BreakerConfig
	Audit      AuditConfig
	Metrics    MetricsConfig

	// DefaultRole is assigned to every newly registered user. It is created
	// on first use.
	DefaultRole string
}

// JWTConfig holds access-token signing parameters. Lifetimes come from the
// platform policies, not from here.
type JWTConfig struct {
	SigningMethod jwt.SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

// OTPConfig tunes code generation and issuance throttling.
type OTPConfig struct {
	Digits         int
	MaxIssuance    int
	IssuanceWindow time.Duration
}

// PermissionConfig tunes the shared permission decision cache.
type PermissionConfig struct {
	CacheTTL    time.Duration
	CachePrefix string
}

// DatabaseConfig describes the relational store. DSN is only dialed when the
// Builder was not given a store.
type DatabaseConfig struct {
	DSN          string
	QueryTimeout time.Duration
	Pool         store.PoolConfig
}

// RedisConfig is used when the Builder has to dial Redis itself. An empty
// Addr runs without Redis: no shared permission cache and no throttling.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// SecurityConfig groups credential-guessing protections.
type SecurityConfig struct {
	MaxLoginAttempts  int
	LoginCooldown     time.Duration
	EnableIPThrottle  bool
	MinPasswordLength int
}

// AuditConfig controls the asynchronous audit pipeline. When KafkaBrokers is
// set and no sink was supplied, events are published to KafkaTopic.
type AuditConfig struct {
	Enabled      bool
	BufferSize   int
	DropIfFull   bool
	SinkTimeout  time.Duration
	KafkaBrokers []string
	KafkaTopic   string
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults. Signing keys are left empty and
// must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: jwt.MethodEd25519,
			Issuer:        "authcore",
			Leeway:        30 * time.Second,
		},
		Platforms: platform.DefaultPolicies(),
		Password:  password.DefaultConfig(),
		OTP: OTPConfig{
			Digits:         6,
			MaxIssuance:    5,
			IssuanceWindow: 15 * time.Minute,
		},
		Permission: PermissionConfig{
			CacheTTL:    5 * time.Minute,
			CachePrefix: "authcore",
		},
		Database: DatabaseConfig{
			QueryTimeout: 5 * time.Second,
			Pool: store.PoolConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 30 * time.Minute,
			},
		},
		Redis: RedisConfig{
			Prefix: "authcore",
		},
		Security: SecurityConfig{
			MaxLoginAttempts:  5,
			LoginCooldown:     15 * time.Minute,
			EnableIPThrottle:  true,
			MinPasswordLength: 8,
		},
		Notify: notify.DefaultBreakerConfig(),
		Audit: AuditConfig{
			Enabled:     true,
			BufferSize:  1024,
			DropIfFull:  true,
			SinkTimeout: 5 * time.Second,
			KafkaTopic:  "authcore.audit",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		DefaultRole: "user",
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.Platforms != nil {
		out.Platforms = make(map[platform.Platform]platform.Policy, len(cfg.Platforms))
		for p, pol := range cfg.Platforms {
			out.Platforms[p] = pol
		}
	}
	if cfg.Audit.KafkaBrokers != nil {
		out.Audit.KafkaBrokers = append([]string(nil), cfg.Audit.KafkaBrokers...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	switch c.JWT.SigningMethod {
	case jwt.MethodEd25519:
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("JWT ed25519 requires PrivateKey")
		}
	case jwt.MethodHS256:
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("JWT hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	for p, pol := range c.Platforms {
		if !p.Valid() {
			return fmt.Errorf("Platforms: %w", platform.ErrUnsupported)
		}
		if pol.AccessTokenTTL <= 0 || pol.RefreshTokenTTL <= 0 {
			return fmt.Errorf("Platforms %s: TTLs must be > 0", p)
		}
	}

	if err := c.Password.Validate(); err != nil {
		return err
	}

	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 4 and 10")
	}
	if c.OTP.MaxIssuance < 0 {
		return errors.New("OTP MaxIssuance must be >= 0")
	}
	if c.OTP.MaxIssuance > 0 && c.OTP.IssuanceWindow <= 0 {
		return errors.New("OTP IssuanceWindow must be > 0 when MaxIssuance is set")
	}

	if c.Permission.CacheTTL < 0 {
		return errors.New("Permission CacheTTL must be >= 0")
	}

	if c.Database.QueryTimeout <= 0 {
		return errors.New("Database QueryTimeout must be > 0")
	}

	if c.Security.MaxLoginAttempts < 0 {
		return errors.New("Security MaxLoginAttempts must be >= 0")
	}
	if c.Security.MaxLoginAttempts > 0 && c.Security.LoginCooldown <= 0 {
		return errors.New("Security LoginCooldown must be > 0 when MaxLoginAttempts is set")
	}
	if c.Security.MinPasswordLength < 1 {
		return errors.New("Security MinPasswordLength must be >= 1")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.SinkTimeout < 0 {
		return errors.New("Audit SinkTimeout must be >= 0")
	}
	if len(c.Audit.KafkaBrokers) > 0 && strings.TrimSpace(c.Audit.KafkaTopic) == "" {
		return errors.New("Audit KafkaTopic is required when KafkaBrokers is set")
	}

	if strings.TrimSpace(c.DefaultRole) == "" {
		return errors.New("DefaultRole is required")
	}

	return nil
}
