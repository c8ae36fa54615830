package authcore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/platform"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigNeedsOnlyAKey(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Validate())

	cfg = testConfig(t)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short hs256 secret", func(c *Config) {
			c.JWT.SigningMethod = jwt.MethodHS256
			c.JWT.PrivateKey = []byte("too-short")
		}},
		{"unknown signing method", func(c *Config) { c.JWT.SigningMethod = "rs512" }},
		{"leeway too large", func(c *Config) { c.JWT.Leeway = time.Hour }},
		{"zero access ttl", func(c *Config) {
			c.Platforms[platform.Web] = platform.Policy{RefreshTokenTTL: time.Hour}
		}},
		{"unknown platform", func(c *Config) {
			c.Platforms[platform.Platform(7)] = platform.Policy{AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour}
		}},
		{"weak argon2", func(c *Config) { c.Password.Memory = 1 }},
		{"otp digits", func(c *Config) { c.OTP.Digits = 3 }},
		{"issuance without window", func(c *Config) { c.OTP.IssuanceWindow = 0 }},
		{"negative cache ttl", func(c *Config) { c.Permission.CacheTTL = -time.Second }},
		{"no query timeout", func(c *Config) { c.Database.QueryTimeout = 0 }},
		{"attempts without cooldown", func(c *Config) { c.Security.LoginCooldown = 0 }},
		{"password length", func(c *Config) { c.Security.MinPasswordLength = 0 }},
		{"audit buffer", func(c *Config) { c.Audit.BufferSize = 0 }},
		{"negative sink timeout", func(c *Config) { c.Audit.SinkTimeout = -time.Second }},
		{"kafka without topic", func(c *Config) {
			c.Audit.KafkaBrokers = []string{"localhost:9092"}
			c.Audit.KafkaTopic = ""
		}},
		{"default role", func(c *Config) { c.DefaultRole = " " }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestHS256ConfigBuilds(t *testing.T) {
	cfg := testConfig(t)
	cfg.JWT.SigningMethod = jwt.MethodHS256
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")

	engine, err := New().WithConfig(cfg).WithStore(newHarness(t).store).Build()
	require.NoError(t, err)
	defer engine.Close()

	_, err = New().Build()
	require.Error(t, err)
}

func TestBuilderIsSingleUse(t *testing.T) {
	h := newHarness(t)
	b := New().WithConfig(testConfig(t)).WithStore(h.store)
	engine, err := b.Build()
	require.NoError(t, err)
	defer engine.Close()

	_, err = b.Build()
	require.Error(t, err)
}

func TestLoadConfigFromEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "authcore.env")
	require.NoError(t, os.WriteFile(envFile, []byte("AUTHCORE_KAFKA_TOPIC=from-file\nAUTHCORE_DEFAULT_ROLE=member\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("AUTHCORE_KAFKA_TOPIC")
		_ = os.Unsetenv("AUTHCORE_DEFAULT_ROLE")
	})

	t.Setenv("AUTHCORE_JWT_SIGNING_METHOD", "HS256")
	t.Setenv("AUTHCORE_JWT_PRIVATE_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("AUTHCORE_WEB_ACCESS_TTL", "5m")
	t.Setenv("AUTHCORE_MOBILE_USES_SESSION", "true")
	t.Setenv("AUTHCORE_REDIS_ADDR", "localhost:6379")
	t.Setenv("AUTHCORE_REDIS_DB", "2")
	t.Setenv("AUTHCORE_KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("AUTHCORE_DATABASE_QUERY_TIMEOUT", "2s")

	cfg, err := LoadConfigFromEnv(envFile, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	require.Equal(t, jwt.MethodHS256, cfg.JWT.SigningMethod)
	require.Equal(t, 5*time.Minute, cfg.Platforms[platform.Web].AccessTokenTTL)
	require.Equal(t, platform.DefaultPolicies()[platform.Web].RefreshTokenTTL, cfg.Platforms[platform.Web].RefreshTokenTTL)
	require.True(t, cfg.Platforms[platform.Mobile].UsesSession)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, 2, cfg.Redis.DB)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.Audit.KafkaBrokers)
	require.Equal(t, "from-file", cfg.Audit.KafkaTopic)
	require.Equal(t, "member", cfg.DefaultRole)
	require.Equal(t, 2*time.Second, cfg.Database.QueryTimeout)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFromEnvReportsBadValues(t *testing.T) {
	t.Setenv("AUTHCORE_WEB_ACCESS_TTL", "soon")
	t.Setenv("AUTHCORE_REDIS_DB", "two")
	t.Setenv("AUTHCORE_JWT_PRIVATE_KEY_FILE", filepath.Join(t.TempDir(), "nope.pem"))

	_, err := LoadConfigFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "AUTHCORE_WEB_ACCESS_TTL")
	require.Contains(t, err.Error(), "AUTHCORE_REDIS_DB")
	require.Contains(t, err.Error(), "AUTHCORE_JWT_PRIVATE_KEY_FILE")
}
