package authcore

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/platform"
	"github.com/joho/godotenv"
)

const envPrefix = "AUTHCORE_"

// LoadConfigFromEnv starts from [DefaultConfig], loads the given .env files
// (".env" when none are named; missing files are ignored) and applies every
// AUTHCORE_* variable found in the process environment. Variables already set
// in the environment win over .env entries.
//
// Recognised variables:
//
//	AUTHCORE_JWT_SIGNING_METHOD      ed25519 | hs256
//	AUTHCORE_JWT_PRIVATE_KEY         PEM text or hs256 secret
//	AUTHCORE_JWT_PRIVATE_KEY_FILE    path to the same
//	AUTHCORE_JWT_PUBLIC_KEY_FILE     path to an ed25519 public key PEM
//	AUTHCORE_JWT_ISSUER, AUTHCORE_JWT_AUDIENCE, AUTHCORE_JWT_KEY_ID
//	AUTHCORE_<PLATFORM>_ACCESS_TTL   e.g. AUTHCORE_WEB_ACCESS_TTL=15m
//	AUTHCORE_<PLATFORM>_REFRESH_TTL
//	AUTHCORE_<PLATFORM>_USES_SESSION
//	AUTHCORE_DATABASE_DSN, AUTHCORE_DATABASE_QUERY_TIMEOUT
//	AUTHCORE_REDIS_ADDR, AUTHCORE_REDIS_PASSWORD, AUTHCORE_REDIS_DB
//	AUTHCORE_MAX_LOGIN_ATTEMPTS, AUTHCORE_LOGIN_COOLDOWN
//	AUTHCORE_AUDIT_ENABLED, AUTHCORE_KAFKA_BROKERS, AUTHCORE_KAFKA_TOPIC
//	AUTHCORE_DEFAULT_ROLE
func LoadConfigFromEnv(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := DefaultConfig()
	r := &envReader{}

	if v, ok := r.str("JWT_SIGNING_METHOD"); ok {
		cfg.JWT.SigningMethod = jwt.SigningMethod(strings.ToLower(v))
	}
	if v, ok := r.str("JWT_PRIVATE_KEY"); ok {
		cfg.JWT.PrivateKey = []byte(v)
	}
	if v, ok := r.file("JWT_PRIVATE_KEY_FILE"); ok {
		cfg.JWT.PrivateKey = v
	}
	if v, ok := r.file("JWT_PUBLIC_KEY_FILE"); ok {
		cfg.JWT.PublicKey = v
	}
	if v, ok := r.str("JWT_ISSUER"); ok {
		cfg.JWT.Issuer = v
	}
	if v, ok := r.str("JWT_AUDIENCE"); ok {
		cfg.JWT.Audience = v
	}
	if v, ok := r.str("JWT_KEY_ID"); ok {
		cfg.JWT.KeyID = v
	}

	for _, p := range platform.All() {
		pol := cfg.Platforms[p]
		name := strings.ToUpper(p.String())
		if d, ok := r.duration(name + "_ACCESS_TTL"); ok {
			pol.AccessTokenTTL = d
		}
		if d, ok := r.duration(name + "_REFRESH_TTL"); ok {
			pol.RefreshTokenTTL = d
		}
		if b, ok := r.boolean(name + "_USES_SESSION"); ok {
			pol.UsesSession = b
		}
		cfg.Platforms[p] = pol
	}

	if v, ok := r.str("DATABASE_DSN"); ok {
		cfg.Database.DSN = v
	}
	if d, ok := r.duration("DATABASE_QUERY_TIMEOUT"); ok {
		cfg.Database.QueryTimeout = d
	}

	if v, ok := r.str("REDIS_ADDR"); ok {
		cfg.Redis.Addr = v
	}
	if v, ok := r.str("REDIS_PASSWORD"); ok {
		cfg.Redis.Password = v
	}
	if n, ok := r.integer("REDIS_DB"); ok {
		cfg.Redis.DB = n
	}

	if n, ok := r.integer("MAX_LOGIN_ATTEMPTS"); ok {
		cfg.Security.MaxLoginAttempts = n
	}
	if d, ok := r.duration("LOGIN_COOLDOWN"); ok {
		cfg.Security.LoginCooldown = d
	}

	if b, ok := r.boolean("AUDIT_ENABLED"); ok {
		cfg.Audit.Enabled = b
	}
	if d, ok := r.duration("AUDIT_SINK_TIMEOUT"); ok {
		cfg.Audit.SinkTimeout = d
	}
	if v, ok := r.str("KAFKA_BROKERS"); ok {
		cfg.Audit.KafkaBrokers = splitList(v)
	}
	if v, ok := r.str("KAFKA_TOPIC"); ok {
		cfg.Audit.KafkaTopic = v
	}

	if v, ok := r.str("DEFAULT_ROLE"); ok {
		cfg.DefaultRole = v
	}

	if err := errors.Join(r.errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type envReader struct {
	errs []error
}

func (r *envReader) str(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *envReader) file(key string) ([]byte, bool) {
	path, ok := r.str(key)
	if !ok {
		return nil, false
	}
	b, err := os.ReadFile(path)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return nil, false
	}
	return b, true
}

func (r *envReader) duration(key string) (time.Duration, bool) {
	v, ok := r.str(key)
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return 0, false
	}
	return d, true
}

func (r *envReader) integer(key string) (int, bool) {
	v, ok := r.str(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return 0, false
	}
	return n, true
}

func (r *envReader) boolean(key string) (bool, bool) {
	v, ok := r.str(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return false, false
	}
	return b, true
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
