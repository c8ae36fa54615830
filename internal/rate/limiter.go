package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited reports that a counter has reached its budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps any failure talking to Redis. Callers treat it
	// as "no decision" and let the request through.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Config holds rate limiter tuning parameters. A zero max disables the
// corresponding limit.
type Config struct {
	Prefix            string
	EnableIPThrottle  bool
	MaxLoginAttempts  int
	LoginCooldown     time.Duration
	MaxOTPIssuance    int
	OTPIssuanceWindow time.Duration
}

// Limiter enforces login-failure and OTP-issuance budgets using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckLogin returns ErrRateLimited when the identifier or IP has used up its
// failed-login budget.
func (l *Limiter) CheckLogin(ctx context.Context, identifier, ip string) error {
	if l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	if err := l.checkCounter(ctx, l.loginUserKey(identifier), l.config.MaxLoginAttempts); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, l.loginIPKey(ip), l.config.MaxLoginAttempts); err != nil {
			return err
		}
	}
	return nil
}

// RecordLoginFailure counts a failed login for the identifier and IP.
func (l *Limiter) RecordLoginFailure(ctx context.Context, identifier, ip string) error {
	if l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	if _, err := l.incrementWithTTL(ctx, l.loginUserKey(identifier), l.config.LoginCooldown); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if _, err := l.incrementWithTTL(ctx, l.loginIPKey(ip), l.config.LoginCooldown); err != nil {
			return err
		}
	}
	return nil
}

// ResetLogin clears the identifier's failure counter after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, identifier string) error {
	if l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	if err := l.redis.Del(ctx, l.loginUserKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// AllowOTPIssuance counts one issuance for (userID, purpose) and returns
// ErrRateLimited once the window budget is exceeded.
func (l *Limiter) AllowOTPIssuance(ctx context.Context, userID, purpose string) error {
	if l.config.MaxOTPIssuance <= 0 {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.otpKey(userID, purpose), l.config.OTPIssuanceWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxOTPIssuance) {
		return ErrRateLimited
	}
	return nil
}

// LoginFailures returns the current failure counter for an identifier.
// Missing keys return zero and do not reveal account existence.
func (l *Limiter) LoginFailures(ctx context.Context, identifier string) (int, error) {
	count, err := l.redis.Get(ctx, l.loginUserKey(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func (l *Limiter) loginUserKey(identifier string) string {
	return l.key("al", strings.ToLower(identifier))
}

func (l *Limiter) loginIPKey(ip string) string {
	return l.key("ali", ip)
}

func (l *Limiter) otpKey(userID, purpose string) string {
	return l.key("ao", purpose+":"+userID)
}

func (l *Limiter) key(kind, id string) string {
	if l.config.Prefix == "" {
		return kind + ":" + id
	}
	return l.config.Prefix + ":" + kind + ":" + id
}
