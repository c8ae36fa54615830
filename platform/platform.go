package platform

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnsupported is returned by [Parse] for names outside the platform enum.
var ErrUnsupported = errors.New("unsupported platform")

// Platform identifies the kind of client a credential is issued to.
type Platform uint8

const (
	// Web is a browser client. It is also the fallback policy.
	Web Platform = iota
	// Mobile is a native phone or tablet application.
	Mobile
	// Desktop is a native desktop application.
	Desktop

	platformCount
)

var names = [platformCount]string{
	Web:     "web",
	Mobile:  "mobile",
	Desktop: "desktop",
}

// All returns every supported platform in enum order.
func All() []Platform {
	return []Platform{Web, Mobile, Desktop}
}

// String returns the lower-case platform name persisted alongside sessions and tokens.
func (p Platform) String() string {
	if p >= platformCount {
		return "unknown"
	}
	return names[p]
}

// Valid reports whether p is a member of the enum.
func (p Platform) Valid() bool {
	return p < platformCount
}

// Parse converts a case-insensitive platform name into a [Platform].
func Parse(name string) (Platform, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for i, n := range names {
		if n == normalized {
			return Platform(i), nil
		}
	}
	return Web, fmt.Errorf("%w: %q", ErrUnsupported, name)
}

// Policy holds the credential lifetimes that apply to one platform.
type Policy struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	UsesSession     bool
}

// DefaultPolicies returns the built-in lifetimes used when configuration omits a platform.
func DefaultPolicies() map[Platform]Policy {
	return map[Platform]Policy{
		Web: {
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
			UsesSession:     true,
		},
		Mobile: {
			AccessTokenTTL:  30 * 24 * time.Hour,
			RefreshTokenTTL: 90 * 24 * time.Hour,
			UsesSession:     false,
		},
		Desktop: {
			AccessTokenTTL:  7 * 24 * time.Hour,
			RefreshTokenTTL: 30 * 24 * time.Hour,
			UsesSession:     true,
		},
	}
}

// Resolver maps platforms to their validated policy. It is immutable after construction.
type Resolver struct {
	policies [platformCount]Policy
}

// NewResolver builds a [Resolver] from overrides. Platforms missing from overrides use
// [DefaultPolicies]. A policy with a non-positive TTL, or a key outside the enum, is
// rejected.
func NewResolver(overrides map[Platform]Policy) (*Resolver, error) {
	defaults := DefaultPolicies()
	r := &Resolver{}
	for _, p := range All() {
		r.policies[p] = defaults[p]
	}

	for p, policy := range overrides {
		if !p.Valid() {
			return nil, fmt.Errorf("%w: enum value %d", ErrUnsupported, p)
		}
		if policy.AccessTokenTTL <= 0 {
			return nil, fmt.Errorf("platform %s: access token TTL must be > 0", p)
		}
		if policy.RefreshTokenTTL <= 0 {
			return nil, fmt.Errorf("platform %s: refresh token TTL must be > 0", p)
		}
		if policy.RefreshTokenTTL < policy.AccessTokenTTL {
			return nil, fmt.Errorf("platform %s: refresh token TTL must be >= access token TTL", p)
		}
		r.policies[p] = policy
	}

	return r, nil
}

// Resolve returns the policy for p. Values outside the enum resolve to the web policy.
func (r *Resolver) Resolve(p Platform) Policy {
	if r == nil {
		return DefaultPolicies()[Web]
	}
	if !p.Valid() {
		return r.policies[Web]
	}
	return r.policies[p]
}
