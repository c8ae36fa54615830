package authcore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/internal/storetest"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/platform"
	"github.com/MrEthical07/authcore/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct horse battery"

type captureSender struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (c *captureSender) Send(_ context.Context, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

// lastCode returns the code most recently sent to to.
func (c *captureSender) lastCode(t *testing.T, to string) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.msgs) - 1; i >= 0; i-- {
		if c.msgs[i].To == to {
			return c.msgs[i].Variables["code"]
		}
	}
	t.Fatalf("no code sent to %s", to)
	return ""
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	engine      *Engine
	store       *store.Store
	sender      *captureSender
	clock       *testClock
	redis       *miniredis.Miniredis
	auditEvents <-chan AuditEvent
}

func testConfig(t *testing.T) Config {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.Password = password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	return cfg
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()

	cfg := testConfig(t)
	for _, m := range mutate {
		m(&cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &harness{
		store:  storetest.New(t),
		sender: &captureSender{},
		clock:  &testClock{t: time.Now().UTC().Truncate(time.Second)},
		redis:  mr,
	}
	sink := NewChannelAuditSink(512)

	engine, err := New().
		WithConfig(cfg).
		WithStore(h.store).
		WithRedis(rdb).
		WithSender(h.sender).
		WithAuditSink(sink).
		WithClock(h.clock.Now).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	h.engine = engine
	h.auditEvents = sink.Events()
	return h
}

// seedVerifiedUser stores an active user with a verified email and
// testPassword.
func (h *harness) seedVerifiedUser(t *testing.T, username, email string) *store.User {
	t.Helper()
	hash, err := h.engine.hasher.Hash(testPassword)
	require.NoError(t, err)
	u := &store.User{
		Username:      username,
		Email:         storetest.Ptr(email),
		PasswordHash:  hash,
		EmailVerified: true,
		Active:        true,
	}
	require.NoError(t, h.store.CreateUser(context.Background(), u))
	return u
}

func (h *harness) login(t *testing.T, identifier string, p platform.Platform) *LoginResult {
	t.Helper()
	res, err := h.engine.LoginWithPassword(context.Background(), identifier, testPassword, LoginRequest{Platform: p})
	require.NoError(t, err)
	require.False(t, res.VerificationRequired)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)
	return res
}

// auditTypes closes the engine, which flushes the dispatcher, and returns
// the event types it delivered in order.
func (h *harness) auditTypes() []string {
	h.engine.Close()
	var types []string
	for {
		select {
		case ev := <-h.auditEvents:
			types = append(types, ev.EventType)
		default:
			return types
		}
	}
}
