package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/internal/storetest"
	"github.com/MrEthical07/authcore/platform"
	"github.com/stretchr/testify/require"
)

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

func newTestManager(t *testing.T) (*Manager, *testClock, string) {
	t.Helper()
	st := storetest.New(t)
	u := storetest.SeedUser(t, st, "alice", nil, nil)
	resolver, err := platform.NewResolver(nil)
	require.NoError(t, err)
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewManager(st, resolver, clock.Now), clock, u.ID
}

func TestCreateAndValidate(t *testing.T) {
	m, clock, userID := newTestManager(t)
	ctx := context.Background()

	issued, err := m.Create(ctx, Params{UserID: userID, Platform: platform.Web, IP: "203.0.113.9", UserAgent: "ua"})
	require.NoError(t, err)
	sess := issued.Session
	require.True(t, sess.Valid)
	require.Equal(t, clock.Now().Add(7*24*time.Hour), sess.ExpiresAt)
	require.Nil(t, sess.DeviceID)
	require.Len(t, sess.Token, 64)
	require.NotEmpty(t, issued.Token)
	require.NotEqual(t, issued.Token, sess.Token, "only the digest is stored")

	ok, err := m.Validate(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(7*24*time.Hour + time.Second)
	ok, err = m.Validate(ctx, sess.ID)
	require.NoError(t, err)
	require.False(t, ok, "expiry is checked against the wall clock")
}

func TestValidateUnknownSession(t *testing.T) {
	m, _, _ := newTestManager(t)

	ok, err := m.Validate(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = m.Validate(context.Background(), "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResolveByToken(t *testing.T) {
	m, clock, userID := newTestManager(t)
	ctx := context.Background()

	issued, err := m.Create(ctx, Params{UserID: userID, Platform: platform.Web})
	require.NoError(t, err)

	sess, ok, err := m.Resolve(ctx, issued.Token)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, issued.Session.ID, sess.ID)

	for _, token := range []string{"", "not-a-session-token", issued.Session.Token} {
		_, ok, err = m.Resolve(ctx, token)
		require.NoError(t, err)
		require.False(t, ok, "token %q", token)
	}

	require.NoError(t, m.Invalidate(ctx, issued.Session.ID))
	_, ok, err = m.Resolve(ctx, issued.Token)
	require.NoError(t, err)
	require.False(t, ok)

	fresh, err := m.Create(ctx, Params{UserID: userID, Platform: platform.Web})
	require.NoError(t, err)
	clock.Advance(7*24*time.Hour + time.Second)
	_, ok, err = m.Resolve(ctx, fresh.Token)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCreateRejectsSessionlessPlatform(t *testing.T) {
	m, _, userID := newTestManager(t)

	_, err := m.Create(context.Background(), Params{UserID: userID, Platform: platform.Mobile})
	require.ErrorIs(t, err, ErrSessionlessPlatform)
}

func TestInvalidateIsIdempotent(t *testing.T) {
	m, _, userID := newTestManager(t)
	ctx := context.Background()

	issued, err := m.Create(ctx, Params{UserID: userID, Platform: platform.Desktop})
	require.NoError(t, err)
	sess := issued.Session

	require.NoError(t, m.Invalidate(ctx, sess.ID))
	require.NoError(t, m.Invalidate(ctx, sess.ID))

	ok, err := m.Validate(ctx, sess.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInvalidateAll(t *testing.T) {
	m, _, userID := newTestManager(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		issued, err := m.Create(ctx, Params{UserID: userID, Platform: platform.Web})
		require.NoError(t, err)
		ids = append(ids, issued.Session.ID)
	}

	n, err := m.InvalidateAll(ctx, userID)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	for _, id := range ids {
		ok, err := m.Validate(ctx, id)
		require.NoError(t, err)
		require.False(t, ok)
	}

	n, err = m.InvalidateAll(ctx, userID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestTouchBumpsLastActive(t *testing.T) {
	st := storetest.New(t)
	u := storetest.SeedUser(t, st, "bob", nil, nil)
	resolver, err := platform.NewResolver(nil)
	require.NoError(t, err)
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(st, resolver, clock.Now)
	ctx := context.Background()

	issued, err := m.Create(ctx, Params{UserID: u.ID, Platform: platform.Web})
	require.NoError(t, err)
	sess := issued.Session

	clock.Advance(time.Hour)
	require.NoError(t, m.Touch(ctx, sess.ID))

	got, err := st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, got.LastActiveAt.Equal(clock.Now()))
}

func TestCleanupConcurrentAndRepeatable(t *testing.T) {
	m, clock, userID := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := m.Create(ctx, Params{UserID: userID, Platform: platform.Web})
		require.NoError(t, err)
	}
	clock.Advance(8 * 24 * time.Hour)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int64
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := m.Cleanup(ctx)
			if err != nil {
				t.Errorf("Cleanup failed: %v", err)
				return
			}
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.EqualValues(t, 4, total)

	n, err := m.Cleanup(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}
