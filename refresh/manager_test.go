package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/internal/storetest"
	"github.com/MrEthical07/authcore/platform"
	"github.com/MrEthical07/authcore/store"
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

func newTestManager(t *testing.T) (*Manager, *store.Store, *testClock, string) {
	t.Helper()
	st := storetest.New(t)
	u := storetest.SeedUser(t, st, "alice", nil, nil)
	resolver, err := platform.NewResolver(nil)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewManager(st, resolver, clock.Now), st, clock, u.ID
}

func TestCreateValidate(t *testing.T) {
	m, _, clock, userID := newTestManager(t)
	ctx := context.Background()

	issued, err := m.Create(ctx, Params{UserID: userID, Platform: platform.Web, DeviceID: "device-1"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if issued.Record.TokenHash == issued.Token {
		t.Fatal("raw token must not be persisted")
	}
	if want := clock.Now().Add(7 * 24 * time.Hour); !issued.Record.ExpiresAt.Equal(want) {
		t.Fatalf("unexpected expiry %v want %v", issued.Record.ExpiresAt, want)
	}

	rec, err := m.Validate(ctx, issued.Token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if rec.UserID != userID || rec.DeviceID == nil || *rec.DeviceID != "device-1" {
		t.Fatalf("unexpected record %+v", rec)
	}

	if _, err := m.Validate(ctx, "unknown"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown token, got %v", err)
	}

	clock.Advance(7 * 24 * time.Hour)
	if _, err := m.Validate(ctx, issued.Token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid at expiry, got %v", err)
	}
}

func TestRevokeIdempotent(t *testing.T) {
	m, _, _, userID := newTestManager(t)
	ctx := context.Background()

	issued, err := m.Create(ctx, Params{UserID: userID, Platform: platform.Mobile})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := m.Revoke(ctx, issued.Token); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if err := m.Revoke(ctx, issued.Token); err != nil {
		t.Fatalf("second Revoke should be a no-op: %v", err)
	}
	if err := m.Revoke(ctx, "never-issued"); err != nil {
		t.Fatalf("revoking unknown token should be a no-op: %v", err)
	}
	if _, err := m.Validate(ctx, issued.Token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid after revoke, got %v", err)
	}
}

func TestRevokeAll(t *testing.T) {
	m, _, _, userID := newTestManager(t)
	ctx := context.Background()

	var tokens []string
	for _, p := range platform.All() {
		issued, err := m.Create(ctx, Params{UserID: userID, Platform: p})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		tokens = append(tokens, issued.Token)
	}

	n, err := m.RevokeAll(ctx, userID)
	if err != nil || n != int64(len(tokens)) {
		t.Fatalf("expected %d revoked, n=%d err=%v", len(tokens), n, err)
	}
	for _, tok := range tokens {
		if _, err := m.Validate(ctx, tok); !errors.Is(err, ErrInvalid) {
			t.Fatalf("expected ErrInvalid after RevokeAll, got %v", err)
		}
	}
}

func TestRotateKeepsTokenEarlyInLifetime(t *testing.T) {
	m, _, clock, userID := newTestManager(t)
	ctx := context.Background()

	issued, _ := m.Create(ctx, Params{UserID: userID, Platform: platform.Web})
	// 7d lifetime, 4d elapsed: 3d remaining is above the 25% threshold.
	clock.Advance(4 * 24 * time.Hour)

	rec, err := m.Validate(ctx, issued.Token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	next, rotated, err := m.Rotate(ctx, rec)
	if err != nil || rotated || next != nil {
		t.Fatalf("expected no rotation, rotated=%v err=%v", rotated, err)
	}
	if _, err := m.Validate(ctx, issued.Token); err != nil {
		t.Fatalf("original token should remain valid: %v", err)
	}
}

func TestRotateReplacesTokenNearExpiry(t *testing.T) {
	m, _, clock, userID := newTestManager(t)
	ctx := context.Background()

	issued, _ := m.Create(ctx, Params{UserID: userID, Platform: platform.Web, DeviceID: "device-9", SessionID: "sess-1"})
	clock.Advance(6 * 24 * time.Hour)

	rec, err := m.Validate(ctx, issued.Token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	next, rotated, err := m.Rotate(ctx, rec)
	if err != nil || !rotated {
		t.Fatalf("expected rotation, rotated=%v err=%v", rotated, err)
	}
	if next.Token == issued.Token {
		t.Fatal("expected a different token string")
	}
	if next.Record.DeviceID == nil || *next.Record.DeviceID != "device-9" {
		t.Fatal("expected device id to carry over")
	}
	if next.Record.SessionID == nil || *next.Record.SessionID != "sess-1" {
		t.Fatal("expected session id to carry over")
	}
	if _, err := m.Validate(ctx, issued.Token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected original to be invalid, got %v", err)
	}
	if _, err := m.Validate(ctx, next.Token); err != nil {
		t.Fatalf("expected successor to validate: %v", err)
	}
}

func TestConcurrentRotateHasOneWinner(t *testing.T) {
	m, st, clock, userID := newTestManager(t)
	ctx := context.Background()

	issued, _ := m.Create(ctx, Params{UserID: userID, Platform: platform.Web})
	clock.Advance(6 * 24 * time.Hour)
	rec, err := m.Validate(ctx, issued.Token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snapshot := *rec
			next, rotated, err := m.Rotate(ctx, &snapshot)
			if err != nil {
				if !errors.Is(err, ErrInvalid) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if rotated {
				mu.Lock()
				winners = append(winners, next.Token)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("expected one winner, got %d", len(winners))
	}
	var live int64
	st.DB().Model(&store.RefreshToken{}).Where("user_id = ? AND revoked = ?", userID, false).Count(&live)
	if live != 1 {
		t.Fatalf("expected one live token, got %d", live)
	}
	if _, err := m.Validate(ctx, winners[0]); err != nil {
		t.Fatalf("winner token should validate: %v", err)
	}
}

func TestShouldRotateBoundary(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := &store.RefreshToken{CreatedAt: created, ExpiresAt: created.Add(100 * time.Hour)}

	if ShouldRotate(rec, created.Add(75*time.Hour)) {
		t.Fatal("exactly 25% remaining must not rotate")
	}
	if !ShouldRotate(rec, created.Add(75*time.Hour+time.Second)) {
		t.Fatal("under 25% remaining must rotate")
	}
}

func TestCleanup(t *testing.T) {
	m, _, clock, userID := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Create(ctx, Params{UserID: userID, Platform: platform.Web}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	revoked, _ := m.Create(ctx, Params{UserID: userID, Platform: platform.Mobile})
	if err := m.Revoke(ctx, revoked.Token); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	n, err := m.Cleanup(ctx)
	if err != nil || n != 0 {
		t.Fatalf("expected nothing to clean yet, n=%d err=%v", n, err)
	}

	clock.Advance(31 * 24 * time.Hour)
	n, err = m.Cleanup(ctx)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 cleaned rows, n=%d err=%v", n, err)
	}
}
