package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/internal/storetest"
	"github.com/MrEthical07/authcore/store"
)

func TestCreateUserConflicts(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	storetest.SeedUser(t, s, "alice", storetest.Ptr("alice@example.com"), nil)

	err := s.CreateUser(ctx, &store.User{Username: "alice2", Email: storetest.Ptr("alice@example.com"), Active: true})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
	err = s.CreateUser(ctx, &store.User{Username: "alice", Active: true})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate username, got %v", err)
	}

	// NULL contacts never collide.
	storetest.SeedUser(t, s, "bob", nil, nil)
	storetest.SeedUser(t, s, "carol", nil, nil)
}

func TestActiveLookupsIgnoreDeactivatedUsers(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	u := storetest.SeedUser(t, s, "dave", storetest.Ptr("dave@example.com"), nil)
	if _, err := s.FindActiveUserByEmail(ctx, "dave@example.com"); err != nil {
		t.Fatalf("expected active lookup to succeed: %v", err)
	}
	if err := s.SetUserActive(ctx, u.ID, false); err != nil {
		t.Fatalf("SetUserActive failed: %v", err)
	}
	if _, err := s.FindActiveUserByEmail(ctx, "dave@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for inactive user, got %v", err)
	}
	if _, err := s.FindActiveUserByUsername(ctx, "dave"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for inactive username, got %v", err)
	}
	if _, err := s.FindUserByEmail(ctx, "dave@example.com"); err != nil {
		t.Fatalf("expected unfiltered lookup to succeed: %v", err)
	}
	if err := s.SetUserActive(ctx, "missing", true); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}
}

func TestUserHasPermissionWildcard(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	u := storetest.SeedUser(t, s, "erin", nil, nil)
	role, err := s.EnsureRole(ctx, "ops")
	if err != nil {
		t.Fatalf("EnsureRole failed: %v", err)
	}
	manage, err := s.EnsurePermission(ctx, "orders", store.ManageAction)
	if err != nil {
		t.Fatalf("EnsurePermission failed: %v", err)
	}
	if err := s.AssignPermissionToRole(ctx, role.ID, manage.ID); err != nil {
		t.Fatalf("AssignPermissionToRole failed: %v", err)
	}
	if err := s.AssignPermissionToRole(ctx, role.ID, manage.ID); err != nil {
		t.Fatalf("repeat assign should be a no-op: %v", err)
	}

	ok, err := s.UserHasPermission(ctx, u.ID, "orders", "cancel")
	if err != nil || ok {
		t.Fatalf("expected no permission before role assignment, ok=%v err=%v", ok, err)
	}

	if err := s.AssignRoleToUser(ctx, u.ID, role.ID); err != nil {
		t.Fatalf("AssignRoleToUser failed: %v", err)
	}
	for _, action := range []string{"cancel", "read", "refund"} {
		ok, err := s.UserHasPermission(ctx, u.ID, "orders", action)
		if err != nil || !ok {
			t.Fatalf("expected manage to grant %q, ok=%v err=%v", action, ok, err)
		}
	}
	ok, err = s.UserHasPermission(ctx, u.ID, "tickets", "read")
	if err != nil || ok {
		t.Fatalf("expected no grant on other resource, ok=%v err=%v", ok, err)
	}

	ids, err := s.RoleUserIDs(ctx, role.ID)
	if err != nil || len(ids) != 1 || ids[0] != u.ID {
		t.Fatalf("unexpected role users %v err=%v", ids, err)
	}
	names, err := s.UserRoleNames(ctx, u.ID)
	if err != nil || len(names) != 1 || names[0] != "ops" {
		t.Fatalf("unexpected role names %v err=%v", names, err)
	}

	if err := s.RemovePermissionFromRole(ctx, role.ID, manage.ID); err != nil {
		t.Fatalf("RemovePermissionFromRole failed: %v", err)
	}
	if err := s.RemovePermissionFromRole(ctx, role.ID, manage.ID); err != nil {
		t.Fatalf("repeat remove should be a no-op: %v", err)
	}
	ok, _ = s.UserHasPermission(ctx, u.ID, "orders", "cancel")
	if ok {
		t.Fatal("expected permission gone after removal")
	}
}

func TestAssignMissingReferences(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	role, _ := s.EnsureRole(ctx, "viewer")
	if err := s.AssignPermissionToRole(ctx, role.ID, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing permission, got %v", err)
	}
	if err := s.AssignRoleToUser(ctx, "nobody", role.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}
}

func TestRotateRefreshTokenSingleWinner(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	now := time.Now().UTC()

	u := storetest.SeedUser(t, s, "frank", nil, nil)
	old := &store.RefreshToken{UserID: u.ID, TokenHash: "old", Platform: "web", ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	if err := s.CreateRefreshToken(ctx, old); err != nil {
		t.Fatalf("CreateRefreshToken failed: %v", err)
	}

	const racers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := &store.RefreshToken{
				UserID:    u.ID,
				TokenHash: string(rune('a' + i)),
				Platform:  "web",
				ExpiresAt: now.Add(2 * time.Hour),
				CreatedAt: now,
			}
			err := s.RotateRefreshToken(ctx, old.ID, next, now)
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
				return
			}
			if !errors.Is(err, store.ErrStale) {
				t.Errorf("unexpected rotate error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one rotation winner, got %d", winners)
	}

	var live int64
	if err := s.DB().Model(&store.RefreshToken{}).Where("user_id = ? AND revoked = ?", u.ID, false).Count(&live).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if live != 1 {
		t.Fatalf("expected exactly one live token, got %d", live)
	}
}

func TestDeleteStaleRefreshTokens(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	now := time.Now().UTC()

	u := storetest.SeedUser(t, s, "gina", nil, nil)
	longAgo := now.Add(-31 * 24 * time.Hour)
	rows := []*store.RefreshToken{
		{UserID: u.ID, TokenHash: "expired", Platform: "web", ExpiresAt: now.Add(-time.Minute), CreatedAt: longAgo},
		{UserID: u.ID, TokenHash: "old-revoked", Platform: "web", ExpiresAt: now.Add(time.Hour), Revoked: true, RevokedAt: &longAgo, CreatedAt: longAgo},
		{UserID: u.ID, TokenHash: "fresh-revoked", Platform: "web", ExpiresAt: now.Add(time.Hour), Revoked: true, RevokedAt: &now, CreatedAt: now},
		{UserID: u.ID, TokenHash: "live", Platform: "web", ExpiresAt: now.Add(time.Hour), CreatedAt: now},
	}
	for _, r := range rows {
		if err := s.CreateRefreshToken(ctx, r); err != nil {
			t.Fatalf("CreateRefreshToken failed: %v", err)
		}
	}

	n, err := s.DeleteStaleRefreshTokens(ctx, now, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteStaleRefreshTokens failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted rows, got %d", n)
	}
	for _, hash := range []string{"fresh-revoked", "live"} {
		if _, err := s.GetRefreshTokenByHash(ctx, hash); err != nil {
			t.Fatalf("expected %q to survive: %v", hash, err)
		}
	}
}

func TestOTPAttemptsAreBounded(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	now := time.Now().UTC()

	u := storetest.SeedUser(t, s, "hank", storetest.Ptr("hank@example.com"), nil)
	o := &store.OTP{UserID: u.ID, Purpose: "EMAIL_VERIFICATION", CodeHash: "h", ExpiresAt: now.Add(time.Hour), MaxAttempts: 3, CreatedAt: now}
	if err := s.ReplaceOTP(ctx, o); err != nil {
		t.Fatalf("ReplaceOTP failed: %v", err)
	}

	const racers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		granted   int
		remaining = map[int]int{}
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			left, ok, err := s.IncrementOTPAttempts(ctx, o.ID)
			if err != nil {
				t.Errorf("IncrementOTPAttempts failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				granted++
				remaining[left]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 3 {
		t.Fatalf("expected exactly 3 granted attempts, got %d", granted)
	}
	// Each granted caller observes a distinct post-increment count, so exactly
	// one of them learns the budget is gone.
	for _, left := range []int{0, 1, 2} {
		if remaining[left] != 1 {
			t.Fatalf("expected one caller to see %d remaining, got %v", left, remaining)
		}
	}
}

func TestBurnUserOTPs(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	now := time.Now().UTC()

	u := storetest.SeedUser(t, s, "jane", storetest.Ptr("jane@example.com"), nil)
	other := storetest.SeedUser(t, s, "kurt", storetest.Ptr("kurt@example.com"), nil)
	for _, o := range []*store.OTP{
		{UserID: u.ID, Purpose: "EMAIL_VERIFICATION", CodeHash: "a", ExpiresAt: now.Add(time.Hour), MaxAttempts: 5, CreatedAt: now},
		{UserID: u.ID, Purpose: "PASSWORD_RESET", CodeHash: "b", ExpiresAt: now.Add(time.Hour), MaxAttempts: 5, CreatedAt: now},
		{UserID: other.ID, Purpose: "PASSWORD_RESET", CodeHash: "c", ExpiresAt: now.Add(time.Hour), MaxAttempts: 5, CreatedAt: now},
	} {
		if err := s.ReplaceOTP(ctx, o); err != nil {
			t.Fatalf("ReplaceOTP failed: %v", err)
		}
	}

	n, err := s.BurnUserOTPs(ctx, u.ID)
	if err != nil {
		t.Fatalf("BurnUserOTPs failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 burned codes, got %d", n)
	}
	for _, purpose := range []string{"EMAIL_VERIFICATION", "PASSWORD_RESET"} {
		if _, err := s.LatestActiveOTP(ctx, u.ID, purpose, now); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected %s code burned, got %v", purpose, err)
		}
	}
	if _, err := s.LatestActiveOTP(ctx, other.ID, "PASSWORD_RESET", now); err != nil {
		t.Fatalf("expected other user's code to survive: %v", err)
	}
}

func TestReplaceAndConsumeOTP(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	now := time.Now().UTC()

	u := storetest.SeedUser(t, s, "iris", storetest.Ptr("iris@example.com"), nil)
	first := &store.OTP{UserID: u.ID, Purpose: "EMAIL_VERIFICATION", CodeHash: "a", ExpiresAt: now.Add(time.Hour), MaxAttempts: 5, CreatedAt: now}
	second := &store.OTP{UserID: u.ID, Purpose: "EMAIL_VERIFICATION", CodeHash: "b", ExpiresAt: now.Add(time.Hour), MaxAttempts: 5, CreatedAt: now.Add(time.Second)}
	if err := s.ReplaceOTP(ctx, first); err != nil {
		t.Fatalf("ReplaceOTP failed: %v", err)
	}
	if err := s.ReplaceOTP(ctx, second); err != nil {
		t.Fatalf("ReplaceOTP failed: %v", err)
	}

	active, err := s.LatestActiveOTP(ctx, u.ID, "EMAIL_VERIFICATION", now)
	if err != nil {
		t.Fatalf("LatestActiveOTP failed: %v", err)
	}
	if active.ID != second.ID {
		t.Fatalf("expected newest code to be the only active one")
	}

	ok, err := s.ConsumeOTP(ctx, second.ID, store.VerifyEmail)
	if err != nil || !ok {
		t.Fatalf("expected first consume to win, ok=%v err=%v", ok, err)
	}
	ok, err = s.ConsumeOTP(ctx, second.ID, store.VerifyEmail)
	if err != nil || ok {
		t.Fatalf("expected second consume to lose, ok=%v err=%v", ok, err)
	}

	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if !got.EmailVerified || got.PhoneVerified {
		t.Fatalf("unexpected verification flags email=%v phone=%v", got.EmailVerified, got.PhoneVerified)
	}

	if _, err := s.LatestActiveOTP(ctx, u.ID, "EMAIL_VERIFICATION", now); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no active otp, got %v", err)
	}
}

func TestInvalidateExpiredSessions(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	now := time.Now().UTC()

	u := storetest.SeedUser(t, s, "jack", nil, nil)
	expired := &store.Session{UserID: u.ID, Token: "t1", Platform: "web", ExpiresAt: now.Add(-time.Minute), Valid: true, LastActiveAt: now}
	live := &store.Session{UserID: u.ID, Token: "t2", Platform: "web", ExpiresAt: now.Add(time.Hour), Valid: true, LastActiveAt: now}
	for _, sess := range []*store.Session{expired, live} {
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
	}

	n, err := s.InvalidateExpiredSessions(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 invalidated session, n=%d err=%v", n, err)
	}
	n, err = s.InvalidateExpiredSessions(ctx, now)
	if err != nil || n != 0 {
		t.Fatalf("expected cleanup to be idempotent, n=%d err=%v", n, err)
	}

	got, err := s.GetSession(ctx, live.ID)
	if err != nil || !got.Valid {
		t.Fatalf("expected live session untouched, err=%v", err)
	}
}
