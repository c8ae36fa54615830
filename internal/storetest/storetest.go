// Package storetest opens throwaway SQLite-backed stores for package tests.
package storetest

import (
	"context"
	"testing"

	"github.com/MrEthical07/authcore/store"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New returns a migrated in-memory store that is closed when t finishes.
func New(t testing.TB) *store.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite pool: %v", err)
	}
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := store.New(db)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// SeedUser inserts an active user with the given username and optional
// contacts and returns it.
func SeedUser(t testing.TB, s *store.Store, username string, email, phone *string) *store.User {
	t.Helper()
	u := &store.User{
		Username: username,
		Email:    email,
		Phone:    phone,
		Active:   true,
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seed user %q: %v", username, err)
	}
	return u
}
