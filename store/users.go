package store

import (
	"context"
	"time"
)

// CreateUser inserts u. A duplicate email, phone or username yields ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	return translate(s.db.WithContext(ctx).Create(u).Error)
}

// GetUser loads a user by id regardless of the active flag.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// FindActiveUserByEmail returns the active user owning email.
func (s *Store) FindActiveUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.findUser(ctx, "email = ? AND active = ?", email, true)
}

// FindActiveUserByUsername returns the active user with the given username.
func (s *Store) FindActiveUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.findUser(ctx, "username = ? AND active = ?", username, true)
}

// FindUserByEmail returns the user owning email, active or not.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.findUser(ctx, "email = ?", email)
}

// FindUserByPhone returns the user owning phone, active or not.
func (s *Store) FindUserByPhone(ctx context.Context, phone string) (*User, error) {
	return s.findUser(ctx, "phone = ?", phone)
}

// FindUserByUsername returns the user with the given username, active or not.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.findUser(ctx, "username = ?", username)
}

func (s *Store) findUser(ctx context.Context, query string, args ...any) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).Where(query, args...).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// UpdateUserPassword replaces the stored password hash.
func (s *Store) UpdateUserPassword(ctx context.Context, id, hash string) error {
	return s.updateUser(ctx, id, map[string]any{"password_hash": hash})
}

// RecordLogin stamps the last-login time and current platform.
func (s *Store) RecordLogin(ctx context.Context, id, platform string, at time.Time) error {
	return s.updateUser(ctx, id, map[string]any{
		"last_login_at":    utc(at),
		"current_platform": platform,
	})
}

// SetUserActive flips the soft-delete flag.
func (s *Store) SetUserActive(ctx context.Context, id string, active bool) error {
	return s.updateUser(ctx, id, map[string]any{"active": active})
}

func (s *Store) updateUser(ctx context.Context, id string, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
