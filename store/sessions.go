package store

import (
	"context"
	"time"
)

// CreateSession inserts sess.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	return translate(s.db.WithContext(ctx).Create(sess).Error)
}

// GetSessionByToken loads the session whose token digest is hash.
func (s *Store) GetSessionByToken(ctx context.Context, hash string) (*Session, error) {
	var sess Session
	if err := s.db.WithContext(ctx).Where("token = ?", hash).First(&sess).Error; err != nil {
		return nil, translate(err)
	}
	return &sess, nil
}

// GetSession loads a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&sess).Error; err != nil {
		return nil, translate(err)
	}
	return &sess, nil
}

// TouchSession bumps last_active_at on a valid session. A missing or invalid
// session is not an error.
func (s *Store) TouchSession(ctx context.Context, id string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND valid = ?", id, true).
		UpdateColumn("last_active_at", utc(at)).Error
	return translate(err)
}

// InvalidateSession clears the valid flag. Invalidating twice is not an error.
func (s *Store) InvalidateSession(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND valid = ?", id, true).
		UpdateColumn("valid", false).Error
	return translate(err)
}

// InvalidateUserSessions clears the valid flag on every session of userID and
// returns how many changed.
func (s *Store) InvalidateUserSessions(ctx context.Context, userID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Session{}).
		Where("user_id = ? AND valid = ?", userID, true).
		UpdateColumn("valid", false)
	return res.RowsAffected, translate(res.Error)
}

// InvalidateExpiredSessions marks every still-valid session whose expiry is
// at or before now as invalid.
func (s *Store) InvalidateExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Session{}).
		Where("valid = ? AND expires_at <= ?", true, utc(now)).
		UpdateColumn("valid", false)
	return res.RowsAffected, translate(res.Error)
}
