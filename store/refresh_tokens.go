package store

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// CreateRefreshToken inserts t.
func (s *Store) CreateRefreshToken(ctx context.Context, t *RefreshToken) error {
	return translate(s.db.WithContext(ctx).Create(t).Error)
}

// GetRefreshTokenByHash loads the token row whose digest is hash.
func (s *Store) GetRefreshTokenByHash(ctx context.Context, hash string) (*RefreshToken, error) {
	var t RefreshToken
	if err := s.db.WithContext(ctx).Where("token_hash = ?", hash).First(&t).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

// RevokeRefreshToken marks the token with digest hash revoked. Unknown or
// already-revoked tokens are not an error.
func (s *Store) RevokeRefreshToken(ctx context.Context, hash string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&RefreshToken{}).
		Where("token_hash = ? AND revoked = ?", hash, false).
		Updates(map[string]any{"revoked": true, "revoked_at": utc(at)}).Error
	return translate(err)
}

// RevokeUserRefreshTokens revokes every live token of userID.
func (s *Store) RevokeUserRefreshTokens(ctx context.Context, userID string, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Updates(map[string]any{"revoked": true, "revoked_at": utc(at)})
	return res.RowsAffected, translate(res.Error)
}

// RotateRefreshToken revokes oldID and inserts next in one transaction. The
// revoke only applies to a row that is still unrevoked; if another caller got
// there first the transaction rolls back with ErrStale and next is not stored.
func (s *Store) RotateRefreshToken(ctx context.Context, oldID string, next *RefreshToken, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&RefreshToken{}).
			Where("id = ? AND revoked = ?", oldID, false).
			Updates(map[string]any{"revoked": true, "revoked_at": utc(at)})
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected != 1 {
			return ErrStale
		}
		return translate(tx.Create(next).Error)
	})
}

// DeleteStaleRefreshTokens removes tokens expired at now and tokens revoked
// at or before revokedBefore.
func (s *Store) DeleteStaleRefreshTokens(ctx context.Context, now, revokedBefore time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at <= ?", utc(now)).
		Or("revoked = ? AND revoked_at <= ?", true, utc(revokedBefore)).
		Delete(&RefreshToken{})
	return res.RowsAffected, translate(res.Error)
}
