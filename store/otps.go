package store

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// ReplaceOTP marks every unused OTP of (o.UserID, o.Purpose) used and inserts
// o, in one transaction. At most one live code per purpose survives.
func (s *Store) ReplaceOTP(ctx context.Context, o *OTP) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&OTP{}).
			Where("user_id = ? AND purpose = ? AND used = ?", o.UserID, o.Purpose, false).
			UpdateColumn("used", true).Error
		if err != nil {
			return translate(err)
		}
		return translate(tx.Create(o).Error)
	})
}

// LatestActiveOTP returns the newest unused, unexpired OTP for (userID, purpose).
func (s *Store) LatestActiveOTP(ctx context.Context, userID, purpose string, now time.Time) (*OTP, error) {
	var o OTP
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND purpose = ? AND used = ? AND expires_at > ?", userID, purpose, false, utc(now)).
		Order("created_at DESC").
		First(&o).Error
	if err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

// IncrementOTPAttempts spends one attempt on an unused OTP that still has
// budget left and reports how many attempts remain after it. ok is false when
// the OTP is used or already exhausted. The count is read back inside the same
// transaction, so concurrent callers each see their own post-increment value.
func (s *Store) IncrementOTPAttempts(ctx context.Context, id string) (remaining int, ok bool, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&OTP{}).
			Where("id = ? AND used = ? AND attempts < max_attempts", id, false).
			UpdateColumn("attempts", gorm.Expr("attempts + 1"))
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected != 1 {
			return nil
		}

		var o OTP
		if err := tx.Select("attempts", "max_attempts").Where("id = ?", id).First(&o).Error; err != nil {
			return translate(err)
		}
		remaining, ok = o.MaxAttempts-o.Attempts, true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return remaining, ok, nil
}

// BurnOTP marks the OTP used without granting anything.
func (s *Store) BurnOTP(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Model(&OTP{}).
		Where("id = ?", id).
		UpdateColumn("used", true).Error
	return translate(err)
}

// BurnUserOTPs marks every unused OTP of userID used, across all purposes.
func (s *Store) BurnUserOTPs(ctx context.Context, userID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&OTP{}).
		Where("user_id = ? AND used = ?", userID, false).
		UpdateColumn("used", true)
	return res.RowsAffected, translate(res.Error)
}

// ConsumeOTP transitions an unused OTP to used and, in the same transaction,
// sets the requested verification flag on its user. It returns false without
// touching the user when the OTP was already used.
func (s *Store) ConsumeOTP(ctx context.Context, id string, verify Verification) (bool, error) {
	consumed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o OTP
		if err := tx.Where("id = ?", id).First(&o).Error; err != nil {
			return translate(err)
		}

		res := tx.Model(&OTP{}).
			Where("id = ? AND used = ?", id, false).
			UpdateColumn("used", true)
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected != 1 {
			return nil
		}
		consumed = true

		var column string
		switch verify {
		case VerifyEmail:
			column = "email_verified"
		case VerifyPhone:
			column = "phone_verified"
		default:
			return nil
		}
		return translate(tx.Model(&User{}).Where("id = ?", o.UserID).UpdateColumn(column, true).Error)
	})
	if err != nil {
		return false, err
	}
	return consumed, nil
}

// DeleteExpiredOTPs removes OTPs that expired at or before before.
func (s *Store) DeleteExpiredOTPs(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", utc(before)).Delete(&OTP{})
	return res.RowsAffected, translate(res.Error)
}
