package auth

import (
	"context"
	"errors"
	"time"

	"github.com/sahilchouksey/exam-prep-api/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUserNotFound is returned when revoking sessions of a missing user
var ErrUserNotFound = errors.New("user not found")

const cleanupBatch = 500

// BlacklistService revokes tokens. Single tokens are revoked by JTI until
// they expire; all of a user's tokens are revoked by bumping token_version.
type BlacklistService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewBlacklistService(db *gorm.DB) *BlacklistService {
	return &BlacklistService{db: db, now: time.Now}
}

// RevokeToken blacklists jti until expiresAt. Revoking twice is not an error.
func (s *BlacklistService) RevokeToken(ctx context.Context, jti string, userID uint, expiresAt time.Time, reason string) error {
	entry := model.RevokedToken{
		JTI:       jti,
		UserID:    userID,
		Reason:    reason,
		ExpiresAt: expiresAt,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "jti"}}, DoNothing: true}).
		Create(&entry).Error
}

// Consume blacklists a single-use token and reports whether this call did it.
// False means the token had already been used or revoked.
func (s *BlacklistService) Consume(ctx context.Context, jti string, userID uint, expiresAt time.Time, reason string) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "jti"}}, DoNothing: true}).
		Create(&model.RevokedToken{JTI: jti, UserID: userID, Reason: reason, ExpiresAt: expiresAt})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IsTokenRevoked reports whether jti is blacklisted and not yet expired
func (s *BlacklistService) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var hits []uint
	err := s.db.WithContext(ctx).
		Model(&model.RevokedToken{}).
		Where("jti = ? AND expires_at > ?", jti, s.now()).
		Limit(1).
		Pluck("id", &hits).Error
	if err != nil {
		return false, err
	}
	return len(hits) > 0, nil
}

// RevokeAllUserTokens invalidates every token issued to userID so far
func (s *BlacklistService) RevokeAllUserTokens(ctx context.Context, userID uint) error {
	res := s.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn("token_version", gorm.Expr("token_version + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CleanupExpiredTokens deletes expired entries in batches and returns how many went
func (s *BlacklistService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	cutoff := s.now()
	var total int64
	for {
		var ids []uint
		err := s.db.WithContext(ctx).
			Model(&model.RevokedToken{}).
			Where("expires_at <= ?", cutoff).
			Limit(cleanupBatch).
			Pluck("id", &ids).Error
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}

		res := s.db.WithContext(ctx).Delete(&model.RevokedToken{}, ids)
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
		if len(ids) < cleanupBatch {
			return total, nil
		}
	}
}
