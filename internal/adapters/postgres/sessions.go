package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/example/record-service/internal/domain"
)

type sessionRepo struct{ db *gorm.DB }

func (r *sessionRepo) FindByUserAndDevice(ctx context.Context, userID, deviceID string) (*domain.RefreshToken, error) {
	var token domain.RefreshToken
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		First(&token).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

func (r *sessionRepo) Create(ctx context.Context, token *domain.RefreshToken) error {
	return translate(r.db.WithContext(ctx).Create(token).Error)
}

func (r *sessionRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.RefreshToken{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *sessionRepo) DeleteByUserAndDevice(ctx context.Context, userID, deviceID string) error {
	return translate(r.db.WithContext(ctx).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		Delete(&domain.RefreshToken{}).Error)
}

func (r *sessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.RefreshToken{})
	return res.RowsAffected, translate(res.Error)
}
