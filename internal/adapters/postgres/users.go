package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/example/record-service/internal/domain"
)

type userRepo struct{ db *gorm.DB }

func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	return translate(r.db.WithContext(ctx).Create(user).Error)
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *userRepo) SetOTP(ctx context.Context, userID string, otp domain.OTP) error {
	return r.update(ctx, userID, map[string]interface{}{
		"otp":        otp.Hash,
		"otp_type":   otp.Type,
		"otp_expiry": otp.Expiry,
	})
}

func (r *userRepo) MarkVerified(ctx context.Context, userID string) error {
	return r.update(ctx, userID, map[string]interface{}{
		"otp":         nil,
		"otp_type":    nil,
		"otp_expiry":  nil,
		"is_verified": true,
	})
}

func (r *userRepo) update(ctx context.Context, userID string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
