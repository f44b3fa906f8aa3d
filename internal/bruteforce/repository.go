package bruteforce

import (
	"context"
	"time"

	"github.com/realmgate/realmgate/model"
	"gorm.io/gorm"
)

type FailureRepository interface {
	Create(ctx context.Context, failure *model.LoginFailure) error
	CountSince(ctx context.Context, realmID, userID uint, since time.Time) (int64, error)
	CountAll(ctx context.Context, realmID, userID uint) (int64, error)
	DeleteByUser(ctx context.Context, realmID, userID uint) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type failureRepository struct {
	db *gorm.DB
}

func (r *failureRepository) Create(ctx context.Context, failure *model.LoginFailure) error {
	return r.db.WithContext(ctx).Create(failure).Error
}

func (r *failureRepository) CountSince(ctx context.Context, realmID, userID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.LoginFailure{}).
		Where("realm_id = ? AND user_id = ? AND created_at >= ?", realmID, userID, since).
		Count(&count).Error
	return count, err
}

func (r *failureRepository) CountAll(ctx context.Context, realmID, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.LoginFailure{}).
		Where("realm_id = ? AND user_id = ?", realmID, userID).
		Count(&count).Error
	return count, err
}

func (r *failureRepository) DeleteByUser(ctx context.Context, realmID, userID uint) error {
	return r.db.WithContext(ctx).
		Where("realm_id = ? AND user_id = ?", realmID, userID).
		Delete(&model.LoginFailure{}).Error
}

func (r *failureRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&model.LoginFailure{})
	return res.RowsAffected, res.Error
}

func NewFailureRepository(db *gorm.DB) FailureRepository {
	return &failureRepository{db}
}
