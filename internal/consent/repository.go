package consent

import (
	"context"
	"errors"

	"github.com/realmgate/realmgate/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConsentRepository interface {
	Get(ctx context.Context, userID, clientID uint) (*model.ConsentRecord, error)
	// Upsert replaces the stored scope set for the (user, client) pair.
	Upsert(ctx context.Context, record *model.ConsentRecord) error
	Delete(ctx context.Context, userID, clientID uint) error
}

type consentRepository struct {
	db *gorm.DB
}

func (r *consentRepository) Get(ctx context.Context, userID, clientID uint) (*model.ConsentRecord, error) {
	var record model.ConsentRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND client_id = ?", userID, clientID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &record, err
}

func (r *consentRepository) Upsert(ctx context.Context, record *model.ConsentRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "client_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"scopes", "updated_at"}),
		}).
		Create(record).Error
}

func (r *consentRepository) Delete(ctx context.Context, userID, clientID uint) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND client_id = ?", userID, clientID).
		Delete(&model.ConsentRecord{}).Error
}

func NewConsentRepository(db *gorm.DB) ConsentRepository {
	return &consentRepository{db}
}
