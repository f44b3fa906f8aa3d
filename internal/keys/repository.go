package keys

import (
	"context"
	"errors"

	"github.com/realmgate/realmgate/model"
	"gorm.io/gorm"
)

type SigningKeyRepository interface {
	GetActive(ctx context.Context, realmID uint) (*model.SigningKey, error)
	GetByKID(ctx context.Context, kid string) (*model.SigningKey, error)
	ListByRealm(ctx context.Context, realmID uint) ([]*model.SigningKey, error)
	// Rotate deactivates every key of the realm and inserts newKey as
	// the single active one, in one transaction.
	Rotate(ctx context.Context, realmID uint, newKey *model.SigningKey) error
}

type signingKeyRepository struct {
	db *gorm.DB
}

func (r *signingKeyRepository) GetActive(ctx context.Context, realmID uint) (*model.SigningKey, error) {
	var key model.SigningKey
	err := r.db.WithContext(ctx).Where("realm_id = ? AND active = ?", realmID, true).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveKey
	}
	return &key, err
}

func (r *signingKeyRepository) GetByKID(ctx context.Context, kid string) (*model.SigningKey, error) {
	var key model.SigningKey
	err := r.db.WithContext(ctx).Where("kid = ?", kid).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrKeyNotFound
	}
	return &key, err
}

func (r *signingKeyRepository) ListByRealm(ctx context.Context, realmID uint) ([]*model.SigningKey, error) {
	var list []*model.SigningKey
	err := r.db.WithContext(ctx).Where("realm_id = ?", realmID).Find(&list).Error
	return list, err
}

func (r *signingKeyRepository) Rotate(ctx context.Context, realmID uint, newKey *model.SigningKey) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.SigningKey{}).
			Where("realm_id = ?", realmID).
			Update("active", false).Error; err != nil {
			return err
		}
		newKey.RealmID = realmID
		newKey.Active = true
		return tx.Create(newKey).Error
	})
}

func NewSigningKeyRepository(db *gorm.DB) SigningKeyRepository {
	return &signingKeyRepository{db}
}
