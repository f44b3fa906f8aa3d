package realms

import (
	"context"
	"errors"
	"time"

	"github.com/realmgate/realmgate/model"
	"github.com/realmgate/realmgate/params"
	"gorm.io/gorm"
)

var ErrRealmNotFound = errors.New("realm not found")

// Repository is the read surface of the realm administration
// collaborator. Realm CRUD lives outside this server.
type Repository interface {
	GetByName(ctx context.Context, name string) (*model.Realm, error)
}

type repository struct {
	db *gorm.DB
}

func (r *repository) GetByName(ctx context.Context, name string) (*model.Realm, error) {
	var realm model.Realm
	err := r.db.WithContext(ctx).Where("name = ? AND enabled = ?", name, true).First(&realm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRealmNotFound
	}
	return &realm, err
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db}
}

// AccessTokenLifespan returns the realm's configured lifespan, falling
// back to the server default for unset realms.
func AccessTokenLifespan(realm *model.Realm) time.Duration {
	if realm.AccessTokenLifespan > 0 {
		return realm.AccessTokenLifespan
	}
	return params.DefaultAccessTokenLifespan
}

func RefreshTokenLifespan(realm *model.Realm) time.Duration {
	if realm.RefreshTokenLifespan > 0 {
		return realm.RefreshTokenLifespan
	}
	return params.DefaultRefreshTokenLifespan
}

func SSOSessionLifespan(realm *model.Realm) time.Duration {
	if realm.SSOSessionLifespan > 0 {
		return realm.SSOSessionLifespan
	}
	return params.DefaultSSOSessionLifespan
}
