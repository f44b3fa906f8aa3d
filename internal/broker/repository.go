package broker

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/realmgate/realmgate/model"
	"gorm.io/gorm"
)

type ProviderRepository interface {
	GetByAlias(ctx context.Context, realmID uint, alias string) (*model.IdentityProvider, error)
	Create(ctx context.Context, provider *model.IdentityProvider) error
}

type LinkRepository interface {
	Get(ctx context.Context, realmID uint, alias, externalSubject string) (*model.FederatedIdentity, error)
	Create(ctx context.Context, link *model.FederatedIdentity) error
}

type providerRepository struct {
	db *gorm.DB
}

func (r *providerRepository) GetByAlias(ctx context.Context, realmID uint, alias string) (*model.IdentityProvider, error) {
	var provider model.IdentityProvider
	err := r.db.WithContext(ctx).
		Where("realm_id = ? AND alias = ? AND enabled = ?", realmID, alias, true).
		First(&provider).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProviderNotFound
	}
	return &provider, err
}

func (r *providerRepository) Create(ctx context.Context, provider *model.IdentityProvider) error {
	return r.db.WithContext(ctx).Create(provider).Error
}

func NewProviderRepository(db *gorm.DB) ProviderRepository {
	return &providerRepository{db: db}
}

type linkRepository struct {
	db *gorm.DB
}

func (r *linkRepository) Get(ctx context.Context, realmID uint, alias, externalSubject string) (*model.FederatedIdentity, error) {
	var link model.FederatedIdentity
	err := r.db.WithContext(ctx).
		Where("realm_id = ? AND provider_alias = ? AND external_subject = ?", realmID, alias, externalSubject).
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, gorm.ErrRecordNotFound
	}
	return &link, err
}

// Create relies on the unique index to keep linking idempotent under
// concurrent callbacks for the same external identity.
func (r *linkRepository) Create(ctx context.Context, link *model.FederatedIdentity) error {
	err := r.db.WithContext(ctx).Create(link).Error
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return ErrIdentityLinked
	}
	return err
}

func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &linkRepository{db: db}
}
