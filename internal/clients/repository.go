package clients

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/realmgate/realmgate/model"
	"gorm.io/gorm"
)

type ClientRepository interface {
	GetByID(ctx context.Context, id uint) (*model.Client, error)
	GetByClientID(ctx context.Context, realmID uint, clientID string) (*model.Client, error)
	Create(ctx context.Context, client *model.Client) error
}

type clientRepository struct {
	db *gorm.DB
}

func (r *clientRepository) GetByID(ctx context.Context, id uint) (*model.Client, error) {
	var client model.Client
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClientNotFound
	}
	return &client, err
}

func (r *clientRepository) GetByClientID(ctx context.Context, realmID uint, clientID string) (*model.Client, error) {
	var client model.Client
	err := r.db.WithContext(ctx).Where("realm_id = ? AND client_id = ?", realmID, clientID).First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClientNotFound
	}
	return &client, err
}

func (r *clientRepository) Create(ctx context.Context, client *model.Client) error {
	err := r.db.WithContext(ctx).Create(client).Error
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return ErrClientAlreadyRegistered
	}
	return err
}

func NewClientRepository(db *gorm.DB) ClientRepository {
	return &clientRepository{db}
}
