package postgres

import (
	"context"
	"errors"

	orderDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/order"
	orderpkg "github.com/frahmantamala/payment-gateway/internal/order"
	"gorm.io/gorm"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) orderpkg.RepositoryAPI {
	return &OrderRepository{
		db: db,
	}
}

func (r *OrderRepository) Create(ctx context.Context, o *orderDatamodel.Order) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*orderDatamodel.Order, error) {
	var o orderDatamodel.Order
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, orderpkg.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}
