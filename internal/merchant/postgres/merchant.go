package postgres

import (
	"context"
	"errors"

	merchantDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/merchant"
	merchantpkg "github.com/frahmantamala/payment-gateway/internal/merchant"
	"gorm.io/gorm"
)

type MerchantRepository struct {
	db *gorm.DB
}

func NewMerchantRepository(db *gorm.DB) merchantpkg.RepositoryAPI {
	return &MerchantRepository{
		db: db,
	}
}

func (r *MerchantRepository) Create(ctx context.Context, m *merchantpkg.Merchant) error {
	row := merchantpkg.ToDataModel(m)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	m.CreatedAt = row.CreatedAt
	m.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *MerchantRepository) first(ctx context.Context, query string, arg interface{}) (*merchantpkg.Merchant, error) {
	var m merchantDatamodel.Merchant
	err := r.db.WithContext(ctx).Where(query, arg).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, merchantpkg.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return merchantpkg.FromDataModel(&m), nil
}

func (r *MerchantRepository) GetByID(ctx context.Context, id string) (*merchantpkg.Merchant, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *MerchantRepository) GetByAPIKey(ctx context.Context, apiKey string) (*merchantpkg.Merchant, error) {
	return r.first(ctx, "api_key = ?", apiKey)
}

func (r *MerchantRepository) GetByEmail(ctx context.Context, email string) (*merchantpkg.Merchant, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *MerchantRepository) UpdateWebhookURL(ctx context.Context, id string, url *string) error {
	return r.update(ctx, id, map[string]interface{}{"webhook_url": url})
}

func (r *MerchantRepository) UpdateWebhookSecret(ctx context.Context, id, secret string) error {
	return r.update(ctx, id, map[string]interface{}{"webhook_secret": secret})
}

func (r *MerchantRepository) update(ctx context.Context, id string, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&merchantDatamodel.Merchant{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return merchantpkg.ErrNotFound
	}
	return nil
}
