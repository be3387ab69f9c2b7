package merchant

import "time"

type Merchant struct {
	ID            string    `gorm:"column:id;primaryKey;size:64"`
	Name          string    `gorm:"column:name;not null"`
	Email         string    `gorm:"column:email;not null;uniqueIndex"`
	APIKey        string    `gorm:"column:api_key;not null;uniqueIndex;size:64"`
	APISecretHash string    `gorm:"column:api_secret_hash;not null"`
	WebhookURL    *string   `gorm:"column:webhook_url"`
	WebhookSecret string    `gorm:"column:webhook_secret;not null;size:64"`
	IsActive      bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Merchant) TableName() string {
	return "merchants"
}
