package webhook

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

type WebhookLog struct {
	ID            string         `gorm:"column:id;primaryKey;size:64"`
	MerchantID    string         `gorm:"column:merchant_id;not null;index;size:64"`
	Event         string         `gorm:"column:event;not null;size:50"`
	Payload       datatypes.JSON `gorm:"column:payload;not null"`
	Status        string         `gorm:"column:status;not null;index;size:20"`
	Attempts      int            `gorm:"column:attempts;not null;default:0"`
	Generation    int            `gorm:"column:generation;not null;default:0"`
	LastAttemptAt *time.Time     `gorm:"column:last_attempt_at"`
	NextRetryAt   *time.Time     `gorm:"column:next_retry_at"`
	ResponseCode  *int           `gorm:"column:response_code"`
	ResponseBody  *string        `gorm:"column:response_body"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (WebhookLog) TableName() string {
	return "webhook_logs"
}
