package merchant

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	merchantDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/merchant"
)

const (
	WebhookSecretPrefix = "whsec_"
	APIKeyPrefix        = "key_"
	APISecretPrefix     = "secret_"
)

type Merchant struct {
	ID            string
	Name          string
	Email         string
	APIKey        string
	APISecretHash string
	WebhookURL    string
	WebhookSecret string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// WebhookTarget is what the delivery worker needs to reach a merchant.
type WebhookTarget struct {
	MerchantID string
	URL        string
	Secret     string
}

func (m *Merchant) Target() WebhookTarget {
	return WebhookTarget{MerchantID: m.ID, URL: m.WebhookURL, Secret: m.WebhookSecret}
}

func (m *Merchant) ToConfigResponse() ConfigResponse {
	resp := ConfigResponse{
		ID:            m.ID,
		Name:          m.Name,
		Email:         m.Email,
		WebhookSecret: m.WebhookSecret,
		APIKey:        m.APIKey,
	}
	if m.WebhookURL != "" {
		url := m.WebhookURL
		resp.WebhookURL = &url
	}
	return resp
}

func FromDataModel(m *merchantDatamodel.Merchant) *Merchant {
	out := &Merchant{
		ID:            m.ID,
		Name:          m.Name,
		Email:         m.Email,
		APIKey:        m.APIKey,
		APISecretHash: m.APISecretHash,
		WebhookSecret: m.WebhookSecret,
		IsActive:      m.IsActive,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.WebhookURL != nil {
		out.WebhookURL = *m.WebhookURL
	}
	return out
}

func ToDataModel(m *Merchant) *merchantDatamodel.Merchant {
	out := &merchantDatamodel.Merchant{
		ID:            m.ID,
		Name:          m.Name,
		Email:         m.Email,
		APIKey:        m.APIKey,
		APISecretHash: m.APISecretHash,
		WebhookSecret: m.WebhookSecret,
		IsActive:      m.IsActive,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.WebhookURL != "" {
		url := m.WebhookURL
		out.WebhookURL = &url
	}
	return out
}

func NewWebhookSecret() (string, error) {
	return randomToken(WebhookSecretPrefix, 16)
}

func randomToken(prefix string, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return prefix + hex.EncodeToString(buf), nil
}
