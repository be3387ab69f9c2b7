package merchant

type ConfigResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	WebhookURL    *string `json:"webhook_url"`
	WebhookSecret string  `json:"webhook_secret"`
	APIKey        string  `json:"api_key"`
}

type UpdateWebhookDTO struct {
	WebhookURL string `json:"webhook_url" validate:"omitempty,url,startswith=http"`
}

type WebhookConfigResponse struct {
	WebhookURL    *string `json:"webhook_url"`
	WebhookSecret string  `json:"webhook_secret"`
}

type SecretResponse struct {
	WebhookSecret string `json:"webhook_secret"`
}

type TestWebhookResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CreateMerchantDTO is used by the seed command. Empty key material is generated.
type CreateMerchantDTO struct {
	Name       string
	Email      string
	APIKey     string
	APISecret  string
	WebhookURL string
}

// Credentials are returned once at creation; only the secret hash is stored.
type Credentials struct {
	MerchantID string `json:"merchant_id"`
	APIKey     string `json:"api_key"`
	APISecret  string `json:"api_secret"`
}

type TestMerchantResponse struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	APIKey string `json:"api_key"`
	Seeded bool   `json:"seeded"`
}
