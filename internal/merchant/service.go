package merchant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	errs "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/core/events"
)

const testWebhookMessage = "This is a test webhook from your payment gateway."

var ErrNotFound = errors.New("merchant not found")

type RepositoryAPI interface {
	Create(ctx context.Context, m *Merchant) error
	GetByID(ctx context.Context, id string) (*Merchant, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*Merchant, error)
	GetByEmail(ctx context.Context, email string) (*Merchant, error)
	UpdateWebhookURL(ctx context.Context, id string, url *string) error
	UpdateWebhookSecret(ctx context.Context, id, secret string) error
}

type Publisher interface {
	PublishSync(ctx context.Context, event events.Event) error
}

type Service struct {
	repo       RepositoryAPI
	publisher  Publisher
	logger     *slog.Logger
	bcryptCost int
	validate   *validator.Validate
}

func NewService(repo RepositoryAPI, publisher Publisher, bcryptCost int, logger *slog.Logger) *Service {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		repo:       repo,
		publisher:  publisher,
		logger:     logger,
		bcryptCost: bcryptCost,
		validate:   validator.New(),
	}
}

// Authenticate resolves the merchant owning apiKey and checks apiSecret
// against the stored bcrypt hash. Every failure looks the same to the caller.
func (s *Service) Authenticate(ctx context.Context, apiKey, apiSecret string) (*Merchant, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, errs.ErrInvalidAPIKey
	}

	m, err := s.repo.GetByAPIKey(ctx, apiKey)
	if errors.Is(err, ErrNotFound) {
		return nil, errs.ErrInvalidAPIKey
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load merchant by api key: %w", err)
	}

	if !m.IsActive {
		return nil, errs.ErrInvalidAPIKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.APISecretHash), []byte(apiSecret)); err != nil {
		s.logger.Warn("merchant authentication failed", "merchant_id", m.ID)
		return nil, errs.ErrInvalidAPIKey
	}
	return m, nil
}

func (s *Service) get(ctx context.Context, id string) (*Merchant, error) {
	m, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, errs.ErrMerchantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load merchant %s: %w", id, err)
	}
	return m, nil
}

func (s *Service) GetConfig(ctx context.Context, merchantID string) (*ConfigResponse, error) {
	m, err := s.get(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	resp := m.ToConfigResponse()
	return &resp, nil
}

// UpdateWebhookURL sets the delivery URL; an empty url disables delivery.
func (s *Service) UpdateWebhookURL(ctx context.Context, merchantID string, dto *UpdateWebhookDTO) (*WebhookConfigResponse, error) {
	if err := s.validate.Struct(dto); err != nil {
		return nil, errs.NewValidationFieldError("webhook_url", "webhook_url must be a valid http(s) URL", errs.ErrCodeBadRequest)
	}

	var url *string
	if dto.WebhookURL != "" {
		url = &dto.WebhookURL
	}
	if err := s.repo.UpdateWebhookURL(ctx, merchantID, url); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.ErrMerchantNotFound
		}
		return nil, fmt.Errorf("failed to update webhook url: %w", err)
	}

	m, err := s.get(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("merchant webhook url updated", "merchant_id", merchantID, "enabled", url != nil)
	cfg := m.ToConfigResponse()
	return &WebhookConfigResponse{WebhookURL: cfg.WebhookURL, WebhookSecret: cfg.WebhookSecret}, nil
}

func (s *Service) RegenerateSecret(ctx context.Context, merchantID string) (*SecretResponse, error) {
	secret, err := NewWebhookSecret()
	if err != nil {
		return nil, errs.NewInternalError("failed to generate webhook secret", err)
	}

	if err := s.repo.UpdateWebhookSecret(ctx, merchantID, secret); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.ErrMerchantNotFound
		}
		return nil, fmt.Errorf("failed to store webhook secret: %w", err)
	}

	s.logger.Info("merchant webhook secret rotated", "merchant_id", merchantID)
	return &SecretResponse{WebhookSecret: secret}, nil
}

// SendTestWebhook publishes a webhook.test event through the normal delivery path.
func (s *Service) SendTestWebhook(ctx context.Context, merchantID string) (*TestWebhookResponse, error) {
	m, err := s.get(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if m.WebhookURL == "" {
		return nil, errs.ErrNoWebhookURL
	}

	sampleID, err := randomToken("test_", 4)
	if err != nil {
		return nil, errs.NewInternalError("failed to generate sample id", err)
	}

	event := events.NewMerchantEvent(events.EventTypeWebhookTest, m.ID, map[string]string{
		"message":   testWebhookMessage,
		"sample_id": sampleID,
	})
	if err := s.publisher.PublishSync(ctx, event); err != nil {
		return nil, errs.ErrQueueUnavailable.WithCause(err)
	}

	return &TestWebhookResponse{Status: "success", Message: "Test webhook enqueued"}, nil
}

func (s *Service) WebhookTarget(ctx context.Context, merchantID string) (*WebhookTarget, error) {
	m, err := s.get(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	target := m.Target()
	return &target, nil
}

// CreateMerchant registers a merchant, generating any key material not supplied.
func (s *Service) CreateMerchant(ctx context.Context, dto *CreateMerchantDTO) (*Credentials, error) {
	apiKey := dto.APIKey
	if apiKey == "" {
		k, err := randomToken(APIKeyPrefix, 12)
		if err != nil {
			return nil, err
		}
		apiKey = k
	}

	apiSecret := dto.APISecret
	if apiSecret == "" {
		sec, err := randomToken(APISecretPrefix, 24)
		if err != nil {
			return nil, err
		}
		apiSecret = sec
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(apiSecret), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash api secret: %w", err)
	}

	webhookSecret, err := NewWebhookSecret()
	if err != nil {
		return nil, err
	}

	m := &Merchant{
		ID:            uuid.NewString(),
		Name:          dto.Name,
		Email:         dto.Email,
		APIKey:        apiKey,
		APISecretHash: string(hash),
		WebhookURL:    dto.WebhookURL,
		WebhookSecret: webhookSecret,
		IsActive:      true,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create merchant: %w", err)
	}

	s.logger.Info("merchant created", "merchant_id", m.ID, "email", m.Email)
	return &Credentials{MerchantID: m.ID, APIKey: apiKey, APISecret: apiSecret}, nil
}

// TestMerchant exposes the seeded merchant's public identifiers for local tooling.
func (s *Service) TestMerchant(ctx context.Context, email string) (*TestMerchantResponse, error) {
	m, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, errs.ErrMerchantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load merchant by email: %w", err)
	}
	return &TestMerchantResponse{ID: m.ID, Email: m.Email, APIKey: m.APIKey, Seeded: true}, nil
}
