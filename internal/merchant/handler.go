package merchant

import (
	"context"
	"net/http"

	errs "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/transport"
)

const TestMerchantEmail = "test@example.com"

type ServiceAPI interface {
	GetConfig(ctx context.Context, merchantID string) (*ConfigResponse, error)
	UpdateWebhookURL(ctx context.Context, merchantID string, dto *UpdateWebhookDTO) (*WebhookConfigResponse, error)
	RegenerateSecret(ctx context.Context, merchantID string) (*SecretResponse, error)
	SendTestWebhook(ctx context.Context, merchantID string) (*TestWebhookResponse, error)
	TestMerchant(ctx context.Context, email string) (*TestMerchantResponse, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	merchantID := errs.MerchantIDFromContext(r.Context())

	cfg, err := h.Service.GetConfig(r.Context(), merchantID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, cfg)
}

func (h *Handler) UpdateWebhook(w http.ResponseWriter, r *http.Request) {
	merchantID := errs.MerchantIDFromContext(r.Context())

	var dto UpdateWebhookDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	resp, err := h.Service.UpdateWebhookURL(r.Context(), merchantID, &dto)
	if err != nil {
		h.Logger.Error("UpdateWebhook: service error", "error", err, "merchant_id", merchantID)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) RegenerateSecret(w http.ResponseWriter, r *http.Request) {
	merchantID := errs.MerchantIDFromContext(r.Context())

	resp, err := h.Service.RegenerateSecret(r.Context(), merchantID)
	if err != nil {
		h.Logger.Error("RegenerateSecret: service error", "error", err, "merchant_id", merchantID)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) SendTestWebhook(w http.ResponseWriter, r *http.Request) {
	merchantID := errs.MerchantIDFromContext(r.Context())

	resp, err := h.Service.SendTestWebhook(r.Context(), merchantID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetTestMerchant(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Service.TestMerchant(r.Context(), TestMerchantEmail)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}
