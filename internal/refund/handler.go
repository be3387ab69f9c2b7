package refund

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	errs "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/idempotency"
	"github.com/frahmantamala/payment-gateway/internal/transport"
)

type ServiceAPI interface {
	CreateRefund(ctx context.Context, merchantID, paymentID, idempotencyKey string, dto *CreateRefundDTO) (*CreateResult, error)
	GetRefund(ctx context.Context, merchantID, refundID string) (*Refund, error)
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

// CreateRefund handles POST /api/v1/payments/{payment_id}/refunds
func (h *Handler) CreateRefund(w http.ResponseWriter, r *http.Request) {
	merchantID := errs.MerchantIDFromContext(r.Context())
	paymentID := chi.URLParam(r, "payment_id")

	var dto CreateRefundDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	res, err := h.Service.CreateRefund(r.Context(), merchantID, paymentID, r.Header.Get(idempotency.HeaderKey), &dto)
	if err != nil {
		h.Logger.Error("CreateRefund: service error", "error", err, "merchant_id", merchantID, "payment_id", paymentID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteRaw(w, res.StatusCode, res.Body)
}

func (h *Handler) GetRefund(w http.ResponseWriter, r *http.Request) {
	merchantID := errs.MerchantIDFromContext(r.Context())

	rf, err := h.Service.GetRefund(r.Context(), merchantID, chi.URLParam(r, "refund_id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, rf)
}
