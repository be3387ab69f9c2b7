package payment

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	errs "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/idempotency"
	"github.com/frahmantamala/payment-gateway/internal/transport"
)

type ServiceAPI interface {
	CreatePayment(ctx context.Context, merchantID, idempotencyKey string, dto *CreatePaymentDTO) (*CreateResult, error)
	GetPayment(ctx context.Context, merchantID, paymentID string) (*Payment, error)
	ListPayments(ctx context.Context, merchantID string, limit, offset int) (*ListResponse, error)
	CapturePayment(ctx context.Context, merchantID, paymentID, idempotencyKey string) (*CreateResult, error)
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

// CreatePayment handles POST /api/v1/payments
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	merchantID := errs.MerchantIDFromContext(r.Context())
	key := r.Header.Get(idempotency.HeaderKey)

	var dto CreatePaymentDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	res, err := h.Service.CreatePayment(r.Context(), merchantID, key, &dto)
	if err != nil {
		h.Logger.Error("CreatePayment: service error", "error", err, "merchant_id", merchantID, "order_id", dto.OrderID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteRaw(w, res.StatusCode, res.Body)
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	merchantID := errs.MerchantIDFromContext(r.Context())

	p, err := h.Service.GetPayment(r.Context(), merchantID, chi.URLParam(r, "payment_id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	merchantID := errs.MerchantIDFromContext(r.Context())

	resp, err := h.Service.ListPayments(r.Context(), merchantID,
		h.QueryInt(r, "limit", DefaultListLimit),
		h.QueryInt(r, "offset", 0))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

// CapturePayment handles POST /api/v1/payments/{payment_id}/capture
func (h *Handler) CapturePayment(w http.ResponseWriter, r *http.Request) {
	merchantID := errs.MerchantIDFromContext(r.Context())
	paymentID := chi.URLParam(r, "payment_id")

	res, err := h.Service.CapturePayment(r.Context(), merchantID, paymentID, r.Header.Get(idempotency.HeaderKey))
	if err != nil {
		h.Logger.Warn("CapturePayment: rejected", "error", err, "payment_id", paymentID)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteRaw(w, res.StatusCode, res.Body)
}
