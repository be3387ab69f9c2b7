package order

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	errs "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/transport"
)

type ServiceAPI interface {
	CreateOrder(ctx context.Context, merchantID string, dto *CreateOrderDTO) (*Order, error)
	GetOrder(ctx context.Context, merchantID, orderID string) (*Order, error)
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

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	merchantID := errs.MerchantIDFromContext(r.Context())

	var dto CreateOrderDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	o, err := h.Service.CreateOrder(r.Context(), merchantID, &dto)
	if err != nil {
		h.Logger.Error("CreateOrder: service error", "error", err, "merchant_id", merchantID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, o)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	merchantID := errs.MerchantIDFromContext(r.Context())
	orderID := chi.URLParam(r, "order_id")

	o, err := h.Service.GetOrder(r.Context(), merchantID, orderID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, o)
}
