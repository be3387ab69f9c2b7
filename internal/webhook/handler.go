package webhook

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	errs "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/transport"
)

type ServiceAPI interface {
	ListWebhooks(ctx context.Context, merchantID, status string, limit, offset int) (*ListResponse, error)
	RetryWebhook(ctx context.Context, merchantID, logID string) (*RetryResponse, error)
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

// ListWebhooks handles GET /api/v1/webhooks?status=&limit=&offset=
func (h *Handler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	merchantID := errs.MerchantIDFromContext(r.Context())

	resp, err := h.Service.ListWebhooks(r.Context(), merchantID,
		r.URL.Query().Get("status"),
		h.QueryInt(r, "limit", DefaultListLimit),
		h.QueryInt(r, "offset", 0))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

// RetryWebhook handles POST /api/v1/webhooks/{webhook_id}/retry
func (h *Handler) RetryWebhook(w http.ResponseWriter, r *http.Request) {
	merchantID := errs.MerchantIDFromContext(r.Context())
	logID := chi.URLParam(r, "webhook_id")

	resp, err := h.Service.RetryWebhook(r.Context(), merchantID, logID)
	if err != nil {
		h.Logger.Error("RetryWebhook: service error", "error", err, "webhook_id", logID)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}
