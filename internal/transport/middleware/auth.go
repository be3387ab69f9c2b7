package middleware

import (
	"context"
	"net/http"

	errs "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/merchant"
	"github.com/frahmantamala/payment-gateway/internal/transport"
	"github.com/frahmantamala/payment-gateway/pkg/logger"
)

type Authenticator interface {
	Authenticate(ctx context.Context, apiKey, apiSecret string) (*merchant.Merchant, error)
}

// MerchantAuth resolves the X-Api-Key / X-Api-Secret pair and stores the
// merchant id on the request context for downstream handlers.
func MerchantAuth(auth Authenticator, base *transport.BaseHandler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, apiSecret := base.ExtractAPICredentials(r)

			m, err := auth.Authenticate(r.Context(), apiKey, apiSecret)
			if err != nil {
				base.HandleServiceError(w, err)
				return
			}

			ctx := errs.ContextWithMerchantID(r.Context(), m.ID)
			ctx = logger.With(ctx, "merchant_id", m.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
