package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/payment-gateway/internal/merchant"
	"github.com/frahmantamala/payment-gateway/internal/order"
	"github.com/frahmantamala/payment-gateway/internal/payment"
	"github.com/frahmantamala/payment-gateway/internal/refund"
	"github.com/frahmantamala/payment-gateway/internal/transport"
	"github.com/frahmantamala/payment-gateway/internal/transport/middleware"
	"github.com/frahmantamala/payment-gateway/internal/transport/swagger"
	"github.com/frahmantamala/payment-gateway/internal/webhook"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

const APIPrefix = "/api/v1"

type RouterDeps struct {
	Health         *HealthHandler
	Queue          *QueueHandler
	Orders         *order.Handler
	Payments       *payment.Handler
	Refunds        *refund.Handler
	Webhooks       *webhook.Handler
	Merchants      *merchant.Handler
	Authenticator  middleware.Authenticator
	Base           *transport.BaseHandler
	OpenAPI        []byte
	AllowedOrigins string
	Logger         *slog.Logger
}

func RegisterAllRoutes(router *chi.Mux, deps RouterDeps) {
	// Apply global middleware
	router.Use(middleware.CORS(deps.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(deps.Logger))
	router.Use(middleware.RecoveryMiddleware(deps.Logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(deps.OpenAPI)
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route(APIPrefix, func(r chi.Router) {
		r.Get("/health", deps.Health.healthCheckHandler)
		r.Get("/ping", deps.Health.pingHandler)

		r.Get("/queue/status", deps.Queue.QueueStatus)
		r.Get("/test/jobs/status", deps.Queue.JobsStatus)
		r.Get("/test/merchant", deps.Merchants.GetTestMerchant)

		// Merchant routes
		r.Group(func(mr chi.Router) {
			mr.Use(middleware.MerchantAuth(deps.Authenticator, deps.Base))

			mr.Post("/orders", deps.Orders.CreateOrder)
			mr.Get("/orders/{order_id}", deps.Orders.GetOrder)

			mr.Post("/payments", deps.Payments.CreatePayment)
			mr.Get("/payments", deps.Payments.ListPayments)
			mr.Get("/payments/{payment_id}", deps.Payments.GetPayment)
			mr.Post("/payments/{payment_id}/capture", deps.Payments.CapturePayment)

			mr.Post("/payments/{payment_id}/refunds", deps.Refunds.CreateRefund)
			mr.Get("/refunds/{refund_id}", deps.Refunds.GetRefund)

			mr.Get("/webhooks", deps.Webhooks.ListWebhooks)
			mr.Post("/webhooks/{webhook_id}/retry", deps.Webhooks.RetryWebhook)

			mr.Get("/merchant/config", deps.Merchants.GetConfig)
			mr.Put("/merchant/webhook", deps.Merchants.UpdateWebhook)
			mr.Post("/merchant/webhook/secret", deps.Merchants.RegenerateSecret)
			mr.Post("/merchant/webhook/test", deps.Merchants.SendTestWebhook)
		})
	})
}
