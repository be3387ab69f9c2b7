package main_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-gateway/internal/jobqueue"
	"github.com/frahmantamala/payment-gateway/internal/merchant"
	"github.com/frahmantamala/payment-gateway/internal/order"
	"github.com/frahmantamala/payment-gateway/internal/payment"
	"github.com/frahmantamala/payment-gateway/internal/refund"
	"github.com/frahmantamala/payment-gateway/internal/webhook"
)

type receivedWebhook struct {
	body      []byte
	signature string
}

type webhookReceiver struct {
	mu       sync.Mutex
	received []receivedWebhook
}

func (r *webhookReceiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	r.received = append(r.received, receivedWebhook{body: body, signature: req.Header.Get(webhook.HeaderSignature)})
	r.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (r *webhookReceiver) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, rw := range r.received {
		var env struct {
			Event string `json:"event"`
		}
		Expect(json.Unmarshal(rw.body, &env)).To(Succeed())
		out = append(out, env.Event)
	}
	return out
}

var _ = Describe("Payment Gateway", func() {
	createPaidOrder := func(g *gateway, amount int64) (*order.Order, *payment.Payment) {
		var o order.Order
		g.decode(g.do(http.MethodPost, "/api/v1/orders", map[string]any{"amount": amount}), http.StatusCreated, &o)

		var p payment.Payment
		g.decode(g.do(http.MethodPost, "/api/v1/payments", map[string]any{
			"order_id": o.ID,
			"method":   "upi",
			"vpa":      "customer@okaxis",
		}), http.StatusCreated, &p)
		Expect(p.Status).To(Equal("pending"))
		return &o, &p
	}

	Context("when settlement fails and the merchant endpoint is unreachable", func() {
		It("should emit payment.failed and give up after five scheduled attempts", func() {
			// Given a merchant whose webhook URL refuses connections
			dead := httptest.NewServer(http.NotFoundHandler())
			deadURL := dead.URL
			dead.Close()
			g := newGateway(false, deadURL)

			// When a payment is created and settled in test mode
			_, p := createPaidOrder(g, 50000)
			Expect(g.drain(jobqueue.QueuePayment)).To(Equal(1))

			// Then the payment failed with the canonical error
			var settled payment.Payment
			g.decode(g.do(http.MethodGet, "/api/v1/payments/"+p.ID, nil), http.StatusOK, &settled)
			Expect(settled.Status).To(Equal("failed"))
			Expect(*settled.ErrorCode).To(Equal("PAYMENT_FAILED"))
			Expect(*settled.ErrorDescription).To(Equal("Payment processing failed"))

			// And the first delivery runs immediately
			Expect(g.runNext(jobqueue.QueueWebhook)).To(BeTrue())

			// And each retry becomes eligible exactly after its scheduled delay
			for _, delay := range []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second, 20 * time.Second} {
				g.clock.Advance(delay - time.Millisecond)
				Expect(g.runNext(jobqueue.QueueWebhook)).To(BeFalse(), "retry ran before %s", delay)
				g.clock.Advance(time.Millisecond)
				Expect(g.runNext(jobqueue.QueueWebhook)).To(BeTrue(), "retry missing after %s", delay)
			}

			// And nothing is scheduled after the fifth attempt
			g.clock.Advance(24 * time.Hour)
			Expect(g.runNext(jobqueue.QueueWebhook)).To(BeFalse())

			var logs webhook.ListResponse
			g.decode(g.do(http.MethodGet, "/api/v1/webhooks", nil), http.StatusOK, &logs)
			Expect(logs.Data).To(HaveLen(1))
			Expect(logs.Data[0].Event).To(Equal("payment.failed"))
			Expect(logs.Data[0].Status).To(Equal("failed"))
			Expect(logs.Data[0].Attempts).To(Equal(webhook.MaxAttempts))
			Expect(logs.Data[0].ResponseCode).To(BeNil())
			Expect(logs.Data[0].NextRetryAt).To(BeNil())
		})
	})

	Context("when a settled payment is fully refunded", func() {
		It("should cascade to refunded and deliver signed webhooks", func() {
			// Given a reachable merchant endpoint and successful settlement
			receiver := &webhookReceiver{}
			server := httptest.NewServer(receiver)
			DeferCleanup(server.Close)
			g := newGateway(true, server.URL)

			var cfg merchant.ConfigResponse
			g.decode(g.do(http.MethodGet, "/api/v1/merchant/config", nil), http.StatusOK, &cfg)

			o, p := createPaidOrder(g, 50000)
			Expect(g.drain(jobqueue.QueuePayment)).To(Equal(1))

			var paidOrder order.Order
			g.decode(g.do(http.MethodGet, "/api/v1/orders/"+o.ID, nil), http.StatusOK, &paidOrder)
			Expect(paidOrder.Status).To(Equal("paid"))

			// When the full amount is refunded in two parts
			var first, second refund.Refund
			g.decode(g.do(http.MethodPost, "/api/v1/payments/"+p.ID+"/refunds", map[string]any{"amount": 20000}), http.StatusCreated, &first)
			g.decode(g.do(http.MethodPost, "/api/v1/payments/"+p.ID+"/refunds", map[string]any{"amount": 30000}), http.StatusCreated, &second)

			// And a third refund finds nothing left
			rec := g.do(http.MethodPost, "/api/v1/payments/"+p.ID+"/refunds", map[string]any{"amount": 1})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))

			Expect(g.drain(jobqueue.QueueRefund)).To(Equal(2))
			Expect(g.drain(jobqueue.QueueWebhook)).To(Equal(3))

			// Then the payment is refunded and both refunds are processed
			var refunded payment.Payment
			g.decode(g.do(http.MethodGet, "/api/v1/payments/"+p.ID, nil), http.StatusOK, &refunded)
			Expect(refunded.Status).To(Equal("refunded"))

			var processed refund.Refund
			g.decode(g.do(http.MethodGet, "/api/v1/refunds/"+second.ID, nil), http.StatusOK, &processed)
			Expect(processed.Status).To(Equal("processed"))
			Expect(processed.ProcessedAt).NotTo(BeNil())

			// And every delivery carries a valid signature over the exact body
			Expect(receiver.events()).To(Equal([]string{"payment.success", "refund.processed", "refund.processed"}))
			for _, rw := range receiver.received {
				Expect(webhook.Verify(cfg.WebhookSecret, rw.body, rw.signature)).To(BeTrue())
			}

			var status struct {
				Completed int64  `json:"completed"`
				Failed    int64  `json:"failed"`
				Worker    string `json:"worker_status"`
			}
			g.decode(g.do(http.MethodGet, "/api/v1/test/jobs/status", nil), http.StatusOK, &status)
			Expect(status.Completed).To(Equal(int64(6)))
			Expect(status.Failed).To(BeZero())
		})
	})

	Context("when a payment request is retried with the same idempotency key", func() {
		It("should create one payment and enqueue one job", func() {
			g := newGateway(true, "")

			var o order.Order
			g.decode(g.do(http.MethodPost, "/api/v1/orders", map[string]any{"amount": 25000}), http.StatusCreated, &o)

			body := map[string]any{"order_id": o.ID, "method": "upi", "vpa": "customer@okaxis"}
			send := func() *httptest.ResponseRecorder {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", jsonBody(body))
				req.Header.Set("X-Api-Key", testAPIKey)
				req.Header.Set("X-Api-Secret", testAPISecret)
				req.Header.Set("Idempotency-Key", "checkout-42")
				rec := httptest.NewRecorder()
				g.router.ServeHTTP(rec, req)
				return rec
			}

			first := send()
			second := send()

			Expect(first.Code).To(Equal(http.StatusCreated))
			Expect(second.Code).To(Equal(http.StatusCreated))
			Expect(second.Body.Bytes()).To(Equal(first.Body.Bytes()))
			Expect(g.drain(jobqueue.QueuePayment)).To(Equal(1))
		})
	})
})
