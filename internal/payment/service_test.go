package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	errs "github.com/frahmantamala/payment-gateway/internal"
	idempotencyDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/idempotency"
	paymentDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-gateway/internal/idempotency"
	idempotencyPostgres "github.com/frahmantamala/payment-gateway/internal/idempotency/postgres"
	"github.com/frahmantamala/payment-gateway/internal/jobqueue"
	"github.com/frahmantamala/payment-gateway/internal/order"
	orderPostgres "github.com/frahmantamala/payment-gateway/internal/order/postgres"
	"github.com/frahmantamala/payment-gateway/internal/payment"
	"github.com/frahmantamala/payment-gateway/internal/payment/postgres"
	"github.com/frahmantamala/payment-gateway/internal/transport"
)

const merchantID = "merchant-1"

var _ = Describe("Payment Service", func() {
	var (
		ctx      context.Context
		db       *gorm.DB
		queue    *jobqueue.MemoryQueue
		repo     payment.RepositoryAPI
		orders   *order.Service
		idem     *idempotency.Service
		service  *payment.Service
		anOrder  *order.Order
		upiOrder func() *payment.CreatePaymentDTO
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db = openTestDB()
		queue = jobqueue.NewMemoryQueue()
		repo = postgres.NewPaymentRepository(db)
		orders = order.NewService(orderPostgres.NewOrderRepository(db), discardLogger())
		idem = idempotency.NewService(idempotencyPostgres.NewIdempotencyRepository(db), discardLogger())
		service = payment.NewService(repo, orders, idem, jobqueue.NewDispatcher(queue), discardLogger())

		anOrder, err = orders.CreateOrder(ctx, merchantID, &order.CreateOrderDTO{Amount: 50000})
		Expect(err).NotTo(HaveOccurred())

		upiOrder = func() *payment.CreatePaymentDTO {
			return &payment.CreatePaymentDTO{OrderID: anOrder.ID, Method: "upi", VPA: "user@paytm"}
		}
	})

	decode := func(body []byte) payment.Payment {
		var p payment.Payment
		Expect(json.Unmarshal(body, &p)).To(Succeed())
		return p
	}

	Describe("CreatePayment", func() {
		It("should persist a pending upi payment and schedule it", func() {
			// When
			res, err := service.CreatePayment(ctx, merchantID, "", upiOrder())

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(res.StatusCode).To(Equal(http.StatusCreated))

			p := decode(res.Body)
			Expect(p.ID).To(MatchRegexp(`^pay_[0-9a-f]{16}$`))
			Expect(p.Status).To(Equal("pending"))
			Expect(p.Amount).To(Equal(int64(50000)))
			Expect(p.Currency).To(Equal("INR"))
			Expect(*p.VPA).To(Equal("user@paytm"))

			jobs := queue.Jobs(jobqueue.QueuePayment)
			Expect(jobs).To(HaveLen(1))
			var payload jobqueue.PaymentJob
			Expect(jobs[0].Decode(&payload)).To(Succeed())
			Expect(payload.PaymentID).To(Equal(p.ID))
		})

		It("should derive the card network and last four digits", func() {
			dto := &payment.CreatePaymentDTO{
				OrderID: anOrder.ID,
				Method:  "card",
				Card: &payment.CardDTO{
					Number:      "4111 1111-1111 1111",
					ExpiryMonth: "12",
					ExpiryYear:  "2099",
					CVV:         "123",
					HolderName:  "A Customer",
				},
			}

			res, err := service.CreatePayment(ctx, merchantID, "", dto)

			Expect(err).NotTo(HaveOccurred())
			p := decode(res.Body)
			Expect(*p.CardNetwork).To(Equal("visa"))
			Expect(*p.CardLast4).To(Equal("1111"))
			Expect(string(res.Body)).NotTo(ContainSubstring("4111"))
		})

		DescribeTable("rejected requests never reach the queue",
			func(mutate func(dto *payment.CreatePaymentDTO), code errs.ErrorCode, message string) {
				dto := upiOrder()
				mutate(dto)

				_, err := service.CreatePayment(ctx, merchantID, "", dto)

				appErr, ok := errs.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(code))
				Expect(appErr.GetDetailedMessage()).To(Equal(message))
				Expect(queue.Jobs(jobqueue.QueuePayment)).To(BeEmpty())

				var count int64
				Expect(db.Model(&paymentDatamodel.Payment{}).Count(&count).Error).To(Succeed())
				Expect(count).To(BeZero())
			},
			Entry("invalid vpa", func(dto *payment.CreatePaymentDTO) { dto.VPA = "not-a-vpa" },
				errs.ErrCodeInvalidVPA, "VPA format invalid"),
			Entry("unknown method", func(dto *payment.CreatePaymentDTO) { dto.Method = "netbanking" },
				errs.ErrCodeBadRequest, "Invalid payment method"),
			Entry("card without details", func(dto *payment.CreatePaymentDTO) {
				dto.Method = "card"
				dto.Card = &payment.CardDTO{Number: "4111111111111111"}
			}, errs.ErrCodeBadRequest, "Missing card details"),
			Entry("card failing luhn", func(dto *payment.CreatePaymentDTO) {
				dto.Method = "card"
				dto.Card = &payment.CardDTO{Number: "4111111111111112", ExpiryMonth: "12", ExpiryYear: "2099", CVV: "123", HolderName: "A"}
			}, errs.ErrCodeInvalidCard, "Card validation failed"),
			Entry("expired card", func(dto *payment.CreatePaymentDTO) {
				dto.Method = "card"
				dto.Card = &payment.CardDTO{Number: "4111111111111111", ExpiryMonth: "01", ExpiryYear: "2020", CVV: "123", HolderName: "A"}
			}, errs.ErrCodeExpiredCard, "Card expiry date invalid"),
			Entry("unknown order", func(dto *payment.CreatePaymentDTO) { dto.OrderID = "order_missing" },
				errs.ErrCodeNotFound, "Order not found"),
		)

		It("should not let a merchant pay another merchant's order", func() {
			_, err := service.CreatePayment(ctx, "merchant-2", "", upiOrder())
			Expect(err).To(MatchError(errs.ErrOrderNotFound))
		})
	})

	Context("with an Idempotency-Key", func() {
		It("should replay the first response byte for byte", func() {
			// Given
			first, err := service.CreatePayment(ctx, merchantID, "idem-1", upiOrder())
			Expect(err).NotTo(HaveOccurred())

			// When
			second, err := service.CreatePayment(ctx, merchantID, "idem-1", upiOrder())

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Replayed).To(BeTrue())
			Expect(second.StatusCode).To(Equal(http.StatusCreated))
			Expect(second.Body).To(Equal(first.Body))

			var count int64
			Expect(db.Model(&paymentDatamodel.Payment{}).Count(&count).Error).To(Succeed())
			Expect(count).To(Equal(int64(1)))
			Expect(queue.Jobs(jobqueue.QueuePayment)).To(HaveLen(1))
		})

		It("should scope keys per merchant", func() {
			otherOrder, err := orders.CreateOrder(ctx, "merchant-2", &order.CreateOrderDTO{Amount: 1000})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.CreatePayment(ctx, merchantID, "shared", upiOrder())
			Expect(err).NotTo(HaveOccurred())
			res, err := service.CreatePayment(ctx, "merchant-2", "shared",
				&payment.CreatePaymentDTO{OrderID: otherOrder.ID, Method: "upi", VPA: "other@upi"})

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Replayed).To(BeFalse())
			Expect(queue.Jobs(jobqueue.QueuePayment)).To(HaveLen(2))
		})

		It("should roll back when the queue is unavailable", func() {
			// Given
			broken := payment.NewService(repo, orders, idem, brokenQueue{}, discardLogger())

			// When
			_, err := broken.CreatePayment(ctx, merchantID, "idem-down", upiOrder())

			// Then
			appErr, ok := errs.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusServiceUnavailable))

			var stored paymentDatamodel.Payment
			Expect(db.First(&stored).Error).To(Succeed())
			Expect(stored.Status).To(Equal("failed"))
			Expect(*stored.ErrorCode).To(Equal("ENQUEUE_FAILED"))

			var keys int64
			Expect(db.Model(&idempotencyDatamodel.IdempotencyKey{}).Count(&keys).Error).To(Succeed())
			Expect(keys).To(BeZero())

			// And a retry with the same key proceeds as new
			res, err := service.CreatePayment(ctx, merchantID, "idem-down", upiOrder())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Replayed).To(BeFalse())
			Expect(decode(res.Body).ID).NotTo(Equal(stored.ID))
		})

		It("should replay when another request committed the key first", func() {
			// Given a key committed behind the service's back
			winner := []byte(`{"id":"pay_winner"}`)
			Expect(db.Create(idempotency.NewEntry("race", merchantID, http.StatusCreated, winner, time.Now())).Error).To(Succeed())
			p := &payment.Payment{ID: "pay_loser", OrderID: anOrder.ID, MerchantID: merchantID, Amount: 1, Currency: "INR", Method: "upi", Status: "pending"}

			// When
			err := repo.CreateWithIdempotency(ctx, payment.ToDataModel(p),
				idempotency.NewEntry("race", merchantID, http.StatusCreated, []byte(`{}`), time.Now()))

			// Then
			Expect(err).To(MatchError(payment.ErrKeyTaken))
			var count int64
			Expect(db.Model(&paymentDatamodel.Payment{}).Count(&count).Error).To(Succeed())
			Expect(count).To(BeZero())

			res, err := service.CreatePayment(ctx, merchantID, "race", upiOrder())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Body).To(Equal(winner))
		})
	})

	Describe("Get, List and Capture", func() {
		var created payment.Payment

		BeforeEach(func() {
			res, err := service.CreatePayment(ctx, merchantID, "", upiOrder())
			Expect(err).NotTo(HaveOccurred())
			created = decode(res.Body)
		})

		It("should hide payments of other merchants", func() {
			_, err := service.GetPayment(ctx, "merchant-2", created.ID)
			Expect(err).To(MatchError(errs.ErrPaymentNotFound))
		})

		It("should list newest first and clamp the limit", func() {
			res, err := service.CreatePayment(ctx, merchantID, "", upiOrder())
			Expect(err).NotTo(HaveOccurred())
			newest := decode(res.Body)
			Expect(db.Model(&paymentDatamodel.Payment{}).Where("id = ?", newest.ID).
				Update("created_at", created.CreatedAt.Add(time.Second)).Error).To(Succeed())

			list, err := service.ListPayments(ctx, merchantID, 500, 0)

			Expect(err).NotTo(HaveOccurred())
			Expect(list.Limit).To(Equal(payment.MaxListLimit))
			Expect(list.Total).To(Equal(int64(2)))
			Expect(list.Data[0].ID).To(Equal(newest.ID))
		})

		It("should refuse to capture a pending payment", func() {
			_, err := service.CapturePayment(ctx, merchantID, created.ID, "")
			Expect(err).To(MatchError(errs.ErrNotCapturable))
		})

		It("should capture a successful payment exactly once", func() {
			// Given
			won, err := repo.Settle(ctx, created.ID, "success", nil, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(won).To(BeTrue())

			// When
			res, err := service.CapturePayment(ctx, merchantID, created.ID, "")

			// Then
			Expect(err).NotTo(HaveOccurred())
			var p payment.Payment
			Expect(json.Unmarshal(res.Body, &p)).To(Succeed())
			Expect(p.Captured).To(BeTrue())

			_, err = service.CapturePayment(ctx, merchantID, created.ID, "")
			Expect(err).To(MatchError(errs.ErrNotCapturable))
		})

		It("should replay a retried capture that carries the same key", func() {
			// Given
			_, err := repo.Settle(ctx, created.ID, "success", nil, nil)
			Expect(err).NotTo(HaveOccurred())
			first, err := service.CapturePayment(ctx, merchantID, created.ID, "cap-1")
			Expect(err).NotTo(HaveOccurred())

			// When
			second, err := service.CapturePayment(ctx, merchantID, created.ID, "cap-1")

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Replayed).To(BeTrue())
			Expect(second.StatusCode).To(Equal(http.StatusOK))
			Expect(second.Body).To(Equal(first.Body))

			_, err = service.CapturePayment(ctx, merchantID, created.ID, "cap-2")
			Expect(err).To(MatchError(errs.ErrNotCapturable))
		})
	})

	Describe("Handler", func() {
		var router chi.Router

		BeforeEach(func() {
			handler := payment.NewHandler(transport.NewBaseHandler(discardLogger()), service)
			router = chi.NewRouter()
			router.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					next.ServeHTTP(w, r.WithContext(errs.ContextWithMerchantID(r.Context(), merchantID)))
				})
			})
			router.Post("/payments", handler.CreatePayment)
			router.Get("/payments/{payment_id}", handler.GetPayment)
		})

		post := func(key string) *httptest.ResponseRecorder {
			body, _ := json.Marshal(upiOrder())
			req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			if key != "" {
				req.Header.Set("Idempotency-Key", key)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			return w
		}

		It("should answer a replay with the identical body", func() {
			first := post("http-key")
			second := post("http-key")

			Expect(first.Code).To(Equal(http.StatusCreated))
			Expect(second.Code).To(Equal(http.StatusCreated))
			Expect(second.Body.Bytes()).To(Equal(first.Body.Bytes()))
		})

		It("should report validation failures with the error envelope", func() {
			req := httptest.NewRequest(http.MethodPost, "/payments",
				bytes.NewReader([]byte(`{"order_id":"`+anOrder.ID+`","method":"upi","vpa":"bad"}`)))
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(w.Body.String()).To(ContainSubstring(`"code":"INVALID_VPA"`))
		})

		It("should return 404 for an unknown payment", func() {
			req := httptest.NewRequest(http.MethodGet, "/payments/pay_unknown", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})
})
