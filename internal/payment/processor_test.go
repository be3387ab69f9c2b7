package payment_test

import (
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/payment-gateway/internal/core/common/simulation"
	orderDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/order"
	paymentDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-gateway/internal/core/events"
	"github.com/frahmantamala/payment-gateway/internal/idempotency"
	idempotencyPostgres "github.com/frahmantamala/payment-gateway/internal/idempotency/postgres"
	"github.com/frahmantamala/payment-gateway/internal/jobqueue"
	"github.com/frahmantamala/payment-gateway/internal/order"
	orderPostgres "github.com/frahmantamala/payment-gateway/internal/order/postgres"
	"github.com/frahmantamala/payment-gateway/internal/payment"
	"github.com/frahmantamala/payment-gateway/internal/payment/postgres"
)

type countingOracle struct {
	success bool
	calls   int
}

func (o *countingOracle) Settle(ctx context.Context, p *payment.Payment) (payment.Outcome, error) {
	o.calls++
	return payment.Outcome{Success: o.success}, nil
}

var _ = Describe("Payment Processor", func() {
	var (
		ctx       context.Context
		db        *gorm.DB
		queue     *jobqueue.MemoryQueue
		repo      payment.RepositoryAPI
		service   *payment.Service
		publisher *recordingPublisher
		created   payment.Payment
		orderID   string
	)

	newProcessor := func(oracle payment.SettlementOracle) *payment.Processor {
		return payment.NewProcessor(repo, oracle, simulation.Delay{TestMode: true}, publisher, discardLogger())
	}

	nextJob := func() *jobqueue.Job {
		job, err := queue.Dequeue(ctx, jobqueue.QueuePayment)
		Expect(err).NotTo(HaveOccurred())
		return job
	}

	BeforeEach(func() {
		ctx = context.Background()
		db = openTestDB()
		queue = jobqueue.NewMemoryQueue()
		repo = postgres.NewPaymentRepository(db)
		publisher = &recordingPublisher{}

		orders := order.NewService(orderPostgres.NewOrderRepository(db), discardLogger())
		idem := idempotency.NewService(idempotencyPostgres.NewIdempotencyRepository(db), discardLogger())
		service = payment.NewService(repo, orders, idem, jobqueue.NewDispatcher(queue), discardLogger())

		o, err := orders.CreateOrder(ctx, merchantID, &order.CreateOrderDTO{Amount: 50000})
		Expect(err).NotTo(HaveOccurred())
		orderID = o.ID

		res, err := service.CreatePayment(ctx, merchantID, "", &payment.CreatePaymentDTO{OrderID: o.ID, Method: "upi", VPA: "user@paytm"})
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(res.Body, &created)).To(Succeed())
	})

	It("should settle a pending payment and announce it", func() {
		// Given
		oracle := &countingOracle{success: true}

		// When
		Expect(newProcessor(oracle).Handle(ctx, nextJob())).To(Succeed())

		// Then
		p, err := service.GetPayment(ctx, merchantID, created.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Status).To(Equal("success"))
		Expect(p.ErrorCode).To(BeNil())

		var o orderDatamodel.Order
		Expect(db.First(&o, "id = ?", orderID).Error).To(Succeed())
		Expect(o.Status).To(Equal(orderDatamodel.StatusPaid))

		sent := publisher.Events()
		Expect(sent).To(HaveLen(1))
		Expect(sent[0].Type).To(Equal(events.EventTypePaymentSuccess))
		Expect(sent[0].MerchantID).To(Equal(merchantID))

		raw, err := events.EnvelopeFor(sent[0]).Encode()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(raw)).To(ContainSubstring(`"data":{"payment":{"id":"` + created.ID + `"`))
	})

	It("should record the failure code when the oracle declines", func() {
		Expect(newProcessor(&countingOracle{success: false}).Handle(ctx, nextJob())).To(Succeed())

		p, err := service.GetPayment(ctx, merchantID, created.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Status).To(Equal("failed"))
		Expect(*p.ErrorCode).To(Equal("PAYMENT_FAILED"))
		Expect(*p.ErrorDescription).To(Equal("Payment processing failed"))

		sent := publisher.Events()
		Expect(sent).To(HaveLen(1))
		Expect(sent[0].Type).To(Equal(events.EventTypePaymentFailed))
	})

	It("should treat a redelivered job as a no-op", func() {
		// Given
		oracle := &countingOracle{success: true}
		job := nextJob()
		processor := newProcessor(oracle)
		Expect(processor.Handle(ctx, job)).To(Succeed())

		// When the same job runs again
		Expect(processor.Handle(ctx, job)).To(Succeed())

		// Then
		Expect(oracle.calls).To(Equal(1))
		Expect(publisher.Events()).To(HaveLen(1))
	})

	It("should announce a settlement whose first publish failed when the job comes back", func() {
		// Given a publish that fails right after the payment settles
		oracle := &countingOracle{success: true}
		processor := newProcessor(oracle)
		job := nextJob()
		publisher.failNext = 1

		// When
		err := processor.Handle(ctx, job)

		// Then the job is left for redelivery and nothing was announced
		Expect(err).To(MatchError(jobqueue.ErrRedeliver))
		var row paymentDatamodel.Payment
		Expect(db.First(&row, "id = ?", created.ID).Error).To(Succeed())
		Expect(row.Status).To(Equal(paymentDatamodel.StatusSuccess))
		Expect(row.Announced).To(BeFalse())
		Expect(publisher.Events()).To(BeEmpty())

		// When the job is delivered again
		Expect(processor.Handle(ctx, job)).To(Succeed())

		// Then the event goes out once without settling twice
		Expect(oracle.calls).To(Equal(1))
		sent := publisher.Events()
		Expect(sent).To(HaveLen(1))
		Expect(sent[0].Type).To(Equal(events.EventTypePaymentSuccess))
		Expect(db.First(&row, "id = ?", created.ID).Error).To(Succeed())
		Expect(row.Announced).To(BeTrue())

		Expect(processor.Handle(ctx, job)).To(Succeed())
		Expect(publisher.Events()).To(HaveLen(1))
	})

	It("should let only one concurrent delivery win", func() {
		_, err := repo.Settle(ctx, created.ID, paymentDatamodel.StatusFailed, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		won, err := repo.Settle(ctx, created.ID, paymentDatamodel.StatusSuccess, nil, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(won).To(BeFalse())
	})

	It("should fail the job when the payment does not exist", func() {
		_, err := queue.Enqueue(ctx, jobqueue.QueuePayment, jobqueue.JobTypeProcessPayment, jobqueue.PaymentJob{PaymentID: "pay_ghost"})
		Expect(err).NotTo(HaveOccurred())
		_ = nextJob()

		err = newProcessor(&countingOracle{success: true}).Handle(ctx, nextJob())

		Expect(err).To(MatchError(ContainSubstring("pay_ghost")))
		Expect(publisher.Events()).To(BeEmpty())
	})

	It("should stop when the job context is cancelled during the delay", func() {
		cancelled, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		processor := payment.NewProcessor(repo, &countingOracle{success: true},
			simulation.Delay{Min: 5 * time.Second, Max: 10 * time.Second}, publisher, discardLogger())

		err := processor.Handle(cancelled, nextJob())

		Expect(err).To(MatchError(context.DeadlineExceeded))
		p, err := service.GetPayment(ctx, merchantID, created.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Status).To(Equal("pending"))
	})
})

var _ = Describe("SimulatedOracle", func() {
	It("should obey the configured outcome in test mode", func() {
		p := &payment.Payment{Method: "upi"}

		ok, err := payment.NewSimulatedOracle(payment.OracleConfig{TestMode: true, TestSuccess: true}).Settle(context.Background(), p)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok.Success).To(BeTrue())

		ko, err := payment.NewSimulatedOracle(payment.OracleConfig{TestMode: true, TestSuccess: false}).Settle(context.Background(), p)
		Expect(err).NotTo(HaveOccurred())
		Expect(ko.Success).To(BeFalse())
	})

	It("should succeed roughly at the method's rate", func() {
		oracle := payment.NewSimulatedOracle(payment.OracleConfig{})
		card := &payment.Payment{Method: "card"}

		wins := 0
		for i := 0; i < 2000; i++ {
			out, err := oracle.Settle(context.Background(), card)
			Expect(err).NotTo(HaveOccurred())
			if out.Success {
				wins++
			}
		}
		Expect(wins).To(BeNumerically("~", 1900, 60))
	})
})
