package webhook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	errs "github.com/frahmantamala/payment-gateway/internal"
	webhookDatamodel "github.com/frahmantamala/payment-gateway/internal/core/datamodel/webhook"
	"github.com/frahmantamala/payment-gateway/internal/core/events"
	"github.com/frahmantamala/payment-gateway/internal/jobqueue"
	"github.com/frahmantamala/payment-gateway/internal/webhook"
	"github.com/frahmantamala/payment-gateway/internal/webhook/postgres"
)

var _ = Describe("Webhook Processor", func() {
	var (
		ctx        context.Context
		db         *gorm.DB
		clk        *clock
		queue      *jobqueue.MemoryQueue
		dispatcher *jobqueue.Dispatcher
		repo       webhook.RepositoryAPI
		targets    staticTargets
		processor  *webhook.Processor
		hits       atomic.Int32
		status     atomic.Int32
		server     *httptest.Server
		envelope   json.RawMessage
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = openTestDB()
		clk = newClock()
		queue = jobqueue.NewMemoryQueue(jobqueue.WithClock(clk.Now))
		dispatcher = jobqueue.NewDispatcher(queue)
		repo = postgres.NewWebhookLogRepository(db)

		hits.Store(0)
		status.Store(http.StatusOK)
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(int(status.Load()))
		}))
		DeferCleanup(server.Close)

		targets = staticTargets{
			"merchant-1": {MerchantID: "merchant-1", URL: server.URL, Secret: "whsec_1"},
			"silent":     {MerchantID: "silent"},
		}
		processor = webhook.NewProcessor(repo, targets, webhook.NewDeliverer(time.Second), dispatcher, webhook.TestSchedule, discardLogger()).
			WithClock(clk.Now)

		var err error
		envelope, err = events.Envelope{Event: events.EventTypePaymentSuccess, Timestamp: 1705315870, Data: map[string]any{"payment": map[string]any{"id": "pay_1"}}}.Encode()
		Expect(err).NotTo(HaveOccurred())
	})

	enqueueFirst := func(merchantID string) {
		_, err := dispatcher.EnqueueWebhook(ctx, jobqueue.WebhookJob{
			MerchantID: merchantID,
			Event:      events.EventTypePaymentSuccess,
			Payload:    envelope,
		}, 0)
		Expect(err).NotTo(HaveOccurred())
	}

	dequeue := func() *jobqueue.Job {
		job, err := queue.Dequeue(ctx, jobqueue.QueueWebhook)
		Expect(err).NotTo(HaveOccurred())
		return job
	}

	loadLog := func(id string) webhookDatamodel.WebhookLog {
		var l webhookDatamodel.WebhookLog
		Expect(db.First(&l, "id = ?", id).Error).To(Succeed())
		return l
	}

	It("should record a successful first delivery", func() {
		// Given
		enqueueFirst("merchant-1")
		job := dequeue()

		// When
		Expect(processor.Handle(ctx, job)).To(Succeed())

		// Then
		l := loadLog(job.ID)
		Expect(l.Status).To(Equal("success"))
		Expect(l.Attempts).To(Equal(1))
		Expect(*l.ResponseCode).To(Equal(http.StatusOK))
		Expect(l.NextRetryAt).To(BeNil())
		Expect(l.LastAttemptAt).NotTo(BeNil())
		Expect(queue.Jobs(jobqueue.QueueWebhook)).To(HaveLen(1))
	})

	It("should retry an unreachable endpoint five times on the test schedule, then give up", func() {
		// Given
		server.Close()
		enqueueFirst("merchant-1")

		// When
		var (
			logID  string
			delays []time.Duration
		)
		for attempt := 1; attempt <= webhook.MaxAttempts; attempt++ {
			job := dequeue()
			var payload jobqueue.WebhookJob
			Expect(job.Decode(&payload)).To(Succeed())
			Expect(payload.Attempt).To(Equal(attempt))
			if attempt == 1 {
				logID = job.ID
			} else {
				Expect(payload.LogID).To(Equal(logID))
			}

			Expect(processor.Handle(ctx, job)).To(Succeed())
			Expect(queue.Complete(ctx, job)).To(Succeed())

			l := loadLog(logID)
			Expect(l.Attempts).To(Equal(attempt))
			Expect(l.ResponseCode).To(BeNil())
			Expect(l.Status).To(Equal("failed"))
			if attempt < webhook.MaxAttempts {
				Expect(l.NextRetryAt).NotTo(BeNil())
				delay := l.NextRetryAt.Sub(clk.Now())
				delays = append(delays, delay)

				_, err := queue.Dequeue(ctx, jobqueue.QueueWebhook)
				Expect(err).To(MatchError(jobqueue.ErrNoJob))
				clk.Advance(delay)
			}
		}

		// Then
		Expect(delays).To(Equal([]time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second, 20 * time.Second}))
		l := loadLog(logID)
		Expect(l.Status).To(Equal("failed"))
		Expect(l.Attempts).To(Equal(5))
		Expect(l.NextRetryAt).To(BeNil())
		_, err := queue.Dequeue(ctx, jobqueue.QueueWebhook)
		Expect(err).To(MatchError(jobqueue.ErrNoJob))
	})

	It("should mark a non 2xx attempt failed and still schedule the next one", func() {
		// Given a receiver answering 500
		status.Store(http.StatusInternalServerError)
		enqueueFirst("merchant-1")
		job := dequeue()

		// When
		Expect(processor.Handle(ctx, job)).To(Succeed())

		// Then the attempt is visible as failed with a retry pending
		l := loadLog(job.ID)
		Expect(*l.ResponseCode).To(Equal(http.StatusInternalServerError))
		Expect(l.Status).To(Equal("failed"))
		Expect(l.Attempts).To(Equal(1))
		Expect(l.NextRetryAt).NotTo(BeNil())

		service := webhook.NewService(repo, dispatcher, discardLogger())
		failed, err := service.ListWebhooks(ctx, "merchant-1", "failed", 0, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(failed.Total).To(Equal(int64(1)))

		// And a recovered receiver turns it into a success
		status.Store(http.StatusOK)
		next := dequeueAfter(ctx, queue, clk, 5*time.Second)
		Expect(processor.Handle(ctx, next)).To(Succeed())
		l = loadLog(job.ID)
		Expect(l.Status).To(Equal("success"))
		Expect(l.Attempts).To(Equal(2))
		Expect(l.NextRetryAt).To(BeNil())
	})

	It("should skip merchants without a webhook url", func() {
		enqueueFirst("silent")
		job := dequeue()

		Expect(processor.Handle(ctx, job)).To(Succeed())

		var count int64
		Expect(db.Model(&webhookDatamodel.WebhookLog{}).Count(&count).Error).To(Succeed())
		Expect(count).To(BeZero())
		Expect(hits.Load()).To(BeZero())
	})

	It("should fail the job for an unknown merchant", func() {
		enqueueFirst("merchant-ghost")

		Expect(processor.Handle(ctx, dequeue())).To(MatchError(ContainSubstring("merchant-ghost")))
	})

	It("should not deliver twice for a duplicated job", func() {
		// Given attempt 1 already delivered
		enqueueFirst("merchant-1")
		job := dequeue()
		Expect(processor.Handle(ctx, job)).To(Succeed())

		// When the same job runs again
		Expect(processor.Handle(ctx, job)).To(Succeed())

		// Then
		Expect(hits.Load()).To(Equal(int32(1)))
	})

	Context("when a worker crashed after recording a failed attempt", func() {
		It("should schedule the lost next attempt on redelivery", func() {
			// Given attempt 1 failed and its follow-up was lost
			status.Store(http.StatusInternalServerError)
			enqueueFirst("merchant-1")
			job := dequeue()
			Expect(processor.Handle(ctx, job)).To(Succeed())
			lost := dequeueAfter(ctx, queue, clk, 5*time.Second)
			Expect(queue.Complete(ctx, lost)).To(Succeed())

			// When the queue redelivers the original job
			job.Attempt = 2
			Expect(processor.Handle(ctx, job)).To(Succeed())

			// Then
			Expect(hits.Load()).To(Equal(int32(1)))
			again, err := queue.Dequeue(ctx, jobqueue.QueueWebhook)
			Expect(err).NotTo(HaveOccurred())
			var payload jobqueue.WebhookJob
			Expect(again.Decode(&payload)).To(Succeed())
			Expect(payload.Attempt).To(Equal(2))
			Expect(payload.LogID).To(Equal(job.ID))
		})
	})

	Describe("Service", func() {
		var service *webhook.Service

		BeforeEach(func() {
			service = webhook.NewService(repo, dispatcher, discardLogger())
		})

		It("should reset and requeue a failed webhook", func() {
			// Given a terminally failed log
			Expect(db.Create(&webhookDatamodel.WebhookLog{
				ID: "log-1", MerchantID: "merchant-1", Event: "payment.failed",
				Payload: []byte(envelope), Status: "failed", Attempts: 5,
			}).Error).To(Succeed())

			// When
			resp, err := service.RetryWebhook(ctx, "merchant-1", "log-1")

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Status).To(Equal("pending"))

			l := loadLog("log-1")
			Expect(l.Attempts).To(BeZero())
			Expect(l.Status).To(Equal("pending"))
			Expect(l.NextRetryAt).To(BeNil())

			job := dequeue()
			var payload jobqueue.WebhookJob
			Expect(job.Decode(&payload)).To(Succeed())
			Expect(payload.Attempt).To(Equal(1))
			Expect(payload.LogID).To(Equal("log-1"))

			// And the worker delivers it again
			Expect(processor.Handle(ctx, job)).To(Succeed())
			Expect(loadLog("log-1").Status).To(Equal("success"))
		})

		It("should drop the automatic retry chain superseded by a manual retry", func() {
			// Given attempt 1 failed and attempt 2 is queued
			status.Store(http.StatusInternalServerError)
			enqueueFirst("merchant-1")
			first := dequeue()
			Expect(processor.Handle(ctx, first)).To(Succeed())
			Expect(queue.Complete(ctx, first)).To(Succeed())
			Expect(hits.Load()).To(Equal(int32(1)))

			// When the merchant retries by hand before attempt 2 runs
			_, err := service.RetryWebhook(ctx, "merchant-1", first.ID)
			Expect(err).NotTo(HaveOccurred())
			manual := dequeue()
			Expect(processor.Handle(ctx, manual)).To(Succeed())
			Expect(queue.Complete(ctx, manual)).To(Succeed())
			Expect(hits.Load()).To(Equal(int32(2)))

			// Then the old attempt 2 delivers nothing and schedules nothing
			clk.Advance(5 * time.Second)
			var stale *jobqueue.Job
			for i := 0; i < 2; i++ {
				j := dequeue()
				var payload jobqueue.WebhookJob
				Expect(j.Decode(&payload)).To(Succeed())
				if payload.Generation == 0 {
					stale = j
				}
			}
			Expect(stale).NotTo(BeNil())
			Expect(processor.Handle(ctx, stale)).To(Succeed())
			Expect(hits.Load()).To(Equal(int32(2)))

			l := loadLog(first.ID)
			Expect(l.Attempts).To(Equal(1))
			Expect(l.Generation).To(Equal(1))
		})

		It("should reject a manual retry that lost to a concurrent one", func() {
			Expect(db.Create(&webhookDatamodel.WebhookLog{
				ID: "log-3", MerchantID: "merchant-1", Event: "payment.failed",
				Payload: []byte(envelope), Status: "failed", Attempts: 5,
			}).Error).To(Succeed())

			generation, err := repo.ResetForRetry(ctx, "log-3", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(generation).To(Equal(1))

			_, err = repo.ResetForRetry(ctx, "log-3", 0)
			Expect(err).To(MatchError(webhook.ErrStaleGeneration))
		})

		It("should not retry another merchant's webhook", func() {
			Expect(db.Create(&webhookDatamodel.WebhookLog{
				ID: "log-2", MerchantID: "merchant-2", Event: "payment.success", Payload: []byte(envelope), Status: "failed",
			}).Error).To(Succeed())

			_, err := service.RetryWebhook(ctx, "merchant-1", "log-2")
			Expect(err).To(MatchError(errs.ErrWebhookNotFound))
		})

		It("should filter and page the log listing", func() {
			for i, s := range []string{"success", "failed", "failed", "pending"} {
				Expect(db.Create(&webhookDatamodel.WebhookLog{
					ID: string(rune('a' + i)), MerchantID: "merchant-1", Event: "payment.success",
					Payload: []byte(envelope), Status: s,
				}).Error).To(Succeed())
			}

			failed, err := service.ListWebhooks(ctx, "merchant-1", "failed", 0, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(failed.Total).To(Equal(int64(2)))
			Expect(failed.Limit).To(Equal(webhook.DefaultListLimit))

			page, err := service.ListWebhooks(ctx, "merchant-1", "", 1000, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Limit).To(Equal(webhook.MaxListLimit))
			Expect(page.Data).To(HaveLen(3))
			Expect(page.Total).To(Equal(int64(4)))

			_, err = service.ListWebhooks(ctx, "merchant-1", "bogus", 0, 0)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Dispatcher", func() {
		It("should enqueue the exact envelope for every merchant event", func() {
			bus := events.NewEventBus(discardLogger())
			webhook.NewDispatcher(dispatcher, discardLogger()).Register(bus)

			evt := events.NewMerchantEvent(events.EventTypeWebhookTest, "merchant-1", map[string]string{"message": "hi", "sample_id": "test_1"})
			Expect(bus.PublishSync(ctx, evt)).To(Succeed())

			job := dequeue()
			var payload jobqueue.WebhookJob
			Expect(job.Decode(&payload)).To(Succeed())
			Expect(payload.Attempt).To(Equal(1))
			Expect(payload.MerchantID).To(Equal("merchant-1"))

			want, err := events.EnvelopeFor(evt).Encode()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(payload.Payload)).To(Equal(string(want)))
			Expect(string(payload.Payload)).To(HavePrefix(`{"event":"webhook.test","timestamp":`))
		})
	})
})

func dequeueAfter(ctx context.Context, q *jobqueue.MemoryQueue, clk *clock, d time.Duration) *jobqueue.Job {
	clk.Advance(d)
	job, err := q.Dequeue(ctx, jobqueue.QueueWebhook)
	Expect(err).NotTo(HaveOccurred())
	return job
}
