package webhook_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-gateway/internal/webhook"
)

var _ = Describe("Signature", func() {
	secret := "whsec_test_abc123"
	body := []byte(`{"event":"payment.success","timestamp":1705315870,"data":{"payment":{"id":"pay_H8sK3jD9s2L1pQr"}}}`)

	It("should be the hex HMAC-SHA256 of the raw body", func() {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)

		Expect(webhook.Sign(secret, body)).To(Equal(hex.EncodeToString(mac.Sum(nil))))
		Expect(webhook.Sign(secret, body)).To(MatchRegexp(`^[0-9a-f]{64}$`))
	})

	It("should verify its own signature", func() {
		Expect(webhook.Verify(secret, body, webhook.Sign(secret, body))).To(BeTrue())
	})

	DescribeTable("should reject",
		func(secret string, body []byte, sig string) {
			Expect(webhook.Verify(secret, body, sig)).To(BeFalse())
		},
		Entry("a different secret", "whsec_other", body, webhook.Sign(secret, body)),
		Entry("a re-encoded body", secret, []byte(`{"event": "payment.success"}`), webhook.Sign(secret, body)),
		Entry("a non hex signature", secret, body, "not-hex"),
		Entry("an empty signature", secret, body, ""),
	)
})

var _ = Describe("Schedule", func() {
	It("should follow the production backoff", func() {
		var delays []time.Duration
		for attempt := 1; ; attempt++ {
			d, ok := webhook.ProductionSchedule.Next(attempt)
			if !ok {
				break
			}
			delays = append(delays, d)
		}
		Expect(delays).To(Equal([]time.Duration{time.Minute, 5 * time.Minute, 30 * time.Minute, 2 * time.Hour}))
	})

	It("should use short intervals in test mode", func() {
		Expect(webhook.ScheduleFor(true)).To(Equal(webhook.Schedule{0, 5 * time.Second, 10 * time.Second, 15 * time.Second, 20 * time.Second}))
		Expect(webhook.ScheduleFor(false)).To(Equal(webhook.ProductionSchedule))
	})

	It("should stop after the fifth attempt", func() {
		_, ok := webhook.TestSchedule.Next(webhook.MaxAttempts)
		Expect(ok).To(BeFalse())
		_, ok = webhook.TestSchedule.Next(0)
		Expect(ok).To(BeFalse())
	})
})
