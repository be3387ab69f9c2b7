package webhook_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-gateway/internal/webhook"
)

var _ = Describe("Deliverer", func() {
	var (
		deliverer *webhook.Deliverer
		ctx       context.Context
		body      []byte
	)

	BeforeEach(func() {
		deliverer = webhook.NewDeliverer(time.Second)
		ctx = context.Background()
		body = []byte(`{"event":"webhook.test","timestamp":1,"data":{}}`)
	})

	It("should POST the exact bytes with a verifiable signature", func() {
		var (
			gotBody []byte
			gotSig  string
			gotType string
		)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotBody, _ = io.ReadAll(r.Body)
			gotSig = r.Header.Get("X-Webhook-Signature")
			gotType = r.Header.Get("Content-Type")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		result := deliverer.Deliver(ctx, server.URL, "whsec_abc", body)

		Expect(result.Succeeded()).To(BeTrue())
		Expect(result.Code()).To(Equal(http.StatusOK))
		Expect(result.Body).To(Equal("ok"))
		Expect(gotBody).To(Equal(body))
		Expect(gotType).To(Equal("application/json"))
		Expect(webhook.Verify("whsec_abc", gotBody, gotSig)).To(BeTrue())
	})

	It("should treat non 2xx responses as failures and keep at most 1000 characters", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(strings.Repeat("é", 1500)))
		}))
		defer server.Close()

		result := deliverer.Deliver(ctx, server.URL, "whsec_abc", body)

		Expect(result.Succeeded()).To(BeFalse())
		Expect(result.Code()).To(Equal(http.StatusInternalServerError))
		Expect([]rune(result.Body)).To(HaveLen(1000))
	})

	It("should record transport errors without a status code", func() {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		result := deliverer.Deliver(ctx, url, "whsec_abc", body)

		Expect(result.Succeeded()).To(BeFalse())
		Expect(result.StatusCode).To(BeNil())
		Expect(result.Err).To(HaveOccurred())
		Expect(result.Body).NotTo(BeEmpty())
	})

	It("should give up after the timeout", func() {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer server.Close()
		defer close(release)

		result := webhook.NewDeliverer(50*time.Millisecond).Deliver(ctx, server.URL, "whsec_abc", body)

		Expect(result.Succeeded()).To(BeFalse())
		Expect(result.StatusCode).To(BeNil())
	})
})
