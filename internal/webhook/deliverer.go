package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"
)

const (
	DefaultTimeout  = 5 * time.Second
	maxResponseBody = 1000
)

// Attempt is the outcome of one POST. StatusCode is nil when no response came back.
type Attempt struct {
	StatusCode *int
	Body       string
	Err        error
}

// Code is the HTTP status, or 0 when the request never got a response.
func (a Attempt) Code() int {
	if a.StatusCode == nil {
		return 0
	}
	return *a.StatusCode
}

func (a Attempt) Succeeded() bool {
	return a.Err == nil && a.StatusCode != nil && *a.StatusCode >= 200 && *a.StatusCode < 300
}

type Deliverer struct {
	client *http.Client
}

func NewDeliverer(timeout time.Duration) *Deliverer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Deliverer{client: &http.Client{Timeout: timeout}}
}

// Deliver POSTs body to url signed with secret. Transport failures are
// reported in the Attempt, never as a Go error, so the caller can record them.
func (d *Deliverer) Deliver(ctx context.Context, url, secret string, body []byte) Attempt {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Attempt{Body: truncate(err.Error()), Err: err}
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set(HeaderSignature, Sign(secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return Attempt{Body: truncate(err.Error()), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4*maxResponseBody))
	code := resp.StatusCode
	if err != nil {
		return Attempt{StatusCode: &code, Body: truncate(fmt.Sprintf("read response: %v", err))}
	}
	return Attempt{StatusCode: &code, Body: truncate(string(raw))}
}

// truncate keeps at most maxResponseBody characters.
func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxResponseBody {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxResponseBody])
}
