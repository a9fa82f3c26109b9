package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xraph/courier/internal/canonical"
	"github.com/xraph/courier/signature"
	"github.com/xraph/courier/webhook"
)

// Wire headers set on every attempt.
const (
	HeaderSignature  = "X-Webhook-Signature"
	HeaderEvent      = "X-Webhook-Event"
	HeaderDeliveryID = "X-Webhook-Delivery-Id"

	userAgent = "Courier/1.0"
)

// Executor performs single delivery attempts over HTTP.
type Executor struct {
	client *http.Client
}

// NewExecutor creates an executor. A nil client uses a fresh http.Client
// without a global timeout; each attempt is bounded by its webhook's timeout.
func NewExecutor(client *http.Client) *Executor {
	if client == nil {
		client = &http.Client{}
	}
	return &Executor{client: client}
}

// Attempt POSTs d's payload to wh and classifies the response. It never
// modifies d.
//
// A non-nil error means the request could not be built at all (payload not
// serializable, bad URL). Such failures repeat deterministically and are not
// retried.
func (e *Executor) Attempt(ctx context.Context, wh *webhook.Webhook, d *Delivery) (Outcome, error) {
	payload := d.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	body, err := canonical.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("serialize payload: %w", err)
	}
	sig := signature.Sign(body, wh.Secret)

	ctx, cancel := context.WithTimeout(ctx, wh.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Custom headers go first so the reserved ones below overwrite them.
	for k, v := range wh.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderSignature, sig)
	req.Header.Set(HeaderEvent, d.EventType)
	req.Header.Set(HeaderDeliveryID, d.ID.String())

	start := time.Now()
	resp, err := e.client.Do(req) //nolint:gosec // URL is the configured webhook destination
	if err != nil {
		latency := time.Since(start)
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("timeout after %s: %s", wh.Timeout(), msg)
		}
		return TransportFailure{Message: msg, Latency: latency}, nil
	}
	defer resp.Body.Close()

	// A failed body read still leaves a classifiable status code.
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBody))
	latency := time.Since(start)
	respBody := strings.ToValidUTF8(string(raw), "")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Success{StatusCode: resp.StatusCode, Body: respBody, Latency: latency}, nil
	}
	return HTTPFailure{StatusCode: resp.StatusCode, Body: respBody, Latency: latency}, nil
}
