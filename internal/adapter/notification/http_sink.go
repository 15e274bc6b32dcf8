package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"moneyflow/internal/core/domain"
	"moneyflow/internal/core/ports"
)

// SignatureHeader carries "t=<unix>,v1=<hex>": the HMAC-SHA256 of the
// timestamp and request body.
const SignatureHeader = "X-Signature"

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSink posts notification events as JSON to a fixed endpoint.
type HTTPSink struct {
	url    string
	secret string
	sigSvc ports.SignatureService
	client HTTPClient
}

// NewHTTPSink creates a sink for url. Bodies are signed when secret is set.
func NewHTTPSink(url, secret string, sigSvc ports.SignatureService, client HTTPClient) *HTTPSink {
	return &HTTPSink{url: url, secret: secret, sigSvc: sigSvc, client: client}
}

// Deliver sends one event. Transport errors and non-2xx responses are failures.
func (s *HTTPSink) Deliver(ctx context.Context, event domain.NotificationEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.secret != "" {
		req.Header.Set(SignatureHeader, s.sigSvc.Sign(s.secret, time.Now(), body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification sink returned status %d", resp.StatusCode)
	}
	return nil
}

// Name identifies the sink in logs and metrics.
func (s *HTTPSink) Name() string {
	return "http"
}
