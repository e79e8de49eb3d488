package webhook

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
)

const (
	deliveryTimeout = 30 * time.Second
	userAgent       = "VRStore-Webhook/1.0"
)

// NewHTTPClient returns the client used for deliveries. Redirects are
// returned as-is so a 3xx counts as a failed attempt.
func NewHTTPClient() *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Client{
		Timeout: deliveryTimeout,
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 15 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
}

// newDeliveryRequest builds the signed POST for one delivery attempt.
func newDeliveryRequest(ctx context.Context, targetURL, secret string, d *model.WebhookDelivery, now time.Time) (*http.Request, error) {
	payload := []byte(d.PayloadJSON)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderDeliveryID, d.ID)
	req.Header.Set(HeaderEvent, string(d.EventType))
	Sign(secret, now, payload).Apply(req.Header)
	return req, nil
}
