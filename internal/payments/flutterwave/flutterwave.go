// Package flutterwave implements payments.Provider on the Flutterwave v3 REST
// API, with M-Pesa as the payout rail.
package flutterwave

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/payments"
)

const (
	// HashHeader carries the secret hash configured in the Flutterwave dashboard.
	HashHeader = "verif-hash"

	DefaultBaseURL = "https://api.flutterwave.com"

	mpesaBankCode  = "MPS"
	defaultTimeout = 15 * time.Second
)

// ErrUnverified is returned when a charge webhook does not match the
// transaction Flutterwave reports on verification.
var ErrUnverified = errors.New("flutterwave: transaction verification failed")

// APIError is a non-success response from the Flutterwave API.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("flutterwave: %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("flutterwave: %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// Config configures the Flutterwave provider.
type Config struct {
	SecretKey   string
	WebhookHash string
	BaseURL     string
	Timeout     time.Duration
}

// Provider talks to the Flutterwave API.
type Provider struct {
	client      *resty.Client
	webhookHash string
	logger      *slog.Logger
}

var _ payments.Provider = (*Provider)(nil)

// New creates a Flutterwave provider.
func New(cfg Config, logger *slog.Logger) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(cfg.SecretKey).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(0)

	return &Provider{
		client:      client,
		webhookHash: cfg.WebhookHash,
		logger:      logger.With("component", "flutterwave"),
	}
}

// Name implements payments.Provider.
func (p *Provider) Name() string {
	return model.ProviderFlutterwave
}

// CreateCheckout creates a hosted payment link. The purchase ID is the
// transaction reference.
func (p *Provider) CreateCheckout(ctx context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	body := map[string]any{
		"tx_ref":          req.PurchaseID,
		"amount":          payments.MajorUnits(req.AmountCents),
		"currency":        strings.ToUpper(req.Currency),
		"redirect_url":    req.SuccessURL,
		"payment_options": "card,mpesa",
		"customer": map[string]string{
			"email": req.CustomerEmail,
			"name":  req.CustomerName,
		},
		"customizations": map[string]string{
			"title": req.AppName,
		},
		"meta": map[string]string{
			"purchase_id": req.PurchaseID,
		},
	}

	res, err := p.post(ctx, "/v3/payments", body)
	if err != nil {
		return nil, err
	}
	link := res.Get("data.link").String()
	if link == "" {
		return nil, &APIError{Op: "create payment", StatusCode: http.StatusOK, Message: "response has no payment link"}
	}

	p.logger.Info("payment link created", "purchase_id", req.PurchaseID)
	return &payments.CheckoutSession{Ref: req.PurchaseID, URL: link}, nil
}

// ParseWebhook checks the verif-hash header and re-verifies successful charges
// against the transactions API before reporting them as completed.
func (p *Provider) ParseWebhook(ctx context.Context, payload []byte, header http.Header) (*payments.WebhookEvent, error) {
	got := header.Get(HashHeader)
	if p.webhookHash == "" || subtle.ConstantTimeCompare([]byte(got), []byte(p.webhookHash)) != 1 {
		return nil, payments.ErrInvalidSignature
	}
	if !gjson.ValidBytes(payload) {
		return nil, payments.ErrMalformedPayload
	}

	event := gjson.ParseBytes(payload)
	out := &payments.WebhookEvent{Kind: payments.EventIgnored, Type: event.Get("event").String()}
	if out.Type != "charge.completed" {
		return out, nil
	}

	data := event.Get("data")
	out.PurchaseID = data.Get("tx_ref").String()
	if out.PurchaseID == "" {
		return nil, payments.ErrMalformedPayload
	}

	// A failed charge is one attempt; hosted checkout lets the customer retry
	// under the same tx_ref, so the purchase stays pending.
	if !strings.EqualFold(data.Get("status").String(), "successful") {
		return out, nil
	}
	txID := data.Get("id").String()
	if txID == "" {
		return nil, payments.ErrMalformedPayload
	}
	verified, err := p.verify(ctx, txID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(verified.Get("status").String(), "successful") ||
		verified.Get("tx_ref").String() != out.PurchaseID {
		return nil, ErrUnverified
	}
	amount, err := payments.ParseMajorUnits(verified.Get("amount").String())
	if err != nil {
		return nil, fmt.Errorf("%w: amount: %v", ErrUnverified, err)
	}
	out.Kind = payments.EventCheckoutCompleted
	out.ProviderRef = txID
	out.AmountCents = amount
	out.Currency = strings.ToUpper(verified.Get("currency").String())
	return out, nil
}

func (p *Provider) verify(ctx context.Context, txID string) (gjson.Result, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("id", txID).
		Get("/v3/transactions/{id}/verify")
	if err != nil {
		return gjson.Result{}, fmt.Errorf("flutterwave: verify transaction: %w", err)
	}
	res, err := parse(resp, "verify transaction")
	if err != nil {
		return gjson.Result{}, err
	}
	return res.Get("data"), nil
}

// SetupAccount registers the developer's M-Pesa number as a transfer beneficiary.
func (p *Provider) SetupAccount(ctx context.Context, req payments.AccountRequest) (*payments.AccountSetup, error) {
	if req.MpesaPhone == "" {
		return nil, fmt.Errorf("flutterwave: an M-Pesa phone number is required")
	}
	body := map[string]any{
		"account_bank":     mpesaBankCode,
		"account_number":   req.MpesaPhone,
		"beneficiary_name": req.Name,
		"currency":         "KES",
	}

	res, err := p.post(ctx, "/v3/beneficiaries", body)
	if err != nil {
		return nil, err
	}
	id := res.Get("data.id").String()
	if id == "" {
		return nil, &APIError{Op: "create beneficiary", StatusCode: http.StatusOK, Message: "response has no beneficiary id"}
	}

	p.logger.Info("beneficiary created", "developer_id", req.DeveloperID, "beneficiary_id", id)
	return &payments.AccountSetup{AccountID: id, Ready: true}, nil
}

// Transfer sends a payout to M-Pesa. The payout ID is the transfer reference,
// which Flutterwave rejects if reused.
func (p *Provider) Transfer(ctx context.Context, req payments.TransferRequest) (string, error) {
	body := map[string]any{
		"amount":    payments.MajorUnits(req.AmountCents),
		"currency":  strings.ToUpper(req.Currency),
		"reference": req.PayoutID,
		"narration": req.Narration,
	}
	switch {
	case req.Phone != "":
		body["account_bank"] = mpesaBankCode
		body["account_number"] = req.Phone
	case req.Destination != "":
		body["beneficiary"] = json.Number(req.Destination)
	default:
		return "", fmt.Errorf("flutterwave: transfer %s has no destination", req.PayoutID)
	}

	res, err := p.post(ctx, "/v3/transfers", body)
	if err != nil {
		return "", err
	}
	return res.Get("data.id").String(), nil
}

func (p *Provider) post(ctx context.Context, path string, body any) (gjson.Result, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("flutterwave: POST %s: %w", path, err)
	}
	return parse(resp, "POST "+path)
}

func parse(resp *resty.Response, op string) (gjson.Result, error) {
	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, &APIError{Op: op, StatusCode: resp.StatusCode(), Message: "non-JSON response"}
	}
	res := gjson.ParseBytes(body)
	if resp.IsError() || res.Get("status").String() != "success" {
		return res, &APIError{Op: op, StatusCode: resp.StatusCode(), Message: res.Get("message").String()}
	}
	return res, nil
}
