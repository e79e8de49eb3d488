// Package stripepay implements payments.Provider on Stripe Checkout and
// Stripe Connect Express accounts.
package stripepay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/payments"
)

// SignatureHeader carries the Stripe webhook signature.
const SignatureHeader = "Stripe-Signature"

// Config configures the Stripe provider.
type Config struct {
	SecretKey     string
	WebhookSecret string
	// APIURL overrides the Stripe API base URL. Used in tests.
	APIURL     string
	HTTPClient *http.Client
}

// Provider talks to the Stripe API.
type Provider struct {
	api           *client.API
	webhookSecret string
	logger        *slog.Logger
}

var _ payments.Provider = (*Provider)(nil)

// New creates a Stripe provider. The SDK's network retries are disabled;
// each call is made exactly once.
func New(cfg Config, logger *slog.Logger) *Provider {
	url := cfg.APIURL
	if url == "" {
		url = stripe.APIURL
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(url),
		HTTPClient:        cfg.HTTPClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	})
	backends := &stripe.Backends{
		API:     backend,
		Connect: stripe.GetBackend(stripe.ConnectBackend),
		Uploads: stripe.GetBackend(stripe.UploadsBackend),
	}

	return &Provider{
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
		logger:        logger.With("component", "stripe"),
	}
}

// Name implements payments.Provider.
func (p *Provider) Name() string {
	return model.ProviderStripe
}

// CreateCheckout opens a one-item Checkout session. The purchase ID travels
// as the client reference and comes back in the completion webhook.
func (p *Provider) CreateCheckout(ctx context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.PurchaseID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.AppName),
					},
				},
			},
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	params.AddMetadata("purchase_id", req.PurchaseID)
	params.SetIdempotencyKey("checkout-" + req.PurchaseID)

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	p.logger.Info("checkout session created", "purchase_id", req.PurchaseID, "session_id", sess.ID)
	return &payments.CheckoutSession{Ref: sess.ID, URL: sess.URL}, nil
}

// ParseWebhook verifies the Stripe-Signature header and classifies the event.
func (p *Provider) ParseWebhook(_ context.Context, payload []byte, header http.Header) (*payments.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, header.Get(SignatureHeader), p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payments.ErrInvalidSignature, err)
	}

	out := &payments.WebhookEvent{Kind: payments.EventIgnored, Type: string(event.Type)}
	switch string(event.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		sess, err := decodeSession(event.Data)
		if err != nil {
			return nil, err
		}
		fillFromSession(out, sess)
		// Delayed payment methods complete later via async_payment_succeeded.
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
			sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
			out.Kind = payments.EventCheckoutCompleted
		}
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		sess, err := decodeSession(event.Data)
		if err != nil {
			return nil, err
		}
		fillFromSession(out, sess)
		out.Kind = payments.EventCheckoutFailed
	}
	return out, nil
}

func decodeSession(data *stripe.EventData) (*stripe.CheckoutSession, error) {
	if data == nil {
		return nil, payments.ErrMalformedPayload
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", payments.ErrMalformedPayload, err)
	}
	return &sess, nil
}

func fillFromSession(out *payments.WebhookEvent, sess *stripe.CheckoutSession) {
	out.PurchaseID = sess.ClientReferenceID
	if out.PurchaseID == "" {
		out.PurchaseID = sess.Metadata["purchase_id"]
	}
	out.ProviderRef = sess.ID
	out.AmountCents = sess.AmountTotal
	out.Currency = strings.ToUpper(string(sess.Currency))
}

// SetupAccount creates an Express connected account and an onboarding link.
func (p *Provider) SetupAccount(ctx context.Context, req payments.AccountRequest) (*payments.AccountSetup, error) {
	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Country: stripe.String(strings.ToUpper(req.Country)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	params.Context = ctx
	params.AddMetadata("developer_id", req.DeveloperID)

	acct, err := p.api.Accounts.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create account: %w", err)
	}

	linkParams := &stripe.AccountLinkParams{
		Account:    stripe.String(acct.ID),
		RefreshURL: stripe.String(req.RefreshURL),
		ReturnURL:  stripe.String(req.ReturnURL),
		Type:       stripe.String("account_onboarding"),
	}
	linkParams.Context = ctx
	link, err := p.api.AccountLinks.New(linkParams)
	if err != nil {
		return nil, fmt.Errorf("stripe: create account link: %w", err)
	}

	p.logger.Info("connected account created", "developer_id", req.DeveloperID, "account_id", acct.ID)
	return &payments.AccountSetup{AccountID: acct.ID, OnboardingURL: link.URL, Ready: acct.PayoutsEnabled}, nil
}

// Transfer moves funds from the platform balance to a connected account.
func (p *Provider) Transfer(ctx context.Context, req payments.TransferRequest) (string, error) {
	if req.Destination == "" {
		return "", fmt.Errorf("stripe: transfer %s has no destination account", req.PayoutID)
	}
	params := &stripe.TransferParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Destination:   stripe.String(req.Destination),
		TransferGroup: stripe.String(req.PayoutID),
	}
	if req.Narration != "" {
		params.Description = stripe.String(req.Narration)
	}
	params.Context = ctx
	params.AddMetadata("payout_id", req.PayoutID)
	params.SetIdempotencyKey("payout-" + req.PayoutID)

	tr, err := p.api.Transfers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create transfer: %w", err)
	}
	return tr.ID, nil
}
