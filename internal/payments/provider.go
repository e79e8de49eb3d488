// Package payments defines the checkout and payout contract implemented by
// each payment provider.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Common provider errors.
var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrUnsupported      = errors.New("operation not supported by provider")
)

// CheckoutRequest describes one hosted checkout for a purchase.
type CheckoutRequest struct {
	PurchaseID    string
	AppName       string
	AmountCents   int64
	Currency      string
	CustomerEmail string
	CustomerName  string
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is the provider's hosted checkout page.
type CheckoutSession struct {
	Ref string
	URL string
}

// EventKind classifies a verified webhook.
type EventKind string

const (
	EventCheckoutCompleted EventKind = "checkout.completed"
	EventCheckoutFailed    EventKind = "checkout.failed"
	EventIgnored           EventKind = "ignored"
)

// WebhookEvent is a verified provider notification reduced to what the
// store acts on. Amount fields are zero when the provider omits them.
type WebhookEvent struct {
	Kind        EventKind
	Type        string
	PurchaseID  string
	ProviderRef string
	AmountCents int64
	Currency    string
}

// AccountRequest asks a provider to create a payout destination.
type AccountRequest struct {
	DeveloperID string
	Email       string
	Name        string
	Country     string
	MpesaPhone  string
	ReturnURL   string
	RefreshURL  string
}

// AccountSetup is the created payout destination. OnboardingURL is set when
// the developer must finish setup on the provider's site.
type AccountSetup struct {
	AccountID     string
	OnboardingURL string
	Ready         bool
}

// TransferRequest moves a developer's earnings to their payout destination.
type TransferRequest struct {
	PayoutID    string
	Destination string
	Phone       string
	AmountCents int64
	Currency    string
	Narration   string
}

// Provider is a payment provider. Calls are made once; callers surface
// errors without retrying.
type Provider interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	ParseWebhook(ctx context.Context, payload []byte, header http.Header) (*WebhookEvent, error)
	SetupAccount(ctx context.Context, req AccountRequest) (*AccountSetup, error)
	Transfer(ctx context.Context, req TransferRequest) (string, error)
}

// Registry holds the configured providers by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry of the given providers. Nil entries are skipped.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.providers[name]
	return p, ok
}

// Names lists the configured providers in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var hundred = decimal.NewFromInt(100)

// PlatformFee returns percent of amountCents, rounded half-up to a whole cent.
func PlatformFee(amountCents int64, percent int) int64 {
	return decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromInt(int64(percent))).
		Div(hundred).
		Round(0).
		IntPart()
}

// MajorUnits renders cents as a JSON number in the currency's major unit,
// for example 1999 as 19.99.
func MajorUnits(amountCents int64) json.Number {
	return json.Number(decimal.New(amountCents, -2).StringFixed(2))
}

// ParseMajorUnits converts a major-unit amount such as "19.99" to cents,
// rounding half-up.
func ParseMajorUnits(amount string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, err
	}
	return d.Mul(hundred).Round(0).IntPart(), nil
}
