package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/metrics"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/payments"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/repository"
)

// ErrPayoutInProgress is returned when a payout run is already executing.
var ErrPayoutInProgress = errors.New("a payout run is already in progress")

var (
	mpesaPhonePattern = regexp.MustCompile(`^254[17][0-9]{8}$`)
	countryPattern    = regexp.MustCompile(`^[A-Z]{2}$`)
)

// PaymentStore is the persistence needed for checkout and payouts.
type PaymentStore interface {
	PurchaseStore
	PayoutStore
	GetAppBySlug(ctx context.Context, slug string) (*model.App, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetDeveloperByUserID(ctx context.Context, userID string) (*model.Developer, error)
	UpdateDeveloperPayout(ctx context.Context, dev *model.Developer) error
}

// ProviderSource resolves configured payment providers by name.
type ProviderSource interface {
	Get(name string) (payments.Provider, bool)
}

// PaymentConfig holds the payment settings.
type PaymentConfig struct {
	FeePercent int
	// BaseURL is the public storefront URL used for provider redirects.
	BaseURL string
}

// PaymentService creates checkouts, applies provider webhooks and pays
// developers. Provider calls are made once and errors are surfaced.
type PaymentService struct {
	store     PaymentStore
	providers ProviderSource
	publisher EventPublisher
	config    PaymentConfig
	metrics   metrics.Recorder
	logger    *slog.Logger

	payoutMu sync.Mutex
}

// NewPaymentService creates a new PaymentService. publisher may be nil.
func NewPaymentService(store PaymentStore, providers ProviderSource, publisher EventPublisher, config PaymentConfig, recorder metrics.Recorder, logger *slog.Logger) *PaymentService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &PaymentService{
		store:     store,
		providers: providers,
		publisher: publisher,
		config:    config,
		metrics:   recorder,
		logger:    logger.With("component", "payments"),
	}
}

// CheckoutResult is a started checkout.
type CheckoutResult struct {
	PurchaseID  string `json:"purchase_id"`
	Provider    string `json:"provider"`
	CheckoutURL string `json:"checkout_url"`
}

// Checkout creates a pending purchase of a paid app and opens a hosted
// checkout with the chosen provider.
func (s *PaymentService) Checkout(ctx context.Context, userID, slug, providerName string) (*CheckoutResult, error) {
	provider, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}

	app, err := s.store.GetAppBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrAppNotFound) {
			return nil, ErrAppNotFound
		}
		return nil, err
	}
	if !app.IsPublished() {
		return nil, ErrAppNotFound
	}
	if app.IsFree() {
		return nil, ErrFreeApp
	}

	owned, err := s.store.HasCompletedPurchase(ctx, app.ID, userID)
	if err != nil {
		return nil, err
	}
	if owned {
		return nil, ErrAlreadyOwned
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	purchase := &model.Purchase{
		ID:          newID(),
		AppID:       app.ID,
		UserID:      userID,
		DeveloperID: app.DeveloperID,
		Provider:    provider.Name(),
		AmountCents: app.PriceCents,
		Currency:    app.Currency,
		FeeCents:    payments.PlatformFee(app.PriceCents, s.config.FeePercent),
		Status:      model.PurchaseStatusPending,
		CreatedAt:   now(),
	}
	if err := s.store.CreatePurchase(ctx, purchase); err != nil {
		return nil, err
	}

	session, err := provider.CreateCheckout(ctx, payments.CheckoutRequest{
		PurchaseID:    purchase.ID,
		AppName:       app.Name,
		AmountCents:   purchase.AmountCents,
		Currency:      purchase.Currency,
		CustomerEmail: user.Email,
		CustomerName:  user.Name,
		SuccessURL:    s.storeURL("/apps/"+app.Slug, url.Values{"purchase": {purchase.ID}, "checkout": {"success"}}),
		CancelURL:     s.storeURL("/apps/"+app.Slug, url.Values{"purchase": {purchase.ID}, "checkout": {"cancelled"}}),
	})
	if err != nil {
		if failErr := s.store.FailPurchase(ctx, purchase.ID); failErr != nil {
			s.logger.Error("failed to mark purchase failed", "purchase_id", purchase.ID, "error", failErr)
		}
		return nil, err
	}
	if err := s.store.SetPurchaseProviderRef(ctx, purchase.ID, session.Ref); err != nil {
		return nil, err
	}
	s.metrics.IncCheckoutCreated(provider.Name())

	s.logger.Info("checkout created",
		"purchase_id", purchase.ID,
		"app_id", app.ID,
		"provider", provider.Name(),
		"amount_cents", purchase.AmountCents,
		"currency", purchase.Currency,
	)
	return &CheckoutResult{PurchaseID: purchase.ID, Provider: provider.Name(), CheckoutURL: session.URL}, nil
}

// HandleWebhook verifies a provider notification and applies it. Completion
// only moves pending purchases, so redelivered webhooks are harmless. Events
// the store does not act on are acknowledged.
func (s *PaymentService) HandleWebhook(ctx context.Context, providerName string, payload []byte, header http.Header) error {
	provider, err := s.provider(providerName)
	if err != nil {
		return err
	}

	event, err := provider.ParseWebhook(ctx, payload, header)
	if err != nil {
		s.metrics.IncPaymentWebhook(providerName, "rejected")
		return err
	}

	switch event.Kind {
	case payments.EventCheckoutCompleted:
		return s.completePurchase(ctx, providerName, event)
	case payments.EventCheckoutFailed:
		if err := s.store.FailPurchase(ctx, event.PurchaseID); err != nil {
			return err
		}
		s.metrics.IncPaymentWebhook(providerName, "processed")
		s.logger.Info("purchase failed", "purchase_id", event.PurchaseID, "provider", providerName, "event", event.Type)
	default:
		s.metrics.IncPaymentWebhook(providerName, "ignored")
		s.logger.Debug("payment webhook ignored", "provider", providerName, "event", event.Type)
	}
	return nil
}

func (s *PaymentService) completePurchase(ctx context.Context, providerName string, event *payments.WebhookEvent) error {
	purchase, err := s.store.GetPurchaseByID(ctx, event.PurchaseID)
	if err != nil {
		if errors.Is(err, repository.ErrPurchaseNotFound) {
			s.metrics.IncPaymentWebhook(providerName, "ignored")
			s.logger.Warn("payment webhook for unknown purchase", "provider", providerName, "purchase_id", event.PurchaseID)
			return nil
		}
		return err
	}

	if purchase.Provider != providerName {
		s.metrics.IncPaymentWebhook(providerName, "rejected")
		return fmt.Errorf("purchase %s belongs to provider %s", purchase.ID, purchase.Provider)
	}
	if event.AmountCents != 0 &&
		(event.AmountCents != purchase.AmountCents || !strings.EqualFold(event.Currency, purchase.Currency)) {
		s.logger.Error("payment amount mismatch",
			"purchase_id", purchase.ID,
			"expected", purchase.AmountCents,
			"expected_currency", purchase.Currency,
			"paid", event.AmountCents,
			"paid_currency", event.Currency,
		)
		if err := s.store.FailPurchase(ctx, purchase.ID); err != nil {
			return err
		}
		s.metrics.IncPaymentWebhook(providerName, "rejected")
		return nil
	}

	completed, err := s.store.CompletePurchase(ctx, purchase.ID, event.ProviderRef)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyPurchased) {
			s.metrics.IncPaymentWebhook(providerName, "duplicate")
			s.logger.Warn("second completed purchase for the same app", "purchase_id", purchase.ID, "user_id", purchase.UserID)
			return nil
		}
		return err
	}
	if !completed {
		s.metrics.IncPaymentWebhook(providerName, "duplicate")
		return nil
	}

	s.metrics.IncPaymentWebhook(providerName, "processed")
	s.metrics.IncPurchaseCompleted(providerName)
	s.publish(ctx, purchase.DeveloperID, model.EventTypePurchaseCompleted, map[string]any{
		"purchase_id":  purchase.ID,
		"app_id":       purchase.AppID,
		"app_slug":     purchase.AppSlug,
		"amount_cents": purchase.AmountCents,
		"fee_cents":    purchase.FeeCents,
		"currency":     purchase.Currency,
	})

	s.logger.Info("purchase completed", "purchase_id", purchase.ID, "provider", providerName, "app_id", purchase.AppID)
	return nil
}

// Library returns the apps a user has bought.
func (s *PaymentService) Library(ctx context.Context, userID string) ([]*model.Purchase, error) {
	purchases, err := s.store.ListLibrary(ctx, userID)
	if err != nil {
		return nil, err
	}
	return lo.Ternary(purchases == nil, []*model.Purchase{}, purchases), nil
}

// SetupPayoutsInput selects a developer's payout rail.
type SetupPayoutsInput struct {
	Provider   string
	Country    string
	MpesaPhone string
}

// PayoutSetup is the result of connecting a payout account.
type PayoutSetup struct {
	Developer     *model.Developer `json:"developer"`
	OnboardingURL string           `json:"onboarding_url,omitempty"`
}

// SetupPayouts creates the developer's payout destination with the provider:
// a Stripe Express account with an onboarding link, or a Flutterwave M-Pesa
// beneficiary.
func (s *PaymentService) SetupPayouts(ctx context.Context, userID string, input SetupPayoutsInput) (*PayoutSetup, error) {
	provider, err := s.provider(input.Provider)
	if err != nil {
		return nil, err
	}

	req := payments.AccountRequest{
		ReturnURL:  s.storeURL("/developer/payouts", url.Values{"setup": {"done"}}),
		RefreshURL: s.storeURL("/developer/payouts", url.Values{"setup": {"retry"}}),
	}
	switch provider.Name() {
	case model.ProviderStripe:
		req.Country = strings.ToUpper(strings.TrimSpace(input.Country))
		if !countryPattern.MatchString(req.Country) {
			return nil, invalid("country", "must be a two-letter ISO 3166 code")
		}
	case model.ProviderFlutterwave:
		req.MpesaPhone = normalizePhone(input.MpesaPhone)
		if !mpesaPhonePattern.MatchString(req.MpesaPhone) {
			return nil, invalid("mpesa_phone", "must be a Kenyan mobile number such as 254712345678")
		}
	}

	dev, err := s.store.GetDeveloperByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrDeveloperNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	req.DeveloperID = dev.ID
	req.Name = dev.DisplayName
	req.Email = lo.Ternary(dev.SupportEmail != "", dev.SupportEmail, user.Email)

	setup, err := provider.SetupAccount(ctx, req)
	if err != nil {
		return nil, err
	}

	dev.PayoutProvider = provider.Name()
	switch provider.Name() {
	case model.ProviderStripe:
		dev.StripeAccountID = setup.AccountID
	case model.ProviderFlutterwave:
		dev.FlutterwaveBeneficiaryID = setup.AccountID
		dev.MpesaPhone = req.MpesaPhone
	}
	dev.PayoutsEnabled = true
	if err := s.store.UpdateDeveloperPayout(ctx, dev); err != nil {
		return nil, err
	}

	s.logger.Info("payout account connected", "developer_id", dev.ID, "provider", provider.Name(), "ready", setup.Ready)
	return &PayoutSetup{Developer: dev, OnboardingURL: setup.OnboardingURL}, nil
}

// ListPayouts returns the developer's payout history.
func (s *PaymentService) ListPayouts(ctx context.Context, userID string) ([]*model.Payout, error) {
	dev, err := s.store.GetDeveloperByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrDeveloperNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	payouts, err := s.store.ListPayoutsByDeveloper(ctx, dev.ID)
	if err != nil {
		return nil, err
	}
	return lo.Ternary(payouts == nil, []*model.Payout{}, payouts), nil
}

// PayoutReport summarizes one payout run.
type PayoutReport struct {
	Paid     int           `json:"paid"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration_ns"`
}

// RunPayouts pays every developer's unpaid balance, one transfer per
// developer and currency. A failed transfer marks its payout failed and the
// purchases stay unpaid for the next run.
func (s *PaymentService) RunPayouts(ctx context.Context) (*PayoutReport, error) {
	if !s.payoutMu.TryLock() {
		return nil, ErrPayoutInProgress
	}
	defer s.payoutMu.Unlock()

	start := time.Now()
	report := &PayoutReport{}
	defer func() {
		report.Duration = time.Since(start)
		s.metrics.ObservePayoutRun(report.Duration)
	}()

	batches, err := s.store.UnpaidBalances(ctx)
	if err != nil {
		return nil, err
	}

	for _, batch := range batches {
		dev := batch.Developer
		provider, ok := s.providers.Get(dev.PayoutProvider)
		if !ok || dev.PayoutDestination() == "" || batch.AmountCents <= 0 {
			report.Skipped++
			s.logger.Warn("payout skipped",
				"developer_id", dev.ID,
				"provider", dev.PayoutProvider,
				"currency", batch.Currency,
				"amount_cents", batch.AmountCents,
			)
			continue
		}

		ts := now()
		payout := &model.Payout{
			ID:          newID(),
			DeveloperID: dev.ID,
			Provider:    provider.Name(),
			AmountCents: batch.AmountCents,
			Currency:    batch.Currency,
			Status:      model.PayoutStatusPending,
			CreatedAt:   ts,
			UpdatedAt:   ts,
		}
		if err := s.store.CreatePayout(ctx, payout); err != nil {
			return report, err
		}

		req := payments.TransferRequest{
			PayoutID:    payout.ID,
			Destination: dev.PayoutDestination(),
			AmountCents: payout.AmountCents,
			Currency:    payout.Currency,
			Narration:   "VR store earnings " + payout.ID,
		}
		if provider.Name() == model.ProviderFlutterwave {
			req.Phone = dev.MpesaPhone
		}

		ref, err := provider.Transfer(ctx, req)
		if err != nil {
			report.Failed++
			s.failPayout(ctx, payout, err)
			continue
		}
		if err := s.store.MarkPayoutPaid(ctx, payout.ID, ref, batch.PurchaseIDs); err != nil {
			return report, err
		}

		report.Paid++
		s.metrics.IncPayout(provider.Name(), string(model.PayoutStatusPaid))
		s.publish(ctx, dev.ID, model.EventTypePayoutPaid, map[string]any{
			"payout_id":    payout.ID,
			"amount_cents": payout.AmountCents,
			"currency":     payout.Currency,
			"provider_ref": ref,
		})
		s.logger.Info("payout paid",
			"payout_id", payout.ID,
			"developer_id", dev.ID,
			"provider", provider.Name(),
			"amount_cents", payout.AmountCents,
			"currency", payout.Currency,
		)
	}

	s.logger.Info("payout run finished", "paid", report.Paid, "failed", report.Failed, "skipped", report.Skipped)
	return report, nil
}

func (s *PaymentService) failPayout(ctx context.Context, payout *model.Payout, cause error) {
	s.metrics.IncPayout(payout.Provider, string(model.PayoutStatusFailed))
	s.logger.Error("payout transfer failed", "payout_id", payout.ID, "developer_id", payout.DeveloperID, "error", cause)

	if err := s.store.MarkPayoutFailed(ctx, payout.ID, cause.Error()); err != nil {
		s.logger.Error("failed to record payout failure", "payout_id", payout.ID, "error", err)
	}
	s.publish(ctx, payout.DeveloperID, model.EventTypePayoutFailed, map[string]any{
		"payout_id":    payout.ID,
		"amount_cents": payout.AmountCents,
		"currency":     payout.Currency,
		"reason":       cause.Error(),
	})
}

func (s *PaymentService) provider(name string) (payments.Provider, error) {
	if !model.IsValidProvider(name) {
		return nil, invalid("provider", "must be one of %s", strings.Join(model.ValidProviders, ", "))
	}
	p, ok := s.providers.Get(name)
	if !ok {
		return nil, ErrProviderUnavailable
	}
	return p, nil
}

func (s *PaymentService) publish(ctx context.Context, developerID string, eventType model.EventType, data map[string]any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, developerID, eventType, data); err != nil {
		s.logger.Warn("failed to queue developer notification", "developer_id", developerID, "event", eventType, "error", err)
	}
}

func (s *PaymentService) storeURL(path string, query url.Values) string {
	u := strings.TrimRight(s.config.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func normalizePhone(raw string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if strings.HasPrefix(digits, "0") && len(digits) == 10 {
		digits = "254" + digits[1:]
	}
	return digits
}
