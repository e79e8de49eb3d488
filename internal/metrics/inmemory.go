package metrics

import (
	"maps"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters. Labeled counters are keyed
// by their label values joined with "/".
type Snapshot struct {
	HTTPRequests        map[string]uint64
	CatalogCacheHits    uint64
	CatalogCacheMisses  uint64
	Downloads           uint64
	AppsCreated         uint64
	AppsSubmitted       uint64
	ReleasesCreated     uint64
	ModerationDecisions map[string]uint64
	CheckoutsCreated    map[string]uint64
	PurchasesCompleted  map[string]uint64
	PaymentWebhooks     map[string]uint64
	Payouts             map[string]uint64
	PayoutRuns          uint64
	WebhookDeliveries   map[string]uint64
	SideloadManifests   map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	catalogCacheHits   uint64
	catalogCacheMisses uint64
	downloads          uint64
	appsCreated        uint64
	appsSubmitted      uint64
	releasesCreated    uint64
	payoutRuns         uint64

	mu       sync.Mutex
	labelled map[string]map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{labelled: make(map[string]map[string]uint64)}
}

func (m *InMemoryRecorder) inc(family, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.labelled[family] == nil {
		m.labelled[family] = make(map[string]uint64)
	}
	m.labelled[family][label]++
}

func (m *InMemoryRecorder) family(name string) map[string]uint64 {
	out := make(map[string]uint64)
	maps.Copy(out, m.labelled[name])
	return out
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		HTTPRequests:        m.family("http"),
		CatalogCacheHits:    atomic.LoadUint64(&m.catalogCacheHits),
		CatalogCacheMisses:  atomic.LoadUint64(&m.catalogCacheMisses),
		Downloads:           atomic.LoadUint64(&m.downloads),
		AppsCreated:         atomic.LoadUint64(&m.appsCreated),
		AppsSubmitted:       atomic.LoadUint64(&m.appsSubmitted),
		ReleasesCreated:     atomic.LoadUint64(&m.releasesCreated),
		ModerationDecisions: m.family("moderation"),
		CheckoutsCreated:    m.family("checkout"),
		PurchasesCompleted:  m.family("purchase"),
		PaymentWebhooks:     m.family("payment_webhook"),
		Payouts:             m.family("payout"),
		PayoutRuns:          atomic.LoadUint64(&m.payoutRuns),
		WebhookDeliveries:   m.family("webhook_delivery"),
		SideloadManifests:   m.family("sideload"),
	}
}

// ObserveHTTPRequest counts a request by method, route and status.
func (m *InMemoryRecorder) ObserveHTTPRequest(method, route string, status int, _ time.Duration) {
	m.inc("http", method+"/"+route+"/"+strconv.Itoa(status))
}

// IncCatalogCacheHit increments the catalog cache hit counter.
func (m *InMemoryRecorder) IncCatalogCacheHit() { atomic.AddUint64(&m.catalogCacheHits, 1) }

// IncCatalogCacheMiss increments the catalog cache miss counter.
func (m *InMemoryRecorder) IncCatalogCacheMiss() { atomic.AddUint64(&m.catalogCacheMisses, 1) }

// IncDownload increments the download counter.
func (m *InMemoryRecorder) IncDownload() { atomic.AddUint64(&m.downloads, 1) }

// IncAppCreated increments the app created counter.
func (m *InMemoryRecorder) IncAppCreated() { atomic.AddUint64(&m.appsCreated, 1) }

// IncAppSubmitted increments the submission counter.
func (m *InMemoryRecorder) IncAppSubmitted() { atomic.AddUint64(&m.appsSubmitted, 1) }

// IncReleaseCreated increments the release counter.
func (m *InMemoryRecorder) IncReleaseCreated() { atomic.AddUint64(&m.releasesCreated, 1) }

// IncModerationDecision counts an admin decision.
func (m *InMemoryRecorder) IncModerationDecision(action string) { m.inc("moderation", action) }

// IncCheckoutCreated counts a checkout session.
func (m *InMemoryRecorder) IncCheckoutCreated(provider string) { m.inc("checkout", provider) }

// IncPurchaseCompleted counts a completed purchase.
func (m *InMemoryRecorder) IncPurchaseCompleted(provider string) { m.inc("purchase", provider) }

// IncPaymentWebhook counts a provider webhook by outcome.
func (m *InMemoryRecorder) IncPaymentWebhook(provider, result string) {
	m.inc("payment_webhook", provider+"/"+result)
}

// IncPayout counts a payout by outcome.
func (m *InMemoryRecorder) IncPayout(provider, status string) { m.inc("payout", provider+"/"+status) }

// ObservePayoutRun counts a payout run.
func (m *InMemoryRecorder) ObservePayoutRun(time.Duration) { atomic.AddUint64(&m.payoutRuns, 1) }

// IncWebhookDelivery counts a developer webhook delivery attempt.
func (m *InMemoryRecorder) IncWebhookDelivery(status string) { m.inc("webhook_delivery", status) }

// IncSideloadManifest counts a manifest request by preflight verdict.
func (m *InMemoryRecorder) IncSideloadManifest(compatible bool) {
	m.inc("sideload", strconv.FormatBool(compatible))
}
