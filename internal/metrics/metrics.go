// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
type Recorder interface {
	// HTTP
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)

	// Catalog
	IncCatalogCacheHit()
	IncCatalogCacheMiss()
	IncDownload()

	// Developer console and moderation
	IncAppCreated()
	IncAppSubmitted()
	IncReleaseCreated()
	IncModerationDecision(action string)

	// Payments
	IncCheckoutCreated(provider string)
	IncPurchaseCompleted(provider string)
	IncPaymentWebhook(provider, result string) // result: "processed", "duplicate", "ignored", "rejected"
	IncPayout(provider, status string)         // status: "paid", "failed"
	ObservePayoutRun(duration time.Duration)

	// Developer notification webhooks
	IncWebhookDelivery(status string) // status: "success", "failed", "exhausted"

	// Sideload
	IncSideloadManifest(compatible bool)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
