package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {}
func (n *NoopRecorder) IncCatalogCacheHit()                                                         {}
func (n *NoopRecorder) IncCatalogCacheMiss()                                                        {}
func (n *NoopRecorder) IncDownload()                                                                {}
func (n *NoopRecorder) IncAppCreated()                                                              {}
func (n *NoopRecorder) IncAppSubmitted()                                                            {}
func (n *NoopRecorder) IncReleaseCreated()                                                          {}
func (n *NoopRecorder) IncModerationDecision(action string)                                         {}
func (n *NoopRecorder) IncCheckoutCreated(provider string)                                          {}
func (n *NoopRecorder) IncPurchaseCompleted(provider string)                                        {}
func (n *NoopRecorder) IncPaymentWebhook(provider, result string)                                   {}
func (n *NoopRecorder) IncPayout(provider, status string)                                           {}
func (n *NoopRecorder) ObservePayoutRun(duration time.Duration)                                     {}
func (n *NoopRecorder) IncWebhookDelivery(status string)                                            {}
func (n *NoopRecorder) IncSideloadManifest(compatible bool)                                         {}
