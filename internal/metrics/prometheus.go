package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vrstore"

// PrometheusRecorder exports metrics through a dedicated registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	catalogCache  *prometheus.CounterVec
	downloads     prometheus.Counter
	apps          *prometheus.CounterVec
	releases      prometheus.Counter
	moderation    *prometheus.CounterVec
	checkouts     *prometheus.CounterVec
	purchases     *prometheus.CounterVec
	paymentHooks  *prometheus.CounterVec
	payouts       *prometheus.CounterVec
	payoutRun     prometheus.Histogram
	webhookSends  *prometheus.CounterVec
	sideloadCalls *prometheus.CounterVec
}

// NewPrometheus builds a recorder with its own registry, including the Go
// runtime and process collectors.
func NewPrometheus() *PrometheusRecorder {
	p := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		catalogCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "catalog", Name: "cache_requests_total",
			Help: "Catalog page cache lookups by result.",
		}, []string{"result"}),
		downloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "catalog", Name: "downloads_total",
			Help: "Artifact downloads served.",
		}),
		apps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "developer", Name: "apps_total",
			Help: "Developer console app events.",
		}, []string{"event"}),
		releases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "developer", Name: "releases_created_total",
			Help: "Releases created.",
		}),
		moderation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "admin", Name: "moderation_decisions_total",
			Help: "Admin moderation decisions by action.",
		}, []string{"action"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "payments", Name: "checkouts_created_total",
			Help: "Checkout sessions created by provider.",
		}, []string{"provider"}),
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "payments", Name: "purchases_completed_total",
			Help: "Purchases completed by provider.",
		}, []string{"provider"}),
		paymentHooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "payments", Name: "webhooks_total",
			Help: "Provider webhooks by provider and result.",
		}, []string{"provider", "result"}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "payments", Name: "payouts_total",
			Help: "Payout transfers by provider and status.",
		}, []string{"provider", "status"}),
		payoutRun: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "payments", Name: "payout_run_duration_seconds",
			Help:    "Duration of a full payout run.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		webhookSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "webhook", Name: "deliveries_total",
			Help: "Developer webhook delivery attempts by status.",
		}, []string{"status"}),
		sideloadCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sideload", Name: "manifests_total",
			Help: "Sideload manifests served by preflight verdict.",
		}, []string{"compatible"}),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.httpRequests, p.httpDuration,
		p.catalogCache, p.downloads,
		p.apps, p.releases, p.moderation,
		p.checkouts, p.purchases, p.paymentHooks, p.payouts, p.payoutRun,
		p.webhookSends, p.sideloadCalls,
	)
	return p
}

// Registry returns the underlying registry.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records a request's status and latency.
func (p *PrometheusRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncCatalogCacheHit()  { p.catalogCache.WithLabelValues("hit").Inc() }
func (p *PrometheusRecorder) IncCatalogCacheMiss() { p.catalogCache.WithLabelValues("miss").Inc() }
func (p *PrometheusRecorder) IncDownload()         { p.downloads.Inc() }
func (p *PrometheusRecorder) IncAppCreated()       { p.apps.WithLabelValues("created").Inc() }
func (p *PrometheusRecorder) IncAppSubmitted()     { p.apps.WithLabelValues("submitted").Inc() }
func (p *PrometheusRecorder) IncReleaseCreated()   { p.releases.Inc() }

func (p *PrometheusRecorder) IncModerationDecision(action string) {
	p.moderation.WithLabelValues(action).Inc()
}

func (p *PrometheusRecorder) IncCheckoutCreated(provider string) {
	p.checkouts.WithLabelValues(provider).Inc()
}

func (p *PrometheusRecorder) IncPurchaseCompleted(provider string) {
	p.purchases.WithLabelValues(provider).Inc()
}

func (p *PrometheusRecorder) IncPaymentWebhook(provider, result string) {
	p.paymentHooks.WithLabelValues(provider, result).Inc()
}

func (p *PrometheusRecorder) IncPayout(provider, status string) {
	p.payouts.WithLabelValues(provider, status).Inc()
}

func (p *PrometheusRecorder) ObservePayoutRun(duration time.Duration) {
	p.payoutRun.Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncWebhookDelivery(status string) {
	p.webhookSends.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncSideloadManifest(compatible bool) {
	p.sideloadCalls.WithLabelValues(strconv.FormatBool(compatible)).Inc()
}
