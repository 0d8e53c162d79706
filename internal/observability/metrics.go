package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Metrics stores Prometheus collectors used by the HTTP surface and the
// reconciliation flow.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	invoicesProcessedTotal *prometheus.CounterVec
	pollCyclesTotal        *prometheus.CounterVec
	pollCycleDuration      prometheus.Histogram
	platformCallDuration   *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reconciler",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "reconciler",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		invoicesProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reconciler",
				Name:      "invoices_processed_total",
				Help:      "Total number of paid invoices processed grouped by recorded outcome.",
			},
			[]string{"outcome"},
		),
		pollCyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reconciler",
				Name:      "poll_cycles_total",
				Help:      "Total number of poll cycles grouped by result.",
			},
			[]string{"result"},
		),
		pollCycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "reconciler",
				Name:      "poll_cycle_duration_seconds",
				Help:      "Duration of a complete poll-and-process cycle in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		platformCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "reconciler",
				Name:      "platform_call_duration_seconds",
				Help:      "External platform call duration in seconds grouped by platform and operation.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"platform", "operation"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.invoicesProcessedTotal,
		m.pollCyclesTotal,
		m.pollCycleDuration,
		m.platformCallDuration,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// FiberHandler exposes the registry on a fiber route without pulling in the
// adaptor module.
func (m *Metrics) FiberHandler() fiber.Handler {
	handler := fasthttpadaptor.NewFastHTTPHandler(m.Handler())
	return func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	}
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncInvoiceProcessed(outcome string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToLower(outcome))
	if normalized == "" {
		normalized = "unknown"
	}
	m.invoicesProcessedTotal.WithLabelValues(normalized).Inc()
}

func (m *Metrics) IncPollCycle(result string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToLower(result))
	if normalized == "" {
		normalized = "unknown"
	}
	m.pollCyclesTotal.WithLabelValues(normalized).Inc()
}

func (m *Metrics) ObservePollCycleDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.pollCycleDuration.Observe(seconds)
}

func (m *Metrics) ObservePlatformCallDuration(platform string, operation string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.platformCallDuration.WithLabelValues(normalizeLabel(platform), normalizeLabel(operation)).Observe(seconds)
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
