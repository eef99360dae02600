// Package metrics registers Prometheus instrumentation for billing
// operations. Init is idempotent; the Observe helpers are nil-safe so
// library code can call them whether or not the binary registered
// metrics (tests don't).
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "dairy_"

	resultSuccess = "success"
	resultError   = "error"
)

// Result labels shared by the Observe helpers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)

var (
	registerOnce sync.Once

	billPreviewTotal    *prometheus.CounterVec
	billPreviewLatency  *prometheus.HistogramVec
	billGenerateTotal   *prometheus.CounterVec
	billGenerateLatency *prometheus.HistogramVec
	billPaymentTotal    *prometheus.CounterVec
	billPaymentLatency  *prometheus.HistogramVec

	milkLogsTotal      prometheus.Counter
	feedPurchasesTotal prometheus.Counter
)

// Init registers all collectors with the default registry.
func Init() {
	registerOnce.Do(func() {
		billPreviewTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bill_preview_total",
				Help: "Total bill preview computations by result",
			},
			[]string{"result"},
		)
		billPreviewLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "bill_preview_latency_seconds",
				Help:    "Bill preview latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		billGenerateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bill_generate_total",
				Help: "Total bill generation operations by result",
			},
			[]string{"result"},
		)
		billGenerateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "bill_generate_latency_seconds",
				Help:    "Bill generation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		billPaymentTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bill_payment_update_total",
				Help: "Total payment correction operations by result",
			},
			[]string{"result"},
		)
		billPaymentLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "bill_payment_update_latency_seconds",
				Help:    "Payment correction latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		milkLogsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "milk_sessions_recorded_total",
				Help: "Total milk collection sessions recorded",
			},
		)
		feedPurchasesTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "feed_purchases_recorded_total",
				Help: "Total feed purchases recorded",
			},
		)

		prometheus.MustRegister(
			billPreviewTotal,
			billPreviewLatency,
			billGenerateTotal,
			billGenerateLatency,
			billPaymentTotal,
			billPaymentLatency,
			milkLogsTotal,
			feedPurchasesTotal,
		)
	})
}

// ObserveBillPreview records preview latency and result.
func ObserveBillPreview(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if billPreviewTotal != nil {
		billPreviewTotal.WithLabelValues(result).Inc()
	}
	if billPreviewLatency != nil {
		billPreviewLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveBillGenerate records generation latency and result.
func ObserveBillGenerate(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if billGenerateTotal != nil {
		billGenerateTotal.WithLabelValues(result).Inc()
	}
	if billGenerateLatency != nil {
		billGenerateLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveBillPayment records payment correction latency and result.
func ObserveBillPayment(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if billPaymentTotal != nil {
		billPaymentTotal.WithLabelValues(result).Inc()
	}
	if billPaymentLatency != nil {
		billPaymentLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncMilkSessionRecorded counts a stored milk session.
func IncMilkSessionRecorded() {
	if milkLogsTotal != nil {
		milkLogsTotal.Inc()
	}
}

// IncFeedPurchaseRecorded counts a stored feed purchase.
func IncFeedPurchaseRecorded() {
	if feedPurchasesTotal != nil {
		feedPurchasesTotal.Inc()
	}
}
