package observability

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"lendchain/native/transfer"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	mortgageMetricsOnce sync.Once
	mortgageRegistry    *MortgageMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record API
// request activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendchain",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendchain",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendchain",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendchain",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" or
// "quota_exceeded" so dashboards and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// MortgageMetrics tracks engine transitions and value movements.
type MortgageMetrics struct {
	transitions *prometheus.CounterVec
	pushes      *prometheus.CounterVec
	attempts    *prometheus.HistogramVec
	fees        *prometheus.CounterVec
}

// Mortgage returns the singleton metrics registry of the mortgage engine.
func Mortgage() *MortgageMetrics {
	mortgageMetricsOnce.Do(func() {
		mortgageRegistry = &MortgageMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendchain",
				Subsystem: "mortgage",
				Name:      "transitions_total",
				Help:      "Count of mortgage transitions segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendchain",
				Subsystem: "mortgage",
				Name:      "pushes_total",
				Help:      "Count of outbound value pushes segmented by currency kind and outcome.",
			}, []string{"kind", "outcome"}),
			attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendchain",
				Subsystem: "mortgage",
				Name:      "push_attempts",
				Help:      "Attempts spent per outbound push.",
				Buckets:   []float64{1, 2, 3, 5, 8},
			}, []string{"kind"}),
			fees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendchain",
				Subsystem: "mortgage",
				Name:      "fees_collected_total",
				Help:      "Origination fees collected at lend, in smallest currency units.",
			}, []string{"currency"}),
		}
		prometheus.MustRegister(
			mortgageRegistry.transitions,
			mortgageRegistry.pushes,
			mortgageRegistry.attempts,
			mortgageRegistry.fees,
		)
	})
	return mortgageRegistry
}

// RecordTransition counts a transition attempt. err nil is a success;
// otherwise the outcome label is the supplied reason.
func (m *MortgageMetrics) RecordTransition(operation, reason string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = strings.TrimSpace(reason)
		if outcome == "" {
			outcome = "error"
		}
	}
	m.transitions.WithLabelValues(operation, outcome).Inc()
}

// ObservePush implements transfer.Observer.
func (m *MortgageMetrics) ObservePush(native bool, attempts int, outcome transfer.Outcome) {
	if m == nil {
		return
	}
	kind := "token"
	if native {
		kind = "native"
	}
	m.pushes.WithLabelValues(kind, outcome.String()).Inc()
	m.attempts.WithLabelValues(kind).Observe(float64(attempts))
}

// RecordFee adds a collected fee. Amounts beyond float64 precision are
// approximated.
func (m *MortgageMetrics) RecordFee(currency string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.fees.WithLabelValues(currency).Add(value)
}
