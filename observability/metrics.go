package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
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

	trancheMetricsOnce sync.Once
	trancheRegistry    *TrancheMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// handler activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "trancheld",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "trancheld",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "trancheld",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "trancheld",
				Subsystem: "module",
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
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// and alerts remain consistent.
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

// TrancheMetrics captures the ledger's accounting state and entry point
// outcomes.
type TrancheMetrics struct {
	operations *prometheus.CounterVec
	prices     *prometheus.GaugeVec
	nav        *prometheus.GaugeVec
	gain       prometheus.Gauge
	fees       prometheus.Counter
	defaults   prometheus.Counter
}

// Tranche returns the singleton metrics registry for the tranche ledger.
func Tranche() *TrancheMetrics {
	trancheMetricsOnce.Do(func() {
		trancheRegistry = &TrancheMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "trancheld",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger entry point calls segmented by operation and reason code.",
			}, []string{"operation", "reason"}),
			prices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "trancheld",
				Subsystem: "ledger",
				Name:      "tranche_price",
				Help:      "Tranche share price in whole underlying units.",
			}, []string{"tranche", "kind"}),
			nav: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "trancheld",
				Subsystem: "ledger",
				Name:      "tranche_nav",
				Help:      "Last recorded tranche NAV in whole underlying units.",
			}, []string{"tranche"}),
			gain: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "trancheld",
				Subsystem: "ledger",
				Name:      "harvest_gain",
				Help:      "Gain realised by the most recent harvest in whole underlying units.",
			}),
			fees: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "trancheld",
				Subsystem: "ledger",
				Name:      "fees_minted_total",
				Help:      "Cumulative fees converted into tranche shares in whole underlying units.",
			}),
			defaults: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "trancheld",
				Subsystem: "ledger",
				Name:      "default_trips_total",
				Help:      "Count of calls rejected by the strategy default circuit breaker.",
			}),
		}
		prometheus.MustRegister(
			trancheRegistry.operations,
			trancheRegistry.prices,
			trancheRegistry.nav,
			trancheRegistry.gain,
			trancheRegistry.fees,
			trancheRegistry.defaults,
		)
	})
	return trancheRegistry
}

// RecordOperation counts a call. An empty reason means success.
func (m *TrancheMetrics) RecordOperation(operation, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "OK"
	}
	m.operations.WithLabelValues(operation, reason).Inc()
}

// SetTranche publishes the current and locked price plus NAV of a tranche.
// one is the underlying's whole unit.
func (m *TrancheMetrics) SetTranche(tranche string, price, lastPrice, nav, one *big.Int) {
	if m == nil {
		return
	}
	label := labelTranche(tranche)
	m.prices.WithLabelValues(label, "current").Set(scaled(price, one))
	m.prices.WithLabelValues(label, "locked").Set(scaled(lastPrice, one))
	m.nav.WithLabelValues(label).Set(scaled(nav, one))
}

// RecordHarvest publishes the realised gain and minted fees.
func (m *TrancheMetrics) RecordHarvest(gain, fees, one *big.Int) {
	if m == nil {
		return
	}
	m.gain.Set(scaled(gain, one))
	if fees != nil && fees.Sign() > 0 {
		m.fees.Add(scaled(fees, one))
	}
}

func (m *TrancheMetrics) RecordDefault() {
	if m == nil {
		return
	}
	m.defaults.Inc()
}

func labelTranche(tranche string) string {
	trimmed := strings.TrimSpace(tranche)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
}

func scaled(value, one *big.Int) float64 {
	if value == nil {
		return 0
	}
	if one == nil || one.Sign() == 0 {
		return bigToFloat(value)
	}
	f, _ := new(big.Rat).SetFrac(value, one).Float64()
	return f
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
