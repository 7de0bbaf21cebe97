// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesReceived *prometheus.CounterVec
	PollRequests     *prometheus.CounterVec
	PollFailures     *prometheus.CounterVec
	Reloads          prometheus.Counter

	// Histograms (seconds)
	PollDuration prometheus.Observer

	// Gauges
	AdapterStates  *prometheus.GaugeVec
	BusDepthGauge  prometheus.Gauge
	SSEClientGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatter_messages_total", Help: "Chat messages pushed to the bus"}, []string{"platform"})
		PollRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatter_poll_requests_total", Help: "Page requests issued by poll-based adapters"}, []string{"platform"})
		PollFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatter_poll_failures_total", Help: "Page requests that stopped a poll-based adapter"}, []string{"platform"})
		Reloads = promauto.NewCounter(prometheus.CounterOpts{Name: "chatter_reloads_total", Help: "Number of load/reload cycles"})
		PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chatter_poll_duration_seconds", Help: "Page request duration seconds", Buckets: prometheus.DefBuckets})
		AdapterStates = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "chatter_adapter_state", Help: "Adapters per platform and lifecycle state"}, []string{"platform", "state"})
		BusDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatter_bus_depth", Help: "Messages waiting in the fan-in bus"})
		SSEClientGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatter_sse_clients", Help: "Connected live stream clients"})
	})
}

// CountMessage records one message pushed by an adapter of platform.
func CountMessage(platform string) {
	if MessagesReceived != nil {
		MessagesReceived.WithLabelValues(platform).Inc()
	}
}

// CountPoll records one page request and, if failed, one failure.
func CountPoll(platform string, failed bool) {
	if PollRequests == nil {
		return
	}
	PollRequests.WithLabelValues(platform).Inc()
	if failed {
		PollFailures.WithLabelValues(platform).Inc()
	}
}

// MoveAdapterState shifts one adapter from state `from` to state `to`. An empty
// from means the adapter is new; an empty to means it was discarded.
func MoveAdapterState(platform, from, to string) {
	if AdapterStates == nil {
		return
	}
	if from != "" {
		AdapterStates.WithLabelValues(platform, from).Dec()
	}
	if to != "" {
		AdapterStates.WithLabelValues(platform, to).Inc()
	}
}

// SetBusDepth records the current number of queued messages.
func SetBusDepth(n int) {
	if BusDepthGauge != nil {
		BusDepthGauge.Set(float64(n))
	}
}

// CountReload records one load/reload cycle.
func CountReload() {
	if Reloads != nil {
		Reloads.Inc()
	}
}

// AddSSEClients adjusts the connected stream client gauge by delta.
func AddSSEClients(delta int) {
	if SSEClientGauge != nil {
		SSEClientGauge.Add(float64(delta))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns base with a corr attribute if ctx carries one.
func LoggerWithCorr(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if id := GetCorrelation(ctx); id != "" {
		return base.With(slog.String("corr", id))
	}
	return base
}
