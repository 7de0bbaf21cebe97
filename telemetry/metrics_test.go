package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestCorrelationRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Fatalf("empty context returned %q", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Fatalf("GetCorrelation = %q, want abc-123", got)
	}
	if LoggerWithCorr(ctx, nil) == nil {
		t.Fatal("LoggerWithCorr returned nil")
	}
}

func TestTimeFunc(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_poll_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})

	executed := false
	d := TimeFunc(h, func() {
		time.Sleep(5 * time.Millisecond)
		executed = true
	})
	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if d < 5*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 5ms", d)
	}

	metric := &dto.Metric{}
	if err := h.Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", metric.Histogram.GetSampleCount())
	}
}

func TestCounters(t *testing.T) {
	Init()

	before := testutil.ToFloat64(MessagesReceived.WithLabelValues("kick"))
	CountMessage("kick")
	CountMessage("kick")
	if got := testutil.ToFloat64(MessagesReceived.WithLabelValues("kick")) - before; got != 2 {
		t.Errorf("messages delta = %v, want 2", got)
	}

	reqBefore := testutil.ToFloat64(PollRequests.WithLabelValues("relay"))
	failBefore := testutil.ToFloat64(PollFailures.WithLabelValues("relay"))
	CountPoll("relay", false)
	CountPoll("relay", true)
	if got := testutil.ToFloat64(PollRequests.WithLabelValues("relay")) - reqBefore; got != 2 {
		t.Errorf("poll requests delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(PollFailures.WithLabelValues("relay")) - failBefore; got != 1 {
		t.Errorf("poll failures delta = %v, want 1", got)
	}
}

func TestMoveAdapterState(t *testing.T) {
	Init()

	active := AdapterStates.WithLabelValues("discord", "active")
	failed := AdapterStates.WithLabelValues("discord", "failed")
	a0, f0 := testutil.ToFloat64(active), testutil.ToFloat64(failed)

	MoveAdapterState("discord", "", "active")
	MoveAdapterState("discord", "active", "failed")

	if got := testutil.ToFloat64(active) - a0; got != 0 {
		t.Errorf("active delta = %v, want 0", got)
	}
	if got := testutil.ToFloat64(failed) - f0; got != 1 {
		t.Errorf("failed delta = %v, want 1", got)
	}
}

func TestGauges(t *testing.T) {
	Init()

	for _, depth := range []int{0, 10, 3} {
		SetBusDepth(depth)
	}
	if got := testutil.ToFloat64(BusDepthGauge); got != 3 {
		t.Errorf("bus depth = %v, want 3", got)
	}

	start := testutil.ToFloat64(SSEClientGauge)
	AddSSEClients(1)
	AddSSEClients(1)
	AddSSEClients(-1)
	if got := testutil.ToFloat64(SSEClientGauge) - start; got != 1 {
		t.Errorf("sse clients delta = %v, want 1", got)
	}

	r0 := testutil.ToFloat64(Reloads)
	CountReload()
	if got := testutil.ToFloat64(Reloads) - r0; got != 1 {
		t.Errorf("reloads delta = %v, want 1", got)
	}
}
