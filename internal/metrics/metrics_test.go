package metrics_test

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/notifyhub/mailqueue/internal/metrics"
)

func TestDispatchHooks(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	onSent, onFailed, onSkipped, onConflict, onCycle, onQueueDepth := m.DispatchHooks()

	onSent(20 * time.Millisecond)
	onSent(30 * time.Millisecond)
	onFailed(time.Second)
	onSkipped("sent_today")
	onSkipped("sent_today")
	onSkipped("in_flight")
	onConflict()
	onCycle(time.Second)
	onQueueDepth(3, 1)

	if got := testutil.ToFloat64(m.DispatchSent); got != 2 {
		t.Errorf("sent: got %v", got)
	}
	if got := testutil.ToFloat64(m.DispatchFailed); got != 1 {
		t.Errorf("failed: got %v", got)
	}
	if got := testutil.ToFloat64(m.DispatchSkipped.WithLabelValues("sent_today")); got != 2 {
		t.Errorf("skipped sent_today: got %v", got)
	}
	if got := testutil.ToFloat64(m.DispatchConflicts); got != 1 {
		t.Errorf("conflicts: got %v", got)
	}
	if got := testutil.ToFloat64(m.DispatchQueueDepth.WithLabelValues("first")); got != 3 {
		t.Errorf("first depth: got %v", got)
	}
	if got := testutil.CollectAndCount(m.DispatchLatency); got != 1 {
		t.Errorf("expected one latency histogram, got %d", got)
	}
}

func TestIngestHooks(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	onIngested, onRejected := m.IngestHooks()

	onIngested(2)
	onRejected(1)

	if got := testutil.ToFloat64(m.RecordsIngested); got != 2 {
		t.Errorf("ingested: got %v", got)
	}
	if got := testutil.ToFloat64(m.IngestRejected); got != 1 {
		t.Errorf("rejected: got %v", got)
	}
}

func TestDispatchLatency_DescribesSendTime(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	if desc := m.DispatchLatency.Desc().String(); !strings.Contains(desc, "transport send") {
		t.Fatalf("latency help must describe what is timed, got %s", desc)
	}
}
