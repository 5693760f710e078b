package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.DecodeFailed.Inc()
	prom.Metrics.EncodeFailed.Inc()
	prom.Metrics.JournalWrites.Inc()
	prom.Metrics.JournalWrites.Inc()
	prom.Metrics.JournalFailed.Inc()
	prom.Metrics.RelayPublished.Inc()
	prom.Metrics.RelayFailed.Inc()
	prom.Metrics.SinkWrites.Inc()
	prom.Metrics.SinkDropped.Inc()
	prom.Metrics.SinkFailed.Inc()

	assertCounter(t, prom.decodeFailed, 1)
	assertCounter(t, prom.encodeFailed, 1)
	assertCounter(t, prom.journalWrites, 2)
	assertCounter(t, prom.journalFailed, 1)
	assertCounter(t, prom.relayPublished, 1)
	assertCounter(t, prom.relayFailed, 1)
	assertCounter(t, prom.sinkWrites, 1)
	assertCounter(t, prom.sinkDropped, 1)
	assertCounter(t, prom.sinkFailed, 1)
}

func TestPrometheusLabeledCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.MessagesSent.Inc("ping")
	prom.Metrics.MessagesSent.Inc("ping")
	prom.Metrics.MessagesSent.Inc("configure")
	prom.Metrics.MessagesReceived.Inc("pnl_update")

	assertCounter(t, prom.sent.WithLabelValues("ping"), 2)
	assertCounter(t, prom.sent.WithLabelValues("configure"), 1)
	assertCounter(t, prom.received.WithLabelValues("pnl_update"), 1)
}

func TestPrometheusHandler(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.MessagesReceived.Inc("hello_ok")

	rec := httptest.NewRecorder()
	prom.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `lasersell_stream_messages_received_total{type="hello_ok"} 1`) {
		t.Fatalf("metric missing from scrape output:\n%s", body)
	}
}

func TestNoopIsSafe(t *testing.T) {
	m := OrNoop(nil)
	m.MessagesSent.Inc("ping")
	m.DecodeFailed.Inc()
}

func assertCounter(t *testing.T, counter prometheus.Counter, expected float64) {
	t.Helper()
	if got := testutil.ToFloat64(counter); got != expected {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}
