package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SendResult("acked", time.Second)
	m.Reconcile("push", "duplicate")
	m.ReceiptDropped()
	m.Frame("typing")
	m.DecodeError()
	m.Reconnect()
	m.Authenticated(true)
	m.HTTPRequest("/api/messages", 200)
	m.HTTPRetry("/api/messages")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("nil handler should 404, got %d", rec.Code)
	}
}

func TestCountersAndExposition(t *testing.T) {
	m := New()
	m.SendResult("acked", 50*time.Millisecond)
	m.SendResult("failed", 0)
	m.Reconcile("push", "duplicate")
	m.Reconcile("push", "duplicate")
	m.ReceiptDropped()
	m.Authenticated(true)

	if got := testutil.ToFloat64(m.MessagesSent.WithLabelValues("acked")); got != 1 {
		t.Fatalf("acked = %v", got)
	}
	if got := testutil.ToFloat64(m.Reconciled.WithLabelValues("push", "duplicate")); got != 2 {
		t.Fatalf("duplicates = %v", got)
	}
	if got := testutil.ToFloat64(m.WSConnected); got != 1 {
		t.Fatalf("connected gauge = %v", got)
	}

	ts := httptest.NewServer(m.Handler())
	defer ts.Close()
	resp, err := ts.Client().Get(ts.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "chatcore_receipts_dropped_total 1") {
		t.Fatalf("exposition missing receipts counter:\n%s", body)
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.ReceiptDropped()
	if got := testutil.ToFloat64(b.ReceiptsDropped); got != 0 {
		t.Fatalf("second registry saw %v", got)
	}
}
