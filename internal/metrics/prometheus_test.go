package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandler_ExposesCounters(t *testing.T) {
	t.Parallel()

	m := New()
	m.Inc(EventJoin)
	m.Inc(EventJoin)
	m.Inc(EventRelayOffer)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status=%d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		"# TYPE duocall_events_total counter",
		`duocall_events_total{event="join"} 2`,
		`duocall_events_total{event="relay_offer"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrometheusHandler_EscapesLabelValues(t *testing.T) {
	t.Parallel()

	m := New()
	m.Inc(`weird"event\name`)

	rec := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), `event="weird\"event\\name"`) {
		t.Fatalf("label not escaped:\n%s", rec.Body.String())
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	t.Parallel()

	m := New()
	m.Inc(EventDisconnect)
	snap := m.Snapshot()
	snap[EventDisconnect] = 99

	if got := m.Get(EventDisconnect); got != 1 {
		t.Fatalf("Get: got %d, want 1", got)
	}
}
