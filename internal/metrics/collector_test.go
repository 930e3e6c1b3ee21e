package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRender_CountersGaugesHistograms(t *testing.T) {
	c := NewMetricsCollector()
	c.Counter("test_requests_total", "requests", "").Add(3)
	c.Counter("test_failures_total", "failures", `kind="transport"`).Inc()
	c.Gauge("test_connected", "connected", "").Set(1)
	h := c.Histogram("test_latency_seconds", "latency", "", []float64{1, 0.1})
	h.Observe(0.05)
	h.Observe(0.5)

	var sb strings.Builder
	c.Render(&sb)
	out := sb.String()

	for _, want := range []string{
		"test_requests_total 3\n",
		`test_failures_total{kind="transport"} 1`,
		"test_connected 1\n",
		`test_latency_seconds_bucket{le="0.1"} 1`,
		`test_latency_seconds_bucket{le="1"} 2`,
		"test_latency_seconds_count 2\n",
		"# TYPE test_latency_seconds histogram",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCounter_SameKeyReturnsSameCounter(t *testing.T) {
	c := NewMetricsCollector()
	a := c.Counter("x_total", "x", "")
	b := c.Counter("x_total", "x", "")
	a.Inc()
	if b.Value() != 1 {
		t.Fatalf("expected shared counter, got %d", b.Value())
	}
}

func TestHandler_ContentType(t *testing.T) {
	c := NewMetricsCollector()
	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "lukebridge_uptime_seconds") {
		t.Fatal("missing uptime gauge")
	}
}
