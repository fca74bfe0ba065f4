package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	reg := NewMetricsRegistry()
	c := reg.NewCounter("test_total", "A test counter", nil)

	c.Inc()
	c.Inc()
	c.Add(3)

	if got := c.Value(); got != 5 {
		t.Errorf("counter value: got %f, want 5", got)
	}
}

func TestGauge(t *testing.T) {
	reg := NewMetricsRegistry()
	g := reg.NewGauge("test_gauge", "A test gauge", nil)

	g.Set(10)
	g.Inc()
	g.Dec()
	g.Add(-3)

	if got := g.Value(); got != 7 {
		t.Errorf("gauge value: got %f, want 7", got)
	}
}

func TestHistogram(t *testing.T) {
	reg := NewMetricsRegistry()
	h := reg.NewHistogram("test_seconds", "A test histogram", nil, []float64{0.1, 1, 10})

	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(5)
	h.Observe(50)

	if h.count != 4 {
		t.Errorf("observation count: got %d, want 4", h.count)
	}
	if h.sum != 55.55 {
		t.Errorf("sum: got %f, want 55.55", h.sum)
	}
	// Bucket counts are per-bucket here; cumulation happens at render time
	want := []uint64{1, 1, 1}
	for i, w := range want {
		if h.counts[i] != w {
			t.Errorf("bucket %d: got %d, want %d", i, h.counts[i], w)
		}
	}
}

func TestHistogram_ObserveDuration(t *testing.T) {
	reg := NewMetricsRegistry()
	h := reg.NewHistogram("test_seconds", "help", nil, nil)

	h.ObserveDuration(time.Now().Add(-10 * time.Millisecond))
	if h.count != 1 {
		t.Errorf("expected 1 observation, got %d", h.count)
	}
	if h.sum <= 0 {
		t.Errorf("expected positive duration, got %f", h.sum)
	}
}

func TestHandler_PrometheusText(t *testing.T) {
	reg := NewMetricsRegistry()
	c := reg.NewCounter("geotutor_questions_total", "Total questions received", nil)
	c.Add(7)
	g := reg.NewGauge("geotutor_sse_clients", "Connected SSE clients", map[string]string{"node": "a"})
	g.Set(2)
	h := reg.NewHistogram("geotutor_answer_duration_seconds", "Latency", nil, []float64{1, 5})
	h.Observe(0.5)
	h.Observe(3)

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type: %q", ct)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"# HELP geotutor_questions_total Total questions received",
		"# TYPE geotutor_questions_total counter",
		"geotutor_questions_total 7",
		"# TYPE geotutor_sse_clients gauge",
		`geotutor_sse_clients{node="a"} 2`,
		"# TYPE geotutor_answer_duration_seconds histogram",
		`geotutor_answer_duration_seconds_bucket{le="1"} 1`,
		`geotutor_answer_duration_seconds_bucket{le="5"} 2`,
		`geotutor_answer_duration_seconds_bucket{le="+Inf"} 2`,
		"geotutor_answer_duration_seconds_sum 3.5",
		"geotutor_answer_duration_seconds_count 2",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in output:\n%s", want, body)
		}
	}
}

func TestDefaultBuckets(t *testing.T) {
	buckets := DefaultBuckets()
	if len(buckets) == 0 {
		t.Fatal("expected default buckets")
	}
	for i := 1; i < len(buckets); i++ {
		if buckets[i] <= buckets[i-1] {
			t.Errorf("buckets not ascending at %d: %f <= %f", i, buckets[i], buckets[i-1])
		}
	}
}
