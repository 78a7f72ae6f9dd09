package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounter(t *testing.T) {
	r := New()
	c := r.Counter("test_total", "A test counter", "stage")
	c.WithLabelValues("plan").Inc()
	c.WithLabelValues("plan").Add(4)
	c.WithLabelValues("tools").Inc()
	if got := testutil.ToFloat64(c.WithLabelValues("plan")); got != 5 {
		t.Fatalf("expected 5, got %v", got)
	}
	if c2 := r.Counter("test_total", ""); c2 != c {
		t.Fatal("expected same counter instance")
	}
}

func TestGauge(t *testing.T) {
	r := New()
	g := r.Gauge("test_gauge", "A test gauge")
	g.WithLabelValues().Set(42)
	g.WithLabelValues().Inc()
	g.WithLabelValues().Dec()
	g.WithLabelValues().Inc()
	if got := testutil.ToFloat64(g.WithLabelValues()); got != 43 {
		t.Fatalf("expected 43, got %v", got)
	}
}

func TestHistogram(t *testing.T) {
	r := New()
	h := r.Histogram("test_seconds", "A test histogram", nil, "tool")
	h.WithLabelValues("eta").Observe(0.02)
	h.WithLabelValues("eta").Observe(3)
	if n := testutil.CollectAndCount(h); n != 1 {
		t.Fatalf("expected 1 series, got %d", n)
	}
	if r.Histogram("test_seconds", "", []float64{1}) != h {
		t.Fatal("expected same histogram instance")
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("transit_answers_total", "Answers", "outcome").WithLabelValues("ok").Inc()
	r.CollectRuntime()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)
	if !strings.Contains(out, `transit_answers_total{outcome="ok"} 1`) {
		t.Errorf("missing counter line:\n%s", out)
	}
	if !strings.Contains(out, "go_goroutines") {
		t.Error("missing runtime metrics")
	}
}

func TestGatherer(t *testing.T) {
	r := New()
	r.Counter("a_total", "A").WithLabelValues().Inc()
	n, err := testutil.GatherAndCount(r.Gatherer(), "a_total")
	if err != nil || n != 1 {
		t.Errorf("count = %d, err = %v", n, err)
	}
}
