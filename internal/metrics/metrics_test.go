package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/0xReLogic/fliphash-lb/internal/pool"
)

func TestCollector_CountersIncrement(t *testing.T) {
	p := pool.New()
	c := NewCollector(p)

	c.RecordSession()
	c.RecordSession()
	c.RecordNoBackend()
	c.RecordDialFailure()
	c.RecordReap()

	body := scrape(t, c)

	assertMetricValue(t, body, "fliphash_lb_sessions_total", "2")
	assertMetricValue(t, body, "fliphash_lb_no_backend_total", "1")
	assertMetricValue(t, body, "fliphash_lb_dial_failures_total", "1")
	assertMetricValue(t, body, "fliphash_lb_backend_reaps_total", "1")
}

func TestCollector_PoolSizeTracksPool(t *testing.T) {
	p := pool.New()
	c := NewCollector(p)

	p.Add(pool.Backend{Host: "127.0.0.1", Port: 7001})
	p.Add(pool.Backend{Host: "127.0.0.1", Port: 7002})

	body := scrape(t, c)
	assertMetricValue(t, body, "fliphash_lb_pool_size", "2")

	p.Remove(pool.Backend{Host: "127.0.0.1", Port: 7001})

	body = scrape(t, c)
	assertMetricValue(t, body, "fliphash_lb_pool_size", "1")
}

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	return w.Body.String()
}

func assertMetricValue(t *testing.T, body, metric, want string) {
	t.Helper()
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, metric+" ") {
			got := strings.TrimSpace(strings.TrimPrefix(line, metric+" "))
			if got != want {
				t.Fatalf("%s = %s, want %s", metric, got, want)
			}
			return
		}
	}
	t.Fatalf("metric %s not found in scrape output:\n%s", metric, body)
}
