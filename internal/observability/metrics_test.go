package observability

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_AddIgnoresNegative(t *testing.T) {
	r := NewRegistry()
	c := r.Counter("events_total", "Events", nil)

	c.Inc()
	c.Add(4)
	c.Add(-10)
	assert.Equal(t, int64(5), c.Value())
}

func TestGauge_SetAddDec(t *testing.T) {
	r := NewRegistry()
	g := r.Gauge("queue_depth", "Depth", nil)

	g.Set(10)
	g.Inc()
	g.Dec()
	g.Add(-2.5)
	assert.Equal(t, 7.5, g.Value())
}

func TestRegistry_GetOrCreateReturnsSameInstance(t *testing.T) {
	r := NewRegistry()
	a := r.Counter("hits", "Hits", map[string]string{"source": "pumpfun"})
	b := r.Counter("hits", "Hits", map[string]string{"source": "pumpfun"})
	other := r.Counter("hits", "Hits", map[string]string{"source": "solscan"})

	a.Inc()
	assert.Equal(t, int64(1), b.Value())
	assert.Equal(t, int64(0), other.Value())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Counter("shared", "Shared", nil).Inc()
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), r.Counter("shared", "Shared", nil).Value())
}

func TestExporter_Format(t *testing.T) {
	r := NewRegistry()
	r.Counter("fetch_total", "Total fetches", map[string]string{"source": "pumpfun", "status": "ok"}).Add(3)
	r.Counter("fetch_total", "Total fetches", map[string]string{"source": "solscan", "status": "error"}).Inc()
	r.Gauge("monitors_active", "Active monitors", nil).Set(2)

	out := NewExporter(r).Format()

	assert.Contains(t, out, "# HELP fetch_total Total fetches")
	assert.Contains(t, out, "# TYPE fetch_total counter")
	assert.Contains(t, out, `fetch_total{source="pumpfun",status="ok"} 3`)
	assert.Contains(t, out, `fetch_total{source="solscan",status="error"} 1`)
	assert.Contains(t, out, "# TYPE monitors_active gauge")
	assert.Contains(t, out, "monitors_active 2")

	// One header per metric name, even with several label variants.
	assert.Equal(t, 1, strings.Count(out, "# HELP fetch_total"))
}

func TestServer_Endpoints(t *testing.T) {
	r := NewRegistry()
	r.Counter("cycles_total", "Cycles", nil).Inc()

	srv := NewServer(r, func() any {
		return map[string]int{"cycles": 1}
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	metrics, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	assert.Equal(t, 200, metrics.StatusCode)
	assert.Contains(t, metrics.Header.Get("Content-Type"), "text/plain")

	stats, err := ts.Client().Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer stats.Body.Close()
	assert.Equal(t, 200, stats.StatusCode)
}
