package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)

	m.ObserveRequest("completed", 200)
	m.ObserveRequest("completed", 200)
	m.ObserveRequest("aborted", 504)
	m.ObserveEgress("local")
	m.ObserveUpstream("local", 120*time.Millisecond)
	m.ObserveTunnel("ok")
	m.ObserveProvider("mangadex", 200)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("completed", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("aborted", "504")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.egress.WithLabelValues("local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tunnels.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providers.WithLabelValues("mangadex", "200")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("completed", 200)
		m.ObserveEgress("default")
		m.ObserveUpstream("default", time.Second)
		m.ObserveTunnel("ok")
		m.ObserveProvider("x", 200)
	})
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	New(reg).ObserveEgress("proxy")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), `v6relay_egress_total{kind="proxy"} 1`))
}
