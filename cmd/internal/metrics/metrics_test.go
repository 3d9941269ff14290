package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.IdentityEvent("register", "ok")
	c.IdentityEvent("register", "ok")
	c.IdentityEvent("login", "invalid_credentials")
	c.NotifyResult("dropped")
	c.TelemetryWrite("error")
	c.HTTPRequest(http.MethodPost, "2xx", 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.identity.WithLabelValues("register", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.identity.WithLabelValues("login", "invalid_credentials")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.notify.WithLabelValues("dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.telemetry.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues(http.MethodPost, "2xx")))
}

func TestCollector_LiveGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.LiveClientConnected()
	c.LiveClientConnected()
	c.LiveClientDisconnected()
	c.LiveMessage("sent")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.liveClients))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.liveDelivered.WithLabelValues("sent")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.IdentityEvent("register", "ok")
		c.NotifyResult("sent")
		c.TelemetryWrite("ok")
		c.HTTPRequest(http.MethodGet, "2xx", time.Millisecond)
		c.LiveClientConnected()
		c.LiveClientDisconnected()
		c.LiveMessage("dropped")
	})
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := NewRegistry()
	c := NewCollector(reg)
	c.IdentityEvent("verify_email", "ok")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "aqi_identity_events_total")
	assert.Contains(t, string(body), "go_goroutines")
}
