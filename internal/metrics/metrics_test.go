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

func TestCollector_RecordCheck(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCheck("openai", "completed", 2*time.Second)
	c.RecordCheck("openai", "completed", time.Second)
	c.RecordCheck("openai", "failed", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.checks.WithLabelValues("openai", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.checks.WithLabelValues("openai", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.checkDuration))
}

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAlert("google", "new_citation")
	c.RecordUpstreamError("claude", 529)
	c.RecordUpstreamError("claude", 0)
	c.RecordNotification("teams", true)
	c.RecordNotification("email", false)
	c.IncInFlight("gemini")
	c.IncInFlight("gemini")
	c.DecInFlight("gemini")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.alerts.WithLabelValues("google", "new_citation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.upstreamErrs.WithLabelValues("claude", "529")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.upstreamErrs.WithLabelValues("claude", "0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.notifications.WithLabelValues("teams", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.notifications.WithLabelValues("email", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inFlight.WithLabelValues("gemini")))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordAlert("youtube", "lost_citation")

	server := httptest.NewServer(Handler(reg))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `citecheck_alerts_total{platform="youtube",type="lost_citation"} 1`)
}
