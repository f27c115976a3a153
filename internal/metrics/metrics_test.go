// ABOUTME: Tests for the Prometheus collectors
// ABOUTME: Uses testutil to read counter values and scrapes the HTTP handler

package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveDispatch("command:products", "ok", 10*time.Millisecond)
	m.ObserveDispatch("command:products", "ok", 20*time.Millisecond)
	m.ObserveDispatch("state:awaiting_search_input", "error", time.Millisecond)
	m.ObserveFailure("upstream", "state:awaiting_search_input")
	m.WebhookMessage("duplicate")
	m.OutboundReply("list", nil)
	m.OutboundReply("list", errors.New("400"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatches.WithLabelValues("command:products", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatches.WithLabelValues("state:awaiting_search_input", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("upstream", "state:awaiting_search_input")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhook.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outbound.WithLabelValues("list", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.latency))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveDispatch("state:idle", "ok", time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `concierge_dispatches_total{outcome="ok",route="state:idle"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
