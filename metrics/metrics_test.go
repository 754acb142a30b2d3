package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotAggregates(t *testing.T) {
	c := NewCollector()

	c.ObserveRequest("GET", "/api/state", 200, 10*time.Millisecond)
	c.ObserveRequest("POST", "/api/state", 200, 30*time.Millisecond)
	c.ObserveRequest("GET", "/api/state", 401, 2*time.Millisecond)
	c.ConnectionOpened()

	snap := c.Snapshot(7)
	assert.EqualValues(t, 3, snap.TotalRequests)
	assert.EqualValues(t, 2, snap.RequestsByStatus["200"])
	assert.EqualValues(t, 1, snap.RequestsByStatus["401"])
	assert.EqualValues(t, 7, snap.StateUpdates)
	assert.Equal(t, 1, snap.ActiveConnections)
	assert.InDelta(t, 14.0, snap.AverageLatencyMs, 1.0)

	c.ConnectionClosed()
	snap = c.Snapshot(7)
	assert.Equal(t, 0, snap.ActiveConnections)
}

func TestConnectionCountNeverNegative(t *testing.T) {
	c := NewCollector()
	c.ConnectionClosed()
	assert.Equal(t, 0, c.Snapshot(0).ActiveConnections)
}

func TestPrometheusExposition(t *testing.T) {
	c := NewCollector()
	c.ObserveRequest("GET", "/health", 200, time.Millisecond)
	c.ObserveStateUpdate()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "mobileapi_http_requests_total"), "missing request counter:\n%s", body)
	assert.True(t, strings.Contains(body, "mobileapi_state_updates_total"), "missing state update counter")
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector()
	b := NewCollector()
	a.ObserveRequest("GET", "/health", 200, time.Millisecond)

	assert.EqualValues(t, 1, a.Snapshot(0).TotalRequests)
	assert.EqualValues(t, 0, b.Snapshot(0).TotalRequests)
}
