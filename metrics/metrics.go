// Package metrics records per-request latency and status for both gateways
// and exposes them two ways: a Prometheus registry for scraping and a JSON
// snapshot for the authenticated metrics endpoints.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector aggregates request counters. Each server owns one; the registry
// is private so independent instances never collide.
type Collector struct {
	registry *prometheus.Registry

	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	connections     prometheus.Gauge
	stateUpdates    prometheus.Counter

	mu           sync.Mutex
	total        uint64
	byStatus     map[string]uint64
	totalLatency time.Duration
	activeConns  int
	started      time.Time
}

// NewCollector creates a collector with its own Prometheus registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mobileapi",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of requests handled by the gateways",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mobileapi",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Request handling duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mobileapi",
			Subsystem: "ws",
			Name:      "active_connections",
			Help:      "Number of live WebSocket connections",
		}),
		stateUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mobileapi",
			Subsystem: "state",
			Name:      "updates_total",
			Help:      "Total number of state tree writes",
		}),
		byStatus: make(map[string]uint64),
		started:  time.Now(),
	}

	c.registry.MustRegister(c.requestCount, c.requestDuration, c.connections, c.stateUpdates)
	return c
}

// ObserveRequest records one handled request.
func (c *Collector) ObserveRequest(method, endpoint string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	c.requestCount.WithLabelValues(method, endpoint, statusStr).Inc()
	c.requestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())

	c.mu.Lock()
	c.total++
	c.byStatus[statusStr]++
	c.totalLatency += duration
	c.mu.Unlock()
}

// ObserveStateUpdate records one state tree write.
func (c *Collector) ObserveStateUpdate() {
	c.stateUpdates.Inc()
}

// ConnectionOpened and ConnectionClosed track the live WebSocket count.
func (c *Collector) ConnectionOpened() {
	c.connections.Inc()
	c.mu.Lock()
	c.activeConns++
	c.mu.Unlock()
}

func (c *Collector) ConnectionClosed() {
	c.connections.Dec()
	c.mu.Lock()
	if c.activeConns > 0 {
		c.activeConns--
	}
	c.mu.Unlock()
}

// Handler returns the Prometheus exposition handler for this collector's
// registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Snapshot is the JSON form served by GET /api/metrics and the WebSocket
// get_metrics / metrics_update messages.
type Snapshot struct {
	TotalRequests     uint64            `json:"total_requests"`
	RequestsByStatus  map[string]uint64 `json:"requests_by_status"`
	AverageLatencyMs  float64           `json:"average_latency_ms"`
	ActiveConnections int               `json:"active_connections"`
	StateUpdates      uint64            `json:"state_updates"`
	UptimeSeconds     float64           `json:"uptime_seconds"`
	Timestamp         time.Time         `json:"timestamp"`
}

// Snapshot returns current aggregates. stateUpdates is supplied by the
// caller from the store's own counter.
func (c *Collector) Snapshot(stateUpdates uint64) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	byStatus := make(map[string]uint64, len(c.byStatus))
	for k, v := range c.byStatus {
		byStatus[k] = v
	}

	var avgMs float64
	if c.total > 0 {
		avgMs = float64(c.totalLatency.Milliseconds()) / float64(c.total)
	}

	return Snapshot{
		TotalRequests:     c.total,
		RequestsByStatus:  byStatus,
		AverageLatencyMs:  avgMs,
		ActiveConnections: c.activeConns,
		StateUpdates:      stateUpdates,
		UptimeSeconds:     time.Since(c.started).Seconds(),
		Timestamp:         time.Now(),
	}
}
