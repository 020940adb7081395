package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pushchain/chainconn/rpcpool"
)

const namespace = "chainconn"

// Collector exports pool activity as Prometheus metrics. It implements
// rpcpool.Observer and owns its registry, so several collectors can
// coexist in one process.
type Collector struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	failovers      *prometheus.CounterVec
	exhausted      *prometheus.CounterVec
	activeEndpoint *prometheus.GaugeVec
}

var _ rpcpool.Observer = (*Collector)(nil)

// NewCollector creates a collector with its metrics registered
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "endpoint_requests_total",
			Help:      "Calls made against an endpoint, by operation and status",
		}, []string{"chain_id", "url", "operation", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "endpoint_request_duration_seconds",
			Help:      "Latency of calls made against an endpoint",
			Buckets:   prometheus.DefBuckets,
		}, []string{"chain_id", "operation"}),
		failovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failovers_total",
			Help:      "Changes of a pool's bound endpoint, by trigger",
		}, []string{"chain_id", "trigger"}),
		exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_exhausted_total",
			Help:      "Requests that failed on every endpoint of a pool",
		}, []string{"chain_id", "operation"}),
		activeEndpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_endpoint",
			Help:      "1 for the endpoint a pool is bound to, 0 for the others",
		}, []string{"chain_id", "url"}),
	}

	c.registry.MustRegister(
		c.requests,
		c.requestLatency,
		c.failovers,
		c.exhausted,
		c.activeEndpoint,
	)
	return c
}

// Registry returns the registry holding the collector's metrics
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) OnEndpointResult(chainID, url, operation string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	c.requests.WithLabelValues(chainID, url, operation, status).Inc()
	c.requestLatency.WithLabelValues(chainID, operation).Observe(latency.Seconds())
}

func (c *Collector) OnFailover(event rpcpool.FailoverEvent) {
	c.failovers.WithLabelValues(event.ChainID, string(event.Trigger)).Inc()
	if event.FromURL != "" {
		c.activeEndpoint.WithLabelValues(event.ChainID, event.FromURL).Set(0)
	}
	if event.ToURL != "" {
		c.activeEndpoint.WithLabelValues(event.ChainID, event.ToURL).Set(1)
	}
}

func (c *Collector) OnPoolExhausted(chainID, operation string, endpointsTried int) {
	c.exhausted.WithLabelValues(chainID, operation).Inc()
}

// ObserveSnapshot sets the active endpoint gauge from a health snapshot.
// Startup bindings emit no failover event, so callers seed the gauge here.
func (c *Collector) ObserveSnapshot(snapshot rpcpool.PoolHealthSnapshot) {
	for _, ep := range snapshot.Endpoints {
		value := 0.0
		if ep.Active {
			value = 1
		}
		c.activeEndpoint.WithLabelValues(snapshot.ChainID, ep.URL).Set(value)
	}
}
