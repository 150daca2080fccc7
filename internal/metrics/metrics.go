// Package metrics exposes the runtime's operational counters and
// gauges over an optional Prometheus /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the runtime's job and transport metrics. Callers
// update the fields directly; the transport and job lifecycle packages
// do not reference a Collector. It is safe for concurrent use, same as
// the underlying Prometheus collectors.
type Collector struct {
	JobsStarted    prometheus.Counter
	JobsCompleted  prometheus.Counter
	JobsCancelled  prometheus.Counter
	FramesRouted   prometheus.Counter
	ConnectedPeers prometheus.Gauge
	InboxDepth     prometheus.Gauge

	registry *prometheus.Registry
}

// New builds a Collector registered against a private registry, so a
// process embedding mpigo never collides with the default global
// registry's metric names.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		JobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mpigo_jobs_started_total",
			Help: "Number of jobs started via Run.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mpigo_jobs_completed_total",
			Help: "Number of jobs that returned without cancellation.",
		}),
		JobsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mpigo_jobs_cancelled_total",
			Help: "Number of jobs cancelled via CancelJob.",
		}),
		FramesRouted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mpigo_frames_routed_total",
			Help: "Number of DATA frames forwarded by the master router.",
		}),
		ConnectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mpigo_connected_peers",
			Help: "Number of worker connections currently accepted by the master router.",
		}),
		InboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mpigo_inbox_depth",
			Help: "Number of undelivered messages queued in the master's own inbox.",
		}),
		registry: reg,
	}
	reg.MustRegister(c.JobsStarted, c.JobsCompleted, c.JobsCancelled,
		c.FramesRouted, c.ConnectedPeers, c.InboxDepth)
	return c
}

// Handler returns the HTTP handler serving this collector's registry
// in the Prometheus text exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
