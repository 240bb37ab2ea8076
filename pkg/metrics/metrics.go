// Package metrics defines the Prometheus instrumentation for the agent.
// Collectors are registered on the default registry and exposed by the HTTP
// server under /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Topology refresh loop.
	TopologyPolls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aura_topology_polls_total",
		Help: "Completed topology refresh passes.",
	})
	TopologyPollsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aura_topology_polls_failed_total",
		Help: "Topology refresh passes aborted by an error.",
	})
	TopologyPollsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aura_topology_polls_skipped_total",
		Help: "Topology refresh ticks skipped because the previous pass was still running.",
	})

	// Outbound NSI requests, labeled by message kind and outcome.
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aura_nsi_messages_sent_total",
		Help: "Outbound NSI-CS messages by kind.",
	}, []string{"kind"})
	MessageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aura_nsi_message_failures_total",
		Help: "Outbound NSI-CS messages that ended in a transport error or fault.",
	}, []string{"kind"})

	// Inbound callbacks, labeled by body element.
	CallbacksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aura_nsi_callbacks_received_total",
		Help: "Inbound NSI-CS callbacks by type.",
	}, []string{"action"})
	CallbacksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aura_nsi_callbacks_dropped_total",
		Help: "Callbacks dropped as protocol violations (unknown action or unmatched reservation).",
	})

	// Background job dispatcher.
	JobsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aura_jobs_queued_total",
		Help: "Jobs accepted by the dispatcher.",
	})
	JobsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aura_jobs_rejected_total",
		Help: "Jobs rejected because the same job was already in flight.",
	})
	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aura_jobs_failed_total",
		Help: "Jobs that returned an error.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
