// Package metrics exposes the Prometheus counters and histograms the
// connection manager records on its success and error paths
// (SPEC_FULL.md's ambient stack). None of them are required by the core
// engine: a nil *Sink passed to the poller or a connection manager is
// replaced with NoopSink, following nabbar-golib's prometheus package
// convention of an always-safe-to-call metrics facade.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sink bundles every metric this module records.
type Sink struct {
	ConnectionsEstablished prometheus.Counter
	ConnectionsFailed      prometheus.Counter
	JobsSubmitted          prometheus.Counter
	JobsCompleted          prometheus.Counter
	JobsFailed             prometheus.Counter
	AdminCommandsSent      prometheus.Counter
	PollWakeDuration       prometheus.Histogram
}

// New registers a fresh set of metrics against reg. Pass
// prometheus.DefaultRegisterer to wire into the global registry, or a
// private *prometheus.Registry in tests to avoid duplicate-registration
// panics across test runs.
func New(reg prometheus.Registerer) *Sink {
	factory := promauto.With(reg)
	return &Sink{
		ConnectionsEstablished: factory.NewCounter(prometheus.CounterOpts{
			Name: "gearman_connections_established_total",
			Help: "TCP connections successfully established to a Gearman job server.",
		}),
		ConnectionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "gearman_connections_failed_total",
			Help: "TCP connection attempts that failed or later errored.",
		}),
		JobsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "gearman_jobs_submitted_total",
			Help: "SUBMIT_JOB variants sent by the client front-end.",
		}),
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "gearman_jobs_completed_total",
			Help: "Jobs a worker reported complete with WORK_COMPLETE.",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "gearman_jobs_failed_total",
			Help: "Jobs a worker reported failed with WORK_FAIL.",
		}),
		AdminCommandsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "gearman_admin_commands_sent_total",
			Help: "Text or ECHO_REQ admin commands sent.",
		}),
		PollWakeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gearman_poll_wake_duration_seconds",
			Help:    "Wall-clock duration of a single poller wake.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// NoopSink returns a Sink wired to a private registry nobody scrapes, so
// callers that don't care about metrics never need a nil check.
func NoopSink() *Sink {
	return New(prometheus.NewRegistry())
}
