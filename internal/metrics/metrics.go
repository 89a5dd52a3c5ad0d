// Package metrics exposes the prometheus collectors Hermes registers for
// the buffer pool, metadata score histogram, and scheduler lane depths,
// grounded on buildbarn/bb-storage's
// pkg/blobstore/local/local_blob_access.go gauge/histogram registration
// block (a real third-party metrics client used for exactly this shape of
// tiered-storage instrumentation).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is the set of collectors a Service registers at construction
// time and hands out to its components, mirroring bb-storage's pattern of
// a package-level var block of collectors registered once via sync.Once at
// the call site (Service.New, here, plays that role instead of a
// package-level sync.Once since Design Note §9 collapses singletons into
// one explicit value).
type Registry struct {
	BPMRemainingBytes  *prometheus.GaugeVec
	BPMReservations    *prometheus.CounterVec
	ScoreHistogramBins *prometheus.GaugeVec
	SchedulerLaneDepth *prometheus.GaugeVec
	BlobIOLatency      *prometheus.HistogramVec
}

// NewRegistry constructs a fresh set of collectors and registers them with
// reg. Passing a prometheus.NewRegistry() per Service keeps tests from
// colliding on prometheus's global DefaultRegisterer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		BPMRemainingBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hermes",
			Subsystem: "bpm",
			Name:      "remaining_bytes",
			Help:      "Bytes of unallocated capacity remaining on a target.",
		}, []string{"target"}),
		BPMReservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hermes",
			Subsystem: "bpm",
			Name:      "reservations_total",
			Help:      "Count of buffer reservations made against a target.",
		}, []string{"target"}),
		ScoreHistogramBins: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hermes",
			Subsystem: "mdm",
			Name:      "score_histogram_bin_count",
			Help:      "Live blob count per score histogram bin.",
		}, []string{"bin"}),
		SchedulerLaneDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hermes",
			Subsystem: "scheduler",
			Name:      "lane_depth",
			Help:      "Number of queued tasks per lane.",
		}, []string{"group", "lane"}),
		BlobIOLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hermes",
			Subsystem: "blobio",
			Name:      "operation_latency_seconds",
			Help:      "Latency of BlobIO read/write/append operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}

	reg.MustRegister(
		r.BPMRemainingBytes,
		r.BPMReservations,
		r.ScoreHistogramBins,
		r.SchedulerLaneDepth,
		r.BlobIOLatency,
	)
	return r
}
