// Package metrics exposes Prometheus instrumentation for GraphQL operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rickchristie/pggraphql-mcp/internal/gqlclient"
)

const (
	namespace = "gogqlmcp"
	subsystem = "graphql"

	// OutcomeOK labels a successful operation. Failures are labeled with
	// their gqlclient.Kind, or "internal" when unclassified.
	OutcomeOK       = "ok"
	outcomeInternal = "internal"
)

// Recorder records per-operation counters and latencies. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	resultBytes *prometheus.HistogramVec
	pages       prometheus.Counter
}

// New registers the collectors on reg. Registering twice on the same
// registry panics, as promauto does.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "total number of GraphQL operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "latency of GraphQL operations, including transport and post-processing",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		resultBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "result_bytes",
			Help:      "size of successful operation results before truncation",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"operation"}),
		pages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "collection_pages_total",
			Help:      "total number of collection pages fetched by pagers",
		}),
	}
}

// Outcome maps an operation error to its outcome label.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if kind := gqlclient.KindOf(err); kind != "" {
		return string(kind)
	}
	return outcomeInternal
}

// Observe records one finished operation.
func (r *Recorder) Observe(operation string, err error, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(operation, Outcome(err)).Inc()
	r.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveResultBytes records the encoded size of a successful result.
func (r *Recorder) ObserveResultBytes(operation string, n int) {
	if r == nil {
		return
	}
	r.resultBytes.WithLabelValues(operation).Observe(float64(n))
}

// PageFetched counts one page delivered by a collection pager.
func (r *Recorder) PageFetched() {
	if r == nil {
		return
	}
	r.pages.Inc()
}
