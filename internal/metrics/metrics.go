// Package metrics holds the prometheus collectors for a resolution run. They
// live on a dedicated registry so a CLI run can export them as a textfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "anvilpkg"

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// Registry collects every anvilpkg metric.
var Registry = prometheus.NewRegistry()

var (
	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "actions_total",
			Help:      "Executed package actions by type and result.",
		},
		[]string{"type", "result"},
	)
	extractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "extractions_total",
			Help:      "Shared store extractions by result.",
		},
		[]string{"result"},
	)
	removalsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "removals_total",
			Help:      "Shared store entries removed after their last reference went away.",
		},
	)
	conflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "file_conflicts_total",
			Help:      "File conflicts met during extraction by resolution.",
		},
		[]string{"resolution"},
	)
	projectFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "project_failures_total",
			Help:      "Projects whose action sequence aborted.",
		},
	)
	resolutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "resolution_duration_seconds",
			Help:      "Time taken to resolve the actions of one project.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func init() {
	Registry.MustRegister(
		actionsTotal,
		extractionsTotal,
		removalsTotal,
		conflictsTotal,
		projectFailuresTotal,
		resolutionDuration,
	)
}

func RecordAction(actionType, result string) {
	actionsTotal.WithLabelValues(actionType, result).Inc()
}

func RecordExtraction(result string) {
	extractionsTotal.WithLabelValues(result).Inc()
}

func RecordRemoval() {
	removalsTotal.Inc()
}

func RecordConflict(resolution string) {
	conflictsTotal.WithLabelValues(resolution).Inc()
}

func RecordProjectFailure() {
	projectFailuresTotal.Inc()
}

func ObserveResolution(d time.Duration) {
	resolutionDuration.Observe(d.Seconds())
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
