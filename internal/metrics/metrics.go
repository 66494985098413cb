// Package metrics exposes prometheus counters for workflow and attendance activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	workflowActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studio",
		Subsystem: "workflow",
		Name:      "actions_total",
		Help:      "Total number of submission actions broken down by action and result code.",
	}, []string{"action", "result"})

	deviceOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studio",
		Subsystem: "attendance",
		Name:      "device_operations_total",
		Help:      "Total number of terminal operations broken down by operation and success.",
	}, []string{"operation", "result"})

	punchesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "studio",
		Subsystem: "attendance",
		Name:      "punches_ingested_total",
		Help:      "Total number of new raw punches stored.",
	})

	rowsUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studio",
		Subsystem: "attendance",
		Name:      "rows_written_total",
		Help:      "Total number of daily attendance rows written broken down by source.",
	}, []string{"source"})
)

// RecordWorkflowAction counts one action. result is "ok" or an error code.
func RecordWorkflowAction(action, result string) {
	if result == "" {
		result = "ok"
	}
	workflowActions.WithLabelValues(action, result).Inc()
}

func RecordDeviceOperation(operation string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	deviceOperations.WithLabelValues(operation, result).Inc()
}

func RecordPunchesIngested(n int) {
	if n > 0 {
		punchesIngested.Add(float64(n))
	}
}

func RecordAttendanceRows(source string, n int) {
	if n > 0 {
		rowsUpserted.WithLabelValues(source).Add(float64(n))
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
