package engine

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tally",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Executions by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tally",
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Execution latency by operation",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
		[]string{"op"},
	)

	recordsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tally",
			Subsystem: "engine",
			Name:      "stream_records",
			Help:      "Records in each stream as of the last commit",
		},
		[]string{"stream"},
	)
)

// outcome labels an execution result: "ok", the lowercased error code,
// or "error" for failures that carry no code.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := CodeOf(err); code != "" {
		return strings.ToLower(string(code))
	}
	return "error"
}

func (e *Engine) observe(op string, start time.Time, err error) {
	operationsTotal.WithLabelValues(op, outcome(err)).Inc()
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
