package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cluster
	ClusterPhaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "splitbrain",
		Subsystem: "cluster",
		Name:      "phase_transitions_total",
		Help:      "Total cluster phase transitions",
	}, []string{"from", "to"})

	ClusterOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "splitbrain",
		Subsystem: "cluster",
		Name:      "operation_duration_seconds",
		Help:      "Cluster lifecycle operation duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"operation", "result"})

	ClusterUpdateFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "splitbrain",
		Subsystem: "cluster",
		Name:      "update_failures_total",
		Help:      "Total topology updates rolled back after a node failed to reconfigure",
	})

	// Node
	NodeOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "splitbrain",
		Subsystem: "node",
		Name:      "operations_total",
		Help:      "Total node lifecycle operations by outcome",
	}, []string{"operation", "result"})

	// Oracle
	OracleVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "splitbrain",
		Subsystem: "oracle",
		Name:      "verdicts_total",
		Help:      "Total convergence classifications by verdict",
	}, []string{"verdict"})

	OracleResponders = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "splitbrain",
		Subsystem: "oracle",
		Name:      "responders",
		Help:      "Nodes that answered the latest sample round",
	})
)

// Result maps an error to the "result" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}

	return "ok"
}
