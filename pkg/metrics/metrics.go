// Package metrics holds the Prometheus collectors shared by the engine.
//
// Collectors are registered on the default registry at package init, the
// serve command exposes them through promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "matrixgraph"

var (
	// MatrixFlushes counts pending-op flushes.
	// Labels: kind (label, relation, adjacency)
	MatrixFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "matrix",
		Name:      "flushes_total",
		Help:      "Total pending operation flushes per matrix kind",
	}, []string{"kind"})

	// PendingOpsApplied counts individual pending operations applied by flushes.
	// Labels: kind
	PendingOpsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "matrix",
		Name:      "pending_ops_applied_total",
		Help:      "Total pending matrix operations applied",
	}, []string{"kind"})

	// MatrixResizes counts dimension growth events.
	// Labels: kind
	MatrixResizes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "matrix",
		Name:      "resizes_total",
		Help:      "Total matrix resizes",
	}, []string{"kind"})

	// IndexBatches counts population batches.
	// Labels: entity (node, edge)
	IndexBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "batches_total",
		Help:      "Total index population batches",
	}, []string{"entity"})

	// IndexedEntities counts entities added to an index during population.
	// Labels: entity
	IndexedEntities = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "entities_total",
		Help:      "Total entities indexed during population",
	}, []string{"entity"})

	// IndexPopulations counts finished population runs.
	// Labels: entity, outcome (enabled, aborted, canceled, error)
	IndexPopulations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "populations_total",
		Help:      "Total index population runs by outcome",
	}, []string{"entity", "outcome"})

	// IndexPopulationDuration measures a full population run.
	// Labels: entity
	IndexPopulationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "population_duration_seconds",
		Help:      "Index population duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"entity"})

	// IndexerQueueDepth tracks jobs waiting for the background indexer.
	IndexerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "queue_depth",
		Help:      "Index population jobs waiting for a worker",
	})

	// RecordsProduced counts records emitted by execution-plan operators.
	// Labels: op (operator name)
	RecordsProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "execution",
		Name:      "records_total",
		Help:      "Total records produced per operator",
	}, []string{"op"})

	// PlanDuration measures ExecutionPlan.Run.
	// Labels: status (ok, error, canceled)
	PlanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "execution",
		Name:      "plan_duration_seconds",
		Help:      "Execution plan run time in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	// SnapshotBytes tracks the size of the last saved snapshot.
	// Labels: graph
	SnapshotBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "persist",
		Name:      "snapshot_bytes",
		Help:      "Encoded size of the last saved graph snapshot",
	}, []string{"graph"})
)
