// Package metrics provides Prometheus collectors for nebulaflow. Every
// collector is registered on the default registry through promauto and
// exposed by the serve command on the metrics address.
//
// # Overview
//
// The metrics package provides:
//   - Run outcomes and durations per status
//   - Stage durations per stage label
//   - Records read, written and skipped per connector
//   - Batch sizes and batch outcomes for the batch writer
//   - Scheduler, reaper and notification counters
//
// # Basic Usage
//
//	timer := metrics.NewTimer("run")
//	log, err := engine.RunPipeline(ctx, id, "alice")
//	metrics.ObserveRun(string(log.Status), "manual", timer.Stop())
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nebulaflow"

var (
	// RunsTotal counts finished runs by terminal status and trigger kind
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "total",
			Help:      "Total number of finished pipeline runs",
		},
		[]string{"status", "trigger"},
	)

	// RunDuration observes end-to-end run duration
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
		},
		[]string{"status"},
	)

	// StageDuration observes each execution stage
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline execution stages in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"stage", "status"},
	)

	// RunsRejected counts triggers rejected because a run was in flight
	RunsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "rejected_total",
			Help:      "Total number of run triggers rejected by per-pipeline exclusivity",
		},
	)

	// RecordsRead counts records returned by source readers
	RecordsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connector",
			Name:      "records_read_total",
			Help:      "Total number of records read from sources",
		},
		[]string{"connector"},
	)

	// RecordsWritten counts records accepted by destination writers
	RecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connector",
			Name:      "records_written_total",
			Help:      "Total number of records written to destinations",
		},
		[]string{"connector"},
	)

	// RecordsSkipped counts records dropped by a failing transformation
	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "records_skipped_total",
			Help:      "Total number of records skipped because a transformation failed",
		},
		[]string{"transformation"},
	)

	// ConnectorDuration observes connector operations
	ConnectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "connector",
			Name:      "operation_duration_seconds",
			Help:      "Duration of connector operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"connector", "operation", "status"},
	)

	// BatchSize observes chunk sizes handed to destination writers
	BatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "size",
			Help:      "Size of batches written",
			Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000, 10000, 50000, 100000},
		},
		[]string{"connector"},
	)

	// BatchesTotal counts batch writes by outcome
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "total",
			Help:      "Total number of batch writes",
		},
		[]string{"connector", "status"},
	)

	// SchedulerTicks counts scheduler poll iterations
	SchedulerTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Total number of scheduler ticks",
		},
	)

	// SchedulerTriggered counts runs started by the scheduler
	SchedulerTriggered = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "triggered_total",
			Help:      "Total number of runs triggered by the scheduler",
		},
	)

	// SchedulerErrors counts per-pipeline scheduler failures
	SchedulerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "errors_total",
			Help:      "Total number of scheduler errors by kind",
		},
		[]string{"kind"},
	)

	// InFlightRuns tracks runs currently executing in this process
	InFlightRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "in_flight",
			Help:      "Number of pipeline runs currently executing",
		},
	)

	// SnapshotsCleared counts expired run-log snapshots cleared by the reaper
	SnapshotsCleared = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reaper",
			Name:      "snapshots_cleared_total",
			Help:      "Total number of expired configuration snapshots cleared",
		},
	)

	// NotificationsTotal counts notification dispatches by event and outcome
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "total",
			Help:      "Total number of notification dispatches",
		},
		[]string{"event", "status"},
	)
)

// Status returns the label value for an operation outcome.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveRun records a finished run.
func ObserveRun(status, trigger string, d time.Duration) {
	RunsTotal.WithLabelValues(status, trigger).Inc()
	RunDuration.WithLabelValues(status).Observe(d.Seconds())
}

// ObserveStage records one execution stage.
func ObserveStage(stage string, d time.Duration, err error) {
	StageDuration.WithLabelValues(stage, Status(err)).Observe(d.Seconds())
}

// ObserveConnector records one connector operation.
func ObserveConnector(connector, operation string, d time.Duration, err error) {
	ConnectorDuration.WithLabelValues(connector, operation, Status(err)).Observe(d.Seconds())
}

// Timer provides a simple timing mechanism for measuring operation durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
// The name parameter is for identification in logs or metrics.
//
// Example:
//
//	timer := metrics.NewTimer("batch_write")
//	err := writer.Write(ctx, cfg, chunk)
//	metrics.ObserveConnector("postgresql", "write", timer.Stop(), err)
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer name.
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. It can be called
// repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
