// Package nebulaflow is a pipeline execution engine that moves records from a
// source connector to a destination connector.
//
// A pipeline reads from its source (optionally only records newer than an
// incremental watermark), renames fields through its field mappings, applies
// an ordered list of transformations and writes the result to the destination
// in batches. Every execution is recorded in a run log. A failed run keeps a
// snapshot of the configuration it ran with so it can be retried while the
// snapshot is retained.
//
// # Packages
//
//	internal/pipeline      - engine: run orchestrator, mapping, transformations, batch writer, dry run
//	internal/scheduler     - cron scheduler and snapshot reaper
//	internal/automap       - name-similarity field mapping suggestions
//	internal/store         - pipeline, run-log and settings persistence (memory, Postgres)
//	internal/runlock       - per-pipeline run exclusivity (memory, Redis)
//	internal/notify        - run outcome notifications (log, webhook)
//	pkg/connector          - connector contracts, registry and built-in connectors
//	pkg/models             - pipelines, records, run logs
//	pkg/nebulaerrors       - structured errors
//	pkg/config             - engine configuration and pipeline definition files
//	pkg/logger             - structured logging
//	pkg/metrics            - Prometheus collectors
//	pkg/observability      - OpenTelemetry tracing
//
// # Quick Start
//
//	nebulaflow connectors
//	nebulaflow run orders-sync --pipelines pipelines.yaml
//	nebulaflow dry-run orders-sync --pipelines pipelines.yaml -n 5
//	nebulaflow serve --config nebulaflow.yaml
//
// Configuration values can be overridden with NEBULAFLOW_* environment
// variables, for example NEBULAFLOW_STORE_DSN.
package nebulaflow
