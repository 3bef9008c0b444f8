// Package fieldstream is an event-processing pipeline for telemetry and
// command acknowledgements published by distributed field devices.
//
// # Architecture
//
// Events enter through the ingress layer (NATS subjects or HTTP), pass an
// idempotency check, then flow through validation, enrichment, and a
// declarative transform chain before fanning out to the windowed aggregator
// and the anomaly detector. Finished records and alerts are routed to sinks;
// write failures flow through the retry/DLQ manager.
//
//	Ingress → Dedup → Validate → Enrich → Transform → {Window, Anomaly} → Sinks
//	                                          write failures → Retry/DLQ
//
// # Processing guarantees
//
//   - At-most-once effective processing per event identity within the
//     idempotency retention window.
//   - Same-device events are processed in their original relative order
//     (shard ownership by deviceId hash).
//   - Windowing is event-time based; late samples past the grace period are
//     counted and dropped, never silently lost.
//   - Permanent failures (parse, validation, transform) go straight to the
//     DLQ; transient sink failures are retried with capped exponential
//     backoff before quarantine.
//
// # Layout
//
// Top-level packages map to pipeline stages (ingress, dedup, validate,
// enrich, transform, window, anomaly, sink, dlq, pipeline) plus shared
// infrastructure (config, errors, event, metric, natsclient, health) and
// generic utilities under pkg/ (retry, cache, buffer).
//
// The service package assembles these stages from configuration; the binary
// in cmd/fieldstream is a thin shell around it.
package fieldstream
