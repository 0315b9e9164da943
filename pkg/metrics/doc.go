/*
Package metrics provides Prometheus metrics collection and exposition for
Titan.

The package defines and registers every Titan metric with the Prometheus
client library, giving observability into plate throughput, mover and
station contention, device processing latency, and actor runtime health.
Metrics are exposed over HTTP for scraping by a Prometheus server.

# Metric Categories

Plates: counts by phase, workflow and per-step duration, completed/errored/
aborted totals.

Movers: counts by run state, assignment wait time, transport duration,
failed transport count.

Stations: queue depth and access wait time per station.

Devices: processing duration and error count per device.

Planner: planning duration and failure count by reason.

Actor runtime: mailbox depth per actor, events published by type.

Sweeper: sweep cycle count, stale-plate detections.

# Usage

Exposing the /metrics endpoint:

	mux.Handle("/metrics", metrics.Handler())

Timing an operation:

	timer := metrics.NewTimer()
	// ... do work ...
	timer.ObserveDuration(metrics.PlateWorkflowDuration)

Polling point-in-time state into gauges:

	collector := metrics.NewCollector(coord)
	collector.Start()
	defer collector.Stop()

# Health and Readiness

RegisterComponent/UpdateComponent track the health of named components
(deck, coordinator, driver); GetHealth and GetReadiness aggregate them for
the /health and /ready HTTP endpoints. Readiness additionally requires the
three critical components to be registered and healthy before reporting
ready, so a coordinator that hasn't finished loading its deck won't be
sent traffic.
*/
package metrics
