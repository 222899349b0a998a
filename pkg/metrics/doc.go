/*
Package metrics exposes Prometheus metrics for the controller: queue
depth, worker pool size, per-event-type processing counters and
latencies, and session counts by state.

Metric variables are registered at package init. The Collector samples
session state gauges from the store on a fixed interval; everything
else is updated inline by the worker pool and handlers.
*/
package metrics
