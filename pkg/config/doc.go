/*
Package config loads and validates the controller configuration.

Configuration comes from one YAML file overlaid on built-in defaults.
It covers the event queue, worker pool sizing, broker connectivity,
the metrics endpoint, the scheduled sweep, per-counter retry
thresholds, and the set of trusted message senders.
*/
package config
