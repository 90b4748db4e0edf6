// Package sinks implements progress consumers: structured logs, the terminal
// progress line, an in-memory run status table and Prometheus gauges.
package sinks
